package errors

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxProjectNameLength bounds project display names.
const MaxProjectNameLength = 200

// ValidateProjectName trims surrounding whitespace from name and validates
// the result. It returns the trimmed name on success.
//
// The validation rules are:
//   - Not empty after trimming
//   - No control characters (names are single-line)
//   - Maximum length of MaxProjectNameLength runes
func ValidateProjectName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", New(ErrCodeEmptyName, "project name cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) > MaxProjectNameLength {
		return "", New(ErrCodeInvalidInput, "project name too long (max %d characters)", MaxProjectNameLength)
	}

	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", New(ErrCodeInvalidInput, "project name contains invalid control characters")
		}
	}

	return trimmed, nil
}

// ValidateProjectID checks that id has the shape of a project identifier.
// Anything else cannot name a stored project, so it is reported as not found
// rather than as an input error. This also keeps arbitrary strings out of
// file paths and storage keys.
func ValidateProjectID(id string) error {
	if id == "" {
		return New(ErrCodeProjectNotFound, "project id cannot be empty")
	}
	if err := uuid.Validate(id); err != nil {
		return New(ErrCodeProjectNotFound, "project %q not found", id)
	}
	return nil
}
