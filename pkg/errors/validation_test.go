package errors

import (
	"strings"
	"testing"
)

func TestValidateProjectName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantCode Code
	}{
		{"simple", "My Diagram", "My Diagram", ""},
		{"trimmed", "  My Diagram  ", "My Diagram", ""},
		{"tabs trimmed", "\tIoT\n", "IoT", ""},
		{"unicode", "Diagramme été", "Diagramme été", ""},

		{"empty", "", "", ErrCodeEmptyName},
		{"whitespace only", "   ", "", ErrCodeEmptyName},
		{"newline only", "\n\t", "", ErrCodeEmptyName},
		{"too long", strings.Repeat("a", MaxProjectNameLength+1), "", ErrCodeInvalidInput},
		{"control char", "foo\x01bar", "", ErrCodeInvalidInput},
		{"inner newline", "foo\nbar", "", ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateProjectName(tt.input)
			if tt.wantCode != "" {
				if !Is(err, tt.wantCode) {
					t.Fatalf("ValidateProjectName(%q) error = %v, want code %s", tt.input, err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateProjectName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateProjectName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateProjectID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"uuid", "9b2f6c1e-4a9d-4f61-8f0a-3d2b7c5e1a10", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"garbage", "not-an-id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateProjectID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeProjectNotFound) {
				t.Errorf("ValidateProjectID(%q) code = %s, want %s", tt.input, GetCode(err), ErrCodeProjectNotFound)
			}
		})
	}
}
