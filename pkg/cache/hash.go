package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	// Use full SHA-256 hash (64 hex chars / 256 bits) to prevent collisions
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashSource hashes diagram source text for artifact keys. Line endings are
// normalized and trailing whitespace is ignored, so a source saved with CRLF
// on one machine hits the entry compiled from LF on another.
func HashSource(source string) string {
	s := strings.ReplaceAll(source, "\r\n", "\n")
	return Hash([]byte(strings.TrimRight(s, " \t\r\n")))
}
