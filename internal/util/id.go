package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID string, optionally prefixed as "<prefix>_<uuid>".
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// ShortID returns the first n hex characters of a random UUID.
func ShortID(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(hex) {
		return hex
	}
	return hex[:n]
}
