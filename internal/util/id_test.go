package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if _, err := uuid.Parse(plain); err != nil {
		t.Fatalf("expected uuid, got %q: %v", plain, err)
	}
	prefixed := NewID("sub")
	if !strings.HasPrefix(prefixed, "sub_") {
		t.Fatalf("expected sub_ prefix, got %q", prefixed)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{n: 8, want: 8},
		{n: 0, want: 32},
		{n: 64, want: 32},
	}
	for _, tt := range tests {
		if got := len(ShortID(tt.n)); got != tt.want {
			t.Fatalf("ShortID(%d) length = %d, want %d", tt.n, got, tt.want)
		}
	}
}
