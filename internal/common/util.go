package common

import (
	"strings"

	"github.com/google/uuid"
)

// WipeByteArray zeroes b in place. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// NewIdentifier returns a fresh 32-character lowercase hex identifier
// (a random UUID without dashes). Users and conversations are keyed by it.
func NewIdentifier() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
