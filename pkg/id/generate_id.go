// Package id generates the 32-char lowercase hex identifiers used for loans,
// actors and journal events.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID32 hex-encodes 16 random bytes: exactly 32 lowercase hex characters,
// no separators or prefixes, matching the hex32 format the API validates.
func NewID32() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
