// Package checksum fingerprints uploaded statement files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrNoChecksum = errors.New("expected checksum is not set")

// Sum returns the hex encoded sha256 of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matcher verifies stored bytes against the checksum recorded at upload.
type Matcher struct {
	expected string
}

func NewMatcher(expected string) *Matcher {
	return &Matcher{expected: expected}
}

func (m *Matcher) Match(data []byte) (bool, error) {
	if m.expected == "" {
		return false, ErrNoChecksum
	}
	return Sum(data) == m.expected, nil
}
