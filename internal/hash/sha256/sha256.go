// Package sha256 computes page signatures with SHA-256.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements crawler.Hasher using SHA-256. An optional domain label is
// mixed into every digest so signatures from different formats never collide.
type Hasher struct {
	domain []byte
}

// New returns a SHA-256 hasher without a domain label.
func New() *Hasher {
	return &Hasher{}
}

// NewWithDomain returns a hasher that prefixes every input with label.
func NewWithDomain(label string) *Hasher {
	return &Hasher{domain: []byte(label + "\x00")}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	d := sha256.New()
	if _, err := d.Write(h.domain); err != nil {
		return "", fmt.Errorf("hash domain: %w", err)
	}
	if _, err := d.Write(data); err != nil {
		return "", fmt.Errorf("hash data: %w", err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
