package frame

import (
	"crypto/rand"
	"fmt"
)

// NewMaskKey returns a fresh random masking key.
func NewMaskKey() ([MaskKeySize]byte, error) {
	var key [MaskKeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generating masking key: %w", err)
	}
	return key, nil
}

// applyMask XORs b in place with the repeating 4-byte key. Applying it twice
// restores the original bytes.
func applyMask(b []byte, key []byte) {
	for i := range b {
		b[i] ^= key[i%MaskKeySize]
	}
}
