// Package sha256 provides content hashing for filename disambiguation.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements archive.Hasher with SHA-256.
type Hasher struct{}

// New creates a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 digest of data.
func (Hasher) Hash(data []byte) (string, error) {
	if data == nil {
		return "", fmt.Errorf("hash: nil input")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
