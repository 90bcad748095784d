package signing

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

const (
	AlgorithmSHA256     = "sha256"
	AlgorithmBLAKE2b256 = "blake2b-256"
)

// Hasher produces fixed-size digests over the concatenation of its inputs.
type Hasher interface {
	Algorithm() string
	Size() int
	Sum(parts ...[]byte) []byte
}

type digestHasher struct {
	name    string
	size    int
	factory func() hash.Hash
}

// NewHasher returns the hasher for algorithm; an empty name selects sha256.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmSHA256:
		return &digestHasher{name: AlgorithmSHA256, size: sha256.Size, factory: sha256.New}, nil
	case AlgorithmBLAKE2b256:
		return &digestHasher{name: AlgorithmBLAKE2b256, size: blake2b.Size256, factory: func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

func (h *digestHasher) Algorithm() string { return h.name }

func (h *digestHasher) Size() int { return h.size }

func (h *digestHasher) Sum(parts ...[]byte) []byte {
	d := h.factory()
	for _, p := range parts {
		_, _ = d.Write(p)
	}
	return d.Sum(nil)
}
