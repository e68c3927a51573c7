// Copyright (c) 2017-2020 The randchain developers

package hash

import (
	"crypto/sha256"

	"golang.org/x/crypto/blake2b"
)

// HashB calculates hash(b) and returns the resulting bytes.
func HashB(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// HashH calculates hash(b) and returns the resulting bytes as a Hash.
func HashH(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// DoubleHashB calculates hash(hash(b)) and returns the resulting bytes.
func DoubleHashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleHashH calculates hash(hash(b)) and returns the resulting bytes as a
// Hash.  Block identifiers are computed this way.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	return Hash(sha256.Sum256(first[:]))
}

// HashBlake2b calculates blake2b-256(b) and returns the resulting bytes as a
// Hash.  The randomness feed derives beacon outputs with it.
func HashBlake2b(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}
