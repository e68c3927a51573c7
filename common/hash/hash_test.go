// Copyright (c) 2017-2020 The randchain developers

package hash

import (
	"bytes"
	"testing"
)

func TestHashString(t *testing.T) {
	// Block 100000 hash from the btc chain, a well known byte-reversed case.
	wantStr := "000000000003ba27aa200b1cecaad478d2b00432346c3f1f3986da1afd33e506"
	h, err := NewHashFromStr(wantStr)
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if h.String() != wantStr {
		t.Errorf("String: got %v, want %v", h.String(), wantStr)
	}
}

func TestNewHash(t *testing.T) {
	raw := DoubleHashB([]byte("randchain"))
	h, err := NewHash(raw)
	if err != nil {
		t.Fatalf("NewHash: %v", err)
	}
	if !bytes.Equal(h.Bytes(), raw) {
		t.Errorf("NewHash: bytes mismatch")
	}

	// Invalid size must be rejected.
	if _, err := NewHash(raw[:HashSize-1]); err == nil {
		t.Errorf("NewHash: expected error for short input")
	}
}

func TestIsEqual(t *testing.T) {
	h1 := DoubleHashH([]byte{1})
	h2 := DoubleHashH([]byte{1})
	h3 := DoubleHashH([]byte{2})
	if !h1.IsEqual(&h2) {
		t.Errorf("IsEqual: identical hashes reported unequal")
	}
	if h1.IsEqual(&h3) {
		t.Errorf("IsEqual: distinct hashes reported equal")
	}
	var nilHash *Hash
	if nilHash.IsEqual(&h1) {
		t.Errorf("IsEqual: nil receiver reported equal to non-nil")
	}
}

func TestDecodeTooLong(t *testing.T) {
	var h Hash
	src := make([]byte, MaxHashStringSize+2)
	for i := range src {
		src[i] = 'a'
	}
	if err := Decode(&h, string(src)); err != ErrHashStrSize {
		t.Errorf("Decode: got %v, want %v", err, ErrHashStrSize)
	}
}
