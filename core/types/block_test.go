// Copyright (c) 2017-2020 The randchain developers

package types

import (
	"bytes"
	"testing"
	"time"

	"github.com/randchain/randchaind/common/hash"
)

func testHeader() BlockHeader {
	var pk [PubKeySize]byte
	pk[0] = 0xab
	return BlockHeader{
		Version:    1,
		ParentRoot: hash.DoubleHashH([]byte("parent")),
		Height:     7,
		Timestamp:  time.Unix(1590000000, 0),
		Bits:       0x2000ffff,
		PubKey:     pk,
		Iterations: 100,
		Solution:   []byte{0x01, 0x02, 0x03},
	}
}

func TestBlockHashStable(t *testing.T) {
	h := testHeader()
	first := h.BlockHash()
	second := h.BlockHash()
	if !first.IsEqual(&second) {
		t.Fatalf("BlockHash not deterministic: %v != %v", first, second)
	}

	// A change to any committed field must change the identifier.
	h2 := testHeader()
	h2.Iterations++
	other := h2.BlockHash()
	if first.IsEqual(&other) {
		t.Fatalf("BlockHash ignored iterations field")
	}
}

func TestBlockSerialize(t *testing.T) {
	blk := Block{
		Header: testHeader(),
		Proof:  [][]byte{{0xde, 0xad}, {0xbe, 0xef}},
	}

	var buf bytes.Buffer
	if err := blk.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	sb, err := NewBlockFromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("NewBlockFromBytes: %v", err)
	}
	want := blk.BlockHash()
	if !sb.Hash().IsEqual(&want) {
		t.Errorf("hash mismatch after decode: %v != %v", sb.Hash(), want)
	}
	if len(sb.Block().Proof) != 2 {
		t.Errorf("proof element count: got %d, want 2", len(sb.Block().Proof))
	}
	if sb.Height() != 7 {
		t.Errorf("height: got %d, want 7", sb.Height())
	}
}

func TestBlockDeserializeTooManyProofs(t *testing.T) {
	blk := Block{Header: testHeader()}
	var buf bytes.Buffer
	if err := blk.Header.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	// varint claiming an absurd proof count
	buf.Write([]byte{0xfe, 0xff, 0xff, 0xff, 0x00})

	var decoded Block
	if err := decoded.Deserialize(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatalf("expected proof count rejection")
	}
}
