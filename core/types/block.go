// Copyright (c) 2017-2020 The randchain developers

package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/randchain/randchaind/common/hash"
	s "github.com/randchain/randchaind/core/serialization"
)

// MaxBlockPayload is the maximum bytes a serialized block may occupy.  The
// body only carries the puzzle proof so blocks stay small; the bound exists
// to reject obviously bogus payloads before they are buffered.
const MaxBlockPayload = 1 << 20

// MaxProofElements is the maximum number of proof artifacts the body may
// carry.
const MaxProofElements = 256

// maxProofElementSize bounds a single proof artifact.
const maxProofElementSize = 4096

// Block defines a block on the chain: a header plus the sequential work
// proof artifacts the randomness feed requires.  Blocks are immutable.
type Block struct {
	Header BlockHeader

	// Proof holds the puzzle proof artifacts.  Their internal structure
	// is opaque to the chain engine and interpreted only by the
	// verification capability.
	Proof [][]byte
}

// BlockHash computes the block identifier, which is the hash of its header.
func (b *Block) BlockHash() hash.Hash {
	return b.Header.BlockHash()
}

// Serialize encodes the block into the passed writer.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	if err := s.WriteVarInt(w, uint64(len(b.Proof))); err != nil {
		return err
	}
	for _, p := range b.Proof {
		if err := s.WriteVarBytes(w, p); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize decodes a block from r into the receiver.
func (b *Block) Deserialize(r io.Reader) error {
	if err := b.Header.Deserialize(r); err != nil {
		return err
	}
	count, err := s.ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxProofElements {
		return fmt.Errorf("too many proof elements [count %d, max %d]",
			count, MaxProofElements)
	}
	b.Proof = make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := s.ReadVarBytes(r, maxProofElementSize, "proof element")
		if err != nil {
			return err
		}
		b.Proof = append(b.Proof, p)
	}
	return nil
}

// SerializedBlock provides easier and more efficient manipulation of raw
// blocks.  It memoizes the block hash and the serialized bytes on first
// access so repeated use does not recompute them.
type SerializedBlock struct {
	block      *Block
	hash       hash.Hash
	serialized []byte
	order      uint64
}

// NewBlock returns a new instance of a serialized block given an underlying
// Block.  See SerializedBlock.
func NewBlock(block *Block) *SerializedBlock {
	return &SerializedBlock{
		block: block,
		hash:  block.BlockHash(),
	}
}

// NewBlockFromBytes returns a new instance of a serialized block given the
// raw serialized bytes.
func NewBlockFromBytes(serialized []byte) (*SerializedBlock, error) {
	var block Block
	if len(serialized) > MaxBlockPayload {
		return nil, fmt.Errorf("block payload %d exceeds max %d",
			len(serialized), MaxBlockPayload)
	}
	err := block.Deserialize(bytes.NewReader(serialized))
	if err != nil {
		return nil, err
	}
	sb := NewBlock(&block)
	sb.serialized = serialized
	return sb, nil
}

// Block returns the underlying Block.
func (sb *SerializedBlock) Block() *Block {
	return sb.block
}

// Hash returns the block identifier hash.  It is computed once on
// construction.
func (sb *SerializedBlock) Hash() *hash.Hash {
	return &sb.hash
}

// Bytes returns the serialized bytes for the block, computing them if
// necessary.
func (sb *SerializedBlock) Bytes() ([]byte, error) {
	if len(sb.serialized) != 0 {
		return sb.serialized, nil
	}
	var buf bytes.Buffer
	if err := sb.block.Serialize(&buf); err != nil {
		return nil, err
	}
	sb.serialized = buf.Bytes()
	return sb.serialized, nil
}

// Height returns the height hint claimed in the block header.
func (sb *SerializedBlock) Height() uint64 {
	return sb.block.Header.Height
}

// SetOrder sets the position the block occupies in the accepted sequence.
func (sb *SerializedBlock) SetOrder(order uint64) {
	sb.order = order
}

// Order returns the position the block occupies in the accepted sequence.
func (sb *SerializedBlock) Order() uint64 {
	return sb.order
}
