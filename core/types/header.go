// Copyright (c) 2017-2020 The randchain developers

package types

import (
	"bytes"
	"io"
	"time"

	"github.com/randchain/randchaind/common/hash"
	s "github.com/randchain/randchaind/core/serialization"
)

// PubKeySize is the size of the miner identity public key carried in every
// block header.
const PubKeySize = 32

// MaxSolutionSize is the maximum number of bytes the serialized sequential
// work solution may occupy.  The solution is a big integer produced by the
// puzzle and its magnitude is bounded by the puzzle modulus.
const MaxSolutionSize = 1024

// MaxBlockHeaderPayload is the maximum number of bytes a block header can be.
// Version 4 bytes + ParentRoot 32 bytes + Height 8 bytes + Timestamp 4 bytes +
// Bits 4 bytes + PubKey 32 bytes + Iterations 4 bytes + solution length prefix
// and payload.
const MaxBlockHeaderPayload = 4 + hash.HashSize + 8 + 4 + 4 + PubKeySize + 4 +
	9 + MaxSolutionSize

// BlockHeader defines information about a block.  The header commits to the
// output of the sequential work puzzle and links the block to its parent.
// Headers are immutable once constructed and are identified by their content
// hash.
type BlockHeader struct {
	// Version of the block.  This is not the same as the software version.
	Version uint32

	// ParentRoot is the hash of the parent block header.
	ParentRoot hash.Hash

	// Height is the claimed distance from genesis.  It is a hint only; the
	// authoritative height of a node is derived from its parent chain.
	Height uint64

	// Timestamp is the time the solver claims to have finished the puzzle.
	Timestamp time.Time

	// Bits is the compact representation of the puzzle difficulty target.
	Bits uint32

	// PubKey identifies the solver that produced this block.
	PubKey [PubKeySize]byte

	// Iterations is the number of sequential puzzle iterations performed.
	Iterations uint32

	// Solution is the big-endian byte representation of the puzzle output
	// the header commits to.
	Solution []byte
}

// BlockHash computes the block identifier hash for the given block header.
func (h *BlockHeader) BlockHash() hash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, MaxBlockHeaderPayload))
	// The encode can only fail when out of memory, which would cause a
	// run-time panic anyway.
	_ = writeBlockHeader(buf, h)
	return hash.DoubleHashH(buf.Bytes())
}

// Serialize encodes a block header from h into the passed writer.
func (h *BlockHeader) Serialize(w io.Writer) error {
	return writeBlockHeader(w, h)
}

// Deserialize decodes a block header from r into the receiver.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	return readBlockHeader(r, h)
}

// readBlockHeader reads a block header from the io reader.
func readBlockHeader(r io.Reader, bh *BlockHeader) error {
	err := s.ReadElements(r, &bh.Version, &bh.ParentRoot, &bh.Height,
		(*s.Uint32Time)(&bh.Timestamp), &bh.Bits)
	if err != nil {
		return err
	}
	if _, err := io.ReadFull(r, bh.PubKey[:]); err != nil {
		return err
	}
	if err := s.ReadElements(r, &bh.Iterations); err != nil {
		return err
	}
	bh.Solution, err = s.ReadVarBytes(r, MaxSolutionSize, "solution")
	return err
}

// writeBlockHeader writes a block header to w.
func writeBlockHeader(w io.Writer, bh *BlockHeader) error {
	sec := uint32(bh.Timestamp.Unix())
	err := s.WriteElements(w, bh.Version, &bh.ParentRoot, bh.Height,
		sec, bh.Bits)
	if err != nil {
		return err
	}
	if _, err := w.Write(bh.PubKey[:]); err != nil {
		return err
	}
	if err := s.WriteElements(w, bh.Iterations); err != nil {
		return err
	}
	return s.WriteVarBytes(w, bh.Solution)
}
