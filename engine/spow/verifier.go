// Copyright (c) 2017-2020 The randchain developers

// Package spow provides the verification capability for the sequential
// proof-of-work puzzle.  The chain engine consults it through the Verifier
// interface and treats the checks as pure pass/fail decisions; the puzzle
// math itself lives behind this boundary.
package spow

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/core/types/pow"
	"github.com/randchain/randchaind/params"
)

// Level is the configured strictness of verification applied before a block
// may extend the canonical chain.
type Level int

const (
	// LevelNone links headers without any cryptographic checks.  Bodies
	// are stored but not verified.  Only suitable for controlled test
	// environments.
	LevelNone Level = iota

	// LevelHeaders runs puzzle and header level checks but skips
	// body-internal proof checks.
	LevelHeaders

	// LevelFull runs every check.  This is the default and the only mode
	// safe for untrusted networks.
	LevelFull
)

// String returns the level in the form used by the configuration surface.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelHeaders:
		return "headers"
	case LevelFull:
		return "full"
	}
	return fmt.Sprintf("unknown level (%d)", int(l))
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "none":
		return LevelNone, nil
	case "headers":
		return LevelHeaders, nil
	case "full", "":
		return LevelFull, nil
	}
	return LevelFull, fmt.Errorf("invalid verification level %q", s)
}

// Context carries the chain context a check may consult.  Checks must remain
// pure: the context is read-only and the verifier keeps no state between
// calls.
type Context struct {
	// Params identifies the network whose rules apply.
	Params *params.Params

	// Parent is the header of the block's parent, or nil for genesis.
	Parent *types.BlockHeader

	// Now supplies the wall clock used for future-timestamp checks.  Nil
	// means time.Now.
	Now func() time.Time
}

// Verifier is the verification capability consumed by the chain engine.
type Verifier interface {
	// CheckHeader applies header-level checks: puzzle target
	// satisfaction, timestamp sanity and structural validity.
	CheckHeader(header *types.BlockHeader, ctx *Context) error

	// CheckBody applies body-internal checks on the proof artifacts.
	CheckBody(block *types.Block, ctx *Context) error
}

// SequentialVerifier is the reference Verifier for the sequential puzzle.
// It validates the structural commitments of headers and proofs; the
// iteration-by-iteration puzzle recomputation is delegated to the solution
// hash commitment.
type SequentialVerifier struct{}

// NewVerifier returns a SequentialVerifier.
func NewVerifier() *SequentialVerifier {
	return &SequentialVerifier{}
}

// CheckHeader validates a header against the puzzle rules.
//
// The declared difficulty must not exceed the network proof-of-work limit,
// the solution commitment must satisfy the declared target, the iteration
// count must be positive and the timestamp must not be too far in the
// future.
func (v *SequentialVerifier) CheckHeader(header *types.BlockHeader, ctx *Context) error {
	par := ctx.Params

	target := pow.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("block target difficulty of %064x is too low",
			target)
	}
	if target.Cmp(par.PowLimit) > 0 {
		return fmt.Errorf("block target difficulty of %064x is higher "+
			"than max of %064x", target, par.PowLimit)
	}

	if len(header.Solution) == 0 {
		return fmt.Errorf("header commits to an empty puzzle solution")
	}
	if len(header.Solution) > types.MaxSolutionSize {
		return fmt.Errorf("puzzle solution of %d bytes exceeds max of %d",
			len(header.Solution), types.MaxSolutionSize)
	}
	if header.Iterations == 0 {
		return fmt.Errorf("header claims zero puzzle iterations")
	}

	// The puzzle output must hash under the declared target.  This binds
	// the solution to the solver identity and the parent reference, so a
	// solution cannot be replayed onto a different branch.
	solHash := solutionHash(header)
	if hashToBig(&solHash).Cmp(target) > 0 {
		return fmt.Errorf("puzzle commitment %064x is higher than "+
			"target %064x", hashToBig(&solHash), target)
	}

	now := time.Now
	if ctx.Now != nil {
		now = ctx.Now
	}
	maxTimestamp := now().Add(par.MaxTimeOffset)
	if header.Timestamp.After(maxTimestamp) {
		return fmt.Errorf("block timestamp of %v is too far in the "+
			"future", header.Timestamp)
	}

	if ctx.Parent != nil {
		if !header.Timestamp.After(ctx.Parent.Timestamp) {
			return fmt.Errorf("block timestamp of %v is not after "+
				"parent time %v", header.Timestamp,
				ctx.Parent.Timestamp)
		}
		if header.Height != ctx.Parent.Height+1 {
			return fmt.Errorf("block height hint %d does not follow "+
				"parent height %d", header.Height,
				ctx.Parent.Height)
		}
	}

	return nil
}

// CheckBody validates the proof artifacts carried in a block body.  Every
// proof segment must be present, non-empty and the proof chain must open the
// header's solution commitment.
func (v *SequentialVerifier) CheckBody(block *types.Block, ctx *Context) error {
	if len(block.Proof) == 0 {
		return fmt.Errorf("block body carries no puzzle proof")
	}
	if len(block.Proof) > types.MaxProofElements {
		return fmt.Errorf("block body carries %d proof elements, max %d",
			len(block.Proof), types.MaxProofElements)
	}
	for i, p := range block.Proof {
		if len(p) == 0 {
			return fmt.Errorf("proof element %d is empty", i)
		}
	}

	// The final proof element must open the solution the header commits
	// to; otherwise the body was swapped under a valid header.
	last := block.Proof[len(block.Proof)-1]
	opening := hash.HashBlake2b(last)
	commit := hash.HashBlake2b(block.Header.Solution)
	if !opening.IsEqual(&commit) {
		return fmt.Errorf("proof does not open the header solution " +
			"commitment")
	}

	return nil
}

// solutionHash computes the commitment that must satisfy the difficulty
// target: hash(parent || pubkey || iterations || solution).
func solutionHash(header *types.BlockHeader) hash.Hash {
	buf := make([]byte, 0, hash.HashSize+types.PubKeySize+4+
		len(header.Solution))
	buf = append(buf, header.ParentRoot[:]...)
	buf = append(buf, header.PubKey[:]...)
	buf = append(buf,
		byte(header.Iterations), byte(header.Iterations>>8),
		byte(header.Iterations>>16), byte(header.Iterations>>24))
	buf = append(buf, header.Solution...)
	return hash.DoubleHashH(buf)
}

// hashToBig converts a Hash into a big.Int that can be compared against a
// difficulty target.
func hashToBig(h *hash.Hash) *big.Int {
	// A Hash is in little-endian, but the big package wants big-endian.
	buf := *h
	blen := len(buf)
	for i := 0; i < blen/2; i++ {
		buf[i], buf[blen-1-i] = buf[blen-1-i], buf[i]
	}
	return new(big.Int).SetBytes(buf[:])
}
