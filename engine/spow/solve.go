// Copyright (c) 2017-2020 The randchain developers

package spow

import (
	"encoding/binary"
	"fmt"

	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/core/types/pow"
)

// maxSolveAttempts bounds the grinding loop in Solve.  On the private
// network target nearly every candidate passes, so the bound is never close
// to being hit there.
const maxSolveAttempts = 1 << 20

// Solve grinds candidate solutions for the passed header until its
// commitment satisfies the declared difficulty target, then attaches the
// matching proof to the returned block.  It mutates the header's Iterations
// and Solution fields.
//
// This is the reference producer used by tests and the local block
// production path; a real deployment plugs in the sequential puzzle solver
// behind the same header commitment scheme.
func Solve(header *types.BlockHeader) (*types.Block, error) {
	target := pow.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return nil, fmt.Errorf("cannot solve for non-positive target")
	}

	sol := make([]byte, 8)
	for attempt := uint64(0); attempt < maxSolveAttempts; attempt++ {
		binary.LittleEndian.PutUint64(sol, attempt)
		header.Solution = sol
		if header.Iterations == 0 {
			header.Iterations = 1
		}

		commit := solutionHash(header)
		if hashToBig(&commit).Cmp(target) <= 0 {
			solCopy := make([]byte, len(sol))
			copy(solCopy, sol)
			header.Solution = solCopy
			return &types.Block{
				Header: *header,
				Proof:  [][]byte{solCopy},
			}, nil
		}
	}
	return nil, fmt.Errorf("no solution found within %d attempts",
		maxSolveAttempts)
}
