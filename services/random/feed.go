// Copyright (c) 2017-2020 The randchain developers

// Package random derives the public randomness beacon output from committed
// blocks.  Every block that reaches the active chain contributes one beacon
// value, computed from data the block's producer could not grind after
// solving the sequential puzzle.
package random

import (
	"errors"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/blockchain"
)

// OutputSize is the byte length of a beacon output.
const OutputSize = hash.HashSize

// ErrNotCommitted is returned when randomness is requested for a height the
// active chain has not reached yet.
var ErrNotCommitted = errors.New("no committed block at the requested height")

// Feed serves beacon outputs for committed main-chain blocks.  Values for a
// given height change when the chain reorganizes past it, so consumers
// wanting finality should keep a confirmation distance from the tip.
type Feed struct {
	chain *blockchain.BlockChain
}

// NewFeed returns a feed backed by the passed chain.
func NewFeed(chain *blockchain.BlockChain) *Feed {
	return &Feed{chain: chain}
}

// RandomnessAt returns the beacon output for the main-chain block at the
// given height.  The output is blake2b-256 over the block identifier and the
// puzzle solution bytes.  The identifier alone would be grindable through
// the solver identity, while the solution is fixed once the puzzle input is;
// hashing both binds the output to the completed sequential work.
func (f *Feed) RandomnessAt(height uint64) (*hash.Hash, error) {
	best := f.chain.BestSnapshot()
	if height > best.Height {
		return nil, ErrNotCommitted
	}

	blockHash, err := f.chain.BlockHashByHeight(height)
	if err != nil {
		return nil, ErrNotCommitted
	}
	block, err := f.chain.BlockByHash(blockHash)
	if err != nil {
		return nil, err
	}

	header := block.Block().Header
	preimage := make([]byte, 0, hash.HashSize+len(header.Solution))
	preimage = append(preimage, blockHash[:]...)
	preimage = append(preimage, header.Solution...)
	out := hash.HashBlake2b(preimage)

	log.Tracef("Beacon output for height %d (block %v): %v", height,
		blockHash, out)
	return &out, nil
}

// Latest returns the beacon output of the current chain tip along with the
// tip height.
func (f *Feed) Latest() (*hash.Hash, uint64, error) {
	best := f.chain.BestSnapshot()
	out, err := f.RandomnessAt(best.Height)
	if err != nil {
		return nil, 0, err
	}
	return out, best.Height, nil
}
