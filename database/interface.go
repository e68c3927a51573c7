// Copyright (c) 2017-2020 The randchain developers

// Package database defines the storage capability consumed by the chain
// engine.  Implementations persist committed block bodies, the main chain
// index and the active tip pointer.  The engine never advances its in-memory
// tip past state the store has not committed.
package database

import (
	"errors"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

// ErrBlockNotFound is returned when a requested block is not in the store.
var ErrBlockNotFound = errors.New("block not found")

// ErrTipNotFound is returned when no active tip has been persisted yet,
// which is the case on a fresh data directory before the genesis commit.
var ErrTipNotFound = errors.New("chain tip not found")

// TipState is the persisted active tip pointer.
type TipState struct {
	Hash   hash.Hash
	Height uint64
}

// DB is the storage capability contract.  All methods are safe for
// concurrent use.  CommitReorg is the only mutation entry point for chain
// topology and it is atomic: either the whole disconnect/connect set and the
// new tip are visible, or none of it is.
type DB interface {
	// HasBlock reports whether the block body for the given hash has
	// been stored.
	HasBlock(h *hash.Hash) (bool, error)

	// PutBlock stores a block body keyed by its hash.  Storing an
	// already-present block is a no-op; bodies are immutable.
	PutBlock(block *types.SerializedBlock) error

	// FetchBlock retrieves a block body by hash.  Returns
	// ErrBlockNotFound when absent.
	FetchBlock(h *hash.Hash) (*types.SerializedBlock, error)

	// CommitReorg atomically applies a tip switch: the disconnect set is
	// removed from the main chain index in tip-to-fork order, the
	// connect set is added in fork-to-tip order and the tip pointer is
	// updated to the last connected block.  A plain tip extension is a
	// commit with an empty disconnect set and a single connected block.
	CommitReorg(disconnect []*types.SerializedBlock, connect []*types.SerializedBlock) error

	// FetchTip retrieves the persisted active tip pointer.  Returns
	// ErrTipNotFound on a fresh store.
	FetchTip() (*TipState, error)

	// FetchMainChainHash returns the hash of the main chain block at the
	// given height, or ErrBlockNotFound if the height is past the tip.
	FetchMainChainHash(height uint64) (*hash.Hash, error)

	// Close releases the underlying resources.  All other methods fail
	// after Close returns.
	Close() error
}
