// Copyright (c) 2017-2020 The randchain developers

package blockchain

import (
	"math/big"
	"time"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/core/types/pow"
)

// blockStatus is a bit field representing the validation state of the block.
//
// Validation only ever moves forward: bits are added, never removed.  The
// two failure bits are terminal and poison all descendants.
type blockStatus byte

// The following constants specify possible status bit flags for a block.
//
// NOTE: This section specifically does not use iota since the block status is
// serialized and must be stable for long-term storage.
const (
	// statusNone indicates that the block has no validation state flags
	// set, which corresponds to seeing a header but proving nothing.
	statusNone blockStatus = 0

	// statusHeaderValid indicates the header passed the header-level
	// checks of the verification capability.
	statusHeaderValid blockStatus = 1 << 0

	// statusBodyValid indicates the body passed the body-internal checks.
	statusBodyValid blockStatus = 1 << 1

	// statusDataStored indicates that the block's payload is stored on
	// disk.
	statusDataStored blockStatus = 1 << 2

	// statusValid indicates that the block has reached the verification
	// floor required by the configured trust level and may appear on the
	// active chain.
	statusValid blockStatus = 1 << 3

	// statusValidateFailed indicates that the block has failed validation.
	statusValidateFailed blockStatus = 1 << 4

	// statusInvalidAncestor indicates that one of the ancestors of the
	// block has failed validation, thus the block is also invalid.
	statusInvalidAncestor blockStatus = 1 << 5
)

// HaveData returns whether the full block data is stored in the database.
// This will return false for a block node where only the header is
// downloaded or stored.
func (status blockStatus) HaveData() bool {
	return status&statusDataStored != 0
}

// HeaderValid returns whether the header-level checks have passed.
func (status blockStatus) HeaderValid() bool {
	return status&statusHeaderValid != 0
}

// BodyValid returns whether the body-internal checks have passed.
func (status blockStatus) BodyValid() bool {
	return status&statusBodyValid != 0
}

// KnownValid returns whether the block has reached the required verification
// floor.  This will return false for a valid block that has not been fully
// validated yet.
func (status blockStatus) KnownValid() bool {
	return status&statusValid != 0
}

// KnownInvalid returns whether the block is known to be invalid.  This will
// return false for invalid blocks that have not been proven invalid yet.
func (status blockStatus) KnownInvalid() bool {
	return status&(statusValidateFailed|statusInvalidAncestor) != 0
}

// blockNode represents a block within the block chain and is primarily used
// to aid in selecting the best chain to be the main chain.  The main chain
// is stored into the block database.
type blockNode struct {
	// parent is the parent block for this node.
	parent *blockNode

	// skip is an ancestor farther up the chain used to jump during
	// ancestor lookups instead of walking parent pointers one by one.
	skip *blockNode

	// hash is the hash of the block this node represents.
	hash hash.Hash

	// workSum is the total amount of work in the chain up to and
	// including this node.
	workSum *big.Int

	// Some fields from block headers to aid in best chain selection and
	// reconstructing headers from memory.  These must be treated as
	// immutable.
	height     uint64
	version    uint32
	bits       uint32
	timestamp  int64
	pubKey     [types.PubKeySize]byte
	iterations uint32
	solution   []byte

	// firstSeen is a monotonically increasing sequence assigned at
	// insertion.  Equal-work ties are broken in favor of the earlier
	// sequence, which keeps local selection deterministic without
	// claiming any cross-node canonical tie-break.
	firstSeen uint64

	// status is a bitfield representing the validation state of the
	// block.  This field, unlike the other fields, may be changed after
	// the block node is created, so it must only be accessed or updated
	// using the concurrent-safe NodeStatus, SetStatusFlags methods on
	// blockIndex once the node has been added to the index.
	status blockStatus
}

// newBlockNode returns a new block node for the given block header and
// parent node.  The workSum is calculated based on the parent, or, in the
// case no parent is provided, it will just be the work for the passed block.
func newBlockNode(blockHeader *types.BlockHeader, parent *blockNode) *blockNode {
	node := blockNode{
		hash:       blockHeader.BlockHash(),
		workSum:    pow.CalcWork(blockHeader.Bits),
		version:    blockHeader.Version,
		bits:       blockHeader.Bits,
		timestamp:  blockHeader.Timestamp.Unix(),
		pubKey:     blockHeader.PubKey,
		iterations: blockHeader.Iterations,
		solution:   blockHeader.Solution,
	}
	if parent != nil {
		node.parent = parent
		node.height = parent.height + 1
		node.skip = parent.Ancestor(skipHeight(node.height))
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
	return &node
}

// Header constructs a block header from the node and returns it.
//
// This function is safe for concurrent access.
func (node *blockNode) Header() types.BlockHeader {
	// No lock is needed because all accessed fields are immutable.
	prevHash := &hash.ZeroHash
	if node.parent != nil {
		prevHash = &node.parent.hash
	}
	return types.BlockHeader{
		Version:    node.version,
		ParentRoot: *prevHash,
		Height:     node.height,
		Timestamp:  time.Unix(node.timestamp, 0),
		Bits:       node.bits,
		PubKey:     node.pubKey,
		Iterations: node.iterations,
		Solution:   node.solution,
	}
}

// GetHash returns the hash of the block this node represents.
func (node *blockNode) GetHash() *hash.Hash {
	return &node.hash
}

// invertLowestOne turns the lowest 1 bit in the binary representation of a
// number into a 0.
func invertLowestOne(n int64) int64 {
	return n & (n - 1)
}

// skipHeight calculates the height of the ancestor to cache in the skip
// pointer of a node at the given height.  Flipping a second low bit for
// every other height spreads the skip targets so ancestor walks descend in
// O(log n) jumps rather than following parents one at a time.
func skipHeight(height uint64) uint64 {
	if height < 2 {
		return 0
	}
	h := int64(height)
	if h&1 != 0 {
		return uint64(invertLowestOne(invertLowestOne(h - 1)) + 1)
	}
	return uint64(invertLowestOne(h))
}

// Ancestor returns the ancestor block node at the provided height by
// following the chain backwards from this node, using the cached skip
// pointers to jump whenever they do not overshoot.  The returned block will
// be nil when a height is requested that is after the height of the passed
// node.
//
// This function is safe for concurrent access.
func (node *blockNode) Ancestor(height uint64) *blockNode {
	if height > node.height {
		return nil
	}

	n := node
	for n != nil && n.height != height {
		if n.skip != nil && n.skip.height >= height {
			n = n.skip
			continue
		}
		n = n.parent
	}
	return n
}

// IsAncestorOf reports whether node appears on the ancestor chain of the
// passed descendant.
func (node *blockNode) IsAncestorOf(descendant *blockNode) bool {
	if descendant == nil || descendant.height < node.height {
		return false
	}
	return descendant.Ancestor(node.height) == node
}
