// Copyright (c) 2017-2020 The randchain developers

package blockchain

import (
	"sync"

	"github.com/randchain/randchaind/common/hash"
)

// blockIndex provides facilities for keeping track of an in-memory index of
// the block tree.  Although the name block chain suggests a single chain of
// blocks, it is actually a tree-shaped structure where any node can have
// multiple children.  However, there can only be one active branch which
// does indeed form a chain from the tip all the way back to the genesis
// block.
type blockIndex struct {
	sync.RWMutex
	index map[hash.Hash]*blockNode

	// seen is the insertion sequence counter used for firstSeen tie
	// breaking.
	seen uint64
}

// newBlockIndex returns a new empty instance of a block index.  The index
// will be dynamically populated as block nodes are loaded from the database
// and manually added.
func newBlockIndex() *blockIndex {
	return &blockIndex{
		index: make(map[hash.Hash]*blockNode),
	}
}

// lookupNode returns the block node identified by the provided hash.  It
// will return nil if there is no entry for the hash.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) lookupNode(hash *hash.Hash) *blockNode {
	return bi.index[*hash]
}

// LookupNode returns the block node identified by the provided hash.  It
// will return nil if there is no entry for the hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) LookupNode(hash *hash.Hash) *blockNode {
	bi.RLock()
	node := bi.lookupNode(hash)
	bi.RUnlock()
	return node
}

// AddNode adds the provided node to the block index and stamps its
// first-seen sequence.  Duplicate entries are not checked so it is up to the
// caller to avoid adding them.
//
// This function is safe for concurrent access.
func (bi *blockIndex) AddNode(node *blockNode) {
	bi.Lock()
	bi.seen++
	node.firstSeen = bi.seen
	bi.index[node.hash] = node
	bi.Unlock()
}

// HaveBlock returns whether or not the block index contains the provided
// hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) HaveBlock(hash *hash.Hash) bool {
	bi.RLock()
	_, hasBlock := bi.index[*hash]
	bi.RUnlock()
	return hasBlock
}

// NodeStatus returns the status associated with the provided node.
//
// This function is safe for concurrent access.
func (bi *blockIndex) NodeStatus(node *blockNode) blockStatus {
	bi.RLock()
	status := node.status
	bi.RUnlock()
	return status
}

// SetStatusFlags sets the provided status flags for the given block node
// regardless of their previous state.  It does not unset any flags, which
// keeps status transitions strictly forward.
//
// This function is safe for concurrent access.
func (bi *blockIndex) SetStatusFlags(node *blockNode, flags blockStatus) {
	bi.Lock()
	node.status |= flags
	bi.Unlock()
}

// betterCandidate returns true when a should be preferred over b as the
// chain tip.  More cumulative work always wins; equal work falls back to the
// earlier first-seen sequence, so a later-arriving tie never displaces the
// incumbent.
func betterCandidate(a, b *blockNode) bool {
	switch a.workSum.Cmp(b.workSum) {
	case 1:
		return true
	case -1:
		return false
	}
	return a.firstSeen < b.firstSeen
}
