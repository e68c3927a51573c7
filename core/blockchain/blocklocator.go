// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

// BlockLocator is used to help locate a specific block.  The algorithm for
// building the block locator is to add the hashes in reverse order until
// the genesis block is reached.  In order to keep the list of locator hashes
// to a reasonable number of entries, first the most recent previous 12 block
// hashes are added, then the step is doubled each loop iteration to
// exponentially decrease the number of hashes as a function of the distance
// from the block being located.
//
// For example, assume a block chain with a side chain as depicted below:
// 	genesis -> 1 -> 2 -> ... -> 15 -> 16  -> 17  -> 18
// 	                              \-> 16a -> 17a
//
// The block locator for block 17a would be the hashes of blocks:
// [17a 16a 15 14 13 12 11 10 9 8 7 6 4 genesis]
type BlockLocator []*hash.Hash

// blockLocator returns a block locator for the passed block node.  The
// passed node can be nil in which case the locator for the current tip
// associated with the view will be returned.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) blockLocator(node *blockNode) BlockLocator {
	if node == nil {
		node = b.bestChain.Tip()
	}
	if node == nil {
		return nil
	}

	// Calculate the max number of entries that will ultimately be in the
	// block locator.  See the description of the algorithm for how these
	// numbers are derived.
	var maxEntries uint8
	if node.height <= 12 {
		maxEntries = uint8(node.height) + 1
	} else {
		// Requested hash itself + previous 10 entries + genesis block.
		// Then floor(log2(height-10)) entries for the skip portion.
		adjustedHeight := uint32(node.height) - 10
		maxEntries = 12 + fastLog2Floor(adjustedHeight)
	}
	locator := make(BlockLocator, 0, maxEntries)

	step := uint64(1)
	for node != nil {
		locator = append(locator, &node.hash)

		// Nothing more to add once the genesis block has been added.
		if node.height == 0 {
			break
		}

		// Calculate height of previous node to include ensuring the
		// final node is the genesis block.
		var height uint64
		if node.height > step {
			height = node.height - step
		}

		node = node.Ancestor(height)

		// Once 11 entries have been included, start doubling the
		// distance between included hashes.
		if len(locator) > 10 {
			step *= 2
		}
	}

	return locator
}

// LatestBlockLocator returns a block locator for the current tip of the
// active chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) LatestBlockLocator() BlockLocator {
	b.chainLock.RLock()
	locator := b.blockLocator(nil)
	b.chainLock.RUnlock()
	return locator
}

// BestHeaderLocator returns a block locator for the most-work header the
// tree knows about, whether or not its body has arrived yet.  Header
// requests use it so peers continue from the header frontier instead of the
// slower body frontier.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestHeaderLocator() BlockLocator {
	b.chainLock.RLock()
	locator := b.blockLocator(b.bestHeaderNode())
	b.chainLock.RUnlock()
	return locator
}

// log2FloorMasks defines the masks to use when quickly calculating
// floor(log2(x)) in a constant log2(32) = 5 steps, where x is a uint32,
// using shifts.  They are derived from (2^(2^x) - 1) * (2^(2^x)), for x in
// 4..0.
var log2FloorMasks = []uint32{0xffff0000, 0xff00, 0xf0, 0xc, 0x2}

// fastLog2Floor calculates and returns floor(log2(x)) in a constant 5 steps.
func fastLog2Floor(n uint32) uint8 {
	rv := uint8(0)
	exponent := uint8(16)
	for i := 0; i < 5; i++ {
		if n&log2FloorMasks[i] != 0 {
			rv += exponent
			n >>= exponent
		}
		exponent >>= 1
	}
	return rv
}

// LocateHeaders returns the headers of the blocks after the first known
// block in the locator until the provided stop hash is reached, or up to a
// max of message.MaxBlockHeadersPerMsg headers.  It is used to serve
// getheaders requests from peers.
//
// In addition, there are two special cases:
//
// - When no locators are provided, the stop hash is treated as a request for
//   that header, so it will either return the header for the stop hash
//   itself if it is known, or nil if it is unknown
// - When locators are provided, but none of them are known, headers starting
//   after the genesis block will be returned
//
// This function is safe for concurrent access.
func (b *BlockChain) LocateHeaders(locator BlockLocator, hashStop *hash.Hash, maxHeaders int) []types.BlockHeader {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	if hashStop == nil {
		hashStop = &hash.ZeroHash
	}
	view := b.bestChain

	if len(locator) == 0 {
		node := b.index.LookupNode(hashStop)
		if node == nil {
			return nil
		}
		return []types.BlockHeader{node.Header()}
	}

	// Find the most recent locator block hash in the active chain.  In
	// the case none of the hashes in the locator are in the active chain,
	// fall back to the genesis block.
	startNode := view.NodeByHeight(0)
	for _, loHash := range locator {
		node := b.index.LookupNode(loHash)
		if node != nil && view.Contains(node) {
			startNode = node
			break
		}
	}
	if startNode == nil {
		return nil
	}

	// Populate headers starting after the located fork point.
	headers := make([]types.BlockHeader, 0, maxHeaders)
	node := view.Next(startNode)
	for node != nil && len(headers) < maxHeaders {
		headers = append(headers, node.Header())
		if hashStop != nil && node.hash.IsEqual(hashStop) {
			break
		}
		node = view.Next(node)
	}
	return headers
}
