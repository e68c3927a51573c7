// Copyright (c) 2017-2020 The randchain developers
// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

const (
	// maxOrphanBlocks is the maximum number of orphan blocks that can be
	// queued.  Beyond the bound the oldest orphan is evicted, which keeps
	// memory bounded no matter what peers send.
	maxOrphanBlocks = 500

	// orphanExpiration is how long an orphan may sit in the pool before
	// the periodic scan drops it.  An evicted orphan is not an error;
	// the header simply stays unresolved until re-announced.
	orphanExpiration = 10 * time.Minute
)

// orphanBlock represents a block that we don't yet have the parent for.  It
// is a normal block plus an expiration time to prevent caching the orphan
// forever.
type orphanBlock struct {
	block      *types.SerializedBlock
	expiration time.Time
}

// IsKnownOrphan returns whether the passed hash is currently a known orphan.
// Keep in mind that only a limited number of orphans are held onto for a
// limited amount of time, so this function must not be used as an absolute
// way to test if a block is an orphan block.
//
// This function is safe for concurrent access.
func (b *BlockChain) IsKnownOrphan(hash *hash.Hash) bool {
	b.orphanLock.RLock()
	_, exists := b.orphans[*hash]
	b.orphanLock.RUnlock()
	return exists
}

// GetOrphanRoot returns the head of the chain for the provided hash from the
// map of orphan blocks.  The caller typically requests the header range from
// the active tip up to this root so the gap gets filled in.
//
// This function is safe for concurrent access.
func (b *BlockChain) GetOrphanRoot(h *hash.Hash) *hash.Hash {
	b.orphanLock.RLock()
	defer b.orphanLock.RUnlock()

	// Keep looping while the parent of each orphaned block is known and
	// is an orphan itself.
	orphanRoot := h
	prevHash := h
	for {
		orphan, exists := b.orphans[*prevHash]
		if !exists {
			break
		}
		orphanRoot = prevHash
		prevHash = &orphan.block.Block().Header.ParentRoot
	}

	return orphanRoot
}

// OrphanParents returns the set of parent hashes the orphan pool is waiting
// on, excluding parents that are themselves orphans or already indexed.  The
// work scheduler uses it to direct block requests.
//
// This function is safe for concurrent access.
func (b *BlockChain) OrphanParents() []*hash.Hash {
	b.orphanLock.RLock()
	defer b.orphanLock.RUnlock()

	missing := mapset.NewSet()
	for _, orphan := range b.orphans {
		parent := orphan.block.Block().Header.ParentRoot
		if _, exists := b.orphans[parent]; exists {
			continue
		}
		if b.index.HaveBlock(&parent) {
			continue
		}
		missing.Add(parent)
	}

	result := make([]*hash.Hash, 0, missing.Cardinality())
	for v := range missing.Iter() {
		h := v.(hash.Hash)
		result = append(result, &h)
	}
	return result
}

// GetOrphansTotal returns the current size of the orphan pool.
//
// This function is safe for concurrent access.
func (b *BlockChain) GetOrphansTotal() int {
	b.orphanLock.RLock()
	total := len(b.orphans)
	b.orphanLock.RUnlock()
	return total
}

// removeOrphanBlock removes the passed orphan block from the orphan pool and
// previous orphan index.
func (b *BlockChain) removeOrphanBlock(orphan *orphanBlock) {
	// Protect concurrent access.
	b.orphanLock.Lock()
	defer b.orphanLock.Unlock()

	orphanHash := orphan.block.Hash()
	delete(b.orphans, *orphanHash)

	// Remove the reference from the previous orphan index too.
	prevHash := &orphan.block.Block().Header.ParentRoot
	orphans := b.prevOrphans[*prevHash]
	for i := 0; i < len(orphans); i++ {
		if orphans[i].block.Hash().IsEqual(orphanHash) {
			orphans = append(orphans[:i], orphans[i+1:]...)
			i--
		}
	}
	b.prevOrphans[*prevHash] = orphans

	// Remove the map entry altogether if there are no longer any orphans
	// which depend on the parent hash.
	if len(b.prevOrphans[*prevHash]) == 0 {
		delete(b.prevOrphans, *prevHash)
	}
}

// addOrphanBlock adds the passed block (which is already determined to be an
// orphan prior calling this function) to the orphan pool.  It lazily cleans
// up any expired blocks so a separate cleanup poller doesn't need to be run.
// It also imposes a maximum limit on the number of outstanding orphan blocks
// and will remove the oldest received orphan block if the limit is exceeded.
//
// Mutations of the orphan pool are serialized by the chain lock, so the scan
// here only needs the orphan lock around the map insertion itself.
func (b *BlockChain) addOrphanBlock(block *types.SerializedBlock) {
	// Remove expired orphan blocks.
	for _, oBlock := range b.orphans {
		if time.Now().After(oBlock.expiration) {
			b.removeOrphanBlock(oBlock)
			continue
		}

		// Update the oldest orphan block pointer so it can be
		// discarded in case the orphan pool fills up.
		if b.oldestOrphan == nil ||
			oBlock.expiration.Before(b.oldestOrphan.expiration) {
			b.oldestOrphan = oBlock
		}
	}

	// Limit orphan blocks to prevent memory exhaustion.
	if len(b.orphans)+1 > b.maxOrphans {
		// Remove the oldest orphan to make room for the new one.
		b.removeOrphanBlock(b.oldestOrphan)
		b.oldestOrphan = nil
	}

	// Protect concurrent access.  This is intentionally not done near the
	// top since removeOrphanBlock does its own locking and the range
	// iterator is not invalidated by removing map entries.
	b.orphanLock.Lock()
	defer b.orphanLock.Unlock()

	// Insert the block into the orphan map with an expiration time.
	oBlock := &orphanBlock{
		block:      block,
		expiration: time.Now().Add(orphanExpiration),
	}
	b.orphans[*block.Hash()] = oBlock

	// Add to previous hash lookup index for faster dependency lookups.
	prevHash := &block.Block().Header.ParentRoot
	b.prevOrphans[*prevHash] = append(b.prevOrphans[*prevHash], oBlock)
}
