// Copyright (c) 2017-2020 The randchain developers

package blockchain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/engine/spow"
)

// maxVerifyWorkers bounds how many block bodies may be checked at the same
// time.  Independent candidates (no ancestor relationship) verify in
// parallel; commit of the result is serialized through the chain lock.
const maxVerifyWorkers = 4

// verifyJob tracks an in-flight verification for a block hash so duplicate
// concurrent submissions coalesce into a single execution with every caller
// observing the same result.
type verifyJob struct {
	done chan struct{}
	err  error
}

// requiredLevel returns the verification level that must be met before the
// node may appear on the active chain.  The configured level applies only
// during the fast-bootstrap window before the trust edge block has been
// verified.  Once the edge has been seen the full level is enforced for
// every later check on every branch, so a fork below the edge cannot smuggle
// unchecked bodies past the selector.
func (b *BlockChain) requiredLevel(node *blockNode) spow.Level {
	if b.trustLevel == spow.LevelFull || b.trustEdge == nil {
		return b.trustLevel
	}
	if atomic.LoadUint32(&b.fullVerification) != 0 {
		return spow.LevelFull
	}

	edgeNode := b.index.LookupNode(b.trustEdge)
	if edgeNode == nil {
		// The edge has not been observed yet, so the reduced level
		// still applies.  This is the fast-bootstrap window.
		return b.trustLevel
	}
	if node == edgeNode || edgeNode.IsAncestorOf(node) {
		return spow.LevelFull
	}
	return b.trustLevel
}

// verifyContext builds the capability context for checking a block whose
// parent is the given node.
func (b *BlockChain) verifyContext(parent *blockNode) *spow.Context {
	ctx := &spow.Context{
		Params: b.params,
		Now:    b.timeSource,
	}
	if parent != nil {
		header := parent.Header()
		ctx.Parent = &header
	}
	return ctx
}

// checkHeaderSanity applies the header-level checks of the verification
// capability under the level required for the node.  The result is recorded
// on the node: either statusHeaderValid or statusValidateFailed, and the
// recording is final.
func (b *BlockChain) checkHeaderSanity(node *blockNode, header *types.BlockHeader) error {
	status := b.index.NodeStatus(node)
	if status.KnownInvalid() {
		return ruleError(ErrBadHeader, fmt.Sprintf("header %v already "+
			"known invalid", node.hash))
	}
	if status.HeaderValid() {
		return nil
	}

	if b.requiredLevel(node) >= spow.LevelHeaders {
		err := b.verifier.CheckHeader(header, b.verifyContext(node.parent))
		if err != nil {
			b.markInvalid(node)
			return ruleError(ErrBadHeader, err.Error())
		}
	}
	b.index.SetStatusFlags(node, statusHeaderValid)
	return nil
}

// verifyBody runs the body-internal checks for the block attached to node,
// coalescing duplicate concurrent submissions for the same hash.  The first
// caller executes the checks; every other concurrent caller blocks until the
// shared result is available.  A block already proven either way is never
// re-verified.
func (b *BlockChain) verifyBody(node *blockNode, block *types.SerializedBlock) error {
	status := b.index.NodeStatus(node)
	if status.KnownInvalid() {
		return ruleError(ErrBadBody, fmt.Sprintf("block %v already "+
			"known invalid", node.hash))
	}
	if status.BodyValid() {
		return nil
	}

	h := node.hash
	b.verifyMtx.Lock()
	if job, ok := b.verifyInflight[h]; ok {
		b.verifyMtx.Unlock()
		<-job.done
		return job.err
	}
	job := &verifyJob{done: make(chan struct{})}
	b.verifyInflight[h] = job
	b.verifyMtx.Unlock()

	// Bounded parallelism for independent candidates.
	b.verifySlots <- struct{}{}
	job.err = b.runBodyChecks(node, block)
	<-b.verifySlots

	b.verifyMtx.Lock()
	delete(b.verifyInflight, h)
	b.verifyMtx.Unlock()
	close(job.done)

	return job.err
}

// runBodyChecks performs the actual capability call for verifyBody and
// records the outcome on the node.
func (b *BlockChain) runBodyChecks(node *blockNode, block *types.SerializedBlock) error {
	// Checking the edge block itself permanently switches the chain to
	// full verification, whatever the outcome of the check.
	if b.trustEdge != nil && node.hash.IsEqual(b.trustEdge) {
		atomic.StoreUint32(&b.fullVerification, 1)
	}

	if b.requiredLevel(node) >= spow.LevelFull {
		err := b.verifier.CheckBody(block.Block(), b.verifyContext(node.parent))
		if err != nil {
			b.markInvalid(node)
			return ruleError(ErrBadBody, err.Error())
		}
	}
	b.index.SetStatusFlags(node, statusBodyValid)
	return nil
}

// markInvalid marks the node as failed and poisons every descendant already
// linked in the index so none of them can be selected as a chain candidate.
func (b *BlockChain) markInvalid(node *blockNode) {
	b.index.SetStatusFlags(node, statusValidateFailed)

	b.index.Lock()
	for _, candidate := range b.index.index {
		if candidate == node {
			continue
		}
		if node.IsAncestorOf(candidate) {
			candidate.status |= statusInvalidAncestor
		}
	}
	b.index.Unlock()
}

// defaultTimeSource is the wall clock used when the caller does not inject
// one.
func defaultTimeSource() time.Time {
	return time.Now()
}
