// Copyright (c) 2017-2020 The randchain developers

package blockchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types/pow"
)

// newTestNode links a synthetic node onto parent without going through the
// full header path.  The hash is derived from the height and a branch tag so
// siblings stay distinct.
func newTestNode(parent *blockNode, branch byte) *blockNode {
	node := &blockNode{
		parent:  parent,
		bits:    0x2100ffff,
		workSum: pow.CalcWork(0x2100ffff),
	}
	if parent != nil {
		node.height = parent.height + 1
		node.skip = parent.Ancestor(skipHeight(node.height))
		node.workSum = node.workSum.Add(parent.workSum, node.workSum)
	}
	node.hash = hash.DoubleHashH([]byte{
		branch,
		byte(node.height), byte(node.height >> 8),
		byte(node.height >> 16), byte(node.height >> 24),
	})
	return node
}

func buildTestChain(parent *blockNode, length int, branch byte) []*blockNode {
	nodes := make([]*blockNode, 0, length)
	for i := 0; i < length; i++ {
		parent = newTestNode(parent, branch)
		nodes = append(nodes, parent)
	}
	return nodes
}

func TestAncestorSkipPointers(t *testing.T) {
	chain := buildTestChain(nil, 1000, 0)
	tip := chain[len(chain)-1]

	// Compare the skip-assisted walk against a plain parent walk for a
	// spread of heights.
	for _, height := range []uint64{0, 1, 2, 3, 63, 64, 65, 500, 998, 999} {
		want := tip
		for want.height != height {
			want = want.parent
		}
		require.Same(t, want, tip.Ancestor(height),
			"ancestor at height %d", height)
	}

	require.Nil(t, tip.Ancestor(tip.height+1))
	require.Same(t, tip, tip.Ancestor(tip.height))
}

func TestIsAncestorOf(t *testing.T) {
	trunk := buildTestChain(nil, 10, 0)
	branch := buildTestChain(trunk[4], 5, 1)

	require.True(t, trunk[0].IsAncestorOf(trunk[9]))
	require.True(t, trunk[4].IsAncestorOf(branch[4]))
	require.False(t, trunk[9].IsAncestorOf(branch[4]))
	require.False(t, branch[0].IsAncestorOf(trunk[9]))
	require.True(t, trunk[3].IsAncestorOf(trunk[3]))
	require.False(t, trunk[3].IsAncestorOf(nil))
}

func TestCumulativeWork(t *testing.T) {
	chain := buildTestChain(nil, 50, 0)
	perBlock := pow.CalcWork(0x2100ffff)

	for i, node := range chain {
		expected := new(big.Int).Mul(perBlock, big.NewInt(int64(i+1)))
		require.Zero(t, expected.Cmp(node.workSum),
			"work sum at height %d", node.height)
	}
}

func TestBetterCandidateTieBreak(t *testing.T) {
	index := newBlockIndex()

	a := newTestNode(nil, 0)
	b := newTestNode(nil, 1)
	index.AddNode(a)
	index.AddNode(b)

	// Equal work: the earlier insertion wins both directions.
	require.True(t, betterCandidate(a, b))
	require.False(t, betterCandidate(b, a))

	// More work beats insertion order.
	c := newTestNode(a, 2)
	index.AddNode(c)
	require.True(t, betterCandidate(c, a))
	require.True(t, betterCandidate(c, b))
}

func TestStatusTransitionsAreForwardOnly(t *testing.T) {
	index := newBlockIndex()
	node := newTestNode(nil, 0)
	index.AddNode(node)

	require.False(t, index.NodeStatus(node).HeaderValid())
	index.SetStatusFlags(node, statusHeaderValid)
	index.SetStatusFlags(node, statusBodyValid|statusDataStored)

	status := index.NodeStatus(node)
	require.True(t, status.HeaderValid())
	require.True(t, status.BodyValid())
	require.True(t, status.HaveData())

	// Setting more flags never clears previously proven ones.
	index.SetStatusFlags(node, statusValid)
	status = index.NodeStatus(node)
	require.True(t, status.HeaderValid())
	require.True(t, status.KnownValid())
}
