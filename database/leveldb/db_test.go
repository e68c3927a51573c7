// Copyright (c) 2017-2020 The randchain developers

package leveldb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/database"
)

func testBlock(order uint64, tag byte) *types.SerializedBlock {
	blk := &types.Block{
		Header: types.BlockHeader{
			Version:    1,
			Height:     order,
			Timestamp:  time.Unix(1600000000+int64(order), 0),
			Bits:       0x2100ffff,
			Iterations: 1,
			Solution:   []byte{tag},
		},
		Proof: [][]byte{{tag}},
	}
	sb := types.NewBlock(blk)
	sb.SetOrder(order)
	return sb
}

func openTestDB(t *testing.T) database.DB {
	t.Helper()
	db, err := NewDB(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBlockRoundTrip(t *testing.T) {
	db := openTestDB(t)
	blk := testBlock(1, 0xaa)

	ok, err := db.HasBlock(blk.Hash())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.PutBlock(blk))

	ok, err = db.HasBlock(blk.Hash())
	require.NoError(t, err)
	require.True(t, ok)

	got, err := db.FetchBlock(blk.Hash())
	require.NoError(t, err)
	require.True(t, got.Hash().IsEqual(blk.Hash()))

	_, err = db.FetchBlock(testBlock(2, 0xbb).Hash())
	require.Equal(t, database.ErrBlockNotFound, err)
}

func TestTipOnFreshStore(t *testing.T) {
	db := openTestDB(t)
	_, err := db.FetchTip()
	require.Equal(t, database.ErrTipNotFound, err)
}

func TestCommitReorg(t *testing.T) {
	db := openTestDB(t)

	// Build the initial chain 1 -> 2 -> 3.
	b1, b2, b3 := testBlock(1, 0x01), testBlock(2, 0x02), testBlock(3, 0x03)
	require.NoError(t, db.CommitReorg(nil, []*types.SerializedBlock{b1, b2, b3}))

	tip, err := db.FetchTip()
	require.NoError(t, err)
	require.Equal(t, b3.Hash().String(), tip.Hash.String())
	require.Equal(t, uint64(3), tip.Height)

	// Reorg: disconnect 3 and 2, connect 2' -> 3' -> 4'.
	n2, n3, n4 := testBlock(2, 0x12), testBlock(3, 0x13), testBlock(4, 0x14)
	require.NoError(t, db.CommitReorg(
		[]*types.SerializedBlock{b3, b2},
		[]*types.SerializedBlock{n2, n3, n4},
	))

	tip, err = db.FetchTip()
	require.NoError(t, err)
	require.Equal(t, n4.Hash().String(), tip.Hash.String())
	require.Equal(t, uint64(4), tip.Height)

	// Main chain index reflects the new branch.
	h2, err := db.FetchMainChainHash(2)
	require.NoError(t, err)
	require.True(t, h2.IsEqual(n2.Hash()))

	// Disconnected bodies are still fetchable by hash; only the main
	// chain index changed.
	_, err = db.FetchBlock(b2.Hash())
	require.NoError(t, err)

	_, err = db.FetchMainChainHash(9)
	require.Equal(t, database.ErrBlockNotFound, err)
}
