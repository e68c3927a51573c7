// Copyright (c) 2017-2020 The randchain developers

package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randchain/randchaind/core/blockchain"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/database/leveldb"
	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/params"
	"github.com/randchain/randchaind/services/blkmgr"
	"github.com/randchain/randchaind/services/random"
)

type rpcHarness struct {
	t      *testing.T
	server *Server
	bm     *blkmgr.BlockManager
	blocks []*types.SerializedBlock
}

// newRPCHarness brings up a block manager over a fresh database, commits a
// short chain through it and wraps the rpc server around it without opening
// a socket.
func newRPCHarness(t *testing.T, length int) *rpcHarness {
	t.Helper()

	db, err := leveldb.NewDB(t.TempDir(), 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bm, err := blkmgr.New(&blkmgr.Config{
		DB:         db,
		Params:     &params.PrivNetParams,
		Verifier:   spow.NewVerifier(),
		TrustLevel: spow.LevelFull,
	})
	require.NoError(t, err)
	bm.Start()
	t.Cleanup(func() { bm.Stop() })

	h := &rpcHarness{t: t, bm: bm}
	parent := params.PrivNetParams.GenesisBlock.Header
	for i := 0; i < length; i++ {
		header := types.BlockHeader{
			Version:    1,
			ParentRoot: parent.BlockHash(),
			Height:     parent.Height + 1,
			Timestamp:  parent.Timestamp.Add(time.Second),
			Bits:       params.PrivNetParams.PowLimitBits,
			Iterations: 1,
		}
		block, err := spow.Solve(&header)
		require.NoError(t, err)

		sb := types.NewBlock(block)
		_, _, err = bm.ProcessBlock(sb, blockchain.BFNone)
		require.NoError(t, err)
		h.blocks = append(h.blocks, sb)
		parent = block.Header
	}

	h.server = NewServer(&Config{
		Listen:       "127.0.0.1:0",
		BlockManager: bm,
		Feed:         random.NewFeed(bm.GetChain()),
		Params:       &params.PrivNetParams,
	})
	return h
}

// get performs the request against the route table and decodes the JSON
// reply into out when the status matches.
func (h *rpcHarness) get(path string, wantStatus int, out interface{}) {
	h.t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.server.Router().ServeHTTP(rec, req)
	require.Equal(h.t, wantStatus, rec.Code)
	require.Equal(h.t, "application/json",
		rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(h.t, json.NewDecoder(rec.Body).Decode(out))
	}
}

func TestGetInfo(t *testing.T) {
	h := newRPCHarness(t, 3)

	var info infoResult
	h.get("/v1/getinfo", http.StatusOK, &info)

	require.Equal(t, params.PrivNetParams.Name, info.Network)
	require.Equal(t, uint64(3), info.Blocks)
	require.Equal(t, uint64(3), info.HeaderHeight)
	require.Equal(t, h.blocks[2].Hash().String(), info.BestBlockHash)
	require.NotEmpty(t, info.Version)
}

func TestGetBestBlockHashAndCount(t *testing.T) {
	h := newRPCHarness(t, 2)

	var best string
	h.get("/v1/getbestblockhash", http.StatusOK, &best)
	require.Equal(t, h.blocks[1].Hash().String(), best)

	var count uint64
	h.get("/v1/getblockcount", http.StatusOK, &count)
	require.Equal(t, uint64(2), count)
}

func TestGetBlock(t *testing.T) {
	h := newRPCHarness(t, 2)

	var block blockResult
	h.get("/v1/getblock/"+h.blocks[0].Hash().String(), http.StatusOK, &block)

	require.Equal(t, h.blocks[0].Hash().String(), block.Hash)
	require.Equal(t, uint64(1), block.Height)
	require.Equal(t, params.PrivNetParams.GenesisHash.String(), block.ParentRoot)
	require.True(t, block.MainChain)
	require.NotEmpty(t, block.Solution)

	var fail errorResult
	h.get("/v1/getblock/not-a-hash", http.StatusBadRequest, &fail)
	require.NotEmpty(t, fail.Error)

	unknown := "0000000000000000000000000000000000000000000000000000000000000001"
	h.get("/v1/getblock/"+unknown, http.StatusNotFound, &fail)
	require.NotEmpty(t, fail.Error)
}

func TestGetPeers(t *testing.T) {
	h := newRPCHarness(t, 0)

	var peers []*blkmgr.PeerInfo
	h.get("/v1/getpeers", http.StatusOK, &peers)
	require.Empty(t, peers)
}

func TestRandomnessEndpoints(t *testing.T) {
	h := newRPCHarness(t, 2)

	var out randomnessResult
	h.get("/v1/randomness/1", http.StatusOK, &out)
	require.Equal(t, uint64(1), out.Height)
	require.Len(t, out.Randomness, random.OutputSize*2)

	var latest randomnessResult
	h.get("/v1/randomness/latest", http.StatusOK, &latest)
	require.Equal(t, uint64(2), latest.Height)
	require.NotEqual(t, out.Randomness, latest.Randomness)

	var fail errorResult
	h.get("/v1/randomness/9", http.StatusNotFound, &fail)
	require.NotEmpty(t, fail.Error)
}
