// Copyright (c) 2017-2020 The randchain developers

package blockchain

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/database"
	"github.com/randchain/randchaind/database/leveldb"
	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/params"
)

// solveChild produces a solved block extending the given parent header.  The
// branch tag lands in the solver identity so siblings at the same height get
// distinct hashes.
func solveChild(t *testing.T, parent *types.BlockHeader, branch byte) *types.SerializedBlock {
	t.Helper()

	header := types.BlockHeader{
		Version:    1,
		ParentRoot: parent.BlockHash(),
		Height:     parent.Height + 1,
		Timestamp:  parent.Timestamp.Add(time.Second),
		Bits:       params.PrivNetParams.PowLimitBits,
		Iterations: 1,
	}
	header.PubKey[0] = branch

	block, err := spow.Solve(&header)
	require.NoError(t, err)
	return types.NewBlock(block)
}

// solveBranch extends parent with length solved blocks on the given branch
// tag and returns them lowest height first.
func solveBranch(t *testing.T, parent *types.BlockHeader, length int, branch byte) []*types.SerializedBlock {
	t.Helper()

	blocks := make([]*types.SerializedBlock, 0, length)
	for i := 0; i < length; i++ {
		sb := solveChild(t, parent, branch)
		blocks = append(blocks, sb)
		h := sb.Block().Header
		parent = &h
	}
	return blocks
}

type chainHarness struct {
	t     *testing.T
	db    database.DB
	chain *BlockChain

	mtx   sync.Mutex
	notes []*Notification
}

func (h *chainHarness) onNotification(n *Notification) {
	h.mtx.Lock()
	h.notes = append(h.notes, n)
	h.mtx.Unlock()
}

func (h *chainHarness) countNotes(typ NotificationType) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	count := 0
	for _, n := range h.notes {
		if n.Type == typ {
			count++
		}
	}
	return count
}

func (h *chainHarness) resetNotes() {
	h.mtx.Lock()
	h.notes = nil
	h.mtx.Unlock()
}

func newChainHarness(t *testing.T, config Config) *chainHarness {
	t.Helper()

	h := &chainHarness{t: t}
	db, err := leveldb.NewDB(t.TempDir(), 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	h.db = db

	config.DB = db
	if config.Params == nil {
		config.Params = &params.PrivNetParams
	}
	if config.Verifier == nil {
		config.Verifier = spow.NewVerifier()
	}
	if config.TrustLevel == 0 && config.TrustEdge == nil {
		config.TrustLevel = spow.LevelFull
	}
	config.Notifications = h.onNotification

	chain, err := New(&config)
	require.NoError(t, err)
	h.chain = chain
	return h
}

func genesisHeader() *types.BlockHeader {
	return &params.PrivNetParams.GenesisBlock.Header
}

func TestProcessBlockExtendsChain(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 3, 0)

	for _, sb := range blocks {
		isMain, isOrphan, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.True(t, isMain)
		require.False(t, isOrphan)
	}

	state := h.chain.BestSnapshot()
	require.Equal(t, uint64(3), state.Height)
	require.Equal(t, *blocks[2].Hash(), state.Hash)

	for i, sb := range blocks {
		hashAt, err := h.chain.BlockHashByHeight(uint64(i + 1))
		require.NoError(t, err)
		require.Equal(t, sb.Hash(), hashAt)
		require.True(t, h.chain.MainChainHasBlock(sb.Hash()))

		stored, err := h.chain.BlockByHash(sb.Hash())
		require.NoError(t, err)
		require.Equal(t, *sb.Hash(), *stored.Hash())
	}

	require.Equal(t, 3, h.countNotes(BlockConnected))
	require.Equal(t, 3, h.countNotes(NewChainTip))
	require.Equal(t, 0, h.countNotes(Reorganization))
}

func TestProcessBlockDuplicate(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	sb := solveChild(t, genesisHeader(), 0)

	_, _, err := h.chain.ProcessBlock(sb, BFNone)
	require.NoError(t, err)

	_, _, err = h.chain.ProcessBlock(sb, BFNone)
	require.Error(t, err)
	var rerr RuleError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrDuplicateBlock, rerr.ErrorCode)
}

func TestProcessBlockOrphan(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 2, 0)
	b1, b2 := blocks[0], blocks[1]

	// The child arrives before its parent.
	isMain, isOrphan, err := h.chain.ProcessBlock(b2, BFNone)
	require.NoError(t, err)
	require.False(t, isMain)
	require.True(t, isOrphan)
	require.True(t, h.chain.IsKnownOrphan(b2.Hash()))
	require.Equal(t, 1, h.chain.GetOrphansTotal())
	require.Equal(t, b2.Hash(), h.chain.GetOrphanRoot(b2.Hash()))

	parents := h.chain.OrphanParents()
	require.Len(t, parents, 1)
	require.Equal(t, *b1.Hash(), *parents[0])

	// The missing parent arrives and pulls the orphan in behind it.
	isMain, isOrphan, err = h.chain.ProcessBlock(b1, BFNone)
	require.NoError(t, err)
	require.True(t, isMain)
	require.False(t, isOrphan)

	state := h.chain.BestSnapshot()
	require.Equal(t, uint64(2), state.Height)
	require.Equal(t, *b2.Hash(), state.Hash)
	require.Equal(t, 0, h.chain.GetOrphansTotal())
	require.False(t, h.chain.IsKnownOrphan(b2.Hash()))
}

func TestOrphanPoolEviction(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull, MaxOrphans: 3})

	// Four orphans hanging off distinct unknown parents.  The pool is
	// bounded at three, so accepting the fourth evicts the oldest.
	orphans := make([]*types.SerializedBlock, 0, 4)
	for i := byte(1); i <= 4; i++ {
		var parent hash.Hash
		parent[0] = i
		header := types.BlockHeader{
			Version:    1,
			ParentRoot: parent,
			Height:     10,
			Timestamp:  genesisHeader().Timestamp.Add(time.Second),
			Bits:       params.PrivNetParams.PowLimitBits,
			Iterations: 1,
		}
		block, err := spow.Solve(&header)
		require.NoError(t, err)
		sb := types.NewBlock(block)

		_, isOrphan, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.True(t, isOrphan)
		orphans = append(orphans, sb)
	}

	require.Equal(t, 3, h.chain.GetOrphansTotal())
	require.False(t, h.chain.IsKnownOrphan(orphans[0].Hash()))
	for _, sb := range orphans[1:] {
		require.True(t, h.chain.IsKnownOrphan(sb.Hash()))
	}
}

func TestReorganizeChain(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	branchA := solveBranch(t, genesisHeader(), 3, 0)
	branchB := solveBranch(t, genesisHeader(), 4, 1)

	for _, sb := range branchA {
		isMain, _, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.True(t, isMain)
	}

	// The competing branch stays on the side while it has no more work
	// than the active chain, including the equal-work tie at height 3.
	for _, sb := range branchB[:3] {
		isMain, isOrphan, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.False(t, isMain)
		require.False(t, isOrphan)
	}
	require.Equal(t, *branchA[2].Hash(), h.chain.BestSnapshot().Hash)

	// One more block tips the balance and triggers the reorg.
	h.resetNotes()
	isMain, _, err := h.chain.ProcessBlock(branchB[3], BFNone)
	require.NoError(t, err)
	require.True(t, isMain)

	state := h.chain.BestSnapshot()
	require.Equal(t, uint64(4), state.Height)
	require.Equal(t, *branchB[3].Hash(), state.Hash)

	require.Equal(t, 1, h.countNotes(Reorganization))
	require.Equal(t, 1, h.countNotes(NewChainTip))
	require.Equal(t, 3, h.countNotes(BlockDisconnected))
	require.Equal(t, 4, h.countNotes(BlockConnected))

	for i, sb := range branchB {
		require.True(t, h.chain.MainChainHasBlock(sb.Hash()))
		hashAt, err := h.chain.BlockHashByHeight(uint64(i + 1))
		require.NoError(t, err)
		require.Equal(t, sb.Hash(), hashAt)
	}
	for _, sb := range branchA {
		require.False(t, h.chain.MainChainHasBlock(sb.Hash()))
	}
}

func TestInvalidBlockNeverConnects(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})

	bad := solveChild(t, genesisHeader(), 0)
	bad.Block().Proof = [][]byte{{0xde, 0xad}}

	_, _, err := h.chain.ProcessBlock(bad, BFNone)
	var rerr RuleError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrBadBody, rerr.ErrorCode)
	require.Equal(t, uint64(0), h.chain.BestSnapshot().Height)

	// A child of the failed block is rejected without any verification
	// work: the invalid ancestor poisons the branch.
	badHeader := bad.Block().Header
	child := solveChild(t, &badHeader, 0)
	_, _, err = h.chain.ProcessBlock(child, BFNone)
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrInvalidAncestor, rerr.ErrorCode)

	childHeader := child.Block().Header
	status, err := h.chain.ProcessBlockHeader(&childHeader, BFNone)
	require.Error(t, err)
	require.Equal(t, HeaderRejected, status)

	// The chain remains extendable by a valid sibling.
	good := solveChild(t, genesisHeader(), 1)
	isMain, _, err := h.chain.ProcessBlock(good, BFNone)
	require.NoError(t, err)
	require.True(t, isMain)
}

func TestProcessBlockHeaderStatuses(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 3, 0)

	h1 := blocks[0].Block().Header
	status, err := h.chain.ProcessBlockHeader(&h1, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderAccepted, status)

	status, err = h.chain.ProcessBlockHeader(&h1, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderDuplicate, status)

	// A header whose parent has not been seen is parked as an orphan
	// outcome without being linked.
	h3 := blocks[2].Block().Header
	status, err = h.chain.ProcessBlockHeader(&h3, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderOrphan, status)

	// Structural garbage is rejected outright.
	badHeader := blocks[1].Block().Header
	badHeader.Iterations = 0
	status, err = h.chain.ProcessBlockHeader(&badHeader, BFNone)
	require.Error(t, err)
	require.Equal(t, HeaderRejected, status)

	// The genuine second header still links fine afterwards.
	h2 := blocks[1].Block().Header
	status, err = h.chain.ProcessBlockHeader(&h2, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderAccepted, status)

	// Bodies arriving after their headers connect as usual.
	isMain, isOrphan, err := h.chain.ProcessBlock(blocks[0], BFNone)
	require.NoError(t, err)
	require.True(t, isMain)
	require.False(t, isOrphan)
}

func TestHeaderFrontier(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 3, 0)

	for _, sb := range blocks {
		header := sb.Block().Header
		status, err := h.chain.ProcessBlockHeader(&header, BFNone)
		require.NoError(t, err)
		require.Equal(t, HeaderAccepted, status)
	}

	bestHash, bestHeight := h.chain.BestHeaderSnapshot()
	require.Equal(t, *blocks[2].Hash(), bestHash)
	require.Equal(t, uint64(3), bestHeight)

	frontier := h.chain.HeaderFrontier(10)
	require.Len(t, frontier, 3)
	for i, fh := range frontier {
		require.Equal(t, *blocks[i].Hash(), *fh)
	}

	// A bounded request returns the oldest gap entries first.
	frontier = h.chain.HeaderFrontier(1)
	require.Len(t, frontier, 1)
	require.Equal(t, *blocks[0].Hash(), *frontier[0])

	// Storing a body shrinks the frontier from the bottom.
	_, _, err := h.chain.ProcessBlock(blocks[0], BFNone)
	require.NoError(t, err)
	frontier = h.chain.HeaderFrontier(10)
	require.Len(t, frontier, 2)
	require.Equal(t, *blocks[1].Hash(), *frontier[0])
}

func TestTrustEdgeForcesFullVerification(t *testing.T) {
	blocks := solveBranch(t, genesisHeader(), 3, 0)
	edgeHash := blocks[2].Hash()

	h := newChainHarness(t, Config{
		TrustLevel: spow.LevelHeaders,
		TrustEdge:  edgeHash,
	})

	// Below the edge, bodies are stored without proof checks, so a
	// garbage proof sails through.
	for _, sb := range blocks[:2] {
		sb.Block().Proof = [][]byte{{0xff}}
		isMain, _, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.True(t, isMain)
	}

	// The edge block itself is verified in full.
	blocks[2].Block().Proof = [][]byte{{0xff}}
	_, _, err := h.chain.ProcessBlock(blocks[2], BFNone)
	var rerr RuleError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrBadBody, rerr.ErrorCode)
}

// countingVerifier wraps the real verifier and counts body check
// invocations.
type countingVerifier struct {
	spow.SequentialVerifier
	bodyChecks int64
}

func (v *countingVerifier) CheckBody(block *types.Block, ctx *spow.Context) error {
	atomic.AddInt64(&v.bodyChecks, 1)
	return v.SequentialVerifier.CheckBody(block, ctx)
}

func TestPreverifyBlockCoalesces(t *testing.T) {
	verifier := &countingVerifier{}
	h := newChainHarness(t, Config{
		TrustLevel: spow.LevelFull,
		Verifier:   verifier,
	})

	sb := solveChild(t, genesisHeader(), 0)
	header := sb.Block().Header
	_, err := h.chain.ProcessBlockHeader(&header, BFNone)
	require.NoError(t, err)

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.chain.PreverifyBlock(sb)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Duplicate submissions coalesce into one proof check.
	require.Equal(t, int64(1), atomic.LoadInt64(&verifier.bodyChecks))

	// The later commit reuses the recorded result.
	isMain, _, err := h.chain.ProcessBlock(sb, BFNone)
	require.NoError(t, err)
	require.True(t, isMain)
	require.Equal(t, int64(1), atomic.LoadInt64(&verifier.bodyChecks))
}

func TestBlockLocator(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 20, 0)
	for _, sb := range blocks {
		_, _, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
	}

	locator := h.chain.LatestBlockLocator()
	require.NotEmpty(t, locator)
	require.Equal(t, *blocks[19].Hash(), *locator[0])
	require.Equal(t, *params.PrivNetParams.GenesisHash, *locator[len(locator)-1])

	// Headers after a known locator entry come back in ascending order.
	headers := h.chain.LocateHeaders(BlockLocator{blocks[9].Hash()},
		&hash.ZeroHash, 5)
	require.Len(t, headers, 5)
	for i, header := range headers {
		require.Equal(t, *blocks[10+i].Hash(), header.BlockHash())
	}

	// An unknown locator restarts after genesis.
	bogus := hash.DoubleHashH([]byte("nowhere"))
	headers = h.chain.LocateHeaders(BlockLocator{&bogus}, &hash.ZeroHash, 3)
	require.Len(t, headers, 3)
	require.Equal(t, *blocks[0].Hash(), headers[0].BlockHash())

	// An empty locator asks for the stop hash itself.
	headers = h.chain.LocateHeaders(nil, blocks[4].Hash(), 10)
	require.Len(t, headers, 1)
	require.Equal(t, *blocks[4].Hash(), headers[0].BlockHash())
}

func TestInitChainStateRestart(t *testing.T) {
	dir := t.TempDir()
	blocks := solveBranch(t, genesisHeader(), 3, 0)

	db, err := leveldb.NewDB(dir, 8)
	require.NoError(t, err)
	chain, err := New(&Config{
		DB:         db,
		Params:     &params.PrivNetParams,
		Verifier:   spow.NewVerifier(),
		TrustLevel: spow.LevelFull,
	})
	require.NoError(t, err)
	for _, sb := range blocks {
		_, _, err := chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
	}
	before := chain.BestSnapshot()
	require.NoError(t, db.Close())

	// A fresh instance over the same store resumes at the same tip.
	db, err = leveldb.NewDB(dir, 8)
	require.NoError(t, err)
	defer db.Close()
	chain, err = New(&Config{
		DB:         db,
		Params:     &params.PrivNetParams,
		Verifier:   spow.NewVerifier(),
		TrustLevel: spow.LevelFull,
	})
	require.NoError(t, err)

	after := chain.BestSnapshot()
	require.Equal(t, before.Hash, after.Hash,
		"best state changed across restart: %s", spew.Sdump(after))
	require.Equal(t, before.Height, after.Height)
	require.Zero(t, before.TotalWork.Cmp(after.TotalWork))

	stored, err := chain.BlockByHash(blocks[1].Hash())
	require.NoError(t, err)
	require.Equal(t, *blocks[1].Hash(), *stored.Hash())
}

func TestIsCurrent(t *testing.T) {
	genesisTime := genesisHeader().Timestamp

	h := newChainHarness(t, Config{
		TrustLevel: spow.LevelFull,
		TimeSource: func() time.Time { return genesisTime.Add(time.Minute) },
	})

	// The tip timestamp is within the freshness window of the injected
	// clock.
	require.True(t, h.chain.IsCurrent())

	// A known header ahead of the stored tip means sync is not done.
	sb := solveChild(t, genesisHeader(), 0)
	header := sb.Block().Header
	_, err := h.chain.ProcessBlockHeader(&header, BFNone)
	require.NoError(t, err)
	require.False(t, h.chain.IsCurrent())

	_, _, err = h.chain.ProcessBlock(sb, BFNone)
	require.NoError(t, err)
	require.True(t, h.chain.IsCurrent())
}

func TestOutOfOrderBodyDelivery(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 2, 0)
	b1, b2 := blocks[0], blocks[1]

	for _, sb := range blocks {
		header := sb.Block().Header
		status, err := h.chain.ProcessBlockHeader(&header, BFNone)
		require.NoError(t, err)
		require.Equal(t, HeaderAccepted, status)
	}

	// The newer body lands first.  It is stored, but the tip switch
	// waits for the gap below it.
	isMain, isOrphan, err := h.chain.ProcessBlock(b2, BFNone)
	require.NoError(t, err)
	require.False(t, isMain)
	require.False(t, isOrphan)
	require.Equal(t, uint64(0), h.chain.BestSnapshot().Height)

	// The stored block no longer needs fetching, but the gap below it
	// stays on the frontier.
	frontier := h.chain.HeaderFrontier(10)
	require.Len(t, frontier, 1)
	require.Equal(t, *b1.Hash(), *frontier[0])

	// Re-delivery of the parked body is tolerated, not penalized.
	_, _, err = h.chain.ProcessBlock(b2, BFNone)
	require.NoError(t, err)

	// The gap body arrives and the tip runs through the stored block.
	isMain, _, err = h.chain.ProcessBlock(b1, BFNone)
	require.NoError(t, err)
	require.True(t, isMain)

	state := h.chain.BestSnapshot()
	require.Equal(t, uint64(2), state.Height)
	require.Equal(t, *b2.Hash(), state.Hash)
	require.True(t, h.chain.MainChainHasBlock(b2.Hash()))
	require.Empty(t, h.chain.HeaderFrontier(10))

	// Filling the gap is an extension, never a branch change.
	require.Equal(t, 2, h.countNotes(BlockConnected))
	require.Equal(t, 2, h.countNotes(NewChainTip))
	require.Equal(t, 0, h.countNotes(Reorganization))
}

func TestPoisonedBestHeaderRecovers(t *testing.T) {
	genesisTime := genesisHeader().Timestamp
	h := newChainHarness(t, Config{
		TrustLevel: spow.LevelFull,
		TimeSource: func() time.Time { return genesisTime.Add(time.Minute) },
	})

	bad := solveChild(t, genesisHeader(), 0)
	bad.Block().Proof = [][]byte{{0xde, 0xad}}
	badHeader := bad.Block().Header

	// The header passes its checks, so the tree leads with it.
	status, err := h.chain.ProcessBlockHeader(&badHeader, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderAccepted, status)
	require.False(t, h.chain.IsCurrent())

	// The body fails verification, poisoning the branch the best header
	// points at.  The chain must not report itself behind a dead branch.
	_, _, err = h.chain.ProcessBlock(bad, BFNone)
	var rerr RuleError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrBadBody, rerr.ErrorCode)

	require.True(t, h.chain.IsCurrent())
	bestHash, bestHeight := h.chain.BestHeaderSnapshot()
	require.Equal(t, h.chain.BestSnapshot().Hash, bestHash)
	require.Equal(t, uint64(0), bestHeight)
	require.Empty(t, h.chain.HeaderFrontier(10))

	// A fresh valid header takes the lead back.
	good := solveChild(t, genesisHeader(), 1)
	goodHeader := good.Block().Header
	status, err = h.chain.ProcessBlockHeader(&goodHeader, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderAccepted, status)
	bestHash, _ = h.chain.BestHeaderSnapshot()
	require.Equal(t, *good.Hash(), bestHash)
}

func TestOrphanResolvedByHeader(t *testing.T) {
	h := newChainHarness(t, Config{TrustLevel: spow.LevelFull})
	blocks := solveBranch(t, genesisHeader(), 2, 0)
	b1, b2 := blocks[0], blocks[1]

	_, isOrphan, err := h.chain.ProcessBlock(b2, BFNone)
	require.NoError(t, err)
	require.True(t, isOrphan)
	require.Equal(t, 1, h.chain.GetOrphansTotal())

	// The missing parent arrives as a bare header.  That alone links the
	// orphan into the tree in the same step.
	h1 := b1.Block().Header
	status, err := h.chain.ProcessBlockHeader(&h1, BFNone)
	require.NoError(t, err)
	require.Equal(t, HeaderAccepted, status)
	require.False(t, h.chain.IsKnownOrphan(b2.Hash()))
	require.Equal(t, 0, h.chain.GetOrphansTotal())

	// The tip still waits on the parent body; once it lands the chain
	// runs through both.
	require.Equal(t, uint64(0), h.chain.BestSnapshot().Height)
	isMain, _, err := h.chain.ProcessBlock(b1, BFNone)
	require.NoError(t, err)
	require.True(t, isMain)
	require.Equal(t, uint64(2), h.chain.BestSnapshot().Height)
	require.Equal(t, *b2.Hash(), h.chain.BestSnapshot().Hash)
}

func TestFullVerificationLatchesAtEdge(t *testing.T) {
	trunk := solveBranch(t, genesisHeader(), 2, 0)
	edgeHash := trunk[1].Hash()

	h := newChainHarness(t, Config{
		TrustLevel: spow.LevelHeaders,
		TrustEdge:  edgeHash,
	})

	for _, sb := range trunk {
		isMain, _, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.True(t, isMain)
	}

	// A heavier branch forked below the edge arrives after the edge has
	// been verified.  Its bodies must now be proven in full, so a
	// garbage proof cannot ride the reduced level into a winning reorg.
	fork := solveBranch(t, genesisHeader(), 3, 1)
	fork[0].Block().Proof = [][]byte{{0xff}}

	for _, sb := range fork[:2] {
		isMain, isOrphan, err := h.chain.ProcessBlock(sb, BFNone)
		require.NoError(t, err)
		require.False(t, isMain)
		require.False(t, isOrphan)
	}

	_, _, err := h.chain.ProcessBlock(fork[2], BFNone)
	var rerr RuleError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, ErrBadBody, rerr.ErrorCode)

	// The active chain keeps the edge tip and the poisoned branch stays
	// off it.
	require.Equal(t, *edgeHash, h.chain.BestSnapshot().Hash)
	for _, sb := range fork {
		require.False(t, h.chain.MainChainHasBlock(sb.Hash()))
	}
}
