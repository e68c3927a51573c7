// Copyright (c) 2017-2020 The randchain developers

package blkmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randchain/randchaind/common/hash"
)

func testHash(tag byte) *hash.Hash {
	var h hash.Hash
	h[0] = tag
	return &h
}

func TestRequestTrackerNoDuplicates(t *testing.T) {
	rt := newRequestTracker()
	deadline := time.Now().Add(requestTimeout)

	h := testHash(1)
	require.True(t, rt.track(h, 1, deadline))
	require.True(t, rt.inflight(h))
	require.Equal(t, 1, rt.size())
	require.Equal(t, 1, rt.peerLoad(1))

	// The same hash cannot be in flight twice, not even with another
	// peer.
	require.False(t, rt.track(h, 1, deadline))
	require.False(t, rt.track(h, 2, deadline))
	require.Equal(t, 1, rt.size())
	require.Equal(t, 0, rt.peerLoad(2))
}

func TestRequestTrackerComplete(t *testing.T) {
	rt := newRequestTracker()
	deadline := time.Now().Add(requestTimeout)

	h := testHash(1)
	require.True(t, rt.track(h, 7, deadline))

	req := rt.complete(h)
	require.NotNil(t, req)
	require.Equal(t, int32(7), req.peerID)
	require.Equal(t, 0, rt.size())
	require.Equal(t, 0, rt.peerLoad(7))

	// Completing an unrequested hash reports it as such.
	require.Nil(t, rt.complete(h))
	require.Nil(t, rt.complete(testHash(2)))

	// The hash may be requested again afterwards.
	require.True(t, rt.track(h, 7, deadline))
}

func TestRequestTrackerReleasePeer(t *testing.T) {
	rt := newRequestTracker()
	deadline := time.Now().Add(requestTimeout)

	require.True(t, rt.track(testHash(1), 1, deadline))
	require.True(t, rt.track(testHash(2), 1, deadline))
	require.True(t, rt.track(testHash(3), 1, deadline))
	require.True(t, rt.track(testHash(4), 2, deadline))

	freed := rt.releasePeer(1)
	require.Len(t, freed, 3)
	require.Equal(t, 1, rt.size())
	require.Equal(t, 0, rt.peerLoad(1))
	require.Equal(t, 1, rt.peerLoad(2))

	// The freed hashes are reschedulable immediately.
	for i := range freed {
		require.True(t, rt.track(&freed[i], 2, deadline))
	}
	require.Equal(t, 4, rt.peerLoad(2))
}

func TestRequestTrackerExpireDue(t *testing.T) {
	rt := newRequestTracker()
	now := time.Now()

	require.True(t, rt.track(testHash(1), 1, now.Add(-time.Second)))
	require.True(t, rt.track(testHash(2), 1, now.Add(-time.Minute)))
	require.True(t, rt.track(testHash(3), 2, now.Add(time.Minute)))

	expired := rt.expireDue(now)
	require.Len(t, expired, 2)
	for _, req := range expired {
		require.Equal(t, int32(1), req.peerID)
	}
	require.Equal(t, 1, rt.size())
	require.Equal(t, 0, rt.peerLoad(1))
	require.True(t, rt.inflight(testHash(3)))

	// Nothing further is due.
	require.Empty(t, rt.expireDue(now))
}
