// Copyright (c) 2017-2020 The randchain developers

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randchain/randchaind/engine/spow"
	"github.com/randchain/randchaind/params"
)

func baseConfig() Config {
	return Config{
		DataDir:      "data",
		LogDir:       "logs",
		MaxPeers:     defaultMaxPeers,
		BanDuration:  defaultBanDuration,
		BanThreshold: defaultBanThreshold,
		TrustLevel:   defaultTrustLevel,
		DebugLevel:   defaultDebugLevel,
	}
}

func TestResolveNetworkSelection(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, cfg.resolve())
	require.Equal(t, &params.MainNetParams, cfg.ActiveParams)

	cfg = baseConfig()
	cfg.PrivNet = true
	require.NoError(t, cfg.resolve())
	require.Equal(t, &params.PrivNetParams, cfg.ActiveParams)
	require.Equal(t, ":"+params.PrivNetParams.DefaultPort, cfg.Listener)

	cfg = baseConfig()
	cfg.TestNet = true
	cfg.PrivNet = true
	require.Error(t, cfg.resolve())
}

func TestResolveTrustOptions(t *testing.T) {
	cfg := baseConfig()
	cfg.TrustLevel = "sideways"
	require.Error(t, cfg.resolve())

	// A reduced level without an edge is refused.
	cfg = baseConfig()
	cfg.TrustLevel = "headers"
	require.Error(t, cfg.resolve())

	cfg = baseConfig()
	cfg.TrustLevel = "headers"
	cfg.TrustEdge = "0000000000000000000000000000000000000000000000000000000000000001"
	require.NoError(t, cfg.resolve())
	require.Equal(t, spow.LevelHeaders, cfg.TrustLvl)
	require.NotNil(t, cfg.TrustHash)

	cfg = baseConfig()
	cfg.TrustLevel = "none"
	cfg.TrustEdge = "not-a-hash"
	require.Error(t, cfg.resolve())
}

func TestResolveBanDuration(t *testing.T) {
	cfg := baseConfig()
	cfg.BanDuration = time.Millisecond
	require.Error(t, cfg.resolve())

	cfg = baseConfig()
	cfg.BanDuration = time.Second
	require.NoError(t, cfg.resolve())
}

func TestLogFile(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, cfg.resolve())
	require.NotEmpty(t, cfg.LogFile())

	cfg.NoFileLogging = true
	require.Empty(t, cfg.LogFile())
}
