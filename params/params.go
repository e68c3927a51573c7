// Copyright (c) 2017-2020 The randchain developers

package params

import (
	"math/big"
	"time"

	"github.com/randchain/randchaind/common/hash"
	"github.com/randchain/randchaind/core/types"
)

var (
	// bigOne is 1 represented as a big.Int.  It is defined here to avoid
	// the overhead of creating it multiple times.
	bigOne = big.NewInt(1)

	// mainPowLimit is the highest puzzle target a main network block may
	// declare.  It is the value 2^255 - 1.
	mainPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	// privPowLimit is the highest puzzle target for the private network.
	// It is so easy that every solution passes, which suits tests.
	privPowLimit = new(big.Int).Sub(new(big.Int).Lsh(bigOne, 256), bigOne)
)

// Params defines a network by its parameters.  These parameters may be used
// by applications to differentiate networks as well as addresses and keys for
// one network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// SeedPeers defines a list of hosts used to bootstrap peer discovery.
	SeedPeers []string

	// GenesisBlock is the first block of the chain.
	GenesisBlock *types.Block

	// GenesisHash is the genesis block hash.
	GenesisHash *hash.Hash

	// PowLimit defines the highest allowed puzzle target.
	PowLimit *big.Int

	// PowLimitBits is the compact form of PowLimit.
	PowLimitBits uint32

	// TargetTimePerBlock is the desired interval between blocks.  The
	// sequential puzzle iteration count is tuned around it.
	TargetTimePerBlock time.Duration

	// MaxTimeOffset is how far a block timestamp may be in the future
	// before the header is rejected.
	MaxTimeOffset time.Duration
}

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Name:        "mainnet",
	DefaultPort: "28333",
	SeedPeers: []string{
		"seed.randchain.io",
		"seed2.randchain.io",
	},
	GenesisBlock:       &genesisBlock,
	GenesisHash:        mustGenesisHash(&genesisBlock),
	PowLimit:           mainPowLimit,
	PowLimitBits:       0x207fffff,
	TargetTimePerBlock: time.Minute,
	MaxTimeOffset:      2 * time.Hour,
}

// TestNetParams defines the network parameters for the test network.
var TestNetParams = Params{
	Name:               "testnet",
	DefaultPort:        "28343",
	SeedPeers:          []string{"testnet-seed.randchain.io"},
	GenesisBlock:       &testNetGenesisBlock,
	GenesisHash:        mustGenesisHash(&testNetGenesisBlock),
	PowLimit:           mainPowLimit,
	PowLimitBits:       0x207fffff,
	TargetTimePerBlock: 30 * time.Second,
	MaxTimeOffset:      2 * time.Hour,
}

// PrivNetParams defines the network parameters for the private test network.
// This network is intended for controlled environments, so it has no seed
// peers and the easiest possible difficulty.
var PrivNetParams = Params{
	Name:               "privnet",
	DefaultPort:        "28353",
	SeedPeers:          nil,
	GenesisBlock:       &privNetGenesisBlock,
	GenesisHash:        mustGenesisHash(&privNetGenesisBlock),
	PowLimit:           privPowLimit,
	PowLimitBits:       0x2100ffff,
	TargetTimePerBlock: time.Second,
	MaxTimeOffset:      2 * time.Hour,
}

func mustGenesisHash(block *types.Block) *hash.Hash {
	h := block.BlockHash()
	return &h
}
