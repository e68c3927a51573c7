// Copyright (c) 2017-2020 The randchain developers

package params

import (
	"time"

	"github.com/randchain/randchaind/core/types"
)

// genesisBlock defines the first block of the main network chain.  The
// solution and proof are fixed constants; the genesis block is never
// verified against the puzzle.
var genesisBlock = types.Block{
	Header: types.BlockHeader{
		Version:    1,
		ParentRoot: [32]byte{}, // zero hash, no parent
		Height:     0,
		Timestamp:  time.Unix(1588291200, 0), // 2020-05-01 00:00:00 UTC
		Bits:       0x207fffff,
		Iterations: 0,
		Solution:   []byte{0x01},
	},
	Proof: nil,
}

// testNetGenesisBlock defines the first block of the test network chain.
var testNetGenesisBlock = types.Block{
	Header: types.BlockHeader{
		Version:    1,
		ParentRoot: [32]byte{},
		Height:     0,
		Timestamp:  time.Unix(1588291201, 0),
		Bits:       0x207fffff,
		Iterations: 0,
		Solution:   []byte{0x02},
	},
	Proof: nil,
}

// privNetGenesisBlock defines the first block of the private test chain used
// by the automated tests and controlled development environments.
var privNetGenesisBlock = types.Block{
	Header: types.BlockHeader{
		Version:    1,
		ParentRoot: [32]byte{},
		Height:     0,
		Timestamp:  time.Unix(1588291202, 0),
		Bits:       0x2100ffff,
		Iterations: 0,
		Solution:   []byte{0x03},
	},
	Proof: nil,
}
