// Copyright (c) 2017-2020 The randchain developers

package spow

import (
	"testing"
	"time"

	"github.com/randchain/randchaind/core/types"
	"github.com/randchain/randchaind/params"
)

func solvedBlock(t *testing.T, parent *types.BlockHeader) *types.Block {
	t.Helper()
	header := &types.BlockHeader{
		Version:    1,
		Bits:       params.PrivNetParams.PowLimitBits,
		Iterations: 10,
		Timestamp:  time.Unix(1600000000, 0),
		Height:     1,
	}
	if parent != nil {
		header.ParentRoot = parent.BlockHash()
		header.Height = parent.Height + 1
		header.Timestamp = parent.Timestamp.Add(time.Second)
	}
	block, err := Solve(header)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return block
}

func testContext() *Context {
	return &Context{
		Params: &params.PrivNetParams,
		Now:    func() time.Time { return time.Unix(1600000100, 0) },
	}
}

func TestCheckHeader(t *testing.T) {
	v := NewVerifier()
	block := solvedBlock(t, nil)

	if err := v.CheckHeader(&block.Header, testContext()); err != nil {
		t.Fatalf("CheckHeader on solved header: %v", err)
	}

	// Zero iterations must be rejected.
	bad := block.Header
	bad.Iterations = 0
	if err := v.CheckHeader(&bad, testContext()); err == nil {
		t.Errorf("CheckHeader accepted zero iterations")
	}

	// Empty solution must be rejected.
	bad = block.Header
	bad.Solution = nil
	if err := v.CheckHeader(&bad, testContext()); err == nil {
		t.Errorf("CheckHeader accepted empty solution")
	}

	// Future timestamps beyond the allowed offset must be rejected.
	bad = block.Header
	bad.Timestamp = time.Unix(1600000100, 0).Add(3 * time.Hour)
	if err := v.CheckHeader(&bad, testContext()); err == nil {
		t.Errorf("CheckHeader accepted far-future timestamp")
	}

	// A target above the pow limit must be rejected on mainnet rules.
	mainCtx := &Context{Params: &params.MainNetParams,
		Now: func() time.Time { return time.Unix(1600000100, 0) }}
	bad = block.Header
	bad.Bits = 0x22008000 // above the 2^255-1 limit
	if err := v.CheckHeader(&bad, mainCtx); err == nil {
		t.Errorf("CheckHeader accepted target above pow limit")
	}
}

func TestCheckHeaderParentContext(t *testing.T) {
	v := NewVerifier()
	parentBlock := solvedBlock(t, nil)
	child := solvedBlock(t, &parentBlock.Header)

	ctx := testContext()
	ctx.Parent = &parentBlock.Header
	if err := v.CheckHeader(&child.Header, ctx); err != nil {
		t.Fatalf("CheckHeader on linked child: %v", err)
	}

	// Height hint that does not follow the parent is rejected.
	bad := child.Header
	bad.Height = parentBlock.Header.Height + 5
	if err := v.CheckHeader(&bad, ctx); err == nil {
		t.Errorf("CheckHeader accepted wrong height hint")
	}

	// Timestamp not after parent is rejected.
	bad = child.Header
	bad.Timestamp = parentBlock.Header.Timestamp
	if err := v.CheckHeader(&bad, ctx); err == nil {
		t.Errorf("CheckHeader accepted non-increasing timestamp")
	}
}

func TestCheckBody(t *testing.T) {
	v := NewVerifier()
	block := solvedBlock(t, nil)

	if err := v.CheckBody(block, testContext()); err != nil {
		t.Fatalf("CheckBody on solved block: %v", err)
	}

	// A missing proof is rejected.
	bad := &types.Block{Header: block.Header}
	if err := v.CheckBody(bad, testContext()); err == nil {
		t.Errorf("CheckBody accepted empty proof")
	}

	// A proof that does not open the solution commitment is rejected.
	bad = &types.Block{Header: block.Header, Proof: [][]byte{{0xff}}}
	if err := v.CheckBody(bad, testContext()); err == nil {
		t.Errorf("CheckBody accepted mismatched proof")
	}
}
