package patcher

import (
	"fmt"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

// Patch creates a new Snapshot by applying diff to old. old is never modified; the
// token and pool lists of the result are fresh copies.
func Patch(old *engine.Snapshot, diff *differ.SnapshotDiff) (*engine.Snapshot, error) {
	if old == nil || diff == nil {
		return nil, fmt.Errorf("patcher: snapshot and diff are required")
	}
	// 1. Integrity Check
	if old.Version() != diff.FromBlock {
		return nil, fmt.Errorf("patcher: mismatch fromBlock (snapshot=%d, diff=%d)", old.Version(), diff.FromBlock)
	}

	tokens, err := tokenregistry.Patcher(old.Tokens, diff.Tokens)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch tokens: %w", err)
	}
	pools, err := uniswapv2.Patcher(old.Pools, diff.Pools)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch pools: %w", err)
	}

	return &engine.Snapshot{
		ChainID:   old.ChainID, // Chain ID implies fork consistency
		Timestamp: diff.Timestamp,
		Block:     diff.ToBlock,
		Tokens:    tokens,
		Pools:     pools,
	}, nil
}
