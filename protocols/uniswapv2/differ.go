package uniswapv2

import "github.com/ethereum/go-ethereum/common"

type UniswapV2SystemDiff struct {
	Additions []Pool           `json:"additions,omitempty"`
	Updates   []Pool           `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d UniswapV2SystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two pool lists keyed by pool ID.
// A pool present in both lists is an update when its reserves or fee moved; output order
// follows the input lists so diffs are reproducible.
func Differ(old, new []Pool) UniswapV2SystemDiff {
	oldPoolsMap := make(map[common.Address]Pool, len(old))
	for _, pool := range old {
		oldPoolsMap[pool.ID] = pool
	}

	newPoolIDs := make(map[common.Address]struct{}, len(new))

	var additions []Pool
	var updates []Pool
	var deletions []common.Address

	for _, newPool := range new {
		newPoolIDs[newPool.ID] = struct{}{}
		oldPool, exists := oldPoolsMap[newPool.ID]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		// Manual comparison of the mutable fields; cheaper than reflect.DeepEqual.
		if !intEqual(oldPool.Reserve0, newPool.Reserve0) ||
			!intEqual(oldPool.Reserve1, newPool.Reserve1) ||
			oldPool.FeeBps != newPool.FeeBps {
			updates = append(updates, newPool)
		}
	}

	for _, oldPool := range old {
		if _, exists := newPoolIDs[oldPool.ID]; !exists {
			deletions = append(deletions, oldPool.ID)
		}
	}

	return UniswapV2SystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
