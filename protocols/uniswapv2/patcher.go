package uniswapv2

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// deepCopyPool creates a new Pool with its own memory for pointer types like *big.Int.
func deepCopyPool(p Pool) Pool {
	newPool := p
	newPool.Reserve0 = copyInt(p.Reserve0)
	newPool.Reserve1 = copyInt(p.Reserve1)
	return newPool
}

// Patcher constructs a new pool list by applying a diff to a previous list. The result
// shares no memory with either input. Existing pools keep their position, updates replace
// in place and additions are appended.
func Patcher(prevState []Pool, diff UniswapV2SystemDiff) ([]Pool, error) {
	deleted := make(map[common.Address]struct{}, len(diff.Deletions))
	for _, id := range diff.Deletions {
		deleted[id] = struct{}{}
	}

	updated := make(map[common.Address]Pool, len(diff.Updates))
	for _, pool := range diff.Updates {
		updated[pool.ID] = pool
	}

	position := make(map[common.Address]int, len(prevState)+len(diff.Additions))
	finalState := make([]Pool, 0, len(prevState)+len(diff.Additions))
	for _, pool := range prevState {
		if _, gone := deleted[pool.ID]; gone {
			continue
		}
		if u, ok := updated[pool.ID]; ok {
			pool = u
			delete(updated, pool.ID)
		}
		position[pool.ID] = len(finalState)
		finalState = append(finalState, deepCopyPool(pool))
	}

	if len(updated) > 0 {
		for id := range updated {
			return nil, fmt.Errorf("update for unknown pool %s", id.Hex())
		}
	}

	for _, pool := range diff.Additions {
		if i, exists := position[pool.ID]; exists {
			finalState[i] = deepCopyPool(pool)
			continue
		}
		position[pool.ID] = len(finalState)
		finalState = append(finalState, deepCopyPool(pool))
	}

	return finalState, nil
}
