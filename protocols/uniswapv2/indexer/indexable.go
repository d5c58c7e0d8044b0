package indexer

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

// Indexer builds IndexedUniswapV2 views from raw pool slices.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed Uniswap V2 system from a raw slice of pools.
func (i *Indexer) Index(pools []uniswapv2.Pool) IndexedUniswapV2 {
	return NewIndexableUniswapV2System(pools)
}

// IndexableUniswapV2System provides fast, indexed access to Uniswap V2 pool data.
type IndexableUniswapV2System struct {
	byID   map[common.Address]uniswapv2.Pool
	byPair map[uniswapv2.PairKey][]uniswapv2.Pool
	all    []uniswapv2.Pool
}

// NewIndexableUniswapV2System creates a new indexed Uniswap V2 system.
// Pools sharing a pair are kept sorted by ID. When an ID repeats, the first pool wins.
func NewIndexableUniswapV2System(pools []uniswapv2.Pool) *IndexableUniswapV2System {
	byID := make(map[common.Address]uniswapv2.Pool, len(pools))
	byPair := make(map[uniswapv2.PairKey][]uniswapv2.Pool)

	all := make([]uniswapv2.Pool, 0, len(pools))
	for _, p := range pools {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		byID[p.ID] = p
		all = append(all, p)
		key := p.Key()
		byPair[key] = append(byPair[key], p)
	}
	for _, list := range byPair {
		sort.Slice(list, func(i, j int) bool {
			return bytes.Compare(list[i].ID.Bytes(), list[j].ID.Bytes()) < 0
		})
	}

	return &IndexableUniswapV2System{
		byID:   byID,
		byPair: byPair,
		all:    all,
	}
}

// GetByID retrieves a pool by its address.
func (ius *IndexableUniswapV2System) GetByID(id common.Address) (uniswapv2.Pool, bool) {
	p, ok := ius.byID[id]
	return p, ok
}

// GetByPair returns every pool trading the unordered pair, in ID order.
func (ius *IndexableUniswapV2System) GetByPair(tokenA, tokenB common.Address) []uniswapv2.Pool {
	list := ius.byPair[uniswapv2.NewPairKey(tokenA, tokenB)]
	if len(list) == 0 {
		return nil
	}
	out := make([]uniswapv2.Pool, len(list))
	copy(out, list)
	return out
}

// All returns a defensive copy of the slice of all pools.
func (ius *IndexableUniswapV2System) All() []uniswapv2.Pool {
	allCopy := make([]uniswapv2.Pool, len(ius.all))
	copy(allCopy, ius.all)
	return allCopy
}
