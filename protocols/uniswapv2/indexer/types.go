package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

// IndexedUniswapV2 defines the interface for a queryable view of pool data.
type IndexedUniswapV2 interface {
	GetByID(id common.Address) (uniswapv2.Pool, bool)
	GetByPair(tokenA, tokenB common.Address) []uniswapv2.Pool
	All() []uniswapv2.Pool
}
