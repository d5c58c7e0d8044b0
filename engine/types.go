package engine

import (
	"math/big"

	tokenregistry "github.com/defistate/defistate-router-go/protocols/tokenregistry"
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

// BlockSummary contains only the essential block information for clients.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // The Unix nanosecond timestamp when the source observed the block.
}

// Snapshot is a point-in-time view of every token and pool supplied by the pool data source.
// A snapshot is never mutated once published; refreshes replace it wholesale.
type Snapshot struct {
	ChainID   uint64                `json:"chainId"`
	Timestamp uint64                `json:"timestamp"`
	Block     BlockSummary          `json:"block"`
	Tokens    []tokenregistry.Token `json:"tokens"`
	Pools     []uniswapv2.Pool      `json:"pools"`
}

// Version identifies the snapshot for staleness checks. It is the block number the
// snapshot was taken at, or zero when the block is unknown.
func (s *Snapshot) Version() uint64 {
	if s == nil || s.Block.Number == nil {
		return 0
	}
	return s.Block.Number.Uint64()
}
