package differ

import (
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SnapshotDiff summarizes the changes FromBlock to ToBlock.
type SnapshotDiff struct {
	Timestamp uint64                        `json:"timestamp"`
	FromBlock uint64                        `json:"fromBlock"`
	ToBlock   engine.BlockSummary           `json:"toBlock"`
	Tokens    tokenregistry.TokenSystemDiff `json:"tokens"`
	Pools     uniswapv2.UniswapV2SystemDiff `json:"pools"`
}

// IsEmpty reports whether the diff changes no token or pool.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Tokens.IsEmpty() && d.Pools.IsEmpty()
}
