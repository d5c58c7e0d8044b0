package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

// SnapshotDifferConfig holds the differ's dependencies.
type SnapshotDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *SnapshotDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// SnapshotDiffer computes diffs between consecutive snapshots.
type SnapshotDiffer struct {
	metrics *Metrics
	logger  Logger
	now     func() time.Time
}

// NewSnapshotDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewSnapshotDiffer(cfg *SnapshotDifferConfig) (*SnapshotDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SnapshotDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// Diff compares two snapshots. Both must carry a block number.
func (d *SnapshotDiffer) Diff(old, new *engine.Snapshot) (*SnapshotDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("differ: snapshots cannot be nil")
	}
	if old.Block.Number == nil || new.Block.Number == nil {
		return nil, fmt.Errorf("differ: snapshot without block number (old=%v, new=%v)", old.Block.Number, new.Block.Number)
	}
	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("differ: chain mismatch (old=%d, new=%d)", old.ChainID, new.ChainID)
	}

	diff := &SnapshotDiff{
		Timestamp: uint64(d.now().UnixNano()),
		FromBlock: old.Block.Number.Uint64(),
		ToBlock:   new.Block,
		Tokens:    tokenregistry.Differ(old.Tokens, new.Tokens),
		Pools:     uniswapv2.Differ(old.Pools, new.Pools),
	}

	d.count("token", "add", len(diff.Tokens.Additions))
	d.count("token", "delete", len(diff.Tokens.Deletions))
	d.count("pool", "add", len(diff.Pools.Additions))
	d.count("pool", "update", len(diff.Pools.Updates))
	d.count("pool", "delete", len(diff.Pools.Deletions))

	d.logger.Debug("Snapshot diffed",
		"from_block", diff.FromBlock,
		"to_block", new.Block.Number,
		"token_changes", len(diff.Tokens.Additions)+len(diff.Tokens.Deletions),
		"pool_changes", len(diff.Pools.Additions)+len(diff.Pools.Updates)+len(diff.Pools.Deletions),
	)
	return diff, nil
}

func (d *SnapshotDiffer) count(kind, op string, n int) {
	if n > 0 {
		d.metrics.changes.WithLabelValues(kind, op).Add(float64(n))
	}
}
