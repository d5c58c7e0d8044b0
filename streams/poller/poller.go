// Package poller keeps the pool graph current from a pull source or a pushed stream,
// refreshing it only when a snapshot actually changes something.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
)

const (
	defaultInterval   = 12 * time.Second
	defaultMaxBackoff = 2 * time.Minute
)

// Source supplies a full snapshot on demand.
type Source interface {
	Snapshot(ctx context.Context) (*engine.Snapshot, error)
}

// Refresher publishes a new graph built from a snapshot.
type Refresher interface {
	Refresh(snap *engine.Snapshot) (*tokenpoolregistry.Graph, error)
}

// Differ compares consecutive snapshots.
type Differ interface {
	Diff(old, new *engine.Snapshot) (*differ.SnapshotDiff, error)
}

// Sink receives every snapshot that changed the graph, e.g. to persist it.
type Sink interface {
	Save(ctx context.Context, snap *engine.Snapshot) error
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config configures a Poller. Source is only needed for Run.
type Config struct {
	Source    Source
	Refresher Refresher
	Differ    Differ
	Sink      Sink
	// Interval between polls. Zero means 12s.
	Interval time.Duration
	// MaxBackoff caps the delay after consecutive failures. Zero means 2m.
	MaxBackoff time.Duration
	Logger     Logger
}

func (c *Config) validate() error {
	if c.Refresher == nil {
		return errors.New("config: Refresher cannot be nil")
	}
	if c.Differ == nil {
		return errors.New("config: Differ cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Interval < 0 || c.MaxBackoff < 0 {
		return errors.New("config: durations cannot be negative")
	}
	return nil
}

// Poller applies snapshots to a Refresher. It is not safe for concurrent use; run one
// of Run or Consume per Poller.
type Poller struct {
	source     Source
	refresher  Refresher
	differ     Differ
	sink       Sink
	interval   time.Duration
	maxBackoff time.Duration
	logger     Logger

	current *engine.Snapshot
}

func NewPoller(cfg *Config) (*Poller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Poller{
		source:     cfg.Source,
		refresher:  cfg.Refresher,
		differ:     cfg.Differ,
		sink:       cfg.Sink,
		interval:   cfg.Interval,
		maxBackoff: cfg.MaxBackoff,
		logger:     cfg.Logger,
	}
	if p.interval == 0 {
		p.interval = defaultInterval
	}
	if p.maxBackoff == 0 {
		p.maxBackoff = defaultMaxBackoff
	}
	return p, nil
}

// Run polls the source until ctx is done. Failed polls back off exponentially.
func (p *Poller) Run(ctx context.Context) error {
	if p.source == nil {
		return errors.New("poller: no source configured")
	}
	failures := 0
	for {
		delay := p.interval
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay = backoff(p.interval, p.maxBackoff, failures)
			failures++
			p.logger.Error("Snapshot poll failed", "error", err, "failures", failures, "retry_in", delay)
		} else {
			failures = 0
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetching snapshot: %w", err)
	}
	_, err = p.Apply(ctx, snap)
	return err
}

// Consume applies pushed snapshots until the channel closes or ctx is done. Snapshots
// that fail to apply are logged and skipped.
func (p *Poller) Consume(ctx context.Context, snapshots <-chan *engine.Snapshot) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			if _, err := p.Apply(ctx, snap); err != nil {
				p.logger.Error("Failed to apply snapshot", "block", snap.Block.Number, "error", err)
			}
		}
	}
}

// Apply refreshes the graph from snap unless it changes nothing relative to the last
// applied snapshot. It reports whether the graph was refreshed.
func (p *Poller) Apply(ctx context.Context, snap *engine.Snapshot) (bool, error) {
	if snap == nil {
		return false, errors.New("nil snapshot")
	}

	if p.current != nil {
		diff, err := p.differ.Diff(p.current, snap)
		if err != nil {
			return false, fmt.Errorf("diffing snapshot: %w", err)
		}
		if diff.IsEmpty() {
			p.logger.Debug("Snapshot unchanged, graph kept", "block", snap.Block.Number)
			return false, nil
		}
	}

	g, err := p.refresher.Refresh(snap)
	if err != nil {
		return false, fmt.Errorf("refreshing graph: %w", err)
	}
	p.current = snap

	if p.sink != nil {
		if err := p.sink.Save(ctx, snap); err != nil {
			// the graph is already live; persistence is best-effort
			p.logger.Warn("Failed to persist snapshot", "block", snap.Block.Number, "error", err)
		}
	}

	stats := g.Stats()
	p.logger.Info("Graph refreshed", "version", stats.Version, "tokens", stats.Tokens, "pools", stats.Pools)
	return true, nil
}
