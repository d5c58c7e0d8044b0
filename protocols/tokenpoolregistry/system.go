package tokenpoolregistry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-router-go/engine"
)

// ErrStaleSnapshot is returned when a refresh carries an older version than the published graph.
var ErrStaleSnapshot = errors.New("snapshot older than current graph")

// Logger is the logging interface used by the system.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenPoolSystem publishes the current Graph. Refresh is the only writer and swaps in a
// freshly built graph atomically; readers load the pointer without locking and keep using
// the graph they loaded for as long as they need it.
type TokenPoolSystem struct {
	mu      sync.Mutex // serializes refreshes
	current atomic.Pointer[Graph]
	logger  Logger
}

// NewTokenPoolSystem creates a system with no graph published yet.
func NewTokenPoolSystem(logger Logger) *TokenPoolSystem {
	return &TokenPoolSystem{logger: logger}
}

// Graph returns the currently published graph, or nil until the first Refresh.
func (s *TokenPoolSystem) Graph() *Graph {
	return s.current.Load()
}

// Refresh rebuilds the graph from snap and publishes it. A snapshot with a known version
// lower than the current one is rejected so out-of-order sources cannot roll the graph back.
func (s *TokenPoolSystem) Refresh(snap *engine.Snapshot) (*Graph, error) {
	if snap == nil {
		return nil, errors.New("nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current.Load()
	version := snap.Version()
	if current != nil && version != 0 && version < current.Version() {
		return nil, fmt.Errorf("%w: got %d, have %d", ErrStaleSnapshot, version, current.Version())
	}

	g := NewGraph(version, snap.Tokens, snap.Pools)
	s.current.Store(g)

	if s.logger != nil {
		stats := g.Stats()
		s.logger.Debug("graph refreshed",
			"version", stats.Version,
			"tokens", stats.Tokens,
			"pools", stats.Pools,
			"edges", stats.Edges,
		)
		if stats.Excluded > 0 {
			s.logger.Warn("pools excluded from graph", "count", stats.Excluded, "version", stats.Version)
		}
	}
	return g, nil
}
