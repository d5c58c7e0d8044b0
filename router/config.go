package router

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultMaxHops bounds the search depth when the config leaves it unset.
	DefaultMaxHops = 3
	// hardMaxHops caps any requested depth; the candidate count grows exponentially with it.
	hardMaxHops = 6
)

// ErrInvalidMaxHops is returned when a requested search depth is out of range.
var ErrInvalidMaxHops = errors.New("invalid max hops")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config configures a Finder.
type Config struct {
	// MaxHops is the deepest path searched. Zero means DefaultMaxHops.
	MaxHops int
	// MinOutput prunes any branch whose running amount falls below it. Nil means 1.
	MinOutput *big.Int
	// Parallel searches each first-hop branch in its own goroutine.
	Parallel bool
	// SingleHopOnly restricts every search to direct pools.
	SingleHopOnly bool

	Logger   Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.MaxHops < 0 || c.MaxHops > hardMaxHops {
		return fmt.Errorf("config: %w: %d outside [1, %d]", ErrInvalidMaxHops, c.MaxHops, hardMaxHops)
	}
	if c.MinOutput != nil && c.MinOutput.Sign() <= 0 {
		return fmt.Errorf("config: MinOutput must be positive, got %s", c.MinOutput)
	}
	return nil
}
