// Package config loads the router service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets in the file.
const (
	EnvPostgresDSN = "ROUTER_POSTGRES_DSN"
	EnvNodeURL     = "ROUTER_NODE_URL"
)

const (
	DefaultHTTPAddr       = ":8545"
	DefaultMetricsAddr    = ":9090"
	DefaultPollInterval   = 12 * time.Second
	DefaultBufferSize     = 100
	DefaultAllowanceTTL   = 15 * time.Second
	DefaultConfirmTimeout = 2 * time.Minute
)

// RouterConfig is the service configuration.
type RouterConfig struct {
	ChainID  uint64 `yaml:"chain_id"`
	LogLevel string `yaml:"log_level"`

	Source struct {
		// StreamURL is a websocket endpoint pushing full and diff snapshots.
		StreamURL  string `yaml:"stream_url"`
		BufferSize uint   `yaml:"buffer_size"`
		// PostgresDSN enables the snapshot store. Without a stream it is polled.
		PostgresDSN  string        `yaml:"postgres_dsn"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"source"`

	Router struct {
		MaxHops       int    `yaml:"max_hops"`
		MinOutput     string `yaml:"min_output"`
		Parallel      bool   `yaml:"parallel"`
		SingleHopOnly bool   `yaml:"single_hop_only"`
	} `yaml:"router"`

	API struct {
		HTTPAddr     string        `yaml:"http_addr"`
		MetricsAddr  string        `yaml:"metrics_addr"`
		CORSOrigins  []string      `yaml:"cors_origins"`
		ToleranceBps uint32        `yaml:"tolerance_bps"`
		Deadline     time.Duration `yaml:"deadline"`
	} `yaml:"api"`

	Settlement struct {
		Enabled        bool          `yaml:"enabled"`
		NodeURL        string        `yaml:"node_url"`
		Router         string        `yaml:"router"`
		AllowanceTTL   time.Duration `yaml:"allowance_ttl"`
		ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
		// UnlimitedApproval approves the maximum uint256 instead of the required amount.
		UnlimitedApproval bool `yaml:"unlimited_approval"`
	} `yaml:"settlement"`
}

// LoadConfig reads, overrides from the environment, defaults and validates the file at path.
func LoadConfig(path string) (*RouterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document.
func Parse(data []byte) (*RouterConfig, error) {
	var cfg RouterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func overrideWithEnv(cfg *RouterConfig) {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Source.PostgresDSN = v
	}
	if v := os.Getenv(EnvNodeURL); v != "" {
		cfg.Settlement.NodeURL = v
	}
}

func (c *RouterConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Source.BufferSize == 0 {
		c.Source.BufferSize = DefaultBufferSize
	}
	if c.Source.PollInterval == 0 {
		c.Source.PollInterval = DefaultPollInterval
	}
	if c.API.HTTPAddr == "" {
		c.API.HTTPAddr = DefaultHTTPAddr
	}
	if c.API.MetricsAddr == "" {
		c.API.MetricsAddr = DefaultMetricsAddr
	}
	if c.Settlement.AllowanceTTL == 0 {
		c.Settlement.AllowanceTTL = DefaultAllowanceTTL
	}
	if c.Settlement.ConfirmTimeout == 0 {
		c.Settlement.ConfirmTimeout = DefaultConfirmTimeout
	}
}

// Validate checks the configuration.
func (c *RouterConfig) Validate() error {
	if c.ChainID == 0 {
		return errors.New("chain_id is required")
	}
	if c.Source.StreamURL == "" && c.Source.PostgresDSN == "" {
		return errors.New("source: one of stream_url or postgres_dsn is required")
	}
	if u := c.Source.StreamURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("source: invalid stream_url %q", u)
	}
	if _, err := c.MinOutput(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.API.ToleranceBps >= 10_000 {
		return fmt.Errorf("api: tolerance_bps must be below 10000, got %d", c.API.ToleranceBps)
	}
	if c.Settlement.Enabled {
		if c.Settlement.NodeURL == "" {
			return errors.New("settlement: node_url is required when enabled")
		}
		if !common.IsHexAddress(c.Settlement.Router) {
			return fmt.Errorf("settlement: invalid router address %q", c.Settlement.Router)
		}
	}
	return nil
}

// MinOutput returns the configured pruning floor, or nil for the router default.
func (c *RouterConfig) MinOutput() (*big.Int, error) {
	if c.Router.MinOutput == "" {
		return nil, nil
	}
	x, ok := new(big.Int).SetString(c.Router.MinOutput, 10)
	if !ok || x.Sign() <= 0 {
		return nil, fmt.Errorf("router: min_output must be a positive integer, got %q", c.Router.MinOutput)
	}
	return x, nil
}

// Level returns the slog level named by log_level.
func (c *RouterConfig) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// RouterAddress returns the settlement contract address.
func (c *RouterConfig) RouterAddress() common.Address {
	return common.HexToAddress(c.Settlement.Router)
}
