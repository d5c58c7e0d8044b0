package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                     = "defi"
	SnapshotStreamSubscriptionMethod = "subscribeSnapshotStream"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
	Patcher    PatcherFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Patcher == nil {
		return errors.New("config: Patcher is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses events, keeps the latest snapshot, applies diffs to it and
// broadcasts every resulting snapshot. It is decoupled from the networking layer.
type StreamProcessor struct {
	last       *engine.Snapshot
	patcher    PatcherFunc
	snapshotCh chan *engine.Snapshot
	logger     Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint, patcher PatcherFunc) *StreamProcessor {
	return &StreamProcessor{
		logger:     logger,
		snapshotCh: make(chan *engine.Snapshot, bufferSize),
		patcher:    patcher,
	}
}

// Snapshots returns a read-only channel for receiving new snapshots.
func (sp *StreamProcessor) Snapshots() <-chan *engine.Snapshot {
	return sp.snapshotCh
}

// ProcessMessage accepts a raw JSON event, processes it, and updates the internal state.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case EventFull:
		return sp.handleFull(event, processingStart)
	case EventDiff:
		return sp.handleDiff(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFull(event SubscriptionEvent, start time.Time) error {
	var snap engine.Snapshot
	if err := json.Unmarshal(event.Payload, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal full snapshot payload: %w", err)
	}
	if snap.Block.Number == nil {
		return errors.New("full snapshot without block number")
	}

	sp.logMetrics(&snap, time.Since(start), event.SentAt, EventFull)
	sp.store(&snap)
	sp.snapshotCh <- &snap
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff differ.SnapshotDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.last == nil {
		return fmt.Errorf("received diff before full snapshot; from_block: %d, to_block: %v", diff.FromBlock, diff.ToBlock.Number)
	}

	lastBlockNum := sp.last.Version()
	if diff.FromBlock != lastBlockNum {
		sp.logger.Warn(
			"Received out-of-order diff; snapshot may be out of sync. Discarding.",
			"last_known_block", lastBlockNum,
			"diff_from_block", diff.FromBlock,
			"diff_to_block", diff.ToBlock.Number,
		)
		return nil // Non-fatal, just ignored
	}

	next, err := sp.patcher(sp.last, &diff)
	if err != nil {
		return fmt.Errorf("failed to patch snapshot: %w", err)
	}

	sp.logMetrics(next, time.Since(start), event.SentAt, EventDiff)
	sp.store(next)
	sp.snapshotCh <- next
	return nil
}

func (sp *StreamProcessor) store(snap *engine.Snapshot) {
	sp.last = snap
}

func (sp *StreamProcessor) logMetrics(snap *engine.Snapshot, processingDur time.Duration, sentAt int64, eventType string) {
	clientFinishTime := time.Now()
	blockTimestamp := time.Unix(int64(snap.Block.Timestamp), 0)
	clientStartTime := clientFinishTime.Add(-processingDur)
	serverFinishTime := time.Unix(0, sentAt)

	sp.logger.Debug("Snapshot Processed",
		"block", snap.Block.Number,
		"type", eventType,
		"tokens", len(snap.Tokens),
		"pools", len(snap.Pools),
		"latency_total_ms", clientFinishTime.Sub(blockTimestamp).Milliseconds(),
		"latency_transport_ms", clientStartTime.Sub(serverFinishTime).Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled. It runs until ctx is done.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.Patcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Snapshots delegates to the processor's snapshot channel.
func (c *Client) Snapshots() <-chan *engine.Snapshot {
	return c.processor.Snapshots()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, SnapshotStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case rawData := <-rawCh:
			// Delegate logic to the processor
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d, returning false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
