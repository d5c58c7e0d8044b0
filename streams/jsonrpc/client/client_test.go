package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/patcher"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

// --- Test Setup: Mock RPC Server ---

type MockSnapshotStreamer struct {
	events chan *SubscriptionEvent
	t      *testing.T
}

func SetupMockSnapshotStreamer(ctx context.Context, t *testing.T, port int, events []*SubscriptionEvent) (<-chan error, error) {
	eventChan := make(chan *SubscriptionEvent, len(events))
	for _, e := range events {
		eventChan <- e
	}
	close(eventChan)

	api := &MockSnapshotStreamer{events: eventChan, t: t}
	server := rpc.NewServer()
	if err := server.RegisterName(RpcNamespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %v", err)
	}

	wsHandler := server.WebsocketHandler([]string{"*"})
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: wsHandler}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		<-ctx.Done()
		server.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return errChan, nil
}

func (api *MockSnapshotStreamer) SubscribeSnapshotStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for event := range api.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.t.Logf("Error notifying subscriber: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// --- Test Helpers & Data Generation ---

var (
	weth   = tokenregistry.Token{Address: common.HexToAddress("0x0a"), Symbol: "WETH", Decimals: 18}
	usdc   = tokenregistry.Token{Address: common.HexToAddress("0x0b"), Symbol: "USDC", Decimals: 6}
	poolID = common.HexToAddress("0x1001")
)

func testPool(r0, r1 int64) uniswapv2.Pool {
	return uniswapv2.Pool{ID: poolID, Token0: weth.Address, Token1: usdc.Address, Reserve0: big.NewInt(r0), Reserve1: big.NewInt(r1), FeeBps: 30}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func generateTestEvents(t *testing.T) []*SubscriptionEvent {
	// --- Event 1: Full Snapshot ---
	full := engine.Snapshot{
		ChainID: 1,
		Block:   engine.BlockSummary{Number: big.NewInt(100), ReceivedAt: time.Now().UnixNano()},
		Tokens:  []tokenregistry.Token{weth, usdc},
		Pools:   []uniswapv2.Pool{testPool(1000, 2000)},
	}
	event1 := &SubscriptionEvent{Type: EventFull, Payload: mustMarshal(t, full), SentAt: time.Now().UnixNano()}

	// --- Event 2: Diff ---
	diff := differ.SnapshotDiff{
		FromBlock: 100,
		ToBlock:   engine.BlockSummary{Number: big.NewInt(101), ReceivedAt: time.Now().UnixNano()},
		Timestamp: uint64(time.Now().Unix()),
		Pools:     uniswapv2.UniswapV2SystemDiff{Updates: []uniswapv2.Pool{testPool(1100, 12345)}},
	}
	event2 := &SubscriptionEvent{Type: EventDiff, Payload: mustMarshal(t, diff)}

	// --- Event 3: Malformed ---
	event3 := &SubscriptionEvent{Type: EventFull, Payload: json.RawMessage(`{"block":{"number":"not-a-number"}}`)}

	// --- Event 4: Another Full ---
	event4 := &SubscriptionEvent{Type: EventFull, Payload: mustMarshal(t, engine.Snapshot{
		Block: engine.BlockSummary{Number: big.NewInt(2)},
	})}

	return []*SubscriptionEvent{event1, event2, event3, event4}
}

func testConfig(port int) Config {
	return Config{
		URL:        fmt.Sprintf("ws://localhost:%d", port),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		BufferSize: 10,
		Patcher:    patcher.Patch,
	}
}

// --- Tests ---

func TestClient_SuccessfulSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockSnapshotStreamer(ctx, t, 9988, testEvents[:1])
	require.NoError(t, err)

	client, err := NewClient(ctx, testConfig(9988))
	require.NoError(t, err)

	select {
	case snap := <-client.Snapshots():
		assert.Equal(t, uint64(100), snap.Version())
		assert.Equal(t, []tokenregistry.Token{weth, usdc}, snap.Tokens)
		require.Len(t, snap.Pools, 1)
		assert.Equal(t, int64(2000), snap.Pools[0].Reserve1.Int64())
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for snapshot")
	}
}

func TestClient_DiffReconstruction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockSnapshotStreamer(ctx, t, 9987, testEvents[:2])
	require.NoError(t, err)

	client, err := NewClient(ctx, testConfig(9987))
	require.NoError(t, err)

	select {
	case snap := <-client.Snapshots():
		assert.Equal(t, uint64(100), snap.Version())
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for initial full snapshot")
	}

	select {
	case snap := <-client.Snapshots():
		assert.Equal(t, uint64(101), snap.Version())
		require.Len(t, snap.Pools, 1)
		assert.Equal(t, int64(12345), snap.Pools[0].Reserve1.Int64())
		assert.Len(t, snap.Tokens, 2, "tokens carried over from the full snapshot")
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for patched snapshot")
	}
}

func TestClient_DropsMalformedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockSnapshotStreamer(ctx, t, 9989, []*SubscriptionEvent{testEvents[0], testEvents[2], testEvents[3]})
	require.NoError(t, err)

	client, err := NewClient(ctx, testConfig(9989))
	require.NoError(t, err)

	expectedBlocks := map[uint64]bool{100: false, 2: false}
	for i := 0; i < 2; i++ {
		select {
		case snap := <-client.Snapshots():
			expectedBlocks[snap.Version()] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("Test timed out waiting for snapshot %d", i+1)
		}
	}
	assert.True(t, expectedBlocks[100])
	assert.True(t, expectedBlocks[2])
}

func TestClient_Reconnection(t *testing.T) {
	const testPort = 9990
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	client, err := NewClient(clientCtx, testConfig(testPort))
	require.NoError(t, err)

	server1Ctx, server1Cancel := context.WithCancel(clientCtx)
	event1 := []*SubscriptionEvent{{Type: EventFull, Payload: json.RawMessage(`{"block":{"number":1}}`)}}
	_, err = SetupMockSnapshotStreamer(server1Ctx, t, testPort, event1)
	require.NoError(t, err)

	select {
	case snap := <-client.Snapshots():
		assert.Equal(t, uint64(1), snap.Version())
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for first message")
	}

	server1Cancel()
	time.Sleep(100 * time.Millisecond)

	server2Ctx, server2Cancel := context.WithCancel(clientCtx)
	defer server2Cancel()
	event2 := []*SubscriptionEvent{{Type: EventFull, Payload: json.RawMessage(`{"block":{"number":2}}`)}}
	_, err = SetupMockSnapshotStreamer(server2Ctx, t, testPort, event2)
	require.NoError(t, err)

	select {
	case snap := <-client.Snapshots():
		assert.Equal(t, uint64(2), snap.Version())
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for client to reconnect")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig(1)
	require.NoError(t, valid.validate())

	for name, mutate := range map[string]func(*Config){
		"no url":     func(c *Config) { c.URL = "" },
		"no buffer":  func(c *Config) { c.BufferSize = 0 },
		"no logger":  func(c *Config) { c.Logger = nil },
		"no patcher": func(c *Config) { c.Patcher = nil },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(1)
			mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

// --- StreamProcessor Tests ---

func TestStreamProcessor_FullAndDiffFlow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sp := NewStreamProcessor(logger, 10, patcher.Patch)

	events := generateTestEvents(t)

	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[0])))
	select {
	case snap := <-sp.Snapshots():
		assert.Equal(t, uint64(100), snap.Version())
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for full snapshot")
	}

	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[1])))
	select {
	case snap := <-sp.Snapshots():
		assert.Equal(t, uint64(101), snap.Version())
		assert.Equal(t, int64(1100), snap.Pools[0].Reserve0.Int64())
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for diff snapshot")
	}
}

func TestStreamProcessor_ValidationErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sp := NewStreamProcessor(logger, 10, patcher.Patch)

	events := generateTestEvents(t)

	// 1. Diff before Full
	err := sp.ProcessMessage(mustMarshal(t, events[1]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "received diff before full snapshot")

	// 2. Malformed JSON
	require.Error(t, sp.ProcessMessage([]byte(`{not-json}`)))

	// 3. Unknown type
	require.Error(t, sp.ProcessMessage([]byte(`{"type":"snapshot"}`)))

	// 4. Full without block
	require.Error(t, sp.ProcessMessage(mustMarshal(t, &SubscriptionEvent{Type: EventFull, Payload: json.RawMessage(`{}`)})))
}

func TestStreamProcessor_OutOfOrderDiff(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sp := NewStreamProcessor(logger, 10, patcher.Patch)

	events := generateTestEvents(t)
	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[0]))) // Block 100
	<-sp.Snapshots()                                                 // Drain

	gap := differ.SnapshotDiff{
		FromBlock: 105,
		ToBlock:   engine.BlockSummary{Number: big.NewInt(106)},
	}
	gapEvent := &SubscriptionEvent{Type: EventDiff, Payload: mustMarshal(t, gap)}

	// Should not error, but log warn and not emit a snapshot
	require.NoError(t, sp.ProcessMessage(mustMarshal(t, gapEvent)))

	select {
	case <-sp.Snapshots():
		t.Fatal("Should not emit snapshot for out-of-order diff")
	default:
	}
}
