package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defistate/defistate-router-go/allowance"
	"github.com/defistate/defistate-router-go/allowance/erc20"
	"github.com/defistate/defistate-router-go/api"
	chainclient "github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/cmd/router/config"
	"github.com/defistate/defistate-router-go/differ"
	"github.com/defistate/defistate-router-go/patcher"
	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/settlement"
	"github.com/defistate/defistate-router-go/storage/postgres"
	"github.com/defistate/defistate-router-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-router-go/streams/poller"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, _ := cfg.Level()
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rootLogger, prometheus.DefaultRegisterer); err != nil {
		rootLogger.Error("Router stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.RouterConfig, rootLogger *slog.Logger, registry prometheus.Registerer) error {
	graphs := tokenpoolregistry.NewTokenPoolSystem(rootLogger.With("component", "token-pool-system"))

	snapshotDiffer, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: registry,
		Logger:   rootLogger.With("component", "differ"),
	})
	if err != nil {
		return fmt.Errorf("initializing differ: %w", err)
	}

	// --- SNAPSHOT STORE ---
	var store *postgres.SnapshotStore
	if cfg.Source.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Source.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewSnapshotStore(pool, cfg.ChainID)
	}

	pollerCfg := &poller.Config{
		Refresher: graphs,
		Differ:    snapshotDiffer,
		Interval:  cfg.Source.PollInterval,
		Logger:    rootLogger.With("component", "poller"),
	}
	if store != nil {
		if cfg.Source.StreamURL != "" {
			// the stream feeds the graph; the store only keeps the latest snapshot for restarts
			pollerCfg.Sink = store
		} else {
			pollerCfg.Source = store
		}
	}
	refresher, err := poller.NewPoller(pollerCfg)
	if err != nil {
		return fmt.Errorf("initializing poller: %w", err)
	}

	if store != nil {
		if err := warmStart(ctx, store, refresher, rootLogger); err != nil {
			return err
		}
	}

	// --- ROUTING ---
	minOutput, _ := cfg.MinOutput()
	finder, err := router.NewFinder(&router.Config{
		MaxHops:       cfg.Router.MaxHops,
		MinOutput:     minOutput,
		Parallel:      cfg.Router.Parallel,
		SingleHopOnly: cfg.Router.SingleHopOnly,
		Logger:        rootLogger.With("component", "router"),
		Registry:      registry,
	})
	if err != nil {
		return fmt.Errorf("initializing router: %w", err)
	}

	// --- SETTLEMENT ---
	var settler api.Settler
	if cfg.Settlement.Enabled {
		node, err := chainclient.Dial(ctx, cfg.Settlement.NodeURL, rootLogger.With("component", "chain"))
		if err != nil {
			return err
		}
		defer node.Close()

		approvalAmount := func(required *big.Int) *big.Int { return required }
		if cfg.Settlement.UnlimitedApproval {
			approvalAmount = func(*big.Int) *big.Int { return erc20.Unlimited() }
		}
		orchestrator, err := allowance.NewOrchestrator(&allowance.Config{
			Reader:         erc20.NewReader(node),
			Approver:       erc20.NewApprover(node, node),
			TTL:            cfg.Settlement.AllowanceTTL,
			ConfirmTimeout: cfg.Settlement.ConfirmTimeout,
			ApprovalAmount: approvalAmount,
			Logger:         rootLogger.With("component", "allowance"),
			Registry:       registry,
		})
		if err != nil {
			return fmt.Errorf("initializing allowance orchestrator: %w", err)
		}
		executor, err := settlement.NewExecutor(&settlement.Config{
			Backend:   node,
			Allowance: orchestrator,
			Graphs:    graphs,
			Router:    cfg.RouterAddress(),
			Logger:    rootLogger.With("component", "settlement"),
		})
		if err != nil {
			return fmt.Errorf("initializing settlement: %w", err)
		}
		settler = executor
	}

	// --- QUERY SURFACE ---
	service, err := api.NewRouterAPI(&api.Config{
		Graphs:       graphs,
		Finder:       finder,
		Settler:      settler,
		ToleranceBps: cfg.API.ToleranceBps,
		Deadline:     cfg.API.Deadline,
		Logger:       rootLogger.With("component", "api"),
		Registry:     registry,
	})
	if err != nil {
		return fmt.Errorf("initializing api: %w", err)
	}
	rpcServer := rpc.NewServer()
	defer rpcServer.Stop()
	if err := service.Register(rpcServer); err != nil {
		return fmt.Errorf("registering api: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", rpcServer.WebsocketHandler(cfg.API.CORSOrigins))
	mux.Handle("/", rpcServer)
	apiServer := &http.Server{Addr: cfg.API.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.API.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 4)
	serve := func(name string, srv *http.Server) {
		rootLogger.Info("Listening", "server", name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("api", apiServer)
	go serve("metrics", metricsServer)

	// --- SNAPSHOT FEED ---
	if cfg.Source.StreamURL != "" {
		stream, err := client.NewClient(ctx, client.Config{
			URL:        cfg.Source.StreamURL,
			Logger:     rootLogger.With("component", "jsonrpc-client"),
			BufferSize: cfg.Source.BufferSize,
			Patcher:    patcher.Patch,
		})
		if err != nil {
			return fmt.Errorf("initializing stream client: %w", err)
		}
		go func() {
			if err := refresher.Consume(ctx, stream.Snapshots()); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
		go func() {
			select {
			case err := <-stream.Err():
				errCh <- fmt.Errorf("snapshot stream: %w", err)
			case <-ctx.Done():
			}
		}()
	} else {
		go func() {
			if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		rootLogger.Info("Shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	return runErr
}

// warmStart publishes the stored snapshot so queries are served before the feed catches up.
func warmStart(ctx context.Context, store *postgres.SnapshotStore, refresher *poller.Poller, logger *slog.Logger) error {
	snap, err := store.Snapshot(ctx)
	if errors.Is(err, postgres.ErrNotFound) {
		logger.Info("No stored snapshot, waiting for the feed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading stored snapshot: %w", err)
	}
	if _, err := refresher.Apply(ctx, snap); err != nil {
		return fmt.Errorf("applying stored snapshot: %w", err)
	}
	return nil
}

func loadConfig() (*config.RouterConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
