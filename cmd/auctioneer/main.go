package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradefloor/auctioneer/internal/api"
	"github.com/tradefloor/auctioneer/internal/auction"
	"github.com/tradefloor/auctioneer/internal/clock"
	"github.com/tradefloor/auctioneer/internal/config"
	"github.com/tradefloor/auctioneer/internal/event"
	"github.com/tradefloor/auctioneer/internal/health"
	"github.com/tradefloor/auctioneer/internal/leader"
	"github.com/tradefloor/auctioneer/internal/money"
	"github.com/tradefloor/auctioneer/internal/store"
	"github.com/tradefloor/auctioneer/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/tradefloor/auctioneer/internal/store/memory"
	_ "github.com/tradefloor/auctioneer/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Local development convenience; ignored when no .env exists.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Database.Driver))

	increments, err := incrementPolicy(cfg.Auction.Increment)
	if err != nil {
		return fmt.Errorf("increment config: %w", err)
	}

	bus := event.NewBus()
	defer bus.Close()

	manager := auction.NewManager(
		auction.Params{
			Countdown: auction.Countdown{
				Window:        cfg.Auction.AntiSnipeWindow,
				MaxExtensions: cfg.Auction.MaxExtensions,
			},
			CommitRetries:     cfg.Auction.CommitRetries,
			DefaultDuration:   cfg.Auction.DefaultDuration,
			DefaultIncrements: increments,
		},
		repos, bus, logger, tp.TracerProvider, tp.MeterProvider, clk,
	)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// The bidding API and the health endpoints run on every replica; only
	// the sweep loop is subject to leader election.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	mux.Handle("/api/", api.NewHandler(manager, logger).Router())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	// recoverAuctions reloads live auctions into the registry so they
	// survive restarts and leader failover.
	recoverAuctions := func(ctx context.Context) {
		if n, recoverErr := manager.Recover(ctx); recoverErr != nil {
			logger.ErrorContext(ctx, "auction recovery failed", slog.Any("error", recoverErr))
		} else if n > 0 {
			logger.InfoContext(ctx, "recovered live auctions", slog.Int("count", n))
		}
	}

	// runSweep is the work only the leader performs.
	runSweep := func(ctx context.Context) {
		recoverAuctions(ctx)
		healthHandler.SetLeader(true)
		logger.InfoContext(ctx, "auctioneer sweeping (leader)", slog.String("version", version))

		manager.RunSweeper(ctx, cfg.Auction.SweepInterval)

		healthHandler.SetLeader(false)
	}

	if cfg.LeaderElection.Enabled {
		recoverAuctions(ctx)
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "leader election enabled, serving bids while waiting for leadership")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, runSweep, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		recoverAuctions(ctx)
		healthHandler.SetReady(true)
		healthHandler.SetLeader(true)
		logger.InfoContext(ctx, "auctioneer is running", slog.String("version", version))

		manager.RunSweeper(ctx, cfg.Auction.SweepInterval)
	}

	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

// incrementPolicy translates the configured decimal strings into amounts.
// config.Load has already validated that each value parses.
func incrementPolicy(cfg config.IncrementConfig) (auction.IncrementPolicy, error) {
	flat, err := money.ParsePositive(cfg.Flat)
	if err != nil {
		return auction.IncrementPolicy{}, fmt.Errorf("flat: %w", err)
	}
	policy := auction.IncrementPolicy{Flat: flat}
	for i, tier := range cfg.Tiers {
		upTo, err := money.ParsePositive(tier.UpTo)
		if err != nil {
			return auction.IncrementPolicy{}, fmt.Errorf("tiers[%d].up_to: %w", i, err)
		}
		step, err := money.ParsePositive(tier.Step)
		if err != nil {
			return auction.IncrementPolicy{}, fmt.Errorf("tiers[%d].step: %w", i, err)
		}
		policy.Tiers = append(policy.Tiers, auction.Tier{Ceiling: upTo, Step: step})
	}
	return policy, nil
}
