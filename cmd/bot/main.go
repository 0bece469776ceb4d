// Command bot runs the cryptoedge trading loop end to end: it wires the
// config, client, spot, options, pipeline, persistence, executor, trading,
// logging, and status packages together and drives the Trading State
// Machine's cycle on a fixed poll interval until SIGINT/SIGTERM.
//
// Grounded on the teacher's root main.go (godotenv.Load, signal.Notify on
// SIGINT/SIGTERM into a cancellable context, WaitGroup-joined shutdown) and
// cmd/healthmonitor/main.go (the flag-parsed, ticker-driven polling loop
// this command's cycle loop generalizes).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cryptoedge/cryptoedge/client"
	"github.com/cryptoedge/cryptoedge/config"
	"github.com/cryptoedge/cryptoedge/executor"
	"github.com/cryptoedge/cryptoedge/logging"
	"github.com/cryptoedge/cryptoedge/options"
	"github.com/cryptoedge/cryptoedge/persistence"
	"github.com/cryptoedge/cryptoedge/pipeline"
	"github.com/cryptoedge/cryptoedge/spot"
	"github.com/cryptoedge/cryptoedge/status"
	"github.com/cryptoedge/cryptoedge/trading"
)

// opportunityLimit is how many top-volume markets the pipeline considers
// per cycle, per spec 4.5's default scan width.
const opportunityLimit = 20

// httpTimeout bounds every upstream HTTP call the client/spot/options
// providers make.
const httpTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars and defaults still apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogDir)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Bot.DryRun {
		logger.Infow("starting in dry-run mode")
	} else {
		logger.Infow("starting in live trading mode")
		if cfg.PrivateKeyHex == "" {
			log.Fatal("privateKeyHex must be set for live trading (set CRYPTOEDGE_PRIVATEKEYHEX or config.privateKeyHex)")
		}
	}

	clob, err := client.NewCLOBClient(cfg.Endpoints.GammaURL, cfg.Endpoints.ClobURL, cfg.PrivateKeyHex, httpTimeout)
	if err != nil {
		log.Fatalf("init clob client: %v", err)
	}
	spotProvider := spot.NewProvider(cfg.Endpoints.OracleURL, httpTimeout)
	volProvider := options.NewProvider(cfg.Endpoints.OptionsURL, httpTimeout)
	pl := pipeline.NewPipeline(clob, spotProvider, volProvider)

	var exec_ trading.OrderExecutor
	if cfg.Bot.DryRun {
		exec_ = executor.NewDryRunExecutor()
	} else {
		exec_ = executor.NewLiveExecutor(clob, cfg.PrivateKeyHex)
	}

	store := persistence.NewStore(filepath.Join(cfg.Endpoints.DataDir, "bot-state.json"))
	engine, err := trading.NewEngine(pl, exec_, store, cfg.Bot)
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("shutdown signal received")
		cancel()
	}()

	statusSrv := status.ListenAndServe(cfg.StatusAddr, store)
	go func() {
		logger.Infow("status server listening", "addr", cfg.StatusAddr)
		if err := statusSrv.ListenAndServe(); err != nil && ctx.Err() == nil {
			logger.LogError("status server stopped unexpectedly", err)
		}
	}()

	tracker := logging.NewPerformanceTracker(logger)
	runLoop(ctx, engine, logger, tracker, cfg.Bot.PollInterval)
	tracker.LogSummary()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = statusSrv.Shutdown(shutdownCtx)
	logger.Infow("shutdown complete")
}

// runLoop drives non-overlapping trading cycles on a fixed interval until
// ctx is cancelled. Each cycle blocks the next tick, per spec 4.1's
// non-overlapping guarantee: a slow cycle delays the next tick rather than
// running concurrently with it.
func runLoop(ctx context.Context, engine *trading.Engine, logger *logging.StrategyLogger, tracker *logging.PerformanceTracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, engine, logger, tracker)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, engine, logger, tracker)
		}
	}
}

func runOnce(ctx context.Context, engine *trading.Engine, logger *logging.StrategyLogger, tracker *logging.PerformanceTracker) {
	before := engine.State()

	if err := engine.RunCycle(ctx, time.Now()); err != nil {
		logger.LogError("cycle failed", err)
		return
	}

	state := engine.State()
	for _, closed := range state.ClosedPositions[len(before.ClosedPositions):] {
		tracker.RecordTrade(closed.RealizedPnl)
	}
	tracker.UpdateBalance(state.CurrentBalance)
	logger.LogCycle(state)
}
