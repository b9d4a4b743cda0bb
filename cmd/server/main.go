// Command server runs the trading control plane: the webhook ingress and
// read-only API, the position-refresh and auto-close loops, and the live
// fill poller.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/api"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/broker"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/metrics"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/pipeline"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/regime"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/scoring"
	sig "github.com/HaloHealthAfrica/optionstratv2-sub001/signal"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/store"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/trader"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/validate"
)

func main() {
	cfg := config.Load()
	metrics.Init()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Errorf("server: open store: %v", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.InitTables(); err != nil {
		logger.Errorf("server: init tables: %v", err)
		os.Exit(1)
	}

	provider := market.NewVendorProvider(cfg)

	factory := broker.NewFactory(cfg, time.Now().UnixNano())
	adapter, safety := factory.Adapter()
	logger.Infof("server: broker=%s mode=%s (%s)", safety.Broker, safety.Mode, safety.Reason)

	orchCfg := decision.DefaultConfig()
	orchCfg.RiskPct = cfg.RiskPerTrade
	orch := decision.NewOrchestrator(orchCfg,
		scoring.NewEngine(scoring.DefaultConfig(), st.Signals()),
		decision.NewSizer(st.Regimes(), st.Rules()),
		st.Decisions())

	trackerCfg := regime.DefaultConfig()
	trackerCfg.FlipCooldown = cfg.RegimeFlipCooldown
	tracker := regime.NewTracker(trackerCfg, st.Regimes())

	queue := validate.NewSignalQueue(60 * time.Minute)
	manager := trader.NewManager(cfg, st, provider, adapter, safety, orch, tracker, queue)
	poller := trader.NewPoller(manager)

	validator := validate.NewValidator(validate.DefaultConfig(), provider)
	dedup := sig.NewDedupCache(cfg.DedupWindow, cfg.DedupExpiry)
	pipe := pipeline.New(validator, dedup, queue, manager, manager, st.Signals())

	runner := trader.NewRunner(manager, poller, pipe, dedup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	server := api.NewServer(cfg, st, pipe, manager)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	go func() {
		logger.Infof("server: listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server: http: %v", err)
			cancel()
		}
	}()

	// Shutdown cancels in-flight work within one adapter timeout.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		logger.Infof("server: received %s, shutting down", s)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.BrokerTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server: http shutdown: %v", err)
	}
	runner.Stop()
	cancel()
}
