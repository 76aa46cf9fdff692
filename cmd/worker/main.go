package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"absen/internal/app"
	"absen/internal/config"
	"absen/internal/logger"
)

// Worker runs the sync scheduler until SIGINT/SIGTERM.
func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log, *once); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger, once bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := deps.RunRelay(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("notification relay stopped", zap.Error(err))
		}
	}()

	sched := deps.Scheduler()
	if once {
		report, _, err := sched.SweepOnce(ctx)
		log.Info("single sweep done",
			zap.Int("accounts", report.Accounts),
			zap.Int("failed", report.Failed),
			zap.Int("new_items", report.NewItems))
		cancel()
		<-relayDone
		return err
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	err = sched.Run(ctx)
	log.Info("shutdown signal received")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	<-relayDone
	log.Info("worker stopped")
	return err
}
