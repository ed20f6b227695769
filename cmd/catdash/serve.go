package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catdash/internal/observability"
	"catdash/internal/poller"
	"catdash/internal/server"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("")
	aggregator := buildAggregator(cfg, metrics, logger)

	refresher := poller.New(poller.Config{
		Interval:       cfg.RefreshInterval,
		AlertThreshold: cfg.AlertThreshold,
		Watch:          cfg.Watch,
	}, aggregator, metrics, logger)

	hub := server.NewHub(refresher, logger)
	updates, unsubscribe := refresher.Subscribe(16)
	defer unsubscribe()

	srv := server.New(cfg.Listen, aggregator, refresher, hub, metrics, logger)

	logger.Info("catdash start",
		zap.String("listen", cfg.Listen),
		zap.String("orderbook", cfg.OrderBookURL),
		zap.String("amm", cfg.AMMURL),
		zap.Duration("refresh_interval", cfg.RefreshInterval),
		zap.Duration("request_timeout", cfg.RequestTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Float64("alert_threshold", cfg.AlertThreshold),
		zap.Int("watch", len(cfg.Watch)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return refresher.Run(gctx)
	})
	g.Go(func() error {
		hub.Run(gctx, updates)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("catdash stopped")
	return nil
}
