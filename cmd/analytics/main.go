// Package main is the entry point for the analytics consumer.
// It aggregates order events in memory under the auto-commit group.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/analytics"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/consumer"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/logger"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "analytics: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceAnalytics)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Service.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics(cfg.Service.Name, prometheus.DefaultRegisterer)

	processor, err := analytics.NewProcessor(cfg.Analytics.SummaryEvery, cfg.Analytics.TopSKUs, log)
	if err != nil {
		return fmt.Errorf("failed to create analytics processor: %w", err)
	}

	loop, err := consumer.NewKafkaLoop(cfg, processor, metrics, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := loop.Close(); err != nil {
			log.Error("Failed to close consumer loop", zap.Error(err))
		}
	}()

	go func() {
		if err := obs.StartServer(ctx, cfg.HTTP.MetricsPort, prometheus.DefaultGatherer, log); err != nil {
			log.Error("Observability server failed", zap.Error(err))
		}
	}()

	err = loop.Run(ctx)
	sum := processor.Snapshot()
	log.Info("Analytics stopped",
		zap.Int("orders", sum.Orders),
		zap.String("revenue", sum.Revenue.StringFixed(2)),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
