// Package main is the entry point for the inventory consumer.
// It reserves stock for every order and commits an offset only after the reservation succeeded.
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

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/consumer"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/inventory"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/logger"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inventory: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceInventory)
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

	var store inventory.Store = inventory.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		client, err := inventory.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		store = inventory.NewRedisStore(client, cfg.Inventory.ReservationTTL)
		log.Info("Using Redis reservation store", zap.String("addr", cfg.Redis.Addr))
	} else {
		log.Warn("REDIS_ADDR not set, reservations are remembered in memory only")
	}

	service, err := inventory.NewService(store, cfg.Inventory.Latency, log)
	if err != nil {
		return fmt.Errorf("failed to create inventory service: %w", err)
	}

	loop, err := consumer.NewKafkaLoop(cfg, service, metrics, log)
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

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Inventory stopped")
	return nil
}
