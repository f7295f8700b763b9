// Package main is the entry point for the order API.
// It accepts orders over HTTP and answers only once the broker confirmed the order event.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/api"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/logger"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/publisher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "order-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceOrderAPI)
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

	producer, err := broker.NewKafkaProducer(broker.ProducerConfig{
		Brokers:     cfg.Kafka.Brokers,
		MaxAttempts: cfg.Producer.MaxAttempts,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	pub, err := publisher.New(producer, publisher.Options{
		Topic:        cfg.Kafka.Topic,
		FlushTimeout: cfg.Producer.FlushTimeout,
		Metrics:      metrics,
	}, log)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Error("Failed to close publisher", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(pub, prometheus.DefaultGatherer, metrics, log)

	log.Info("Order API starting",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("port", cfg.HTTP.Port),
	)

	return obs.Serve(ctx, cfg.HTTP.Port, router, "order API", log)
}
