// Command producer publishes random orders through the same publisher the order API uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/publisher"
)

var (
	brokers      string
	topic        string
	batchSize    int
	rate         int
	workers      int
	duration     time.Duration
	flushTimeout time.Duration
)

var catalog = []order.Item{
	{SKU: "Coffee-Beans-1kg", Price: 12.5},
	{SKU: "Tea-Green-250g", Price: 6.25},
	{SKU: "Mug-Ceramic", Price: 9.99},
	{SKU: "Filter-Paper-100", Price: 3.1},
	{SKU: "Grinder-Manual", Price: 34.0},
}

func init() {
	// Try to load .env file (optional)
	godotenv.Load()

	flag.StringVar(&brokers, "brokers", getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&topic, "topic", getEnv("KAFKA_TOPIC", "orders"), "Kafka topic name")
	flag.IntVar(&batchSize, "batch", 0, "Number of orders to publish (0 = infinite)")
	flag.IntVar(&rate, "rate", 0, "Orders per second (0 = as fast as possible)")
	flag.IntVar(&workers, "workers", 8, "Concurrent publishers")
	flag.DurationVar(&duration, "duration", 0, "Duration to run (e.g., 30s, 5m)")
	flag.DurationVar(&flushTimeout, "flush-timeout", 10*time.Second, "Delivery confirmation deadline per order")
	flag.Parse()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func randomOrder(rng *rand.Rand) *order.Request {
	n := 1 + rng.Intn(3)
	items := make([]order.Item, 0, n)
	for _, idx := range rng.Perm(len(catalog))[:n] {
		it := catalog[idx]
		it.Qty = 1 + rng.Intn(5)
		items = append(items, it)
	}
	return &order.Request{
		CustomerID: "cust-" + uuid.NewString()[:8],
		Items:      items,
	}
}

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Parse brokers
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	producer, err := broker.NewKafkaProducer(broker.ProducerConfig{Brokers: brokerList}, logger)
	if err != nil {
		logger.Fatal("Failed to create producer", zap.Error(err))
	}
	pub, err := publisher.New(producer, publisher.Options{Topic: topic, FlushTimeout: flushTimeout}, logger)
	if err != nil {
		logger.Fatal("Failed to create publisher", zap.Error(err))
	}
	defer pub.Close()

	logger.Info("Starting load generator",
		zap.Strings("brokers", brokerList),
		zap.String("topic", topic),
		zap.Int("batch_size", batchSize),
		zap.Int("rate", rate),
		zap.Int("workers", workers),
		zap.Duration("duration", duration),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	// Rate limiter
	var ticker *time.Ticker
	if rate > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
	}

	if workers <= 0 {
		workers = 1
	}
	slots := make(chan struct{}, workers)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		wg          sync.WaitGroup
		issued      int
		sent        atomic.Int64
		unavailable atomic.Int64
	)

loop:
	for batchSize == 0 || issued < batchSize {
		if ticker != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
			}
		}

		select {
		case <-ctx.Done():
			break loop
		case slots <- struct{}{}:
		}

		req := randomOrder(rng)
		issued++
		wg.Add(1)
		go func(req *order.Request) {
			defer wg.Done()
			defer func() { <-slots }()

			res, err := pub.Publish(context.Background(), req)
			if err != nil {
				if errors.Is(err, publisher.ErrBrokerUnavailable) {
					unavailable.Add(1)
				}
				logger.Error("Failed to publish order", zap.Error(err))
				return
			}

			if current := sent.Add(1); current%100 == 0 {
				logger.Info("Published orders", zap.Int64("count", current), zap.String("last_order_id", res.OrderID))
			}
		}(req)
	}

	wg.Wait()
	logger.Info("Load generator stopped",
		zap.Int("issued", issued),
		zap.Int64("sent", sent.Load()),
		zap.Int64("unavailable", unavailable.Load()),
	)
}
