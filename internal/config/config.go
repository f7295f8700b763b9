// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Service names, also used as the default SERVICE_NAME.
const (
	ServiceOrderAPI  = "order-api"
	ServiceAnalytics = "analytics"
	ServiceInventory = "inventory"
)

// CommitMode selects who advances a consumer group's offsets.
type CommitMode string

const (
	// CommitAuto lets the broker client commit on an interval regardless of processing outcome.
	CommitAuto CommitMode = "auto"
	// CommitManual commits a record only after it was processed successfully.
	CommitManual CommitMode = "manual"
)

// Config holds all configuration for the application
type Config struct {
	Kafka     KafkaConfig
	Producer  ProducerConfig
	Consumer  ConsumerConfig
	Retry     RetryConfig
	DLQ       DLQConfig
	Analytics AnalyticsConfig
	Inventory InventoryConfig
	Redis     RedisConfig
	HTTP      HTTPConfig
	Logging   LoggingConfig
	Service   ServiceConfig
}

// KafkaConfig holds Kafka connection settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// ProducerConfig holds publisher settings
type ProducerConfig struct {
	FlushTimeout time.Duration
	MaxAttempts  int
}

// ConsumerConfig holds consumer loop settings
type ConsumerConfig struct {
	CommitMode     CommitMode
	CommitInterval time.Duration
	PollTimeout    time.Duration
	Backoff        time.Duration
	// MaxAttempts bounds processing attempts per record before dead-lettering.
	// 0 means a failing record is redelivered forever.
	MaxAttempts int
}

// RetryConfig holds retry settings for dead-letter writes
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DLQConfig holds dead-letter queue settings. An empty Topic disables dead-lettering.
type DLQConfig struct {
	Topic   string
	Brokers []string
}

// AnalyticsConfig holds analytics aggregator settings
type AnalyticsConfig struct {
	SummaryEvery int
	TopSKUs      int
}

// InventoryConfig holds inventory reservation settings
type InventoryConfig struct {
	Latency        time.Duration
	ReservationTTL time.Duration
}

// RedisConfig holds the reservation store connection. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// HTTPConfig holds listener ports
type HTTPConfig struct {
	Port        string
	MetricsPort string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service settings
type ServiceConfig struct {
	Name string
}

// Load reads configuration for the named service from environment variables.
// Every setting has a default; only malformed values are rejected.
func Load(service string) (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}
	var err error

	// Kafka configuration
	brokers := getEnv("KAFKA_BOOTSTRAP_SERVERS", getEnv("KAFKA_BROKERS", "localhost:9092"))
	cfg.Kafka.Brokers = splitList(brokers)
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BOOTSTRAP_SERVERS must contain at least one valid broker address")
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "orders")
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", defaultGroupID(service))

	// Producer configuration
	if cfg.Producer.FlushTimeout, err = getDuration("FLUSH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Producer.MaxAttempts, err = getInt("PRODUCER_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}

	// Consumer configuration
	mode := CommitMode(strings.ToLower(getEnv("COMMIT_MODE", string(defaultCommitMode(service)))))
	if mode != CommitAuto && mode != CommitManual {
		return nil, fmt.Errorf("COMMIT_MODE must be %q or %q, got %q", CommitAuto, CommitManual, mode)
	}
	cfg.Consumer.CommitMode = mode
	if cfg.Consumer.CommitInterval, err = getDuration("AUTO_COMMIT_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Consumer.PollTimeout, err = getDuration("POLL_TIMEOUT", time.Second); err != nil {
		return nil, err
	}
	if cfg.Consumer.Backoff, err = getDuration("RETRY_BACKOFF", time.Second); err != nil {
		return nil, err
	}
	if cfg.Consumer.MaxAttempts, err = getInt("MAX_PROCESS_ATTEMPTS", 0); err != nil {
		return nil, err
	}

	// Retry configuration for DLQ writes
	cfg.Retry = RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
	}

	// DLQ configuration
	cfg.DLQ.Topic = getEnv("KAFKA_DLQ_TOPIC", "")
	cfg.DLQ.Brokers = cfg.Kafka.Brokers

	// Analytics configuration
	if cfg.Analytics.SummaryEvery, err = getInt("SUMMARY_EVERY", 5); err != nil {
		return nil, err
	}
	if cfg.Analytics.TopSKUs, err = getInt("TOP_SKUS", 3); err != nil {
		return nil, err
	}
	if cfg.Analytics.SummaryEvery <= 0 || cfg.Analytics.TopSKUs <= 0 {
		return nil, fmt.Errorf("SUMMARY_EVERY and TOP_SKUS must be positive")
	}

	// Inventory configuration
	if cfg.Inventory.Latency, err = getDuration("RESERVATION_LATENCY", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Inventory.ReservationTTL, err = getDuration("RESERVATION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	// Redis configuration
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// HTTP configuration
	cfg.HTTP.Port = getEnv("HTTP_PORT", "8000")
	cfg.HTTP.MetricsPort = getEnv("METRICS_PORT", "9100")

	// Logging configuration
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	// Service configuration
	cfg.Service.Name = getEnv("SERVICE_NAME", service)

	return cfg, nil
}

func defaultGroupID(service string) string {
	switch service {
	case ServiceAnalytics:
		return "analytics-service"
	case ServiceInventory:
		return "inventory-service"
	default:
		return service
	}
}

// Analytics only counts, so it tolerates reprocessing and loss; inventory must not lose work.
func defaultCommitMode(service string) CommitMode {
	if service == ServiceAnalytics {
		return CommitAuto
	}
	return CommitManual
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", key, raw)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

// Parse comma-separated values
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
