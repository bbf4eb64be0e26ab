package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the loyalty core.
type Config struct {
	Addr string

	// PostgresURL selects the durable store. Empty means serve from the
	// in-memory stores (development and unit-test wiring).
	PostgresURL string

	// RedisURL backs the idempotency guard and the QR replay cache.
	// Empty means in-memory fallbacks.
	RedisURL string

	// KafkaBrokers enables the Kafka notification channel when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// QRSigningKey verifies HMAC signatures on scanned payloads.
	QRSigningKey string
	// QRAudience scopes signed payloads to this deployment.
	QRAudience string
	// QRMaxAge is the acceptance window for a signed payload; the replay
	// cache holds nonces for the same duration.
	QRMaxAge time.Duration

	// ApprovalTTL bounds how long an approval request may stay unanswered.
	ApprovalTTL time.Duration
	// SweepInterval is the cadence of the background expiry sweep.
	SweepInterval time.Duration

	// CoalesceWindow bounds burst deduplication in the notification
	// dispatcher. Only affects notification cadence, never ledger state.
	CoalesceWindow time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:           getenv("LOYALTY_ADDR", ":8080"),
		PostgresURL:    os.Getenv("LOYALTY_POSTGRES_URL"),
		RedisURL:       os.Getenv("LOYALTY_REDIS_URL"),
		KafkaTopic:     getenv("LOYALTY_KAFKA_TOPIC", "loyalty.notifications"),
		QRSigningKey:   getenv("LOYALTY_QR_SIGNING_KEY", "dev-secret-key-change-in-production"),
		QRAudience:     getenv("LOYALTY_QR_AUDIENCE", "ledger"),
		QRMaxAge:       getduration("LOYALTY_QR_MAX_AGE", 5*time.Minute),
		ApprovalTTL:    getduration("LOYALTY_APPROVAL_TTL", 72*time.Hour),
		SweepInterval:  getduration("LOYALTY_SWEEP_INTERVAL", time.Minute),
		CoalesceWindow: getduration("LOYALTY_COALESCE_WINDOW", 500*time.Millisecond),
	}
	if brokers := os.Getenv("LOYALTY_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
