package idempotency

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var reserveDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "loyalty_idempotency_reserve_duration_ms",
	Help:    "Latency of idempotency key reservations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// Redis key prefix for idempotency reservations
const reservationKeyPrefix = "idem:key:"

// RedisGuard is a Redis-backed Guard. This is the production implementation
// for distributed deployments where every instance must see the same
// reservation state.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisGuard constructs a Redis-backed guard.
func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// Reserve claims the key with SET NX, which is atomic across instances.
func (g *RedisGuard) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	defer func() {
		reserveDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	// Store "1" as a simple marker; the key existence is what matters
	return g.client.SetNX(ctx, reservationKeyPrefix+key, "1", ttl).Result()
}
