package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "loyaltycore/pkg/domain-errors"
	"loyaltycore/pkg/platform/tx"
	"loyaltycore/pkg/requestcontext"
)

// numShards spreads in-memory workflow transactions across mutexes so
// unrelated customers never contend on one global lock.
const numShards = 128

// defaultTxTimeout is the maximum duration for a workflow transaction.
const defaultTxTimeout = 5 * time.Second

// MemoryAtomic provides the transactional boundary over in-memory stores
// using sharded mutexes keyed by the customer in context. Store operations
// remain individually atomic; this lock only groups multi-step transitions.
type MemoryAtomic struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// NewMemoryAtomic constructs the in-memory transactional boundary.
func NewMemoryAtomic() *MemoryAtomic {
	return &MemoryAtomic{timeout: defaultTxTimeout}
}

func (a *MemoryAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	shard := a.selectShard(ctx)
	a.shards[shard].Lock()
	defer a.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// selectShard picks a shard from the customer ID in context, defaulting to
// shard 0 for background work.
func (a *MemoryAtomic) selectShard(ctx context.Context) int {
	if customerID := requestcontext.CustomerID(ctx); !customerID.IsNil() {
		return int(fnvHash(customerID.String()) % numShards)
	}
	return 0
}

// fnvHash is FNV-1a over a string.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// PostgresAtomic runs workflow mutations inside one database transaction.
// Stores participating in the unit resolve the transaction from context.
type PostgresAtomic struct {
	db *sql.DB
}

// NewPostgresAtomic constructs the Postgres transactional boundary.
func NewPostgresAtomic(db *sql.DB) *PostgresAtomic {
	return &PostgresAtomic{db: db}
}

func (a *PostgresAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tx.Run(ctx, a.db, fn)
}
