// Package idempotency provides single-use key reservation. A key reserves
// exactly once within its TTL; every later attempt inside the window is
// reported as a replay. The ledger's financial idempotency lives in the
// transaction log itself; this guard covers the lighter cases, nonce replay
// protection above all.
package idempotency

import (
	"context"
	"time"
)

// Guard reserves keys for single use within a TTL window.
type Guard interface {
	// Reserve attempts to claim the key. Returns true when this call made
	// the reservation and false when the key was already reserved inside
	// its window.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
