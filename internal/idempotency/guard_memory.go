package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-process Guard for unit tests and single-instance
// runs. Expired reservations are pruned opportunistically on Reserve, so no
// background janitor is needed.
type MemoryGuard struct {
	mu       sync.Mutex
	reserved map[string]time.Time
	nowFn    func() time.Time
}

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		reserved: make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

// NewMemoryGuardAt creates a guard with an injected clock for tests.
func NewMemoryGuardAt(nowFn func() time.Time) *MemoryGuard {
	return &MemoryGuard{
		reserved: make(map[string]time.Time),
		nowFn:    nowFn,
	}
}

func (g *MemoryGuard) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := g.nowFn()

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.reserved[key]; ok && now.Before(expiry) {
		return false, nil
	}
	g.reserved[key] = now.Add(ttl)

	// Prune a handful of expired entries per call to keep the map bounded.
	pruned := 0
	for k, expiry := range g.reserved {
		if !now.Before(expiry) {
			delete(g.reserved, k)
			pruned++
			if pruned >= 16 {
				break
			}
		}
	}
	return true, nil
}
