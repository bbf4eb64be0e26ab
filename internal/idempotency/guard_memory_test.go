package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuardReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("first reservation wins, second is a replay", func(t *testing.T) {
		guard := NewMemoryGuard()

		fresh, err := guard.Reserve(ctx, "key-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = guard.Reserve(ctx, "key-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, fresh)
	})

	t.Run("distinct keys do not interfere", func(t *testing.T) {
		guard := NewMemoryGuard()

		fresh, err := guard.Reserve(ctx, "key-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = guard.Reserve(ctx, "key-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("key is reusable after its window elapses", func(t *testing.T) {
		now := time.Now()
		clock := &now
		var mu sync.Mutex
		guard := NewMemoryGuardAt(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return *clock
		})

		fresh, err := guard.Reserve(ctx, "key-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)

		mu.Lock()
		later := now.Add(2 * time.Minute)
		clock = &later
		mu.Unlock()

		fresh, err = guard.Reserve(ctx, "key-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("exactly one of N concurrent reservations wins", func(t *testing.T) {
		guard := NewMemoryGuard()
		const callers = 50

		var wins int64
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fresh, err := guard.Reserve(ctx, "shared", time.Minute)
				require.NoError(t, err)
				if fresh {
					atomic.AddInt64(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(1), wins)
	})
}
