package idempotency

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltlabs/malt-bridge/internal/domain"
)

func TestMemoryGuardReserveOnce(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, err := g.Reserve(ctx, "ref-1", "SOL")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Reserve(ctx, "ref-1", "SOL")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Reserve(ctx, "ref-2", "SOL")
	require.NoError(t, err)
	assert.True(t, ok, "distinct references reserve independently")
}

func TestMemoryGuardReleaseReopensReservation(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, _ := g.Reserve(ctx, "ref-1", "SOL")
	require.True(t, ok)
	require.NoError(t, g.Release(ctx, "ref-1"))

	ok, err := g.Reserve(ctx, "ref-1", "SOL")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuardReleaseKeepsCommitted(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, _ := g.Reserve(ctx, "ref-1", "SOL")
	require.True(t, ok)
	require.NoError(t, g.Commit(ctx, domain.Settlement{
		Reference: "ref-1",
		Asset:     "SOL",
		Status:    domain.SettlementSettled,
	}))

	// release must not drop a committed outcome
	require.NoError(t, g.Release(ctx, "ref-1"))

	ok, err := g.Reserve(ctx, "ref-1", "SOL")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, found := g.Get("ref-1")
	require.True(t, found)
	assert.Equal(t, domain.SettlementSettled, rec.Status)
}

func TestMemoryGuardConcurrentReserve(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	var wg sync.WaitGroup
	wins := make(chan struct{}, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.Reserve(ctx, "ref-1", "SOL")
			assert.NoError(t, err)
			if ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one caller may win the reservation")
}
