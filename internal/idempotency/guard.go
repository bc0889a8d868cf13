// Package idempotency guards the settlement pipeline against paying out the
// same payment reference twice. A reference is reserved before verification
// starts, committed once the outcome is durable, and released only for
// failures that are safe to retry.
package idempotency

import (
	"context"
	"sync"

	"github.com/maltlabs/malt-bridge/internal/domain"
)

// Guard is the reservation contract used by the pipeline.
type Guard interface {
	// Reserve claims the reference. It returns false when another settlement
	// for the same reference exists in any state.
	Reserve(ctx context.Context, ref domain.PaymentReference, asset string) (bool, error)
	// Commit durably records the settlement outcome (SETTLED or UNCERTAIN).
	// Committed references are never released.
	Commit(ctx context.Context, rec domain.Settlement) error
	// Release drops a reservation after a retryable rejection so the caller
	// may retry the same reference later.
	Release(ctx context.Context, ref domain.PaymentReference) error
}

// MemoryGuard keeps reservations in process memory. It upholds the
// single-payout invariant within one process only; deployments that need it
// across restarts or replicas use the store-backed guard.
type MemoryGuard struct {
	mu      sync.Mutex
	records map[domain.PaymentReference]domain.Settlement
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{records: make(map[domain.PaymentReference]domain.Settlement)}
}

func (g *MemoryGuard) Reserve(ctx context.Context, ref domain.PaymentReference, asset string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.records[ref]; ok {
		return false, nil
	}
	g.records[ref] = domain.Settlement{Reference: ref, Asset: asset, Status: domain.SettlementReserved}
	return true, nil
}

func (g *MemoryGuard) Commit(ctx context.Context, rec domain.Settlement) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[rec.Reference] = rec
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, ref domain.PaymentReference) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[ref]; ok && rec.Status == domain.SettlementReserved {
		delete(g.records, ref)
	}
	return nil
}

// Get is a test hook exposing the stored record.
func (g *MemoryGuard) Get(ref domain.PaymentReference) (domain.Settlement, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[ref]
	return rec, ok
}
