package worker

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

type fakeStore struct {
	pending  []domain.Settlement
	resolved map[domain.PaymentReference]string
}

func newFakeStore(pending ...domain.Settlement) *fakeStore {
	return &fakeStore{pending: pending, resolved: make(map[domain.PaymentReference]string)}
}

func (f *fakeStore) ListByStatus(ctx context.Context, status string, limit int) ([]domain.Settlement, error) {
	return f.pending, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	return int64(len(f.pending) - len(f.resolved)), nil
}

func (f *fakeStore) Resolve(ctx context.Context, ref domain.PaymentReference, status string) error {
	f.resolved[ref] = status
	return nil
}

type fakeChain struct {
	ledger.Client

	status map[solana.Signature]ledger.ConfirmationStatus
	views  map[solana.Signature]*ledger.TransactionView
}

func (c *fakeChain) GetStatus(ctx context.Context, sig solana.Signature) (ledger.ConfirmationStatus, error) {
	if s, ok := c.status[sig]; ok {
		return s, nil
	}
	return ledger.StatusUnknown, nil
}

func (c *fakeChain) GetTransaction(ctx context.Context, sig solana.Signature) (*ledger.TransactionView, error) {
	if v, ok := c.views[sig]; ok {
		return v, nil
	}
	return nil, domain.NewError(domain.KindReferenceNotFound, "transaction not found")
}

func outboundSig(b byte) solana.Signature {
	var raw [64]byte
	for i := range raw {
		raw[i] = b
	}
	return solana.SignatureFromBytes(raw[:])
}

func uncertainRec(ref string, sig solana.Signature, age time.Duration) domain.Settlement {
	return domain.Settlement{
		Reference: domain.PaymentReference(ref),
		Outbound:  sig.String(),
		Status:    domain.SettlementUncertain,
		UpdatedAt: time.Now().Add(-age),
	}
}

func TestReconcileConfirmedTransferSettles(t *testing.T) {
	sig := outboundSig(1)
	store := newFakeStore(uncertainRec("ref-r1", sig, time.Minute))
	chain := &fakeChain{
		status: map[solana.Signature]ledger.ConfirmationStatus{sig: ledger.StatusConfirmed},
		views:  map[solana.Signature]*ledger.TransactionView{sig: {Failed: false}},
	}

	w := NewReconciliationWorker(store, chain)
	require.NoError(t, w.ReconcileOnce(context.Background()))
	assert.Equal(t, domain.SettlementSettled, store.resolved["ref-r1"])
}

func TestReconcileFailedTransferMarksFailed(t *testing.T) {
	sig := outboundSig(2)
	store := newFakeStore(uncertainRec("ref-r2", sig, time.Minute))
	chain := &fakeChain{
		status: map[solana.Signature]ledger.ConfirmationStatus{sig: ledger.StatusFinalized},
		views:  map[solana.Signature]*ledger.TransactionView{sig: {Failed: true}},
	}

	w := NewReconciliationWorker(store, chain)
	require.NoError(t, w.ReconcileOnce(context.Background()))
	assert.Equal(t, domain.SettlementFailed, store.resolved["ref-r2"])
}

func TestReconcileExpiredTransferMarksFailed(t *testing.T) {
	// the transfer never landed and the blockhash window is long closed
	sig := outboundSig(3)
	store := newFakeStore(uncertainRec("ref-r3", sig, 20*time.Minute))
	chain := &fakeChain{}

	w := NewReconciliationWorker(store, chain)
	require.NoError(t, w.ReconcileOnce(context.Background()))
	assert.Equal(t, domain.SettlementFailed, store.resolved["ref-r3"])
}

func TestReconcileRecentMissingTransferWaits(t *testing.T) {
	// the transfer may still propagate; leave it UNCERTAIN for the next run
	sig := outboundSig(4)
	store := newFakeStore(uncertainRec("ref-r4", sig, time.Minute))
	chain := &fakeChain{}

	w := NewReconciliationWorker(store, chain)
	require.NoError(t, w.ReconcileOnce(context.Background()))
	assert.Empty(t, store.resolved)
}

func TestReconcileUnconfirmedButFailedTransferMarksFailed(t *testing.T) {
	sig := outboundSig(5)
	store := newFakeStore(uncertainRec("ref-r5", sig, time.Minute))
	chain := &fakeChain{
		views: map[solana.Signature]*ledger.TransactionView{sig: {Failed: true}},
	}

	w := NewReconciliationWorker(store, chain)
	require.NoError(t, w.ReconcileOnce(context.Background()))
	assert.Equal(t, domain.SettlementFailed, store.resolved["ref-r5"])
}
