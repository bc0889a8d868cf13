package verifier

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

// mockLedger serves canned responses for verifier tests.
type mockLedger struct {
	view      *ledger.TransactionView
	getErr    error
	status    ledger.ConfirmationStatus
	statusErr error
}

func (m *mockLedger) GetTransaction(ctx context.Context, sig solana.Signature) (*ledger.TransactionView, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.view, nil
}

func (m *mockLedger) GetStatus(ctx context.Context, sig solana.Signature) (ledger.ConfirmationStatus, error) {
	if m.statusErr != nil {
		return ledger.StatusUnknown, m.statusErr
	}
	return m.status, nil
}

func (m *mockLedger) LatestCheckpoint(ctx context.Context) (ledger.Checkpoint, error) {
	return ledger.Checkpoint{}, nil
}

func (m *mockLedger) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, nil
}

func (m *mockLedger) AwaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	return nil
}

func (m *mockLedger) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	return true, nil
}

// testRef is a syntactically valid payment reference.
func testRef() domain.PaymentReference {
	var raw [64]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	sig := solana.SignatureFromBytes(raw[:])
	return domain.PaymentReference(sig.String())
}
