package verifier

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

func nativeView(payer, dest solana.PublicKey, lamports uint64) *ledger.TransactionView {
	return &ledger.TransactionView{
		AccountKeys: []solana.PublicKey{payer, dest},
		Instructions: []ledger.Instruction{{
			Kind:   ledger.KindNativeTransfer,
			Native: &ledger.NativeTransfer{Source: payer, Destination: dest, Lamports: lamports},
		}},
	}
}

func TestNativeVerifyHappyPath(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	lc := &mockLedger{view: nativeView(payer, treasury, 2_500_000_000), status: ledger.StatusConfirmed}

	v := NewNative(lc, treasury, decimal.NewFromInt(100), nil)
	payment, err := v.Verify(context.Background(), testRef())
	require.NoError(t, err)

	assert.True(t, payment.Payer.Equals(payer))
	assert.Equal(t, domain.AssetNative, payment.Kind)
	assert.True(t, payment.Gross.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, uint8(9), payment.Precision)
}

func TestNativeVerifyFinalizedAlsoAccepted(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	lc := &mockLedger{view: nativeView(payer, treasury, 1_000_000_000), status: ledger.StatusFinalized}

	v := NewNative(lc, treasury, decimal.NewFromInt(100), nil)
	_, err := v.Verify(context.Background(), testRef())
	require.NoError(t, err)
}

func TestNativeVerifyCapExceeded(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	lc := &mockLedger{view: nativeView(payer, treasury, 101_000_000_000), status: ledger.StatusConfirmed}

	v := NewNative(lc, treasury, decimal.NewFromInt(100), nil)
	_, err := v.Verify(context.Background(), testRef())
	assert.Equal(t, domain.KindCapExceeded, domain.KindOf(err))
}

func TestNativeVerifyExactCapAccepted(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	lc := &mockLedger{view: nativeView(payer, treasury, 100_000_000_000), status: ledger.StatusConfirmed}

	v := NewNative(lc, treasury, decimal.NewFromInt(100), nil)
	payment, err := v.Verify(context.Background(), testRef())
	require.NoError(t, err)
	assert.True(t, payment.Gross.Equal(decimal.NewFromInt(100)))
}

func TestNativeVerifyNoQualifyingTransfer(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	lc := &mockLedger{status: ledger.StatusConfirmed, view: &ledger.TransactionView{
		AccountKeys: []solana.PublicKey{payer, other},
		Instructions: []ledger.Instruction{
			{Kind: ledger.KindOpaque},
			{Kind: ledger.KindNativeTransfer, Native: &ledger.NativeTransfer{Source: payer, Destination: other, Lamports: 5}},
		},
	}}

	v := NewNative(lc, treasury, decimal.NewFromInt(100), nil)
	_, err := v.Verify(context.Background(), testRef())
	assert.Equal(t, domain.KindNoQualifyingTransfer, domain.KindOf(err))
}

func TestNativeVerifyFirstMatchWins(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()

	lc := &mockLedger{status: ledger.StatusConfirmed, view: &ledger.TransactionView{
		AccountKeys: []solana.PublicKey{payer, treasury},
		Instructions: []ledger.Instruction{
			{Kind: ledger.KindNativeTransfer, Native: &ledger.NativeTransfer{Source: payer, Destination: treasury, Lamports: 1_000_000_000}},
			{Kind: ledger.KindNativeTransfer, Native: &ledger.NativeTransfer{Source: payer, Destination: treasury, Lamports: 2_000_000_000}},
		},
	}}

	v := NewNative(lc, treasury, decimal.NewFromInt(100), nil)
	payment, err := v.Verify(context.Background(), testRef())
	require.NoError(t, err)
	// first match wins, amounts are not summed
	assert.True(t, payment.Gross.Equal(decimal.NewFromInt(1)))
}

func TestNativeVerifyRejections(t *testing.T) {
	treasury := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()

	tests := []struct {
		name string
		lc   *mockLedger
		ref  domain.PaymentReference
		kind domain.ErrorKind
	}{
		{
			name: "not found",
			lc:   &mockLedger{getErr: domain.NewError(domain.KindReferenceNotFound, "transaction not found")},
			ref:  testRef(),
			kind: domain.KindReferenceNotFound,
		},
		{
			name: "malformed reference",
			lc:   &mockLedger{},
			ref:  "definitely-not-a-signature",
			kind: domain.KindReferenceNotFound,
		},
		{
			name: "failed on chain",
			lc: &mockLedger{status: ledger.StatusConfirmed, view: &ledger.TransactionView{
				Failed:      true,
				AccountKeys: []solana.PublicKey{payer},
			}},
			ref:  testRef(),
			kind: domain.KindOnChainFailure,
		},
		{
			name: "not confirmed",
			lc:   &mockLedger{status: ledger.StatusProcessed, view: nativeView(payer, treasury, 1_000_000_000)},
			ref:  testRef(),
			kind: domain.KindNotConfirmed,
		},
		{
			name: "zero amount",
			lc:   &mockLedger{status: ledger.StatusConfirmed, view: nativeView(payer, treasury, 0)},
			ref:  testRef(),
			kind: domain.KindInvalidAmount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := NewNative(tc.lc, treasury, decimal.NewFromInt(100), nil)
			_, err := v.Verify(context.Background(), tc.ref)
			require.Error(t, err)
			assert.Equal(t, tc.kind, domain.KindOf(err))
		})
	}
}
