package settlement

import (
	"context"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/idempotency"
)

type stubVerifier struct {
	payment *domain.VerifiedPayment
	err     error
}

func (s *stubVerifier) Verify(ctx context.Context, ref domain.PaymentReference) (*domain.VerifiedPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := *s.payment
	return &p, nil
}

type stubTokenVerifier struct {
	payment *domain.VerifiedPayment
	err     error
}

func (s *stubTokenVerifier) Verify(ctx context.Context, ref domain.PaymentReference, asset domain.Asset) (*domain.VerifiedPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := *s.payment
	return &p, nil
}

type stubConverter struct {
	result *domain.ConversionResult
	err    error
}

func (s *stubConverter) Convert(ctx context.Context, payment *domain.VerifiedPayment, asset domain.Asset) (*domain.ConversionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubExecutor struct {
	mu    sync.Mutex
	calls int
	err   error
	sig   solana.Signature
}

func (s *stubExecutor) Execute(ctx context.Context, ref domain.PaymentReference, payer solana.PublicKey, output decimal.Decimal) (*domain.SettlementReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SettlementReceipt{Reference: ref, Payer: payer, Output: output, Outbound: s.sig}, nil
}

func solVerified(payer solana.PublicKey, gross string) *domain.VerifiedPayment {
	return &domain.VerifiedPayment{
		Payer:     payer,
		Kind:      domain.AssetNative,
		Asset:     domain.NativeSymbol,
		Gross:     decimal.RequireFromString(gross),
		Precision: 9,
	}
}

func testPipeline(native NativeVerifier, token TokenVerifier, conv Converter, exec Transferer, guard idempotency.Guard) *Pipeline {
	registry := domain.NewAssetRegistry(
		domain.Asset{Symbol: "SOL", FixedRate: decimal.NewFromInt(200000)},
		domain.Asset{Symbol: "USDC", Mint: solana.NewWallet().PublicKey(), FixedRate: decimal.NewFromInt(2)},
	)
	return NewPipeline(native, token, conv, exec, guard, registry, nil)
}

func TestSettleNativeEndToEnd(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	guard := idempotency.NewMemoryGuard()
	exec := &stubExecutor{sig: testSig(3)}
	p := testPipeline(
		&stubVerifier{payment: solVerified(payer, "2.5")},
		nil,
		&stubConverter{result: &domain.ConversionResult{
			Output: decimal.NewFromInt(500000),
			Rate:   decimal.NewFromInt(200000),
			Source: domain.RateFixed,
		}},
		exec, guard,
	)

	res, err := p.SettleNative(context.Background(), "ref-a")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentReference("ref-a"), res.Receipt.Reference)
	assert.True(t, res.Receipt.Output.Equal(decimal.NewFromInt(500000)))
	assert.Equal(t, domain.RateFixed, res.Conversion.Source)
	assert.Equal(t, 1, exec.calls)

	rec, ok := guard.Get("ref-a")
	require.True(t, ok)
	assert.Equal(t, domain.SettlementSettled, rec.Status)
	assert.Equal(t, testSig(3).String(), rec.Outbound)
	assert.Equal(t, payer.String(), rec.Payer)
}

func TestSettleNativeIsIdempotent(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	guard := idempotency.NewMemoryGuard()
	exec := &stubExecutor{sig: testSig(4)}
	p := testPipeline(
		&stubVerifier{payment: solVerified(payer, "1")},
		nil,
		&stubConverter{result: &domain.ConversionResult{Output: decimal.NewFromInt(200000), Rate: decimal.NewFromInt(200000), Source: domain.RateFixed}},
		exec, guard,
	)

	_, err := p.SettleNative(context.Background(), "ref-b")
	require.NoError(t, err)

	_, err = p.SettleNative(context.Background(), "ref-b")
	assert.Equal(t, domain.KindAlreadySettled, domain.KindOf(err))
	assert.Equal(t, 1, exec.calls, "second call must not reach the executor")
}

func TestSettleNativeRejectionReleasesReservation(t *testing.T) {
	guard := idempotency.NewMemoryGuard()
	exec := &stubExecutor{}
	verify := &stubVerifier{err: domain.NewError(domain.KindNotConfirmed, "still processing")}
	p := testPipeline(verify, nil, &stubConverter{}, exec, guard)

	_, err := p.SettleNative(context.Background(), "ref-c")
	assert.Equal(t, domain.KindNotConfirmed, domain.KindOf(err))
	assert.Zero(t, exec.calls)

	// reference is retryable once the payment confirms
	verify.err = nil
	verify.payment = solVerified(solana.NewWallet().PublicKey(), "1")
	p.converter = &stubConverter{result: &domain.ConversionResult{Output: decimal.NewFromInt(200000), Rate: decimal.NewFromInt(200000), Source: domain.RateFixed}}

	_, err = p.SettleNative(context.Background(), "ref-c")
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls)
}

func TestSettleNativeTerminalRejectionBlocksRetry(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	guard := idempotency.NewMemoryGuard()
	exec := &stubExecutor{}
	p := testPipeline(
		&stubVerifier{payment: solVerified(payer, "500")},
		nil,
		&stubConverter{err: domain.NewError(domain.KindCapExceeded, "purchase exceeds per-transaction cap")},
		exec, guard,
	)

	_, err := p.SettleNative(context.Background(), "ref-h")
	assert.Equal(t, domain.KindCapExceeded, domain.KindOf(err))
	assert.Zero(t, exec.calls)

	rec, ok := guard.Get("ref-h")
	require.True(t, ok)
	assert.Equal(t, domain.SettlementFailed, rec.Status)
	assert.Equal(t, payer.String(), rec.Payer)

	// a payment that can never qualify stays refused
	_, err = p.SettleNative(context.Background(), "ref-h")
	assert.Equal(t, domain.KindAlreadySettled, domain.KindOf(err))
	assert.Zero(t, exec.calls)
}

func TestSettleNativeUncertainKeepsReservation(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	guard := idempotency.NewMemoryGuard()
	exec := &stubExecutor{err: &UncertainError{
		Signature: testSig(5),
		Err:       domain.NewError(domain.KindConfirmationTimeout, "window closed"),
	}}
	p := testPipeline(
		&stubVerifier{payment: solVerified(payer, "1")},
		nil,
		&stubConverter{result: &domain.ConversionResult{Output: decimal.NewFromInt(200000), Rate: decimal.NewFromInt(200000), Source: domain.RateFixed}},
		exec, guard,
	)

	_, err := p.SettleNative(context.Background(), "ref-d")
	assert.Equal(t, domain.KindConfirmationTimeout, domain.KindOf(err))

	rec, ok := guard.Get("ref-d")
	require.True(t, ok)
	assert.Equal(t, domain.SettlementUncertain, rec.Status)
	assert.Equal(t, testSig(5).String(), rec.Outbound)

	// retrying must not resubmit while the first transfer's fate is unknown
	_, err = p.SettleNative(context.Background(), "ref-d")
	assert.Equal(t, domain.KindAlreadySettled, domain.KindOf(err))
	assert.Equal(t, 1, exec.calls)
}

func TestSettleTokenEndToEnd(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	guard := idempotency.NewMemoryGuard()
	exec := &stubExecutor{sig: testSig(6)}
	p := testPipeline(
		nil,
		&stubTokenVerifier{payment: &domain.VerifiedPayment{
			Payer:     payer,
			Kind:      domain.AssetToken,
			Asset:     "USDC",
			Gross:     decimal.NewFromInt(10),
			Precision: 6,
		}},
		&stubConverter{result: &domain.ConversionResult{Output: decimal.NewFromInt(20), Rate: decimal.NewFromInt(2), Source: domain.RateFixed}},
		exec, guard,
	)

	res, err := p.SettleToken(context.Background(), "ref-e", "usdc")
	require.NoError(t, err)
	assert.Equal(t, "USDC", res.Payment.Asset)
	assert.True(t, res.Receipt.Output.Equal(decimal.NewFromInt(20)))
}

func TestSettleTokenRejectsUnknownAsset(t *testing.T) {
	p := testPipeline(nil, &stubTokenVerifier{}, &stubConverter{}, &stubExecutor{}, idempotency.NewMemoryGuard())

	_, err := p.SettleToken(context.Background(), "ref-f", "DOGE")
	assert.Equal(t, domain.KindAssetMismatch, domain.KindOf(err))

	_, err = p.SettleToken(context.Background(), "ref-g", "SOL")
	assert.Equal(t, domain.KindAssetMismatch, domain.KindOf(err))
}
