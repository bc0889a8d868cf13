package verifier

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

// Native validates that a referenced transaction contains a qualifying
// native-coin transfer to the treasury address.
type Native struct {
	ledger      ledger.Client
	treasury    solana.PublicKey
	maxPurchase decimal.Decimal
	logger      *zap.Logger
}

// NewNative builds a native-payment verifier. maxPurchase is the per
// purchase cap in SOL.
func NewNative(lc ledger.Client, treasury solana.PublicKey, maxPurchase decimal.Decimal, logger *zap.Logger) *Native {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Native{ledger: lc, treasury: treasury, maxPurchase: maxPurchase, logger: logger}
}

// Verify checks the referenced transaction and extracts payer and amount.
// When multiple qualifying transfers exist the first match wins; amounts are
// not summed.
func (v *Native) Verify(ctx context.Context, ref domain.PaymentReference) (*domain.VerifiedPayment, error) {
	view, err := fetchConfirmed(ctx, v.ledger, ref)
	if err != nil {
		return nil, err
	}

	var match *ledger.NativeTransfer
	for _, in := range view.Instructions {
		if in.Kind == ledger.KindNativeTransfer && in.Native.Destination.Equals(v.treasury) {
			match = in.Native
			break
		}
	}
	if match == nil {
		return nil, domain.NewError(domain.KindNoQualifyingTransfer, "no native transfer to treasury found")
	}
	if match.Lamports == 0 {
		return nil, domain.NewError(domain.KindInvalidAmount, "native transfer has zero amount")
	}

	amountSOL := domain.LamportsToSOL(match.Lamports)
	if amountSOL.GreaterThan(v.maxPurchase) {
		return nil, domain.Errorf(domain.KindCapExceeded, "amount %s SOL exceeds per-purchase cap %s SOL", amountSOL, v.maxPurchase)
	}

	payer, err := view.FirstSigner()
	if err != nil {
		return nil, domain.WrapError(domain.KindNoQualifyingTransfer, "cannot determine payer", err)
	}

	v.logger.Debug("native payment verified",
		zap.String("reference", ref.String()),
		zap.String("payer", payer.String()),
		zap.String("amount_sol", amountSOL.String()),
	)

	return &domain.VerifiedPayment{
		Reference: ref,
		Payer:     payer,
		Kind:      domain.AssetNative,
		Asset:     domain.NativeSymbol,
		Gross:     amountSOL,
		Precision: 9,
	}, nil
}
