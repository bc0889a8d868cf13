package verifier

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/ledger"
)

// Token validates that a referenced transaction contains a qualifying SPL
// token transfer into the treasury's associated token account for the
// expected mint.
type Token struct {
	ledger   ledger.Client
	treasury solana.PublicKey
	logger   *zap.Logger
}

func NewToken(lc ledger.Client, treasury solana.PublicKey, logger *zap.Logger) *Token {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Token{ledger: lc, treasury: treasury, logger: logger}
}

// Verify checks the referenced transaction against the expected asset. The
// accepted destination is derived off-chain from (mint, treasury); no other
// account qualifies. Precision comes from the instruction when the checked
// variant carried it, otherwise from the treasury's post-transaction balance
// snapshot — transfer instructions do not uniformly carry decimal metadata,
// and caller-supplied precision is never trusted.
func (v *Token) Verify(ctx context.Context, ref domain.PaymentReference, asset domain.Asset) (*domain.VerifiedPayment, error) {
	view, err := fetchConfirmed(ctx, v.ledger, ref)
	if err != nil {
		return nil, err
	}

	expectedDest, _, err := solana.FindAssociatedTokenAddress(v.treasury, asset.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive treasury token account for %s: %w", asset.Symbol, err)
	}

	var match *ledger.TokenTransfer
	for _, in := range view.Instructions {
		if in.Kind != ledger.KindTokenTransfer || !in.Token.Destination.Equals(expectedDest) {
			continue
		}
		if in.Token.Mint != nil && !in.Token.Mint.Equals(asset.Mint) {
			return nil, domain.Errorf(domain.KindAssetMismatch, "transfer declares a different mint than %s", asset.Symbol)
		}
		match = in.Token
		break
	}
	if match == nil {
		return nil, domain.Errorf(domain.KindNoQualifyingTransfer, "no %s transfer to treasury token account found", asset.Symbol)
	}

	precision, ok := v.resolvePrecision(match, view, asset)
	if !ok {
		return nil, domain.Errorf(domain.KindUnresolvedPrecision, "cannot resolve decimals for %s transfer", asset.Symbol)
	}
	if match.RawAmount == 0 {
		return nil, domain.NewError(domain.KindInvalidAmount, "token transfer has zero amount")
	}

	payer, err := view.FirstSigner()
	if err != nil {
		return nil, domain.WrapError(domain.KindNoQualifyingTransfer, "cannot determine payer", err)
	}

	gross := domain.FromBaseUnits(match.RawAmount, precision)
	v.logger.Debug("token payment verified",
		zap.String("reference", ref.String()),
		zap.String("asset", asset.Symbol),
		zap.String("payer", payer.String()),
		zap.String("amount", gross.String()),
	)

	return &domain.VerifiedPayment{
		Reference: ref,
		Payer:     payer,
		Kind:      domain.AssetToken,
		Asset:     asset.Symbol,
		Gross:     gross,
		Precision: precision,
	}, nil
}

func (v *Token) resolvePrecision(match *ledger.TokenTransfer, view *ledger.TransactionView, asset domain.Asset) (uint8, bool) {
	if match.Decimals != nil {
		return *match.Decimals, true
	}
	for _, b := range view.PostTokenBalances {
		if b.Owner != nil && b.Owner.Equals(v.treasury) && b.Mint.Equals(asset.Mint) {
			return b.Decimals, true
		}
	}
	return 0, false
}
