package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
	"github.com/maltlabs/malt-bridge/internal/idempotency"
	"github.com/maltlabs/malt-bridge/internal/observability"
)

// Pipeline phases. A run either reaches SETTLED, parks at UNCERTAIN for
// reconciliation, or ends REJECTED with the reservation released when the
// rejection is retryable.
var settlementTransitions = map[string]map[string]struct{}{
	"RECEIVED": {
		"VERIFYING": {},
		"REJECTED":  {},
	},
	"VERIFYING": {
		"VERIFIED": {},
		"REJECTED": {},
	},
	"VERIFIED": {
		"CONVERTING": {},
	},
	"CONVERTING": {
		"CONVERTED": {},
		"REJECTED":  {},
	},
	"CONVERTED": {
		"SETTLING": {},
	},
	"SETTLING": {
		"SETTLED":   {},
		"UNCERTAIN": {},
		"REJECTED":  {},
	},
	"SETTLED":   {},
	"UNCERTAIN": {},
	"REJECTED":  {},
}

func canTransition(current, next string) bool {
	nextStates, ok := settlementTransitions[strings.ToUpper(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[strings.ToUpper(next)]
	return ok
}

// NativeVerifier verifies an inbound native-coin payment.
type NativeVerifier interface {
	Verify(ctx context.Context, ref domain.PaymentReference) (*domain.VerifiedPayment, error)
}

// TokenVerifier verifies an inbound SPL-token payment of a specific asset.
type TokenVerifier interface {
	Verify(ctx context.Context, ref domain.PaymentReference, asset domain.Asset) (*domain.VerifiedPayment, error)
}

// Converter prices a verified payment in output tokens.
type Converter interface {
	Convert(ctx context.Context, payment *domain.VerifiedPayment, asset domain.Asset) (*domain.ConversionResult, error)
}

// Transferer executes the outbound reward transfer.
type Transferer interface {
	Execute(ctx context.Context, ref domain.PaymentReference, payer solana.PublicKey, output decimal.Decimal) (*domain.SettlementReceipt, error)
}

// Result bundles everything a settled run produced.
type Result struct {
	Receipt    *domain.SettlementReceipt
	Payment    *domain.VerifiedPayment
	Conversion *domain.ConversionResult
}

// Pipeline runs the full verify-convert-settle sequence under the
// idempotency guard. One instance serves all requests concurrently.
type Pipeline struct {
	native    NativeVerifier
	token     TokenVerifier
	converter Converter
	executor  Transferer
	guard     idempotency.Guard
	registry  *domain.AssetRegistry
	logger    *zap.Logger
}

func NewPipeline(native NativeVerifier, token TokenVerifier, converter Converter, executor Transferer, guard idempotency.Guard, registry *domain.AssetRegistry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		native:    native,
		token:     token,
		converter: converter,
		executor:  executor,
		guard:     guard,
		registry:  registry,
		logger:    logger,
	}
}

// SettleNative settles a native-coin payment identified by ref.
func (p *Pipeline) SettleNative(ctx context.Context, ref domain.PaymentReference) (*Result, error) {
	return p.settle(ctx, ref, domain.NativeSymbol, func(ctx context.Context) (*domain.VerifiedPayment, error) {
		return p.native.Verify(ctx, ref)
	})
}

// SettleToken settles an SPL-token payment of the named accepted asset.
func (p *Pipeline) SettleToken(ctx context.Context, ref domain.PaymentReference, symbol string) (*Result, error) {
	asset, ok := p.registry.Lookup(symbol)
	if !ok || asset.IsNative() {
		return nil, domain.Errorf(domain.KindAssetMismatch, "asset %s is not an accepted token", symbol)
	}
	return p.settle(ctx, ref, asset.Symbol, func(ctx context.Context) (*domain.VerifiedPayment, error) {
		return p.token.Verify(ctx, ref, asset)
	})
}

func (p *Pipeline) settle(ctx context.Context, ref domain.PaymentReference, symbol string, verify func(context.Context) (*domain.VerifiedPayment, error)) (*Result, error) {
	log := p.logger.With(zap.String("reference", ref.String()), zap.String("asset", symbol))

	reserved, err := p.guard.Reserve(ctx, ref, symbol)
	if err != nil {
		return nil, fmt.Errorf("reserve payment reference: %w", err)
	}
	if !reserved {
		observability.SettlementRejected(string(domain.KindAlreadySettled))
		return nil, domain.NewError(domain.KindAlreadySettled, "payment reference already settled or in flight")
	}

	state := "RECEIVED"
	advance := func(next string) {
		if !canTransition(state, next) {
			log.DPanic("invalid settlement transition", zap.String("from", state), zap.String("to", next))
		}
		state = next
	}

	advance("VERIFYING")
	payment, err := verify(ctx)
	if err != nil {
		return nil, p.reject(ctx, log, ref, symbol, state, nil, nil, err)
	}
	payment.Reference = ref
	advance("VERIFIED")
	observability.PaymentVerified(symbol)

	advance("CONVERTING")
	asset, ok := p.registry.Lookup(symbol)
	if !ok {
		return nil, p.reject(ctx, log, ref, symbol, state, payment, nil,
			domain.Errorf(domain.KindAssetMismatch, "asset %s not accepted", symbol))
	}
	conversion, err := p.converter.Convert(ctx, payment, asset)
	if err != nil {
		return nil, p.reject(ctx, log, ref, symbol, state, payment, nil, err)
	}
	advance("CONVERTED")
	observability.RateApplied(string(conversion.Source))

	advance("SETTLING")
	receipt, err := p.executor.Execute(ctx, ref, payment.Payer, conversion.Output)
	if err != nil {
		var uncertain *UncertainError
		if errors.As(err, &uncertain) {
			advance("UNCERTAIN")
			// keep the reservation and record the in-flight signature so
			// reconciliation can resolve it later
			if commitErr := p.guard.Commit(ctx, record(ref, payment, conversion, uncertain.Signature.String(), domain.SettlementUncertain)); commitErr != nil {
				log.Error("persist uncertain settlement failed", zap.Error(commitErr))
			}
			observability.SettlementUncertain()
			log.Warn("settlement outcome uncertain", zap.String("outbound", uncertain.Signature.String()))
			return nil, err
		}
		return nil, p.reject(ctx, log, ref, symbol, state, payment, conversion, err)
	}
	advance("SETTLED")

	if err := p.guard.Commit(ctx, record(ref, payment, conversion, receipt.Outbound.String(), domain.SettlementSettled)); err != nil {
		// tokens moved; a commit failure must not surface as settlement
		// failure
		log.Error("persist settled settlement failed", zap.Error(err))
	}
	observability.SettlementCompleted(symbol)
	log.Info("settlement completed",
		zap.String("payer", payment.Payer.String()),
		zap.String("output", conversion.Output.String()),
		zap.String("rate_source", string(conversion.Source)),
		zap.String("outbound", receipt.Outbound.String()))

	return &Result{Receipt: receipt, Payment: payment, Conversion: conversion}, nil
}

// reject finalizes a failed run. No tokens moved on any rejection path.
// Retryable failures release the reservation so the reference can be tried
// again (e.g. once the inbound transaction confirms); terminal failures
// commit a FAILED record instead, since the payment will never qualify.
func (p *Pipeline) reject(ctx context.Context, log *zap.Logger, ref domain.PaymentReference, symbol, from string, payment *domain.VerifiedPayment, conversion *domain.ConversionResult, cause error) error {
	if !canTransition(from, "REJECTED") {
		log.DPanic("invalid settlement transition", zap.String("from", from), zap.String("to", "REJECTED"))
	}
	kind := domain.KindOf(cause)
	observability.SettlementRejected(string(kind))

	if domain.RetryClassOf(cause) == domain.DoNotRetry {
		rec := domain.Settlement{Reference: ref, Asset: symbol, Status: domain.SettlementFailed}
		if payment != nil {
			rec.Payer = payment.Payer.String()
			rec.Gross = payment.Gross
		}
		if conversion != nil {
			rec.Rate = conversion.Rate
			rec.RateSource = conversion.Source
			rec.Output = conversion.Output
		}
		if err := p.guard.Commit(ctx, rec); err != nil {
			log.Error("persist failed settlement failed", zap.Error(err))
		}
	} else if err := p.guard.Release(ctx, ref); err != nil {
		log.Error("release reservation failed", zap.Error(err))
	}
	log.Info("settlement rejected", zap.String("kind", string(kind)), zap.Error(cause))
	return cause
}

func record(ref domain.PaymentReference, payment *domain.VerifiedPayment, conversion *domain.ConversionResult, outbound, status string) domain.Settlement {
	return domain.Settlement{
		Reference:  ref,
		Asset:      payment.Asset,
		Payer:      payment.Payer.String(),
		Gross:      payment.Gross,
		Rate:       conversion.Rate,
		RateSource: conversion.Source,
		Output:     conversion.Output,
		Outbound:   outbound,
		Status:     status,
	}
}
