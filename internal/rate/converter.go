package rate

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/maltlabs/malt-bridge/internal/domain"
)

// Converter turns a verified payment into an output-token amount. Policy,
// in priority order: the asset's fixed configured rate, a live-quote derived
// rate, the configured fallback rate. With none available it refuses rather
// than guess.
type Converter struct {
	feed           Feed
	outputPriceUSD decimal.Decimal
	fallback       map[string]decimal.Decimal
	logger         *zap.Logger
}

// NewConverter builds a converter. feed may be nil; outputPriceUSD is the
// USD price of one output token and gates the live path; fallback maps
// asset symbols to fallback rates.
func NewConverter(feed Feed, outputPriceUSD decimal.Decimal, fallback map[string]decimal.Decimal, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = map[string]decimal.Decimal{}
	}
	return &Converter{feed: feed, outputPriceUSD: outputPriceUSD, fallback: fallback, logger: logger}
}

// Convert is deterministic for identical inputs and rate configuration.
func (c *Converter) Convert(ctx context.Context, payment *domain.VerifiedPayment, asset domain.Asset) (*domain.ConversionResult, error) {
	if !payment.Gross.IsPositive() {
		return nil, domain.NewError(domain.KindInvalidAmount, "payment amount must be positive")
	}

	if asset.FixedRate.IsPositive() {
		return c.result(payment, asset.FixedRate, domain.RateFixed), nil
	}

	if c.feed != nil && c.outputPriceUSD.IsPositive() {
		quote, err := c.feed.GetSpotQuote(ctx, asset.Symbol, "USD")
		if err == nil && quote.IsPositive() {
			// live quote in USD per asset unit; floor to an integer
			// output-per-unit rate
			live := quote.Div(c.outputPriceUSD).Floor()
			if live.IsPositive() {
				return c.result(payment, live, domain.RateLive), nil
			}
		} else if err != nil {
			c.logger.Warn("live quote unavailable", zap.String("asset", asset.Symbol), zap.Error(err))
		}
	}

	if fb, ok := c.fallback[asset.Symbol]; ok && fb.IsPositive() {
		return c.result(payment, fb, domain.RateFallback), nil
	}

	return nil, domain.Errorf(domain.KindRateUnavailable, "no rate available for %s", asset.Symbol)
}

func (c *Converter) result(payment *domain.VerifiedPayment, rate decimal.Decimal, source domain.RateSource) *domain.ConversionResult {
	return &domain.ConversionResult{
		Output: payment.Gross.Mul(rate),
		Rate:   rate,
		Source: source,
	}
}
