package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// PaymentReference is the opaque transaction signature supplied by the
// caller. It anchors verification and deduplication.
type PaymentReference string

func (r PaymentReference) String() string { return string(r) }

// AssetKind distinguishes native-coin payments from SPL token payments.
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetToken  AssetKind = "token"
)

// VerifiedPayment is produced exclusively by a verifier after all acceptance
// checks passed. Gross is in human-readable units of the paid asset.
type VerifiedPayment struct {
	Reference PaymentReference
	Payer     solana.PublicKey
	Kind      AssetKind
	Asset     string
	Gross     decimal.Decimal
	Precision uint8
}

// RateSource records where the applied conversion rate came from.
type RateSource string

const (
	RateFixed    RateSource = "fixed"
	RateLive     RateSource = "live"
	RateFallback RateSource = "fallback"
)

// ConversionResult is derived deterministically from a VerifiedPayment and
// the active rate policy.
type ConversionResult struct {
	Output decimal.Decimal
	Rate   decimal.Decimal
	Source RateSource
}

// SettlementReceipt exists only after the outbound transfer reached
// confirmed finality. Its absence means no tokens moved.
type SettlementReceipt struct {
	Reference PaymentReference
	Payer     solana.PublicKey
	Output    decimal.Decimal
	Outbound  solana.Signature
	SettledAt time.Time
}

// Settlement statuses as persisted by the guard/store.
const (
	SettlementReserved  = "RESERVED"
	SettlementSettled   = "SETTLED"
	SettlementUncertain = "UNCERTAIN"
	SettlementFailed    = "FAILED"
)

// Settlement is the durable record of one pipeline run keyed by its payment
// reference. RESERVED rows are in-flight; UNCERTAIN rows carry an outbound
// signature whose fate is unknown.
type Settlement struct {
	Reference  PaymentReference
	Asset      string
	Payer      string
	Gross      decimal.Decimal
	Rate       decimal.Decimal
	RateSource RateSource
	Output     decimal.Decimal
	Outbound   string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
