package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the native coin's base-unit scale.
const LamportsPerSOL = 1_000_000_000

var lamportsPerSOLDec = decimal.NewFromInt(LamportsPerSOL)

// LamportsToSOL converts a lamport amount to SOL without precision loss.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOLDec)
}

// FromBaseUnits converts a raw token amount to human units at the given
// decimal precision.
func FromBaseUnits(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(raw).Shift(-int32(decimals))
}

// ToBaseUnits converts a human-readable amount to base units, truncating
// fractional base units. Non-positive results are rejected.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	shifted := amount.Shift(int32(decimals)).Truncate(0)
	bi := shifted.BigInt()
	if bi.Sign() <= 0 {
		return 0, fmt.Errorf("amount %s truncates to no base units", amount)
	}
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows base units", amount)
	}
	return bi.Uint64(), nil
}
