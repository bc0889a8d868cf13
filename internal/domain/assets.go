package domain

import (
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// NativeSymbol is the registry symbol for native-coin payments.
const NativeSymbol = "SOL"

// Asset describes one accepted payment asset. For the native entry Mint is
// the zero key. A zero FixedRate means no fixed rate is configured and the
// converter falls through to the live/fallback policy.
type Asset struct {
	Symbol    string
	Mint      solana.PublicKey
	FixedRate decimal.Decimal
}

// IsNative reports whether the asset is the native coin entry.
func (a Asset) IsNative() bool { return a.Symbol == NativeSymbol }

// AssetRegistry maps accepted asset symbols to their ledger identifiers.
// Built once at startup, read-only afterwards.
type AssetRegistry struct {
	assets map[string]Asset
}

func NewAssetRegistry(assets ...Asset) *AssetRegistry {
	m := make(map[string]Asset, len(assets))
	for _, a := range assets {
		m[strings.ToUpper(a.Symbol)] = a
	}
	return &AssetRegistry{assets: m}
}

// Lookup resolves a symbol case-insensitively.
func (r *AssetRegistry) Lookup(symbol string) (Asset, bool) {
	a, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return a, ok
}

// Symbols returns the accepted symbols in stable order.
func (r *AssetRegistry) Symbols() []string {
	out := make([]string, 0, len(r.assets))
	for s := range r.assets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
