package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrQuoteUnavailable reports that no live quote could be obtained. The
// converter treats it as a signal to fall back, never as fatal.
var ErrQuoteUnavailable = errors.New("spot quote unavailable")

// Feed supplies live spot quotes for an asset against a reference currency.
type Feed interface {
	GetSpotQuote(ctx context.Context, symbol, currency string) (decimal.Decimal, error)
}

// feed ids for the public simple-price endpoint
var feedIDs = map[string]string{
	"SOL":  "solana",
	"USDC": "usd-coin",
	"USDT": "tether",
}

// HTTPFeed fetches quotes from a Coingecko-compatible simple-price API.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFeed) GetSpotQuote(ctx context.Context, symbol, currency string) (decimal.Decimal, error) {
	id, ok := feedIDs[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no feed id for %s", ErrQuoteUnavailable, symbol)
	}
	vs := strings.ToLower(currency)

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", f.baseURL, url.QueryEscape(id), url.QueryEscape(vs))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: feed returned %d", ErrQuoteUnavailable, res.StatusCode)
	}

	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	quote, ok := payload[id][vs]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: missing %s/%s in response", ErrQuoteUnavailable, id, vs)
	}
	d, err := decimal.NewFromString(quote.String())
	if err != nil || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bad quote %q", ErrQuoteUnavailable, quote)
	}
	return d, nil
}

// StaticFeed serves fixed quotes, for tests and offline setups.
type StaticFeed struct {
	Quotes map[string]decimal.Decimal // keyed "SYMBOL/CURRENCY"
}

func (f *StaticFeed) GetSpotQuote(ctx context.Context, symbol, currency string) (decimal.Decimal, error) {
	key := strings.ToUpper(symbol) + "/" + strings.ToUpper(currency)
	if q, ok := f.Quotes[key]; ok {
		return q, nil
	}
	return decimal.Zero, fmt.Errorf("%w: no static quote for %s", ErrQuoteUnavailable, key)
}
