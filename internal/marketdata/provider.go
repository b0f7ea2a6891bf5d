package marketdata

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by the gateway and its providers.
var (
	// ErrNoPrice means every configured provider failed to return a price.
	// Callers must degrade to a safe monitoring state, never guess.
	ErrNoPrice = errors.New("marketdata: no price available")

	// ErrNoChain means no option chain could be fetched for the expiration.
	ErrNoChain = errors.New("marketdata: no option chain available")

	// ErrNotSupported is returned by a provider that does not serve a
	// particular data type; the gateway tries the next provider.
	ErrNotSupported = errors.New("marketdata: not supported by provider")
)

// Provider is a single upstream market data source. Optional calendar data
// (earnings, dividends) reports absence via ok=false, not an error, since
// absence must not block the decision pipeline.
type Provider interface {
	Name() string
	UnderlyingPrice(ctx context.Context, symbol string) (float64, error)
	OptionChain(ctx context.Context, symbol string, expiration time.Time) (*Chain, error)
	Expirations(ctx context.Context, symbol string) ([]time.Time, error)
	EarningsDate(ctx context.Context, symbol string) (time.Time, bool, error)
	ExDividendDate(ctx context.Context, symbol string) (ExDividend, bool, error)
	PriceHistory(ctx context.Context, symbol string, days int) ([]PriceBar, error)
}
