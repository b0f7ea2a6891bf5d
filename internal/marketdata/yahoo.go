package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/options"
	"github.com/piquette/finance-go/quote"
)

// riskFreeRate is the flat rate used when deriving greeks from implied vol.
const riskFreeRate = 0.04

// YahooProvider serves prices, option chains and history from Yahoo Finance.
// Yahoo chains carry implied volatility but no greeks, so delta is derived
// with Black-Scholes from the quoted IV.
type YahooProvider struct{}

// NewYahooProvider creates the Yahoo-backed provider.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{}
}

func (p *YahooProvider) Name() string {
	return "yahoo"
}

// UnderlyingPrice returns the latest regular-market price.
func (p *YahooProvider) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, fmt.Errorf("yahoo quote for %s: %w", symbol, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("yahoo quote for %s: empty price", symbol)
	}
	return q.RegularMarketPrice, nil
}

// OptionChain fetches the straddle chain for one expiration and splits it
// into call and put sides sorted by strike.
func (p *YahooProvider) OptionChain(ctx context.Context, symbol string, expiration time.Time) (*Chain, error) {
	exp := expiration
	params := &options.Params{
		UnderlyingSymbol: symbol,
		Expiration:       datetime.New(&exp),
	}

	underlying, err := p.UnderlyingPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	iter := options.GetStraddleP(params)

	chain := &Chain{Symbol: symbol, Expiration: expiration}
	yearsOut := time.Until(expiration).Hours() / 24 / 365
	if yearsOut <= 0 {
		yearsOut = 1.0 / 365
	}

	for iter.Next() {
		s := iter.Straddle()
		if s.Call != nil {
			chain.Calls = append(chain.Calls, contractToQuote(s.Call, underlying, yearsOut, Call))
		}
		if s.Put != nil {
			chain.Puts = append(chain.Puts, contractToQuote(s.Put, underlying, yearsOut, Put))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chain for %s %s: %w", symbol, expiration.Format("2006-01-02"), err)
	}
	if len(chain.Calls) == 0 && len(chain.Puts) == 0 {
		return nil, ErrNoChain
	}

	sort.Slice(chain.Calls, func(i, j int) bool { return chain.Calls[i].Strike < chain.Calls[j].Strike })
	sort.Slice(chain.Puts, func(i, j int) bool { return chain.Puts[i].Strike < chain.Puts[j].Strike })

	return chain, nil
}

// Expirations lists the available option expiration dates for a symbol.
func (p *YahooProvider) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	iter := options.GetStraddle(symbol)
	for iter.Next() {
		// Drain so the meta block is fully populated.
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo expirations for %s: %w", symbol, err)
	}

	meta := iter.Meta()
	if meta == nil || len(meta.AllExpirationDates) == 0 {
		return nil, ErrNoChain
	}

	dates := make([]time.Time, 0, len(meta.AllExpirationDates))
	for _, ts := range meta.AllExpirationDates {
		dates = append(dates, time.Unix(int64(ts), 0).UTC())
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return dates, nil
}

// EarningsDate returns the next scheduled earnings announcement, if Yahoo
// publishes one for the symbol.
func (p *YahooProvider) EarningsDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	q, err := equity.Get(symbol)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("yahoo quote for %s: %w", symbol, err)
	}
	if q == nil || q.EarningsTimestamp <= 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(int64(q.EarningsTimestamp), 0).UTC(), true, nil
}

// ExDividendDate is not served by the quote endpoint; the gateway falls
// through to the next provider.
func (p *YahooProvider) ExDividendDate(ctx context.Context, symbol string) (ExDividend, bool, error) {
	return ExDividend{}, false, ErrNotSupported
}

// PriceHistory returns daily bars for the trailing window.
func (p *YahooProvider) PriceHistory(ctx context.Context, symbol string, days int) ([]PriceBar, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)

	var bars []PriceBar
	for iter.Next() {
		bar := iter.Bar()
		bars = append(bars, PriceBar{
			Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:   bar.Open.InexactFloat64(),
			High:   bar.High.InexactFloat64(),
			Low:    bar.Low.InexactFloat64(),
			Close:  bar.Close.InexactFloat64(),
			Volume: int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo history for %s: %w", symbol, err)
	}

	return bars, nil
}

func contractToQuote(c *finance.Contract, underlying, yearsOut float64, optionType OptionType) OptionQuote {
	q := OptionQuote{
		Strike:            c.Strike,
		Bid:               c.Bid,
		Ask:               c.Ask,
		LastPrice:         c.LastPrice,
		OpenInterest:      c.OpenInterest,
		Volume:            c.Volume,
		ImpliedVolatility: c.ImpliedVolatility,
		InTheMoney:        c.InTheMoney,
	}
	if c.ImpliedVolatility > 0 && underlying > 0 && c.Strike > 0 {
		q.Delta = bsDelta(underlying, c.Strike, c.ImpliedVolatility, yearsOut, optionType)
	}
	return q
}

// bsDelta computes the Black-Scholes delta from implied volatility.
func bsDelta(spot, strike, sigma, years float64, optionType OptionType) float64 {
	d1 := (math.Log(spot/strike) + (riskFreeRate+sigma*sigma/2)*years) / (sigma * math.Sqrt(years))
	nd1 := normCDF(d1)
	if optionType == Put {
		return nd1 - 1
	}
	return nd1
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
