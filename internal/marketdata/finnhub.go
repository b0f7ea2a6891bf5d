package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
)

// FinnhubProvider is the secondary data source, used when Yahoo is
// rate-limited or returns nothing. It also fills the calendar gaps
// (ex-dividend dates) the primary does not serve.
type FinnhubProvider struct {
	client *resty.Client
	apiKey string
}

// FinnhubConfig holds the settings for the Finnhub REST client.
type FinnhubConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewFinnhubProvider creates a Finnhub-backed provider.
func NewFinnhubProvider(cfg FinnhubConfig) *FinnhubProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)

	return &FinnhubProvider{
		client: client,
		apiKey: cfg.APIKey,
	}
}

func (p *FinnhubProvider) Name() string {
	return "finnhub"
}

type finnhubQuote struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// UnderlyingPrice returns the current quote price.
func (p *FinnhubProvider) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	if p.apiKey == "" {
		return 0, fmt.Errorf("finnhub API key not configured: %w", ErrNotSupported)
	}

	var result finnhubQuote
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  p.apiKey,
		}).
		SetResult(&result).
		Get("/quote")
	if err != nil {
		return 0, fmt.Errorf("finnhub quote for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("finnhub quote for %s: status %d", symbol, resp.StatusCode())
	}
	if result.Current <= 0 {
		return 0, fmt.Errorf("finnhub quote for %s: empty price", symbol)
	}

	return result.Current, nil
}

type finnhubContract struct {
	ContractName      string  `json:"contractName"`
	Strike            float64 `json:"strike"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	LastPrice         float64 `json:"lastPrice"`
	OpenInterest      int     `json:"openInterest"`
	Volume            int     `json:"volume"`
	Delta             float64 `json:"delta"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	InTheMoney        string  `json:"inTheMoney"`
}

type finnhubChainBlock struct {
	ExpirationDate string `json:"expirationDate"`
	Options        struct {
		Call []finnhubContract `json:"CALL"`
		Put  []finnhubContract `json:"PUT"`
	} `json:"options"`
}

type finnhubChainResponse struct {
	Code string              `json:"code"`
	Data []finnhubChainBlock `json:"data"`
}

// OptionChain returns the chain for the expiration closest to the requested
// date (Finnhub returns all expirations in one payload).
func (p *FinnhubProvider) OptionChain(ctx context.Context, symbol string, expiration time.Time) (*Chain, error) {
	resp, err := p.fetchChain(ctx, symbol)
	if err != nil {
		return nil, err
	}

	want := expiration.Format("2006-01-02")
	for _, block := range resp.Data {
		if block.ExpirationDate != want {
			continue
		}

		chain := &Chain{Symbol: symbol, Expiration: expiration}
		for _, c := range block.Options.Call {
			chain.Calls = append(chain.Calls, finnhubToQuote(c))
		}
		for _, c := range block.Options.Put {
			chain.Puts = append(chain.Puts, finnhubToQuote(c))
		}
		sort.Slice(chain.Calls, func(i, j int) bool { return chain.Calls[i].Strike < chain.Calls[j].Strike })
		sort.Slice(chain.Puts, func(i, j int) bool { return chain.Puts[i].Strike < chain.Puts[j].Strike })
		return chain, nil
	}

	return nil, ErrNoChain
}

// Expirations lists the expiration dates Finnhub serves for the symbol.
func (p *FinnhubProvider) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	resp, err := p.fetchChain(ctx, symbol)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, len(resp.Data))
	for _, block := range resp.Data {
		d, err := time.Parse("2006-01-02", block.ExpirationDate)
		if err != nil {
			continue
		}
		dates = append(dates, d.UTC())
	}
	if len(dates) == 0 {
		return nil, ErrNoChain
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return dates, nil
}

func (p *FinnhubProvider) fetchChain(ctx context.Context, symbol string) (*finnhubChainResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured: %w", ErrNotSupported)
	}

	var result finnhubChainResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  p.apiKey,
		}).
		SetResult(&result).
		Get("/stock/option-chain")
	if err != nil {
		return nil, fmt.Errorf("finnhub chain for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("finnhub chain for %s: status %d", symbol, resp.StatusCode())
	}

	return &result, nil
}

type finnhubEarnings struct {
	EarningsCalendar []struct {
		Date   string `json:"date"`
		Symbol string `json:"symbol"`
	} `json:"earningsCalendar"`
}

// EarningsDate returns the next earnings date within the coming year.
func (p *FinnhubProvider) EarningsDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	if p.apiKey == "" {
		return time.Time{}, false, ErrNotSupported
	}

	now := time.Now()
	var result finnhubEarnings
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"from":   now.Format("2006-01-02"),
			"to":     now.AddDate(1, 0, 0).Format("2006-01-02"),
			"token":  p.apiKey,
		}).
		SetResult(&result).
		Get("/calendar/earnings")
	if err != nil {
		return time.Time{}, false, fmt.Errorf("finnhub earnings for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return time.Time{}, false, fmt.Errorf("finnhub earnings for %s: status %d", symbol, resp.StatusCode())
	}

	var next time.Time
	for _, e := range result.EarningsCalendar {
		d, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			continue
		}
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	if next.IsZero() {
		return time.Time{}, false, nil
	}

	return next.UTC(), true, nil
}

type finnhubDividend struct {
	ExDate string  `json:"exDate"`
	Amount float64 `json:"amount"`
}

// ExDividendDate returns the next upcoming ex-dividend date and amount.
func (p *FinnhubProvider) ExDividendDate(ctx context.Context, symbol string) (ExDividend, bool, error) {
	if p.apiKey == "" {
		return ExDividend{}, false, ErrNotSupported
	}

	now := time.Now()
	var result []finnhubDividend
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"from":   now.Format("2006-01-02"),
			"to":     now.AddDate(0, 6, 0).Format("2006-01-02"),
			"token":  p.apiKey,
		}).
		SetResult(&result).
		Get("/stock/dividend")
	if err != nil {
		return ExDividend{}, false, fmt.Errorf("finnhub dividends for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return ExDividend{}, false, fmt.Errorf("finnhub dividends for %s: status %d", symbol, resp.StatusCode())
	}

	var next ExDividend
	for _, d := range result {
		exDate, err := time.Parse("2006-01-02", d.ExDate)
		if err != nil || exDate.Before(now) {
			continue
		}
		if next.Date.IsZero() || exDate.Before(next.Date) {
			next = ExDividend{Date: exDate.UTC(), Amount: d.Amount}
		}
	}
	if next.Date.IsZero() {
		return ExDividend{}, false, nil
	}

	return next, true, nil
}

type finnhubCandles struct {
	Close     []float64 `json:"c"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Open      []float64 `json:"o"`
	Timestamp []int64   `json:"t"`
	Volume    []int64   `json:"v"`
	Status    string    `json:"s"`
}

// PriceHistory returns daily candles for the trailing window.
func (p *FinnhubProvider) PriceHistory(ctx context.Context, symbol string, days int) ([]PriceBar, error) {
	if p.apiKey == "" {
		return nil, ErrNotSupported
	}

	now := time.Now()
	var result finnhubCandles
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":     symbol,
			"resolution": "D",
			"from":       fmt.Sprintf("%d", now.AddDate(0, 0, -days).Unix()),
			"to":         fmt.Sprintf("%d", now.Unix()),
			"token":      p.apiKey,
		}).
		SetResult(&result).
		Get("/stock/candle")
	if err != nil {
		return nil, fmt.Errorf("finnhub candles for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("finnhub candles for %s: status %d", symbol, resp.StatusCode())
	}
	if result.Status != "ok" || len(result.Close) == 0 {
		return nil, fmt.Errorf("finnhub candles for %s: no data", symbol)
	}

	bars := make([]PriceBar, 0, len(result.Close))
	for i := range result.Close {
		bar := PriceBar{Close: result.Close[i]}
		if i < len(result.Open) {
			bar.Open = result.Open[i]
		}
		if i < len(result.High) {
			bar.High = result.High[i]
		}
		if i < len(result.Low) {
			bar.Low = result.Low[i]
		}
		if i < len(result.Timestamp) {
			bar.Date = time.Unix(result.Timestamp[i], 0).UTC()
		}
		if i < len(result.Volume) {
			bar.Volume = result.Volume[i]
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func finnhubToQuote(c finnhubContract) OptionQuote {
	return OptionQuote{
		Strike:            c.Strike,
		Bid:               c.Bid,
		Ask:               c.Ask,
		LastPrice:         c.LastPrice,
		OpenInterest:      c.OpenInterest,
		Volume:            c.Volume,
		Delta:             c.Delta,
		ImpliedVolatility: c.ImpliedVolatility,
		InTheMoney:        c.InTheMoney == "TRUE",
	}
}
