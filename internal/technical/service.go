// Package technical computes indicators and recommends option strikes from
// live chains, with a volatility-based fallback when greeks are missing.
package technical

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"options-advisor/internal/marketdata"
)

// MarketData is the slice of the market data gateway the service consumes.
type MarketData interface {
	UnderlyingPrice(ctx context.Context, symbol string) (float64, error)
	OptionChain(ctx context.Context, symbol string, expiration time.Time) (*marketdata.Chain, error)
	PriceHistory(ctx context.Context, symbol string, days int) ([]marketdata.PriceBar, error)
}

// Indicators is a snapshot of the standard indicator set for one symbol.
type Indicators struct {
	CurrentPrice    float64 `json:"current_price"`
	RSI14           float64 `json:"rsi_14"`
	BollingerUpper  float64 `json:"bollinger_upper"`
	BollingerMiddle float64 `json:"bollinger_middle"`
	BollingerLower  float64 `json:"bollinger_lower"`
	SMA20           float64 `json:"sma_20"`
	SMA50           float64 `json:"sma_50"`
}

// Service computes indicators and strike recommendations.
type Service struct {
	market MarketData
	logger zerolog.Logger
	clock  func() time.Time
}

// NewService creates a technical analysis service.
func NewService(market MarketData, logger zerolog.Logger) *Service {
	return &Service{
		market: market,
		logger: logger.With().Str("component", "technical").Logger(),
		clock:  time.Now,
	}
}

// Indicators computes the indicator snapshot from ~90 days of history.
func (s *Service) Indicators(ctx context.Context, symbol string) (*Indicators, error) {
	price, err := s.market.UnderlyingPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	bars, err := s.market.PriceHistory(ctx, symbol, 90)
	if err != nil {
		return nil, fmt.Errorf("indicators for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}

	upper, middle, lower := CalculateBollinger(closes, 20)

	return &Indicators{
		CurrentPrice:    price,
		RSI14:           CalculateRSI(closes, 14),
		BollingerUpper:  upper,
		BollingerMiddle: middle,
		BollingerLower:  lower,
		SMA20:           CalculateSMA(closes, 20),
		SMA50:           CalculateSMA(closes, 50),
	}, nil
}

// RecommendStrike picks the strike whose probability of expiring OTM is
// closest to targetProbOTM. The primary method scans the live chain for the
// |delta| nearest (1 - targetProbOTM); when the chain carries no greeks it
// falls back to an implied strike from weekly volatility, rounded to a
// standard strike increment.
func (s *Service) RecommendStrike(ctx context.Context, symbol string, optionType marketdata.OptionType, expiration time.Time, targetProbOTM float64) (float64, error) {
	price, err := s.market.UnderlyingPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	targetDelta := 1 - targetProbOTM

	chain, err := s.market.OptionChain(ctx, symbol, expiration)
	if err == nil {
		if strike, ok := strikeByDelta(chain.Quotes(optionType), targetDelta); ok {
			return strike, nil
		}
	}

	// No chain or no greeks: derive an implied strike from volatility.
	strike, verr := s.impliedStrike(ctx, symbol, optionType, expiration, price, targetProbOTM)
	if verr != nil {
		if err != nil {
			return 0, fmt.Errorf("recommend strike for %s: %w", symbol, err)
		}
		return 0, verr
	}

	return strike, nil
}

// strikeByDelta scans chain quotes for the |delta| closest to target.
// Quotes without greeks are skipped; ok is false when none carry a delta.
func strikeByDelta(quotes []marketdata.OptionQuote, targetDelta float64) (float64, bool) {
	best := 0.0
	bestDiff := math.MaxFloat64
	found := false

	for _, q := range quotes {
		if q.Delta == 0 {
			continue
		}
		diff := math.Abs(math.Abs(q.Delta) - targetDelta)
		if diff < bestDiff {
			bestDiff = diff
			best = q.Strike
			found = true
		}
	}

	return best, found
}

// impliedStrike computes strike = price * (1 ± vol * z * sqrt(weeks)),
// sign chosen by option type.
func (s *Service) impliedStrike(ctx context.Context, symbol string, optionType marketdata.OptionType, expiration time.Time, price, targetProbOTM float64) (float64, error) {
	bars, err := s.market.PriceHistory(ctx, symbol, 90)
	if err != nil {
		return 0, fmt.Errorf("implied strike for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}

	vol := CalculateWeeklyVolatility(closes)
	if vol <= 0 {
		return 0, fmt.Errorf("implied strike for %s: no volatility estimate", symbol)
	}

	weeks := expiration.Sub(s.clock()).Hours() / 24 / 7
	if weeks < 1 {
		weeks = 1
	}

	z := NormInv(targetProbOTM)
	offset := vol * z * math.Sqrt(weeks)

	var strike float64
	if optionType == marketdata.Put {
		strike = price * (1 - offset)
	} else {
		strike = price * (1 + offset)
	}

	return RoundToStrikeIncrement(strike), nil
}

// RoundToStrikeIncrement snaps a raw strike to the standard listed
// increment: $0.50 under $25, $1 under $200, $5 above.
func RoundToStrikeIncrement(strike float64) float64 {
	switch {
	case strike < 25:
		return math.Round(strike*2) / 2
	case strike < 200:
		return math.Round(strike)
	default:
		return math.Round(strike/5) * 5
	}
}

// WaitAdvice is the outcome of ShouldWaitToSell.
type WaitAdvice struct {
	Wait       bool        `json:"wait"`
	Reason     string      `json:"reason"`
	Indicators *Indicators `json:"indicators"`
}

// ShouldWaitToSell advises whether to hold off selling a call against the
// symbol: wait when the stock looks oversold and likely to bounce, sell
// now when it looks stretched.
func (s *Service) ShouldWaitToSell(ctx context.Context, symbol string) (*WaitAdvice, error) {
	ind, err := s.Indicators(ctx, symbol)
	if err != nil {
		return nil, err
	}

	advice := &WaitAdvice{Indicators: ind}

	switch {
	case ind.RSI14 < 30:
		advice.Wait = true
		advice.Reason = fmt.Sprintf("RSI %.1f oversold, likely to bounce before selling", ind.RSI14)
	case ind.BollingerLower > 0 && ind.CurrentPrice <= ind.BollingerLower:
		advice.Wait = true
		advice.Reason = fmt.Sprintf("price %.2f at/below lower Bollinger band %.2f", ind.CurrentPrice, ind.BollingerLower)
	case ind.RSI14 > 70:
		advice.Reason = fmt.Sprintf("RSI %.1f overbought, good time to sell", ind.RSI14)
	case ind.BollingerUpper > 0 && ind.CurrentPrice >= ind.BollingerUpper*0.99:
		advice.Reason = fmt.Sprintf("price %.2f near upper Bollinger band %.2f", ind.CurrentPrice, ind.BollingerUpper)
	default:
		advice.Reason = "no strong signal either way"
	}

	return advice, nil
}
