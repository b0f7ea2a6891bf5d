package technical

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-advisor/internal/marketdata"
)

var serviceNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestService(mock *marketdata.MockProvider) *Service {
	s := NewService(mock, zerolog.Nop())
	s.clock = func() time.Time { return serviceNow }
	return s
}

func bars(closes ...float64) []marketdata.PriceBar {
	out := make([]marketdata.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = marketdata.PriceBar{
			Date:  serviceNow.AddDate(0, 0, i-len(closes)),
			Close: c,
		}
	}
	return out
}

func alternatingCloses(n int, low, high float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = low
		} else {
			out[i] = high
		}
	}
	return out
}

func TestRecommendStrikePicksClosestDelta(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("AAPL", 200)

	exp := serviceNow.AddDate(0, 0, 4)
	mock.SetChain(&marketdata.Chain{
		Symbol:     "AAPL",
		Expiration: exp,
		Calls: []marketdata.OptionQuote{
			{Strike: 205, Delta: 0.42},
			{Strike: 210, Delta: 0.28},
			{Strike: 215, Delta: 0.12},
			{Strike: 220, Delta: 0.06},
		},
	})

	svc := newTestService(mock)

	strike, err := svc.RecommendStrike(context.Background(), "AAPL", marketdata.Call, exp, 0.90)
	require.NoError(t, err)
	assert.InDelta(t, 215.0, strike, 1e-9, "delta 0.12 is closest to the 0.10 target")

	strike, err = svc.RecommendStrike(context.Background(), "AAPL", marketdata.Call, exp, 0.70)
	require.NoError(t, err)
	assert.InDelta(t, 210.0, strike, 1e-9, "delta 0.28 is closest to the 0.30 target")
}

func TestRecommendStrikeFallsBackToImpliedStrike(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("AAPL", 100)
	mock.SetHistory("AAPL", bars(alternatingCloses(60, 100, 110)...))

	// Chain exists but carries no greeks.
	exp := serviceNow.AddDate(0, 0, 7)
	mock.SetChain(&marketdata.Chain{
		Symbol:     "AAPL",
		Expiration: exp,
		Calls:      []marketdata.OptionQuote{{Strike: 105}, {Strike: 110}},
	})

	svc := newTestService(mock)

	callStrike, err := svc.RecommendStrike(context.Background(), "AAPL", marketdata.Call, exp, 0.90)
	require.NoError(t, err)
	assert.Greater(t, callStrike, 100.0, "call strike sits above the price")
	assert.Equal(t, RoundToStrikeIncrement(callStrike), callStrike)

	putStrike, err := svc.RecommendStrike(context.Background(), "AAPL", marketdata.Put, exp, 0.90)
	require.NoError(t, err)
	assert.Less(t, putStrike, 100.0, "put strike sits below the price")
	assert.Equal(t, RoundToStrikeIncrement(putStrike), putStrike)
}

func TestRecommendStrikeNoDataFails(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("XYZ", 50)

	svc := newTestService(mock)

	_, err := svc.RecommendStrike(context.Background(), "XYZ", marketdata.Call, serviceNow.AddDate(0, 0, 7), 0.90)
	assert.Error(t, err, "no chain and no history leaves nothing to recommend from")
}

func TestRoundToStrikeIncrement(t *testing.T) {
	assert.InDelta(t, 17.5, RoundToStrikeIncrement(17.3), 1e-9)
	assert.InDelta(t, 17.0, RoundToStrikeIncrement(17.2), 1e-9)
	assert.InDelta(t, 96.0, RoundToStrikeIncrement(96.4), 1e-9)
	assert.InDelta(t, 97.0, RoundToStrikeIncrement(96.6), 1e-9)
	assert.InDelta(t, 410.0, RoundToStrikeIncrement(412), 1e-9)
	assert.InDelta(t, 415.0, RoundToStrikeIncrement(413), 1e-9)
}

func TestShouldWaitToSellOversold(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("NVDA", 120)

	falling := make([]float64, 40)
	for i := range falling {
		falling[i] = 160 - float64(i)
	}
	mock.SetHistory("NVDA", bars(falling...))

	svc := newTestService(mock)

	advice, err := svc.ShouldWaitToSell(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.True(t, advice.Wait)
	assert.Contains(t, advice.Reason, "oversold")
}

func TestShouldWaitToSellAtLowerBand(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("NVDA", 99.0) // below the ~99.5 lower band
	mock.SetHistory("NVDA", bars(alternatingCloses(40, 100, 101)...))

	svc := newTestService(mock)

	advice, err := svc.ShouldWaitToSell(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.True(t, advice.Wait)
	assert.Contains(t, advice.Reason, "Bollinger")
}

func TestShouldWaitToSellOverbought(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("NVDA", 145)

	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	mock.SetHistory("NVDA", bars(rising...))

	svc := newTestService(mock)

	advice, err := svc.ShouldWaitToSell(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.False(t, advice.Wait)
	assert.Contains(t, advice.Reason, "overbought")
}

func TestShouldWaitToSellNeutral(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("NVDA", 100.0)
	mock.SetHistory("NVDA", bars(alternatingCloses(40, 100, 101)...))

	svc := newTestService(mock)

	advice, err := svc.ShouldWaitToSell(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.False(t, advice.Wait)
	assert.Equal(t, "no strong signal either way", advice.Reason)
}

func TestIndicatorsSnapshot(t *testing.T) {
	mock := marketdata.NewMockProvider()
	mock.SetPrice("MSFT", 430)
	mock.SetHistory("MSFT", bars(alternatingCloses(60, 428, 430)...))

	svc := newTestService(mock)

	ind, err := svc.Indicators(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.InDelta(t, 430.0, ind.CurrentPrice, 1e-9)
	assert.InDelta(t, 429.0, ind.SMA20, 1e-9)
	assert.InDelta(t, 429.0, ind.SMA50, 1e-9)
	assert.Greater(t, ind.BollingerUpper, ind.BollingerMiddle)
	assert.Less(t, ind.BollingerLower, ind.BollingerMiddle)
}
