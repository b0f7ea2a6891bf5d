package roll

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-advisor/internal/marketdata"
	"options-advisor/internal/position"
)

// fakeMarket is a canned-data MarketData for search tests.
type fakeMarket struct {
	price       float64
	expirations []time.Time
	chains      map[time.Time]*marketdata.Chain
	earnings    time.Time
	hasEarnings bool
	exDiv       marketdata.ExDividend
	hasExDiv    bool
}

func (m *fakeMarket) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, nil
}

func (m *fakeMarket) OptionChain(ctx context.Context, symbol string, expiration time.Time) (*marketdata.Chain, error) {
	if c, ok := m.chains[expiration]; ok {
		return c, nil
	}
	return nil, marketdata.ErrNoChain
}

func (m *fakeMarket) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return m.expirations, nil
}

func (m *fakeMarket) EarningsDate(ctx context.Context, symbol string) (time.Time, bool) {
	return m.earnings, m.hasEarnings
}

func (m *fakeMarket) ExDividendDate(ctx context.Context, symbol string) (marketdata.ExDividend, bool) {
	return m.exDiv, m.hasExDiv
}

// fixedStrikes always recommends the same strike.
type fixedStrikes struct{ strike float64 }

func (s fixedStrikes) RecommendStrike(ctx context.Context, symbol string, optionType marketdata.OptionType, expiration time.Time, targetProbOTM float64) (float64, error) {
	return s.strike, nil
}

// Monday 2026-03-02, mid-morning.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// Consecutive weekly Fridays starting 2026-03-06.
func weeklyFridays(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i)
	}
	return out
}

func callChain(exp time.Time, premiumAt115 float64) *marketdata.Chain {
	return &marketdata.Chain{
		Expiration: exp,
		Calls: []marketdata.OptionQuote{
			{Strike: 105, Bid: 12, Ask: 13},
			{Strike: 110, Bid: 8, Ask: 9},
			{Strike: 115, Bid: premiumAt115 - 0.5, Ask: premiumAt115 + 0.5, Delta: 0.30},
			{Strike: 120, Bid: 1, Ask: 1.2},
		},
	}
}

func newTestFinder(m *fakeMarket, strike float64) *Finder {
	f := NewFinder(m, fixedStrikes{strike: strike}, zerolog.Nop())
	f.clock = func() time.Time { return testNow }
	return f
}

func itmCall() *position.Position {
	return &position.Position{
		ID:              "p1",
		Symbol:          "AAPL",
		Account:         "acct1",
		TaxType:         position.Taxable,
		Kind:            position.CoveredCall,
		Strike:          100,
		Expiration:      time.Date(2026, 3, 6, 16, 0, 0, 0, time.UTC),
		Contracts:       1,
		OriginalPremium: 3,
		CurrentMark:     10.5,
		UnderlyingPrice: 110,
	}
}

func TestFindZeroCostRollShortestDurationWins(t *testing.T) {
	exps := weeklyFridays(6)
	m := &fakeMarket{
		price:       110,
		expirations: exps,
		chains: map[time.Time]*marketdata.Chain{
			exps[0]: callChain(exps[0], 2),    // net 8.50, too expensive
			exps[1]: callChain(exps[1], 9),    // net 1.50, acceptable
			exps[2]: callChain(exps[2], 10.5), // net 0, also acceptable but later
		},
	}
	f := newTestFinder(m, 115)

	cand, err := f.FindZeroCostRoll(context.Background(), itmCall(), 2, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a roll candidate")
	}
	if !cand.Expiration.Equal(exps[1]) {
		t.Errorf("expected shortest acceptable expiration %v, got %v", exps[1], cand.Expiration)
	}
	if cand.NetCost != 1.5 {
		t.Errorf("expected net cost 1.50, got %.2f", cand.NetCost)
	}
	if cand.WeeksOut != 2 {
		t.Errorf("expected 2 weeks out, got %d", cand.WeeksOut)
	}
}

func TestFindZeroCostRollSkipsEarningsWindow(t *testing.T) {
	exps := weeklyFridays(6)
	m := &fakeMarket{
		price:       110,
		expirations: exps,
		chains: map[time.Time]*marketdata.Chain{
			exps[0]: callChain(exps[0], 10),
			exps[1]: callChain(exps[1], 10),
		},
		// Earnings before the first weekly: both 1w and 2w contain it,
		// so both rungs must be skipped even though their premiums pass.
		earnings:    time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		hasEarnings: true,
	}
	f := newTestFinder(m, 115)

	cand, err := f.FindZeroCostRoll(context.Background(), itmCall(), 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand != nil {
		t.Errorf("expected no candidate inside the earnings window, got %+v", cand)
	}
}

func TestFindZeroCostRollSkipsExDividendWindow(t *testing.T) {
	exps := weeklyFridays(6)
	m := &fakeMarket{
		price:       110,
		expirations: exps,
		chains: map[time.Time]*marketdata.Chain{
			exps[0]: callChain(exps[0], 10),
			exps[1]: callChain(exps[1], 10),
		},
		exDiv: marketdata.ExDividend{
			Date:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Amount: 0.25,
		},
		hasExDiv: true,
	}
	f := newTestFinder(m, 115)

	cand, err := f.FindZeroCostRoll(context.Background(), itmCall(), 2, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1w expires before the ex-div date and stays eligible; 2w contains it.
	if cand == nil {
		t.Fatal("expected the pre-dividend weekly to qualify")
	}
	if !cand.Expiration.Equal(exps[0]) {
		t.Errorf("expected expiration %v, got %v", exps[0], cand.Expiration)
	}
}

func TestFindZeroCostRollClampsBuyBackToIntrinsic(t *testing.T) {
	exps := weeklyFridays(2)
	m := &fakeMarket{
		price:       110,
		expirations: exps,
		chains: map[time.Time]*marketdata.Chain{
			exps[0]: callChain(exps[0], 9),
		},
	}
	f := newTestFinder(m, 115)

	pos := itmCall()
	pos.CurrentMark = 4 // bad mark, intrinsic is 10

	cand, err := f.FindZeroCostRoll(context.Background(), pos, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	// Net cost must use the clamped buy-back (10), not the stale mark (4).
	if cand.NetCost != 1 {
		t.Errorf("expected net cost 1.00 from intrinsic clamp, got %.2f", cand.NetCost)
	}
}

func TestFindZeroCostRollExhaustedReturnsNil(t *testing.T) {
	exps := weeklyFridays(60)
	chains := make(map[time.Time]*marketdata.Chain, len(exps))
	for _, exp := range exps {
		chains[exp] = callChain(exp, 2) // never enough premium
	}
	m := &fakeMarket{price: 110, expirations: exps, chains: chains}
	f := newTestFinder(m, 115)

	cand, err := f.FindZeroCostRoll(context.Background(), itmCall(), 2, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand != nil {
		t.Errorf("expected nil on exhausted search, got %+v", cand)
	}
}

func TestCallRollsUp(t *testing.T) {
	exps := weeklyFridays(2)
	m := &fakeMarket{
		price:       110,
		expirations: exps,
		chains: map[time.Time]*marketdata.Chain{
			exps[0]: callChain(exps[0], 9),
		},
	}
	// Recommended strike 105 is below the underlying: the finder must step
	// up to the nearest strike above max(oldStrike, underlying).
	f := newTestFinder(m, 105)

	cand, err := f.FindZeroCostRoll(context.Background(), itmCall(), 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	if cand.Strike != 115 {
		t.Errorf("call must roll up above the underlying, expected 115, got %.2f", cand.Strike)
	}
}

func TestPutRollsDown(t *testing.T) {
	exps := weeklyFridays(2)
	chain := &marketdata.Chain{
		Expiration: exps[0],
		Puts: []marketdata.OptionQuote{
			{Strike: 80, Bid: 1, Ask: 1.2},
			{Strike: 85, Bid: 9.5, Ask: 10.5, Delta: -0.30},
			{Strike: 90, Bid: 12, Ask: 13},
			{Strike: 100, Bid: 15, Ask: 16},
		},
	}
	m := &fakeMarket{
		price:       90,
		expirations: exps,
		chains:      map[time.Time]*marketdata.Chain{exps[0]: chain},
	}
	// Recommended strike 95 is above the underlying: the finder must step
	// down to the nearest strike below min(oldStrike, underlying).
	f := newTestFinder(m, 95)

	pos := &position.Position{
		ID:              "p2",
		Symbol:          "XYZ",
		Account:         "acct1",
		TaxType:         position.IRA,
		Kind:            position.CoveredPut,
		Strike:          100,
		Expiration:      exps[0],
		Contracts:       1,
		OriginalPremium: 3,
		CurrentMark:     10.25,
		UnderlyingPrice: 90,
	}

	cand, err := f.FindZeroCostRoll(context.Background(), pos, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	if cand.Strike != 85 {
		t.Errorf("put must roll down below the underlying, expected 85, got %.2f", cand.Strike)
	}
	if cand.NetCost != 0.25 {
		t.Errorf("expected net cost 0.25, got %.2f", cand.NetCost)
	}
}

func TestDuplicateCandidateSkipped(t *testing.T) {
	exps := weeklyFridays(6)
	m := &fakeMarket{
		price:       110,
		expirations: exps,
		chains: map[time.Time]*marketdata.Chain{
			// Identical strike/premium on adjacent rungs is a provider
			// failure mode; the second occurrence must not be returned.
			exps[0]: callChain(exps[0], 9),
			exps[1]: callChain(exps[1], 9),
			exps[2]: callChain(exps[2], 10),
		},
	}
	f := newTestFinder(m, 115)

	pos := itmCall()
	// First rung rejected by debit, second is its duplicate.
	cand, err := f.FindZeroCostRoll(context.Background(), pos, 1, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected a candidate")
	}
	if !cand.Expiration.Equal(exps[2]) {
		t.Errorf("expected the duplicate rung to be skipped, got expiration %v", cand.Expiration)
	}
}
