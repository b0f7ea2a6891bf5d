package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-advisor/config"
	"options-advisor/internal/position"
	"options-advisor/internal/roll"
	"options-advisor/internal/technical"
)

type fakeRolls struct {
	pullBack    *roll.RollCandidate
	compress    *roll.RollCandidate
	zeroCost    *roll.RollCandidate
	weekly      *roll.RollCandidate
	searchErr   error
	gotMaxDebit float64
	gotCompress roll.CompressOptions
}

func (f *fakeRolls) FindZeroCostRoll(ctx context.Context, pos *position.Position, maxDebit float64, maxWeeksOut int) (*roll.RollCandidate, error) {
	f.gotMaxDebit = maxDebit
	return f.zeroCost, f.searchErr
}

func (f *fakeRolls) CheckPullBack(ctx context.Context, pos *position.Position, maxCostFraction float64) (*roll.RollCandidate, error) {
	return f.pullBack, f.searchErr
}

func (f *fakeRolls) FindCompress(ctx context.Context, pos *position.Position, opts roll.CompressOptions) (*roll.RollCandidate, error) {
	f.gotCompress = opts
	return f.compress, f.searchErr
}

func (f *fakeRolls) FindWeeklyRoll(ctx context.Context, pos *position.Position, targetProbOTM float64) (*roll.RollCandidate, error) {
	return f.weekly, f.searchErr
}

type fakeAdvisor struct {
	advice *technical.WaitAdvice
	err    error
}

func (f *fakeAdvisor) ShouldWaitToSell(ctx context.Context, symbol string) (*technical.WaitAdvice, error) {
	return f.advice, f.err
}

type fakePrice struct {
	price float64
	err   error
}

func (f *fakePrice) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.err
}

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		WeeklyDeltaTarget:     0.10,
		EscapeDeltaTarget:     0.30,
		MaxWeeksOut:           52,
		PullBackCostFraction:  0.20,
		CompressITMMaxPercent: 5,
		CompressSameStrikeMax: 1,
		CompressMoveOTMMax:    5,
		ProfitCapturedMin:     60,
		NearITMWarnPercent:    2,
		NearITMWarnDays:       7,
		FarDatedDays:          60,
	}
}

var evalNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestEvaluator(rolls *fakeRolls, advisor *fakeAdvisor, price *fakePrice) *Evaluator {
	e := NewEvaluator(rolls, advisor, price, testPolicy(), zerolog.Nop())
	e.clock = func() time.Time { return evalNow }
	return e
}

// avgoPut mirrors a $350 put, 8 days out, underlying 346 (1.1% ITM),
// 79% of the $1.80 premium captured, taxable account.
func avgoPut() *position.Position {
	return &position.Position{
		ID:              "avgo-1",
		Symbol:          "AVGO",
		Account:         "brokerage",
		TaxType:         position.Taxable,
		Kind:            position.CoveredPut,
		Strike:          350,
		Expiration:      evalNow.AddDate(0, 0, 8),
		Contracts:       1,
		OriginalPremium: 1.80,
		CurrentMark:     0.38,
		UnderlyingPrice: 346,
	}
}

func TestSlightlyITMProfitableCompresses(t *testing.T) {
	rolls := &fakeRolls{
		compress: &roll.RollCandidate{
			Expiration: evalNow.AddDate(0, 0, 7),
			WeeksOut:   1,
			Strike:     340,
			NewPremium: 0.58,
			NetCost:    -0.20,
		},
	}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 346})

	res := e.Evaluate(context.Background(), avgoPut())
	require.Equal(t, ActionCompress, res.Action)
	assert.Equal(t, PriorityMedium, res.Priority)
	assert.Equal(t, 340.0, res.ProposedStrike)
	assert.Equal(t, -0.20, res.NetCost)
}

func TestCompressTakesPriorityOverEscape(t *testing.T) {
	// Both a compress and a zero-cost escape exist; the compress must win.
	rolls := &fakeRolls{
		compress: &roll.RollCandidate{WeeksOut: 1, Strike: 340, NetCost: 0.5},
		zeroCost: &roll.RollCandidate{WeeksOut: 4, Strike: 330, NetCost: 0},
	}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 346})

	res := e.Evaluate(context.Background(), avgoPut())
	require.Equal(t, ActionCompress, res.Action)
}

func TestFarDatedITMMonitorsInsteadOfClosing(t *testing.T) {
	// TSLA $370 call, 254 days out, underlying 435 (~17.6% ITM): deep ITM
	// but far-dated, and no compress window is available.
	pos := &position.Position{
		ID:              "tsla-1",
		Symbol:          "TSLA",
		Account:         "brokerage",
		TaxType:         position.Taxable,
		Kind:            position.CoveredCall,
		Strike:          370,
		Expiration:      evalNow.AddDate(0, 0, 254),
		Contracts:       1,
		OriginalPremium: 12,
		CurrentMark:     70,
		UnderlyingPrice: 435,
	}
	rolls := &fakeRolls{}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 435})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionMonitor, res.Action)
	assert.Equal(t, PriorityLow, res.Priority)
	assert.Contains(t, res.Reason, "awaiting mean reversion")
	// The far-dated compress attempt must target the 45-90 day window.
	assert.Equal(t, 45, rolls.gotCompress.MinDays)
	assert.Equal(t, 90, rolls.gotCompress.MaxDays)
}

func TestCatastrophicOnlyWhenSearchExhausted(t *testing.T) {
	pos := avgoPut()
	pos.UnderlyingPrice = 320 // 8.6% ITM, too deep for compress
	pos.CurrentMark = 31

	// A 48-week candidate exists: the engine must roll, never close.
	rolls := &fakeRolls{zeroCost: &roll.RollCandidate{WeeksOut: 48, Strike: 310, NetCost: 1}}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 320})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionRollITM, res.Action)
	assert.Equal(t, PriorityHigh, res.Priority)
	assert.Equal(t, 3.0, rolls.gotMaxDebit, "5-10 percent ITM band uses the $3 debit cap")

	// Exhausted search: only now is a close allowed.
	rolls.zeroCost = nil
	res = e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionCloseCatastrophe, res.Action)
	assert.Equal(t, PriorityUrgent, res.Priority)
}

func TestEscapeDebitLadder(t *testing.T) {
	assert.Equal(t, 2.0, escapeDebit(3))
	assert.Equal(t, 2.0, escapeDebit(5))
	assert.Equal(t, 3.0, escapeDebit(7.5))
	assert.Equal(t, 5.0, escapeDebit(17.6))
}

func TestSmartAssignmentOverridesEscapeOnExpirationDay(t *testing.T) {
	pos := &position.Position{
		ID:              "ira-1",
		Symbol:          "AAPL",
		Account:         "ira",
		TaxType:         position.RothIRA,
		Kind:            position.CoveredCall,
		Strike:          100,
		Expiration:      evalNow, // expires today
		Contracts:       1,
		OriginalPremium: 2,
		CurrentMark:     1.2,
		UnderlyingPrice: 101, // 1% ITM, borderline
	}
	// The only escape is long and expensive.
	rolls := &fakeRolls{zeroCost: &roll.RollCandidate{WeeksOut: 8, Strike: 105, NetCost: 1.8}}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 101})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionSmartAssignment, res.Action)
	assert.Equal(t, PriorityUrgent, res.Priority)
	require.NotNil(t, res.Assignment)
	assert.True(t, res.Assignment.AcceptAssignment)

	// Same shape in a taxable account: the override must not fire.
	pos.TaxType = position.Taxable
	res = e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionRollITM, res.Action)
	assert.Equal(t, PriorityUrgent, res.Priority, "expiring today escalates the roll")
}

func TestPullBackTakesTopPriority(t *testing.T) {
	pos := avgoPut()
	rolls := &fakeRolls{
		pullBack: &roll.RollCandidate{WeeksOut: 1, Strike: 340, NetCost: 0.3},
		compress: &roll.RollCandidate{WeeksOut: 1, Strike: 340, NetCost: 0.5},
	}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 346})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionPullBack, res.Action)
}

func TestNearITMWarning(t *testing.T) {
	pos := &position.Position{
		ID:              "warn-1",
		Symbol:          "MSFT",
		Account:         "brokerage",
		TaxType:         position.Taxable,
		Kind:            position.CoveredCall,
		Strike:          100,
		Expiration:      evalNow.AddDate(0, 0, 3),
		Contracts:       1,
		OriginalPremium: 2,
		CurrentMark:     1.5,
		UnderlyingPrice: 99, // 1% below strike, not yet ITM
	}
	e := newTestEvaluator(&fakeRolls{}, &fakeAdvisor{}, &fakePrice{price: 99})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionMonitor, res.Action)
	assert.Equal(t, PriorityMedium, res.Priority)
	assert.Contains(t, res.Reason, "assignment risk")
}

func TestProfitableOTMRollsWeekly(t *testing.T) {
	pos := &position.Position{
		ID:              "win-1",
		Symbol:          "AAPL",
		Account:         "brokerage",
		TaxType:         position.Taxable,
		Kind:            position.CoveredCall,
		Strike:          120,
		Expiration:      evalNow.AddDate(0, 0, 4),
		Contracts:       1,
		OriginalPremium: 2,
		CurrentMark:     0.4, // 80% captured
		UnderlyingPrice: 110,
	}
	rolls := &fakeRolls{
		weekly: &roll.RollCandidate{WeeksOut: 1, Strike: 118, NewPremium: 1.1, NetCost: -0.7},
	}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 110})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionRollWeekly, res.Action)
	assert.Equal(t, 118.0, res.ProposedStrike)
	assert.Equal(t, -0.7, res.NetCost)
}

func TestWeeklyRollRespectsCostCap(t *testing.T) {
	pos := &position.Position{
		ID:              "win-2",
		Symbol:          "AAPL",
		Account:         "brokerage",
		TaxType:         position.Taxable,
		Kind:            position.CoveredCall,
		Strike:          120,
		Expiration:      evalNow.AddDate(0, 0, 4),
		Contracts:       1,
		OriginalPremium: 2,
		CurrentMark:     0.4,
		UnderlyingPrice: 110,
	}
	// A weekly roll exists but costs more than 20% of the original premium.
	rolls := &fakeRolls{weekly: &roll.RollCandidate{WeeksOut: 1, Strike: 118, NetCost: 0.5}}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 110})

	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionNoAction, res.Action)
}

func TestDataFailureDegradesToMonitor(t *testing.T) {
	e := newTestEvaluator(&fakeRolls{}, &fakeAdvisor{}, &fakePrice{err: errors.New("both providers down")})

	res := e.Evaluate(context.Background(), avgoPut())
	require.Equal(t, ActionMonitor, res.Action)
	assert.Contains(t, res.Reason, "insufficient data, monitoring")
}

func TestSearchFailureDegradesOnlyThatPosition(t *testing.T) {
	rolls := &fakeRolls{searchErr: errors.New("chain lookup timed out")}
	e := newTestEvaluator(rolls, &fakeAdvisor{}, &fakePrice{price: 346})

	res := e.Evaluate(context.Background(), avgoPut())
	require.Equal(t, ActionMonitor, res.Action)
	assert.Contains(t, res.Reason, "insufficient data, monitoring")
}

func TestUncoveredSharesAdvisory(t *testing.T) {
	pos := &position.Position{
		ID:      "shares-1",
		Symbol:  "NVDA",
		Account: "brokerage",
		TaxType: position.Taxable,
		Kind:    position.UncoveredShares,
	}

	ad := &fakeAdvisor{advice: &technical.WaitAdvice{Wait: true, Reason: "RSI 27.0 oversold, likely to bounce before selling"}}
	e := newTestEvaluator(&fakeRolls{}, ad, &fakePrice{price: 100})
	res := e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionNoAction, res.Action)

	ad.advice = &technical.WaitAdvice{Wait: false, Reason: "RSI 74.0 overbought, good time to sell"}
	res = e.Evaluate(context.Background(), pos)
	require.Equal(t, ActionMonitor, res.Action)
	assert.Contains(t, res.Reason, "shares uncovered")
}
