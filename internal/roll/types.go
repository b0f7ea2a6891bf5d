// Package roll searches option expiration/strike ladders for escapes,
// pull-backs and compressions of managed short-option positions.
package roll

import (
	"context"
	"time"

	"options-advisor/internal/marketdata"
	"options-advisor/internal/position"
)

// durationLadder is the set of candidate durations, in weeks, searched in
// increasing order. Spacing widens with distance to keep chain lookups
// bounded while still covering a full year.
var durationLadder = []int{1, 2, 3, 4, 6, 8, 12, 16, 24, 36, 52}

// RollCandidate is a roll target produced by a search: close the current
// contract, sell the new strike at the new expiration. NetCost is per
// share and signed: negative = credit received, positive = debit paid.
type RollCandidate struct {
	Expiration time.Time `json:"expiration"`
	WeeksOut   int       `json:"weeks_out"`
	Strike     float64   `json:"strike"`
	NewPremium float64   `json:"new_premium"`
	NetCost    float64   `json:"net_cost"`
	ProbOTM    float64   `json:"prob_otm"`
}

// MarketData is the slice of the gateway the searches consume. Calendar
// lookups report absence with ok=false rather than errors.
type MarketData interface {
	UnderlyingPrice(ctx context.Context, symbol string) (float64, error)
	OptionChain(ctx context.Context, symbol string, expiration time.Time) (*marketdata.Chain, error)
	Expirations(ctx context.Context, symbol string) ([]time.Time, error)
	EarningsDate(ctx context.Context, symbol string) (time.Time, bool)
	ExDividendDate(ctx context.Context, symbol string) (marketdata.ExDividend, bool)
}

// StrikeRecommender picks a strike for a target probability of expiring
// out of the money.
type StrikeRecommender interface {
	RecommendStrike(ctx context.Context, symbol string, optionType marketdata.OptionType, expiration time.Time, targetProbOTM float64) (float64, error)
}

func optionTypeOf(pos *position.Position) marketdata.OptionType {
	if pos.Kind == position.CoveredPut {
		return marketdata.Put
	}
	return marketdata.Call
}
