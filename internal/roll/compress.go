package roll

import (
	"context"
	"math"
	"time"

	"options-advisor/internal/position"
)

// CompressOptions bounds a compress search.
type CompressOptions struct {
	// MinDays/MaxDays restrict candidate expirations to a days-out window
	// (45-90 for far-dated positions). Zero values leave the bound open.
	MinDays int
	MaxDays int

	// SameStrikeMaxDebit is the per-share debit cap when the strike stays
	// put; MoveOTMMaxDebit applies when the roll also moves the strike
	// out of the money.
	SameStrikeMaxDebit float64
	MoveOTMMaxDebit    float64
}

// FindCompress searches same-or-shorter durations for a roll that keeps
// the weekly income cadence alive at very small cost. Keeping the current
// strike is preferred; moving out of the money is allowed under the larger
// debit cap. First (shortest) acceptable duration wins.
func (f *Finder) FindCompress(ctx context.Context, pos *position.Position, opts CompressOptions) (*RollCandidate, error) {
	now := f.clock()
	weeksRemaining := pos.WeeksRemaining(now)
	buyBack := pos.BuyBackCost()
	optType := optionTypeOf(pos)

	expirations, err := f.market.Expirations(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}

	var prevExp time.Time

	for _, weeks := range durationLadder {
		if weeks > weeksRemaining {
			break
		}

		exp, ok := nearestExpiration(expirations, now, weeks)
		if !ok || exp.Equal(prevExp) || exp.After(pos.Expiration) {
			continue
		}
		prevExp = exp

		daysOut := int(exp.Sub(now).Hours() / 24)
		if opts.MinDays > 0 && daysOut < opts.MinDays {
			continue
		}
		if opts.MaxDays > 0 && daysOut > opts.MaxDays {
			continue
		}

		chain, err := f.market.OptionChain(ctx, pos.Symbol, exp)
		if err != nil {
			continue
		}
		quotes := chain.Quotes(optType)

		// Staying at the same strike preserves the position shape and
		// only needs a tiny debit to be worth it.
		if q, ok := quoteAt(quotes, pos.Strike); ok && q.Mid() > 0 {
			netCost := buyBack - q.Mid()
			if netCost <= opts.SameStrikeMaxDebit {
				weeksOut := weeksUntil(now, exp)
				probOTM := 0.0
				if q.Delta != 0 {
					probOTM = 1 - math.Abs(q.Delta)
				}
				return &RollCandidate{
					Expiration: exp,
					WeeksOut:   weeksOut,
					Strike:     pos.Strike,
					NewPremium: q.Mid(),
					NetCost:    netCost,
					ProbOTM:    probOTM,
				}, nil
			}
		}

		// Otherwise try also stepping the strike out of the money.
		cand, err := f.candidateAt(ctx, pos, optType, exp, 0.70, buyBack, pos.UnderlyingPrice)
		if err != nil || cand == nil {
			continue
		}
		if cand.NetCost <= opts.MoveOTMMaxDebit {
			return cand, nil
		}
	}

	return nil, nil
}

func weeksUntil(now, exp time.Time) int {
	weeks := int(math.Round(exp.Sub(now).Hours() / 24 / 7))
	if weeks < 1 {
		weeks = 1
	}
	return weeks
}
