package roll

import (
	"context"
	"time"

	"options-advisor/internal/position"
)

// FindWeeklyRoll prices closing the current contract and selling the next
// weekly expiration at the target probability OTM (delta-10 income rolls).
// When the position itself expires within the week, the roll targets the
// first listed expiration after it.
func (f *Finder) FindWeeklyRoll(ctx context.Context, pos *position.Position, targetProbOTM float64) (*RollCandidate, error) {
	now := f.clock()

	expirations, err := f.market.Expirations(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}

	exp, ok := nearestExpiration(expirations, now, 1)
	if !ok {
		return nil, nil
	}
	if !exp.After(pos.Expiration) {
		exp, ok = firstAfter(expirations, pos.Expiration)
		if !ok {
			return nil, nil
		}
	}

	return f.candidateAt(ctx, pos, optionTypeOf(pos), exp, targetProbOTM, pos.BuyBackCost(), pos.UnderlyingPrice)
}

// firstAfter returns the earliest listed expiration strictly after t.
func firstAfter(expirations []time.Time, t time.Time) (time.Time, bool) {
	var best time.Time
	for _, exp := range expirations {
		if !exp.After(t) {
			continue
		}
		if best.IsZero() || exp.Before(best) {
			best = exp
		}
	}
	return best, !best.IsZero()
}
