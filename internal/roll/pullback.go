package roll

import (
	"context"

	"options-advisor/internal/position"
)

// CheckPullBack looks for the shortest duration strictly inside the
// position's remaining life that can be reached at small cost, so a
// position previously rolled far out to escape ITM can return to weekly
// income generation once the underlying has moved back in the holder's
// favor. maxCostFraction bounds the acceptable net cost as a fraction of
// the originally collected premium (0.20 per policy).
//
// Only positions with more than one week remaining are eligible; nil
// means no acceptable shorter duration exists yet.
func (f *Finder) CheckPullBack(ctx context.Context, pos *position.Position, maxCostFraction float64) (*RollCandidate, error) {
	now := f.clock()
	weeksRemaining := pos.WeeksRemaining(now)
	if weeksRemaining <= 1 {
		return nil, nil
	}

	maxCost := maxCostFraction * pos.OriginalPremium
	buyBack := pos.BuyBackCost()
	optType := optionTypeOf(pos)

	expirations, err := f.market.Expirations(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}

	var prev *RollCandidate

	for _, weeks := range durationLadder {
		if weeks >= weeksRemaining {
			break
		}

		exp, ok := nearestExpiration(expirations, now, weeks)
		if !ok || !exp.Before(pos.Expiration) {
			continue
		}

		// Pulling back only requires the new strike to be OTM against the
		// underlying; it may sit inside the old far-dated strike.
		cand, err := f.candidateAt(ctx, pos, optType, exp, 0.70, buyBack, pos.UnderlyingPrice)
		if err != nil || cand == nil {
			continue
		}
		if prev != nil && cand.Strike == prev.Strike && cand.NewPremium == prev.NewPremium {
			continue
		}
		prev = cand

		if cand.NetCost <= maxCost {
			return cand, nil
		}
	}

	return nil, nil
}
