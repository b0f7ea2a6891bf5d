package roll

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"options-advisor/internal/marketdata"
	"options-advisor/internal/position"
)

// Finder runs the ladder searches against live market data.
type Finder struct {
	market  MarketData
	strikes StrikeRecommender
	logger  zerolog.Logger
	clock   func() time.Time
}

// NewFinder creates a roll finder.
func NewFinder(market MarketData, strikes StrikeRecommender, logger zerolog.Logger) *Finder {
	return &Finder{
		market:  market,
		strikes: strikes,
		logger:  logger.With().Str("component", "roll").Logger(),
		clock:   time.Now,
	}
}

// FindZeroCostRoll searches durations from 1 week out to maxWeeksOut for
// the shortest roll whose net cost stays within maxDebit (per share).
// Durations containing an earnings announcement or ex-dividend date are
// skipped: catalysts make near-term premium unreliable. The first
// acceptable candidate terminates the search; nil means no duration
// qualifies, which the caller treats as a catastrophic-close signal.
func (f *Finder) FindZeroCostRoll(ctx context.Context, pos *position.Position, maxDebit float64, maxWeeksOut int) (*RollCandidate, error) {
	if maxWeeksOut <= 0 {
		maxWeeksOut = 52
	}

	now := f.clock()
	buyBack := pos.BuyBackCost()
	optType := optionTypeOf(pos)

	expirations, err := f.market.Expirations(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}

	// Escapes must move the strike past BOTH the old strike and the
	// underlying: calls roll up, puts roll down.
	limit := escapeLimit(pos, optType)

	var prev *RollCandidate
	var prevExp time.Time

	for _, weeks := range durationLadder {
		if weeks > maxWeeksOut {
			break
		}

		exp, ok := nearestExpiration(expirations, now, weeks)
		if !ok || exp.Equal(prevExp) {
			continue
		}
		prevExp = exp

		if f.catalystBefore(ctx, pos.Symbol, now, exp) {
			continue
		}

		// Delta-30 trades safety for speed: richer premium shortens the
		// number of weeks needed to reach cost-neutral.
		cand, err := f.candidateAt(ctx, pos, optType, exp, 0.70, buyBack, limit)
		if err != nil || cand == nil {
			continue
		}

		// Identical strike and premium on an adjacent expiration is a
		// known provider failure mode; keep searching.
		if prev != nil && cand.Strike == prev.Strike && cand.NewPremium == prev.NewPremium {
			continue
		}
		prev = cand

		if cand.NetCost <= maxDebit {
			return cand, nil
		}
	}

	return nil, nil
}

// escapeLimit is the price the new strike must clear when escaping ITM.
func escapeLimit(pos *position.Position, optType marketdata.OptionType) float64 {
	if optType == marketdata.Put {
		return math.Min(pos.Strike, pos.UnderlyingPrice)
	}
	return math.Max(pos.Strike, pos.UnderlyingPrice)
}

// candidateAt builds and validates the roll candidate for one expiration.
// limit is the price the new strike must clear to count as OTM in the
// right direction (above for calls, below for puts). A nil candidate
// means the duration is unusable: no chain, no strike on the right side,
// or no quotable premium.
func (f *Finder) candidateAt(ctx context.Context, pos *position.Position, optType marketdata.OptionType, exp time.Time, targetProbOTM, buyBack, limit float64) (*RollCandidate, error) {
	strike, err := f.strikes.RecommendStrike(ctx, pos.Symbol, optType, exp, targetProbOTM)
	if err != nil {
		return nil, err
	}

	chain, err := f.market.OptionChain(ctx, pos.Symbol, exp)
	if err != nil {
		return nil, err
	}
	quotes := chain.Quotes(optType)

	strike, ok := validDirectionStrike(quotes, optType, strike, limit)
	if !ok {
		return nil, nil
	}

	q, ok := quoteAt(quotes, strike)
	if !ok || q.Mid() <= 0 {
		return nil, nil
	}

	premium := q.Mid()
	probOTM := 0.0
	if q.Delta != 0 {
		probOTM = 1 - math.Abs(q.Delta)
	}

	return &RollCandidate{
		Expiration: exp,
		WeeksOut:   weeksUntil(f.clock(), exp),
		Strike:     strike,
		NewPremium: premium,
		NetCost:    buyBack - premium,
		ProbOTM:    probOTM,
	}, nil
}

// validDirectionStrike enforces the roll direction against limit: calls
// need a strike strictly above it, puts strictly below. A recommended
// strike on the wrong side is replaced with the nearest chain strike on
// the right side, or rejected when none exists.
func validDirectionStrike(quotes []marketdata.OptionQuote, optType marketdata.OptionType, strike, limit float64) (float64, bool) {
	if optType == marketdata.Put {
		if strike < limit {
			return strike, true
		}
		// Largest listed strike strictly below the limit.
		best, found := 0.0, false
		for _, q := range quotes {
			if q.Strike < limit && q.Strike > best {
				best = q.Strike
				found = true
			}
		}
		return best, found
	}

	if strike > limit {
		return strike, true
	}
	best, found := math.MaxFloat64, false
	for _, q := range quotes {
		if q.Strike > limit && q.Strike < best {
			best = q.Strike
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best, true
}

// quoteAt returns the chain quote nearest to strike, within half a strike
// increment.
func quoteAt(quotes []marketdata.OptionQuote, strike float64) (marketdata.OptionQuote, bool) {
	var best marketdata.OptionQuote
	bestDiff := math.MaxFloat64
	for _, q := range quotes {
		diff := math.Abs(q.Strike - strike)
		if diff < bestDiff {
			bestDiff = diff
			best = q
		}
	}
	if bestDiff > 2.5 {
		return marketdata.OptionQuote{}, false
	}
	return best, true
}

// catalystBefore reports whether an earnings announcement or ex-dividend
// date falls strictly between now and exp.
func (f *Finder) catalystBefore(ctx context.Context, symbol string, now, exp time.Time) bool {
	if date, ok := f.market.EarningsDate(ctx, symbol); ok {
		if date.After(now) && date.Before(exp) {
			return true
		}
	}
	if div, ok := f.market.ExDividendDate(ctx, symbol); ok {
		if div.Date.After(now) && div.Date.Before(exp) {
			return true
		}
	}
	return false
}

// nearestExpiration finds the listed expiration closest to now + weeks.
func nearestExpiration(expirations []time.Time, now time.Time, weeks int) (time.Time, bool) {
	target := now.AddDate(0, 0, weeks*7)

	var best time.Time
	bestDiff := math.MaxFloat64
	for _, exp := range expirations {
		if !exp.After(now) {
			continue
		}
		diff := math.Abs(exp.Sub(target).Hours())
		if diff < bestDiff {
			bestDiff = diff
			best = exp
		}
	}
	if best.IsZero() {
		return time.Time{}, false
	}
	// Reject matches wildly off target (more than half the gap to the
	// next ladder rung); sparse chains should skip the rung instead.
	if bestDiff > float64(weeks)*7*24 {
		return time.Time{}, false
	}
	return best, true
}
