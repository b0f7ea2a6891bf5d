package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-advisor/config"
	"options-advisor/internal/position"
	"options-advisor/internal/roll"
	"options-advisor/internal/technical"
)

// RollSearcher is the slice of the roll finder the evaluator consumes.
type RollSearcher interface {
	FindZeroCostRoll(ctx context.Context, pos *position.Position, maxDebit float64, maxWeeksOut int) (*roll.RollCandidate, error)
	CheckPullBack(ctx context.Context, pos *position.Position, maxCostFraction float64) (*roll.RollCandidate, error)
	FindCompress(ctx context.Context, pos *position.Position, opts roll.CompressOptions) (*roll.RollCandidate, error)
	FindWeeklyRoll(ctx context.Context, pos *position.Position, targetProbOTM float64) (*roll.RollCandidate, error)
}

// Advisor supplies the technical wait/sell signal for uncovered shares.
type Advisor interface {
	ShouldWaitToSell(ctx context.Context, symbol string) (*technical.WaitAdvice, error)
}

// PriceSource refreshes the underlying price at evaluation time.
type PriceSource interface {
	UnderlyingPrice(ctx context.Context, symbol string) (float64, error)
}

// Evaluator routes positions through the decision tree.
type Evaluator struct {
	rolls   RollSearcher
	advisor Advisor
	market  PriceSource
	policy  config.PolicyConfig
	assign  roll.AssignmentOptions
	logger  zerolog.Logger
	clock   func() time.Time
}

// NewEvaluator creates a position evaluator.
func NewEvaluator(rolls RollSearcher, advisor Advisor, market PriceSource, policy config.PolicyConfig, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rolls:   rolls,
		advisor: advisor,
		market:  market,
		policy:  policy,
		assign:  roll.DefaultAssignmentOptions(),
		logger:  logger.With().Str("component", "evaluator").Logger(),
		clock:   time.Now,
	}
}

// Evaluate runs one position through the priority-ordered decision tree.
// It never returns an error: any data failure degrades that position to
// MONITOR with the failure in the reason, so one bad symbol cannot abort
// the rest of the book.
//
// Priority order: pull-back, weekly-income compress, ITM handling (with
// the smart-assignment override on expiration day), near-ITM warning,
// weekly income roll, no action. First match wins.
func (e *Evaluator) Evaluate(ctx context.Context, pos *position.Position) *EvaluationResult {
	now := e.clock()

	if !pos.IsOption() {
		return e.evaluateUncovered(ctx, pos, now)
	}

	// Work on a copy with a freshly fetched underlying; the snapshot's
	// price may be hours old.
	p := *pos
	price, err := e.market.UnderlyingPrice(ctx, p.Symbol)
	if err != nil {
		return e.monitor(&p, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
	}
	p.UnderlyingPrice = price

	// 1. Pull-back: a far-dated position that can return to short
	// durations cheaply.
	if p.WeeksRemaining(now) > 1 {
		cand, err := e.rolls.CheckPullBack(ctx, &p, e.policy.PullBackCostFraction)
		if err != nil {
			return e.monitor(&p, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
		}
		if cand != nil {
			return e.result(&p, now, ActionPullBack, PriorityMedium, cand,
				fmt.Sprintf("pull back to %dw at $%.2f net, resume weekly income", cand.WeeksOut, cand.NetCost))
		}
	}

	// 2. Weekly-income compress: slightly ITM with most of the premium
	// already captured. Takes priority over the plain escape because
	// preserving the weekly cadence is worth more than merely being OTM.
	if p.InTheMoney() && p.ITMPercent() < e.policy.CompressITMMaxPercent &&
		p.ProfitCapturedPercent() >= e.policy.ProfitCapturedMin {
		cand, err := e.rolls.FindCompress(ctx, &p, roll.CompressOptions{
			SameStrikeMaxDebit: e.policy.CompressSameStrikeMax,
			MoveOTMMaxDebit:    e.policy.CompressMoveOTMMax,
		})
		if err != nil {
			return e.monitor(&p, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
		}
		if cand != nil {
			return e.result(&p, now, ActionCompress, PriorityMedium, cand,
				fmt.Sprintf("compress to %dw %.0f strike for $%.2f net, %.0f%% of premium captured",
					cand.WeeksOut, cand.Strike, cand.NetCost, p.ProfitCapturedPercent()))
		}
	}

	// 3. In the money, general case.
	if p.InTheMoney() {
		return e.evaluateITM(ctx, &p, now)
	}

	// 4. Near-ITM warning: close to the strike with expiration near.
	if warn := e.nearITMWarning(&p, now); warn != nil {
		return warn
	}

	// 5. Profitable and OTM: take the win, sell the next weekly.
	if p.ProfitCapturedPercent() >= e.policy.ProfitCapturedMin {
		cand, err := e.rolls.FindWeeklyRoll(ctx, &p, 1-e.policy.WeeklyDeltaTarget)
		if err != nil {
			return e.monitor(&p, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
		}
		if cand != nil && cand.NetCost <= e.policy.PullBackCostFraction*p.OriginalPremium {
			return e.result(&p, now, ActionRollWeekly, PriorityMedium, cand,
				fmt.Sprintf("%.0f%% captured, roll to next weekly %.0f strike for $%.2f net",
					p.ProfitCapturedPercent(), cand.Strike, cand.NetCost))
		}
	}

	return e.noAction(&p, now, "position healthy, nothing to do")
}

// evaluateITM handles the general ITM case: patient monitoring when
// far-dated, the severity-capped zero-cost escape when not, and the
// smart-assignment override on expiration day.
func (e *Evaluator) evaluateITM(ctx context.Context, p *position.Position, now time.Time) *EvaluationResult {
	days := p.DaysToExpiration(now)

	if days > e.policy.FarDatedDays {
		// Months of time value left: try to compress into the 45-90 day
		// window, otherwise wait for mean reversion. There is no
		// threshold-based auto-close for far-dated positions.
		cand, err := e.rolls.FindCompress(ctx, p, roll.CompressOptions{
			MinDays:            45,
			MaxDays:            90,
			SameStrikeMaxDebit: e.policy.CompressSameStrikeMax,
			MoveOTMMaxDebit:    e.policy.CompressMoveOTMMax,
		})
		if err != nil {
			return e.monitor(p, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
		}
		if cand != nil {
			return e.result(p, now, ActionCompress, PriorityMedium, cand,
				fmt.Sprintf("compress far-dated position to %dd window, %.0f strike for $%.2f net",
					int(cand.Expiration.Sub(now).Hours()/24), cand.Strike, cand.NetCost))
		}
		return e.monitor(p, now, PriorityLow, "deep ITM, far-dated, awaiting mean reversion")
	}

	maxDebit := escapeDebit(p.ITMPercent())
	cand, err := e.rolls.FindZeroCostRoll(ctx, p, maxDebit, e.policy.MaxWeeksOut)
	if err != nil {
		return e.monitor(p, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
	}

	// Smart-assignment override: on expiration day in a tax-advantaged
	// account, a borderline ITM position may be cheaper to let go.
	if out, ok := roll.EvaluateAssignment(p, cand, now, e.assign); ok && out.AcceptAssignment {
		res := e.result(p, now, ActionSmartAssignment, PriorityUrgent, nil, out.Reason)
		res.Assignment = out
		return res
	}

	if cand != nil {
		prio := PriorityHigh
		if p.ExpiresToday(now) {
			prio = PriorityUrgent
		}
		return e.result(p, now, ActionRollITM, prio, cand,
			fmt.Sprintf("%.1f%% ITM, escape to %dw %.0f strike for $%.2f net (cap $%.2f)",
				p.ITMPercent(), cand.WeeksOut, cand.Strike, cand.NetCost, maxDebit))
	}

	// The only path in the engine that closes a losing position outright.
	res := e.result(p, now, ActionCloseCatastrophe, PriorityUrgent, nil,
		fmt.Sprintf("%.1f%% ITM and no acceptable roll within %d weeks, close the position",
			p.ITMPercent(), e.policy.MaxWeeksOut))
	return res
}

// escapeDebit is the severity ladder for ITM escapes: deeper ITM buys a
// larger acceptable debit.
func escapeDebit(itmPercent float64) float64 {
	switch {
	case itmPercent <= 5:
		return 2
	case itmPercent <= 10:
		return 3
	default:
		return 5
	}
}

func (e *Evaluator) nearITMWarning(p *position.Position, now time.Time) *EvaluationResult {
	if p.InTheMoney() || p.Strike <= 0 {
		return nil
	}
	distance := (p.Strike - p.UnderlyingPrice) / p.Strike * 100
	if p.Kind == position.CoveredPut {
		distance = (p.UnderlyingPrice - p.Strike) / p.Strike * 100
	}
	if distance > e.policy.NearITMWarnPercent || p.DaysToExpiration(now) > e.policy.NearITMWarnDays {
		return nil
	}
	return e.monitor(p, now, PriorityMedium,
		fmt.Sprintf("underlying within %.1f%% of %.0f strike with %dd left, assignment risk",
			distance, p.Strike, p.DaysToExpiration(now)))
}

// evaluateUncovered advises on share lots with no call written against
// them: surface a sell signal, stay quiet otherwise.
func (e *Evaluator) evaluateUncovered(ctx context.Context, pos *position.Position, now time.Time) *EvaluationResult {
	advice, err := e.advisor.ShouldWaitToSell(ctx, pos.Symbol)
	if err != nil {
		return e.monitor(pos, now, PriorityLow, fmt.Sprintf("insufficient data, monitoring: %v", err))
	}
	if advice.Wait {
		return e.noAction(pos, now, advice.Reason)
	}
	return e.monitor(pos, now, PriorityLow,
		fmt.Sprintf("shares uncovered, %s", advice.Reason))
}

func (e *Evaluator) result(p *position.Position, now time.Time, action Action, prio Priority, cand *roll.RollCandidate, reason string) *EvaluationResult {
	res := &EvaluationResult{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Account:     p.Account,
		Action:      action,
		Priority:    prio,
		Reason:      reason,
		ITMPercent:  p.ITMPercent(),
		EvaluatedAt: now,
	}
	if cand != nil {
		res.ProposedStrike = cand.Strike
		res.ProposedExpiration = cand.Expiration
		res.NetCost = cand.NetCost
		res.Candidate = cand
	}
	return res
}

func (e *Evaluator) monitor(p *position.Position, now time.Time, prio Priority, reason string) *EvaluationResult {
	e.logger.Debug().Str("symbol", p.Symbol).Str("position", p.ID).Msg(reason)
	return e.result(p, now, ActionMonitor, prio, nil, reason)
}

func (e *Evaluator) noAction(p *position.Position, now time.Time, reason string) *EvaluationResult {
	return e.result(p, now, ActionNoAction, PriorityLow, nil, reason)
}
