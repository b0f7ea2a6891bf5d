package roll

import (
	"fmt"
	"math"
	"time"

	"options-advisor/internal/position"
)

// AssignmentOptions gates and prices the assignment-vs-roll comparison.
type AssignmentOptions struct {
	// MinITMPercent/MaxITMPercent bound the "genuinely borderline" band,
	// as a percentage of strike.
	MinITMPercent float64
	MaxITMPercent float64

	// A roll is trivially cheap (and assignment not worth considering)
	// unless it needs at least TrivialRollWeeks weeks or
	// TrivialRollDebit total dollars of debit.
	TrivialRollWeeks int
	TrivialRollDebit float64

	// WeeklyPremiumRate estimates the weekly income a freed-up lot would
	// earn, as a fraction of the underlying price per share. Used to
	// price the opportunity cost of capital locked in a multi-week roll.
	WeeklyPremiumRate float64
}

// DefaultAssignmentOptions returns the standard gate parameters.
func DefaultAssignmentOptions() AssignmentOptions {
	return AssignmentOptions{
		MinITMPercent:     0.1,
		MaxITMPercent:     2.0,
		TrivialRollWeeks:  2,
		TrivialRollDebit:  15,
		WeeklyPremiumRate: 0.004,
	}
}

// AssignmentOutcome is the result of comparing assignment against the
// cheapest available roll. Dollar amounts are totals across all contracts.
type AssignmentOutcome struct {
	AcceptAssignment bool           `json:"accept_assignment"`
	AssignmentLoss   float64        `json:"assignment_loss"`
	TotalRollCost    float64        `json:"total_roll_cost"`
	Roll             *RollCandidate `json:"roll,omitempty"`
	FollowUpAt       time.Time      `json:"follow_up_at,omitempty"`
	Reason           string         `json:"reason"`
}

// EvaluateAssignment decides, on expiration day, whether a borderline ITM
// position in a tax-advantaged account should be let go to assignment
// instead of paying for an expensive roll. The second return value is
// false when the gate does not apply and the normal ITM handling should
// proceed.
//
// Wash-sale rules make this a tax-advantaged-account play only: in a
// taxable account the round trip could disallow the loss.
func EvaluateAssignment(pos *position.Position, roll *RollCandidate, now time.Time, opts AssignmentOptions) (*AssignmentOutcome, bool) {
	if !pos.TaxType.TaxAdvantaged() {
		return nil, false
	}
	if !pos.ExpiresToday(now) {
		return nil, false
	}

	itmPct := pos.ITMPercent()
	if itmPct < opts.MinITMPercent || itmPct > opts.MaxITMPercent {
		return nil, false
	}

	shares := float64(100 * pos.Contracts)
	assignmentLoss := pos.ITMAmount() * shares

	if roll != nil {
		rollDebit := math.Max(roll.NetCost, 0) * shares
		if roll.WeeksOut < opts.TrivialRollWeeks && rollDebit < opts.TrivialRollDebit {
			// Rolling is cheap enough that assignment has no edge.
			return nil, false
		}
	}

	if roll == nil {
		return &AssignmentOutcome{
			AcceptAssignment: true,
			AssignmentLoss:   assignmentLoss,
			FollowUpAt:       nextTradingMorning(now),
			Reason: fmt.Sprintf("no viable roll; accept assignment at $%.2f loss, re-evaluate buy-back next morning",
				assignmentLoss),
		}, true
	}

	estWeeklyPremium := pos.UnderlyingPrice * opts.WeeklyPremiumRate * 100
	totalRollCost := math.Max(roll.NetCost, 0)*shares +
		float64(roll.WeeksOut)*estWeeklyPremium*float64(pos.Contracts)

	out := &AssignmentOutcome{
		AssignmentLoss: assignmentLoss,
		TotalRollCost:  totalRollCost,
		Roll:           roll,
	}
	if assignmentLoss < totalRollCost {
		out.AcceptAssignment = true
		out.FollowUpAt = nextTradingMorning(now)
		out.Reason = fmt.Sprintf("assignment loss $%.2f beats roll cost $%.2f (%dw locked up); accept assignment",
			assignmentLoss, totalRollCost, roll.WeeksOut)
	} else {
		out.Reason = fmt.Sprintf("roll cost $%.2f beats assignment loss $%.2f; roll instead",
			totalRollCost, assignmentLoss)
	}
	return out, true
}

// BuyBackAction is the next-morning follow-up decision after assignment.
type BuyBackAction string

const (
	BuyBackNow  BuyBackAction = "buy_now"
	BuyBackWait BuyBackAction = "wait"
	BuyBackSkip BuyBackAction = "skip"
)

// BuyBackAdvice is the "buy back Monday" recommendation.
type BuyBackAdvice struct {
	Action       BuyBackAction `json:"action"`
	MovedPercent float64       `json:"moved_percent"`
	Reason       string        `json:"reason"`
}

// MorningBuyBackAdvice compares the next-morning price to the assignment
// price and decides whether re-entering the position is worth it.
func MorningBuyBackAdvice(currentPrice, assignmentPrice float64) BuyBackAdvice {
	if assignmentPrice <= 0 {
		return BuyBackAdvice{Action: BuyBackSkip, Reason: "no assignment price"}
	}

	moved := (currentPrice - assignmentPrice) / assignmentPrice * 100
	switch {
	case moved > 3:
		return BuyBackAdvice{
			Action:       BuyBackSkip,
			MovedPercent: moved,
			Reason:       fmt.Sprintf("price %.1f%% above assignment; chasing is not worth it", moved),
		}
	case moved > 1:
		return BuyBackAdvice{
			Action:       BuyBackWait,
			MovedPercent: moved,
			Reason:       fmt.Sprintf("price %.1f%% above assignment; wait for a pullback", moved),
		}
	default:
		return BuyBackAdvice{
			Action:       BuyBackNow,
			MovedPercent: moved,
			Reason:       "buy back now and sell a new delta-10 weekly to resume income",
		}
	}
}

// nextTradingMorning is 09:35 local on the next weekday.
func nextTradingMorning(now time.Time) time.Time {
	d := now.AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 35, 0, 0, now.Location())
}
