// Package engine routes each managed position through the priority-ordered
// decision tree and produces a single recommendation per position per scan.
package engine

import (
	"fmt"
	"hash/fnv"
	"time"

	"options-advisor/internal/roll"
)

// Action is the recommendation variant. The set is closed: the decision
// tree is a fixed priority order, not a plugin registry.
type Action string

const (
	ActionPullBack         Action = "PULL_BACK"
	ActionCompress         Action = "COMPRESS"
	ActionRollITM          Action = "ROLL_ITM"
	ActionCloseCatastrophe Action = "CLOSE_CATASTROPHIC"
	ActionMonitor          Action = "MONITOR"
	ActionRollWeekly       Action = "ROLL_WEEKLY"
	ActionSmartAssignment  Action = "SMART_ASSIGNMENT"
	ActionNoAction         Action = "NO_ACTION"
)

// Priority orders recommendations for notification filtering.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// EvaluationResult is the outcome of one position evaluation. Produced
// fresh at each scan and never mutated once emitted; the next scan's
// result supersedes it.
type EvaluationResult struct {
	PositionID         string                  `json:"position_id"`
	Symbol             string                  `json:"symbol"`
	Account            string                  `json:"account"`
	Action             Action                  `json:"action"`
	Priority           Priority                `json:"priority"`
	Reason             string                  `json:"reason"`
	ProposedStrike     float64                 `json:"proposed_strike,omitempty"`
	ProposedExpiration time.Time               `json:"proposed_expiration,omitempty"`
	NetCost            float64                 `json:"net_cost,omitempty"`
	ITMPercent         float64                 `json:"itm_percent,omitempty"`
	Candidate          *roll.RollCandidate     `json:"candidate,omitempty"`
	Assignment         *roll.AssignmentOutcome `json:"assignment,omitempty"`
	EvaluatedAt        time.Time               `json:"evaluated_at"`
}

// Actionable reports whether the result carries a recommendation worth
// emitting at all.
func (r *EvaluationResult) Actionable() bool {
	return r.Action != ActionNoAction
}

// Urgent reports whether the result passes the urgent-only scan filters.
func (r *EvaluationResult) Urgent() bool {
	return r.Priority == PriorityUrgent
}

// Hash is the stable dedup fingerprint: two results with the same action,
// proposed strike/expiration and priority are considered identical for
// same-day notification suppression.
func (r *EvaluationResult) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%.2f|%s|%s",
		r.Action, r.ProposedStrike, r.ProposedExpiration.Format("2006-01-02"), r.Priority)
	return h.Sum64()
}
