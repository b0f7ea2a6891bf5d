package database

import "time"

// Recommendation is one persisted recommendation record, written when a
// scan emits a result past the dedup filter.
type Recommendation struct {
	ID                 string     `json:"id"`
	PositionID         string     `json:"position_id"`
	Symbol             string     `json:"symbol"`
	Account            string     `json:"account"`
	Action             string     `json:"action"`
	Priority           string     `json:"priority"`
	Reason             string     `json:"reason"`
	ProposedStrike     *float64   `json:"proposed_strike,omitempty"`
	ProposedExpiration *time.Time `json:"proposed_expiration,omitempty"`
	NetCost            *float64   `json:"net_cost,omitempty"`
	ITMPercent         *float64   `json:"itm_percent,omitempty"`
	ScanID             string     `json:"scan_id,omitempty"`
	ScanKind           string     `json:"scan_kind,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ResolutionEvent records a position that vanished from the snapshot
// feed, so UIs can retire its stale recommendations.
type ResolutionEvent struct {
	ID         string     `json:"id"`
	PositionID string     `json:"position_id"`
	Symbol     string     `json:"symbol"`
	Account    string     `json:"account"`
	Kind       string     `json:"kind"`
	Strike     *float64   `json:"strike,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// ScanRun is the persisted record of one scan cycle.
type ScanRun struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Evaluated int           `json:"evaluated"`
	Emitted   int           `json:"emitted"`
	Resolved  int           `json:"resolved"`
	Skipped   bool          `json:"skipped"`
}

// Feedback is a human verdict on a recommendation. Logged for later
// review; never decision-critical.
type Feedback struct {
	ID               string    `json:"id"`
	RecommendationID string    `json:"recommendation_id"`
	Verdict          string    `json:"verdict"` // followed / ignored / wrong
	Comment          string    `json:"comment,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
