// Package position models the open option/share positions under management
// and the snapshot book they are reconciled against.
package position

import (
	"fmt"
	"time"
)

// TaxType is the tax treatment of the holding account.
type TaxType string

const (
	Taxable TaxType = "taxable"
	IRA     TaxType = "ira"
	RothIRA TaxType = "roth_ira"
)

// TaxAdvantaged reports whether the account has no wash-sale concerns.
func (t TaxType) TaxAdvantaged() bool {
	return t == IRA || t == RothIRA
}

// Kind distinguishes the position variants. Uncovered share lots carry no
// strike or expiration and skip every in-the-money code path.
type Kind string

const (
	CoveredCall     Kind = "covered_call"
	CoveredPut      Kind = "covered_put"
	UncoveredShares Kind = "uncovered_shares"
)

// Position is a single managed position: a sold covered call/put, or an
// uncovered share lot waiting for a call to be written against it.
// Premiums and marks are per share; one contract covers 100 shares.
type Position struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Account         string    `json:"account"`
	TaxType         TaxType   `json:"tax_type"`
	Kind            Kind      `json:"kind"`
	Strike          float64   `json:"strike"`
	Expiration      time.Time `json:"expiration"`
	Contracts       int       `json:"contracts"`
	OriginalPremium float64   `json:"original_premium"`
	CurrentMark     float64   `json:"current_mark"`
	UnderlyingPrice float64   `json:"underlying_price"`
}

// IsOption reports whether the position is a sold option contract.
func (p *Position) IsOption() bool {
	return p.Kind == CoveredCall || p.Kind == CoveredPut
}

// Validate checks the structural invariants of a snapshot row.
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("position %s: missing symbol", p.ID)
	}
	if !p.IsOption() {
		return nil
	}
	if p.Strike <= 0 {
		return fmt.Errorf("position %s: strike must be positive", p.ID)
	}
	if p.Contracts < 1 {
		return fmt.Errorf("position %s: contract count must be at least 1", p.ID)
	}
	if p.Expiration.IsZero() {
		return fmt.Errorf("position %s: missing expiration", p.ID)
	}
	return nil
}

// InTheMoney reports whether exercising the option today would be
// profitable for the holder on the other side.
func (p *Position) InTheMoney() bool {
	return p.ITMAmount() > 0
}

// ITMAmount is the per-share in-the-money amount, zero when OTM.
func (p *Position) ITMAmount() float64 {
	if !p.IsOption() {
		return 0
	}
	var amount float64
	if p.Kind == CoveredCall {
		amount = p.UnderlyingPrice - p.Strike
	} else {
		amount = p.Strike - p.UnderlyingPrice
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// ITMPercent is the in-the-money amount as a percentage of the strike.
func (p *Position) ITMPercent() float64 {
	if p.Strike <= 0 {
		return 0
	}
	return p.ITMAmount() / p.Strike * 100
}

// IntrinsicValue is the option's per-share intrinsic value. The buy-back
// cost can never truly be below this; marks below it came from bad data.
func (p *Position) IntrinsicValue() float64 {
	return p.ITMAmount()
}

// DaysToExpiration is the whole days remaining as of now.
func (p *Position) DaysToExpiration(now time.Time) int {
	if !p.IsOption() {
		return 0
	}
	d := p.Expiration.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return int(d)
}

// WeeksRemaining is the remaining duration in whole weeks, rounding up so
// a 10-day position counts as 2 weeks.
func (p *Position) WeeksRemaining(now time.Time) int {
	days := p.DaysToExpiration(now)
	return (days + 6) / 7
}

// ExpiresToday reports whether the position expires on the calendar day of
// now (in now's location).
func (p *Position) ExpiresToday(now time.Time) bool {
	if !p.IsOption() {
		return false
	}
	y1, m1, d1 := p.Expiration.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ProfitCapturedPercent is how much of the originally collected premium has
// decayed in the holder's favor, as a percentage.
func (p *Position) ProfitCapturedPercent() float64 {
	if p.OriginalPremium <= 0 {
		return 0
	}
	captured := (p.OriginalPremium - p.CurrentMark) / p.OriginalPremium * 100
	if captured < 0 {
		return 0
	}
	return captured
}

// BuyBackCost is the per-share cost to close, clamped up to intrinsic
// value. Marks below intrinsic are a known data-quality failure and would
// otherwise produce nonsense "free roll" results.
func (p *Position) BuyBackCost() float64 {
	if intrinsic := p.IntrinsicValue(); p.CurrentMark < intrinsic {
		return intrinsic
	}
	return p.CurrentMark
}

// OptionType maps the position kind onto the chain side it trades.
func (p *Position) OptionType() string {
	if p.Kind == CoveredPut {
		return "put"
	}
	return "call"
}
