package roll

import (
	"testing"
	"time"

	"options-advisor/internal/position"
)

// borderlineITMCall expires today, 1% ITM, in an IRA.
func borderlineITMCall() *position.Position {
	return &position.Position{
		ID:              "p7",
		Symbol:          "AAPL",
		Account:         "ira1",
		TaxType:         position.IRA,
		Kind:            position.CoveredCall,
		Strike:          100,
		Expiration:      time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
		Contracts:       2,
		OriginalPremium: 2,
		CurrentMark:     1.2,
		UnderlyingPrice: 101,
	}
}

func TestAssignmentGateRejectsTaxableAccount(t *testing.T) {
	pos := borderlineITMCall()
	pos.TaxType = position.Taxable

	if _, ok := EvaluateAssignment(pos, nil, testNow, DefaultAssignmentOptions()); ok {
		t.Error("taxable accounts must never take the assignment path")
	}
}

func TestAssignmentGateRejectsNonExpirationDay(t *testing.T) {
	pos := borderlineITMCall()
	pos.Expiration = pos.Expiration.AddDate(0, 0, 7)

	if _, ok := EvaluateAssignment(pos, nil, testNow, DefaultAssignmentOptions()); ok {
		t.Error("assignment only applies on expiration day")
	}
}

func TestAssignmentGateRejectsDeepITM(t *testing.T) {
	pos := borderlineITMCall()
	pos.UnderlyingPrice = 105 // 5% ITM, not borderline

	if _, ok := EvaluateAssignment(pos, nil, testNow, DefaultAssignmentOptions()); ok {
		t.Error("deep ITM positions must use the normal escape path")
	}
}

func TestAssignmentGateRejectsTrivialRoll(t *testing.T) {
	pos := borderlineITMCall()
	roll := &RollCandidate{WeeksOut: 1, NetCost: 0.05} // $10 total, one week

	if _, ok := EvaluateAssignment(pos, roll, testNow, DefaultAssignmentOptions()); ok {
		t.Error("a cheap one-week roll should bypass the assignment comparison")
	}
}

func TestAssignmentBeatsExpensiveRoll(t *testing.T) {
	pos := borderlineITMCall()
	// 8 weeks locked up at $1.50/share debit.
	roll := &RollCandidate{WeeksOut: 8, NetCost: 1.5}

	out, ok := EvaluateAssignment(pos, roll, testNow, DefaultAssignmentOptions())
	if !ok {
		t.Fatal("gate should apply")
	}
	if !out.AcceptAssignment {
		t.Errorf("expected assignment to win: loss %.2f vs roll %.2f", out.AssignmentLoss, out.TotalRollCost)
	}
	// $1 ITM x 100 shares x 2 contracts.
	if out.AssignmentLoss != 200 {
		t.Errorf("expected assignment loss 200, got %.2f", out.AssignmentLoss)
	}
	// Debit 1.50x200 + 8w x (101 x 0.004 x 100) x 2 contracts.
	want := 300 + 8*101*0.004*100*2
	if diff := out.TotalRollCost - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected roll cost %.2f, got %.2f", want, out.TotalRollCost)
	}
	if out.FollowUpAt.IsZero() {
		t.Error("accepting assignment must schedule a next-morning follow-up")
	}
	if out.FollowUpAt.Weekday() == time.Saturday || out.FollowUpAt.Weekday() == time.Sunday {
		t.Errorf("follow-up must land on a trading day, got %v", out.FollowUpAt.Weekday())
	}
}

func TestRollBeatsAssignmentWhenCheapEnough(t *testing.T) {
	pos := borderlineITMCall()
	pos.UnderlyingPrice = 101.8 // 1.8% ITM, loss 360 total
	// Long but nearly free roll: 0.10x200 debit + opportunity cost.
	roll := &RollCandidate{WeeksOut: 2, NetCost: 0.10}

	opts := DefaultAssignmentOptions()
	opts.WeeklyPremiumRate = 0.002

	out, ok := EvaluateAssignment(pos, roll, testNow, opts)
	if !ok {
		t.Fatal("gate should apply")
	}
	if out.AcceptAssignment {
		t.Errorf("expected roll to win: loss %.2f vs roll %.2f", out.AssignmentLoss, out.TotalRollCost)
	}
}

func TestAssignmentWithNoRollAvailable(t *testing.T) {
	out, ok := EvaluateAssignment(borderlineITMCall(), nil, testNow, DefaultAssignmentOptions())
	if !ok {
		t.Fatal("gate should apply")
	}
	if !out.AcceptAssignment {
		t.Error("with no viable roll, assignment is the only exit")
	}
}

func TestMorningBuyBackAdvice(t *testing.T) {
	cases := []struct {
		name       string
		current    float64
		assignment float64
		want       BuyBackAction
	}{
		{"flat reenters", 100, 100, BuyBackNow},
		{"below assignment reenters", 98, 100, BuyBackNow},
		{"slightly up reenters", 100.9, 100, BuyBackNow},
		{"moderately up waits", 102, 100, BuyBackWait},
		{"ran away skips", 104, 100, BuyBackSkip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MorningBuyBackAdvice(tc.current, tc.assignment)
			if got.Action != tc.want {
				t.Errorf("price %.2f vs %.2f: expected %s, got %s", tc.current, tc.assignment, tc.want, got.Action)
			}
		})
	}
}
