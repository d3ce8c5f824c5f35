package combo

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
)

func leg(id string, confidence float64, odds, kelly, stake float64) core.SizedDecision {
	return core.SizedDecision{
		BettingDecision: core.BettingDecision{
			MarketID:       id,
			Teams:          id + " home vs away",
			Confidence:     confidence,
			OddsAtDecision: decimal.NewFromFloat(odds),
		},
		KellyFraction: decimal.NewFromFloat(kelly),
		StakeAmount:   decimal.NewFromFloat(stake),
	}
}

func TestBuildTwoLegCombo(t *testing.T) {
	b := NewBuilder(nil)

	combo := b.Build([]core.SizedDecision{
		leg("a", 0.70, 2.0, 0.05, 10),
		leg("b", 0.60, 2.5, 0.06, 10),
	})

	if combo == nil {
		t.Fatal("Expected a combo")
	}
	if len(combo.ComponentMarketIDs) != 2 {
		t.Fatalf("Expected 2 legs, got %d", len(combo.ComponentMarketIDs))
	}

	// Legs sorted by confidence descending.
	if combo.ComponentMarketIDs[0] != "a" || combo.ComponentMarketIDs[1] != "b" {
		t.Errorf("Wrong leg order: %v", combo.ComponentMarketIDs)
	}

	// odds 2.0 * 2.5 = 5.0, conf 0.70 * 0.60 = 0.42
	if !combo.CombinedOdds.Equal(decimal.NewFromFloat(5.0)) {
		t.Errorf("Wrong combined odds: %s", combo.CombinedOdds)
	}
	if !combo.CombinedConfidence.Equal(decimal.NewFromFloat(0.42)) {
		t.Errorf("Wrong combined confidence: %s", combo.CombinedConfidence)
	}

	// stake = 0.25 * $20 = $5; EV = 5 * 5.0 * 0.42 - 5 = 5.50
	if !combo.StakeAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Wrong stake: %s", combo.StakeAmount)
	}
	if !combo.ExpectedProfit.Equal(decimal.NewFromFloat(5.50)) {
		t.Errorf("Wrong expected profit: %s", combo.ExpectedProfit)
	}
}

func TestBuildFiltersWeakLegs(t *testing.T) {
	b := NewBuilder(nil)

	combo := b.Build([]core.SizedDecision{
		leg("a", 0.70, 2.0, 0.05, 10),
		leg("low-conf", 0.20, 2.5, 0.06, 10),
		leg("low-kelly", 0.60, 2.5, 0.01, 10),
	})

	if combo != nil {
		t.Fatal("One viable leg should not form a combo")
	}
}

func TestBuildCapsLegsAtFour(t *testing.T) {
	b := NewBuilder(nil)

	legs := []core.SizedDecision{
		leg("a", 0.90, 1.5, 0.05, 10),
		leg("b", 0.85, 1.5, 0.05, 10),
		leg("c", 0.80, 1.5, 0.05, 10),
		leg("d", 0.75, 1.5, 0.05, 10),
		leg("e", 0.70, 1.5, 0.05, 10),
	}

	combo := b.Build(legs)
	if combo == nil {
		t.Fatal("Expected a combo")
	}
	if len(combo.ComponentMarketIDs) != 4 {
		t.Fatalf("Expected 4 legs, got %d", len(combo.ComponentMarketIDs))
	}
	// The weakest leg is the one left out.
	for _, id := range combo.ComponentMarketIDs {
		if id == "e" {
			t.Error("Lowest-confidence leg should be dropped")
		}
	}
}

func TestBuildStakeCap(t *testing.T) {
	b := NewBuilder(nil)

	// Singles total $200, fraction gives $50, capped at $15.
	combo := b.Build([]core.SizedDecision{
		leg("a", 0.90, 2.0, 0.05, 100),
		leg("b", 0.85, 2.0, 0.05, 100),
	})

	if combo == nil {
		t.Fatal("Expected a combo")
	}
	if !combo.StakeAmount.Equal(decimal.NewFromFloat(15.00)) {
		t.Errorf("Stake not capped: %s", combo.StakeAmount)
	}
}

func TestBuildRejectsNegativeEV(t *testing.T) {
	b := NewBuilder(nil)

	// odds 1.2 * 1.2 = 1.44, conf 0.4 * 0.4 = 0.16, EV multiplier 0.23 < 1.
	combo := b.Build([]core.SizedDecision{
		leg("a", 0.40, 1.2, 0.05, 10),
		leg("b", 0.40, 1.2, 0.05, 10),
	})

	if combo != nil {
		t.Fatal("Negative expected profit should yield no combo")
	}
}
