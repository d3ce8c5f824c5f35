// Package bankroll sizes bets with a fractional Kelly criterion under
// a portfolio-level exposure cap.
package bankroll

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
)

var one = decimal.NewFromInt(1)

// Config holds the sizing parameters.
type Config struct {
	Edge           decimal.Decimal // assumed edge over the implied probability
	KellyDivisor   decimal.Decimal // 2 = half Kelly
	MinimumBet     decimal.Decimal // protocol minimum stake
	MinimumBalance decimal.Decimal // refuse the whole batch below this
	PortfolioCap   decimal.Decimal // max share of balance at risk per cycle
	MaxProbability decimal.Decimal // clamp for the adjusted win probability
}

// DefaultConfig returns the standard sizing parameters.
func DefaultConfig() *Config {
	return &Config{
		Edge:           decimal.NewFromFloat(0.02),
		KellyDivisor:   decimal.NewFromInt(2),
		MinimumBet:     decimal.NewFromFloat(3.00),
		MinimumBalance: decimal.NewFromFloat(3.08),
		PortfolioCap:   decimal.NewFromFloat(0.20),
		MaxProbability: decimal.NewFromFloat(0.99),
	}
}

// Sizer converts betting decisions into sized decisions.
type Sizer struct {
	cfg *Config
}

// NewSizer creates a sizer. A nil config uses the defaults.
func NewSizer(cfg *Config) *Sizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Sizer{cfg: cfg}
}

// KellyFraction computes the raw Kelly fraction for decimal odds using
// the configured edge. The second return is false when the bet has no
// positive expectation or the odds are not bettable.
func (s *Sizer) KellyFraction(odds decimal.Decimal) (decimal.Decimal, bool) {
	if odds.LessThanOrEqual(one) {
		return decimal.Zero, false
	}

	p := one.Div(odds).Add(s.cfg.Edge)
	if p.GreaterThan(s.cfg.MaxProbability) {
		p = s.cfg.MaxProbability
	}
	q := one.Sub(p)
	b := odds.Sub(one)

	kelly := b.Mul(p).Sub(q).Div(b)
	if kelly.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return kelly, true
}

// Size stakes a batch of decisions against the current balance. The
// whole batch is refused when the balance cannot cover a minimum bet
// plus fees. Decisions with no positive edge are dropped, and the
// surviving stakes are scaled down together if they would put more
// than the portfolio cap at risk.
func (s *Sizer) Size(decisions []core.BettingDecision, balance decimal.Decimal) ([]core.SizedDecision, error) {
	if balance.LessThan(s.cfg.MinimumBalance) {
		return nil, fmt.Errorf("balance $%s below minimum $%s", balance, s.cfg.MinimumBalance)
	}

	sized := make([]core.SizedDecision, 0, len(decisions))
	total := decimal.Zero

	for _, d := range decisions {
		kelly, ok := s.KellyFraction(d.OddsAtDecision)
		if !ok {
			log.Printf("[BANKROLL] skipping %s: no edge at odds %s", d.MarketID, d.OddsAtDecision)
			continue
		}

		stake := balance.Mul(kelly).Div(s.cfg.KellyDivisor)
		if stake.LessThan(s.cfg.MinimumBet) {
			stake = s.cfg.MinimumBet
		}

		sized = append(sized, core.SizedDecision{
			BettingDecision: d,
			StakeAmount:     stake,
			KellyFraction:   kelly,
		})
		total = total.Add(stake)
	}

	maxRisk := balance.Mul(s.cfg.PortfolioCap)
	capped := total.GreaterThan(maxRisk)
	if capped {
		scale := maxRisk.Div(total)
		log.Printf("[BANKROLL] total stake $%s exceeds cap $%s, scaling by %s",
			total.Round(2), maxRisk.Round(2), scale.Round(4))
		for i := range sized {
			sized[i].StakeAmount = sized[i].StakeAmount.Mul(scale)
		}
	}

	// Scaled stakes round down so the batch total never exceeds the cap.
	for i := range sized {
		if capped {
			sized[i].StakeAmount = sized[i].StakeAmount.RoundDown(2)
		} else {
			sized[i].StakeAmount = sized[i].StakeAmount.Round(2)
		}
	}

	return sized, nil
}

// TotalStake sums the stakes of a sized batch.
func TotalStake(sized []core.SizedDecision) decimal.Decimal {
	total := decimal.Zero
	for i := range sized {
		total = total.Add(sized[i].StakeAmount)
	}
	return total
}
