// Package combo builds parlay recommendations out of the strongest
// single-bet decisions in a cycle.
package combo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
)

// Config holds the parlay construction parameters.
type Config struct {
	MinConfidence decimal.Decimal // per-leg confidence floor
	MinKelly      decimal.Decimal // per-leg kelly floor
	MinLegs       int
	MaxLegs       int
	StakeFraction decimal.Decimal // fraction of the combined single stakes
	MaxStake      decimal.Decimal
}

// DefaultConfig returns the standard parlay parameters.
func DefaultConfig() *Config {
	return &Config{
		MinConfidence: decimal.NewFromFloat(0.35),
		MinKelly:      decimal.NewFromFloat(0.04),
		MinLegs:       2,
		MaxLegs:       4,
		StakeFraction: decimal.NewFromFloat(0.25),
		MaxStake:      decimal.NewFromFloat(15.00),
	}
}

// Builder assembles combo recommendations.
type Builder struct {
	cfg *Config
}

// NewBuilder creates a builder. A nil config uses the defaults.
func NewBuilder(cfg *Config) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Builder{cfg: cfg}
}

// Build assembles a parlay from the viable legs of a sized batch, or
// returns nil when no combo with positive expected profit exists.
// Combined confidence multiplies leg confidences, which treats the
// legs as independent outcomes.
func (b *Builder) Build(sized []core.SizedDecision) *core.ComboRecommendation {
	viable := make([]core.SizedDecision, 0, len(sized))
	for _, d := range sized {
		conf := decimal.NewFromFloat(d.Confidence)
		if conf.LessThan(b.cfg.MinConfidence) {
			continue
		}
		if d.KellyFraction.LessThan(b.cfg.MinKelly) {
			continue
		}
		viable = append(viable, d)
	}

	if len(viable) < b.cfg.MinLegs {
		return nil
	}

	sort.SliceStable(viable, func(i, j int) bool {
		return viable[i].Confidence > viable[j].Confidence
	})

	if len(viable) > b.cfg.MaxLegs {
		viable = viable[:b.cfg.MaxLegs]
	}

	combinedOdds := decimal.NewFromInt(1)
	combinedConf := decimal.NewFromInt(1)
	singlesTotal := decimal.Zero
	marketIDs := make([]string, 0, len(viable))
	teams := make([]string, 0, len(viable))

	for _, leg := range viable {
		combinedOdds = combinedOdds.Mul(leg.OddsAtDecision)
		combinedConf = combinedConf.Mul(decimal.NewFromFloat(leg.Confidence))
		singlesTotal = singlesTotal.Add(leg.StakeAmount)
		marketIDs = append(marketIDs, leg.MarketID)
		teams = append(teams, leg.Teams)
	}

	stake := singlesTotal.Mul(b.cfg.StakeFraction)
	if stake.GreaterThan(b.cfg.MaxStake) {
		stake = b.cfg.MaxStake
	}
	stake = stake.Round(2)

	expectedProfit := stake.Mul(combinedOdds).Mul(combinedConf).Sub(stake)
	if expectedProfit.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	return &core.ComboRecommendation{
		ComboID:            "combo_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		ComponentMarketIDs: marketIDs,
		ComponentTeams:     teams,
		CombinedOdds:       combinedOdds,
		CombinedConfidence: combinedConf,
		StakeAmount:        stake,
		ExpectedProfit:     expectedProfit.Round(2),
		Reasoning: fmt.Sprintf("%d-leg parlay (%s) at combined odds %s, combined confidence %s",
			len(viable), strings.Join(teams, " + "),
			combinedOdds.StringFixed(2), combinedConf.StringFixed(2)),
		Timestamp: time.Now(),
	}
}
