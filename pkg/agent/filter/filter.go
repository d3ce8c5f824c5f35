// Package filter screens the market catalog down to candidates the
// agent is allowed to analyze.
package filter

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
)

// Criteria defines the validity window and the activity bypass.
type Criteria struct {
	MinLead time.Duration // soonest acceptable start
	MaxLead time.Duration // latest acceptable start

	// Markets above both thresholds skip the timing window. All other
	// checks still apply.
	LiquidityBypass decimal.Decimal
	VolumeBypass    decimal.Decimal
}

// DefaultCriteria returns the standard screening parameters.
func DefaultCriteria() *Criteria {
	return &Criteria{
		MinLead:         2 * time.Hour,
		MaxLead:         8 * time.Hour,
		LiquidityBypass: decimal.NewFromInt(1000),
		VolumeBypass:    decimal.NewFromInt(5000),
	}
}

// Dedupe drops markets with blank IDs and markets already present in
// the betting history, regardless of how those earlier bets resolved.
func Dedupe(markets []core.Market, seen map[string]bool) []core.Market {
	fresh := make([]core.Market, 0, len(markets))
	for _, m := range markets {
		if strings.TrimSpace(m.MarketID) == "" {
			continue
		}
		if seen[m.MarketID] {
			continue
		}
		fresh = append(fresh, m)
	}
	return fresh
}

// Check validates a single market against the criteria. A nil error
// means the market is eligible; otherwise the error names the first
// failing condition.
func (c *Criteria) Check(m *core.Market, now time.Time) error {
	if !m.IsOpen {
		return fmt.Errorf("market closed")
	}
	if m.IsPaused {
		return fmt.Errorf("market paused")
	}
	if m.Status != 0 {
		return fmt.Errorf("status %d not open", m.Status)
	}
	if !m.Maturity.After(now) {
		return fmt.Errorf("already started at %s", m.Maturity.Format(time.RFC3339))
	}

	if c.highActivity(m) {
		return nil
	}

	lead := m.Maturity.Sub(now)
	if lead < c.MinLead {
		return fmt.Errorf("starts in %s, under %s minimum", lead.Round(time.Minute), c.MinLead)
	}
	if lead > c.MaxLead {
		return fmt.Errorf("starts in %s, over %s maximum", lead.Round(time.Minute), c.MaxLead)
	}

	return nil
}

// Apply screens a batch of markets, logging each rejection with its
// reason. Order is preserved.
func (c *Criteria) Apply(markets []core.Market, now time.Time) []core.Market {
	valid := make([]core.Market, 0, len(markets))
	for i := range markets {
		if err := c.Check(&markets[i], now); err != nil {
			log.Printf("[FILTER] rejected %s (%s): %v", markets[i].MarketID, markets[i].Teams(), err)
			continue
		}
		valid = append(valid, markets[i])
	}
	return valid
}

func (c *Criteria) highActivity(m *core.Market) bool {
	return m.Liquidity.GreaterThan(c.LiquidityBypass) && m.Volume.GreaterThan(c.VolumeBypass)
}
