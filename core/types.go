// Package core provides the shared domain types for the betting agent.
package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation status values as persisted in the store.
const (
	StatusPendingManual    = "pending_manual_execution"
	StatusManuallyExecuted = "manually_executed"
	StatusExecutedOnChain  = "executed_onchain"
	StatusWon              = "won"
	StatusLost             = "lost"
	StatusDismissed        = "dismissed"
)

// Cycle status values.
const (
	CycleRunning   = "running"
	CycleCompleted = "completed"
)

// Market is a candidate betting opportunity from the Overtime catalog.
// MarketID is assigned by the origin system and is never invented downstream.
type Market struct {
	MarketID  string            `json:"market_id"`
	Sport     string            `json:"sport"`
	League    string            `json:"league"`
	HomeTeam  string            `json:"home_team"`
	AwayTeam  string            `json:"away_team"`
	Maturity  time.Time         `json:"maturity"`
	IsOpen    bool              `json:"is_open"`
	IsPaused  bool              `json:"is_paused"`
	Status    int               `json:"status"`
	Line      decimal.Decimal   `json:"line"`
	Type      string            `json:"type"`
	Odds      []decimal.Decimal `json:"odds"` // 0=home, 1=away, 2=draw when present
	Liquidity decimal.Decimal   `json:"liquidity"`
	Volume    decimal.Decimal   `json:"volume"`
}

// Teams renders the denormalized display string used in prompts and records.
func (m *Market) Teams() string {
	return fmt.Sprintf("%s vs %s", m.HomeTeam, m.AwayTeam)
}

// OddsAt returns the decimal odds at a position, or zero if out of range.
func (m *Market) OddsAt(position int) decimal.Decimal {
	if position < 0 || position >= len(m.Odds) {
		return decimal.Zero
	}
	return m.Odds[position]
}

// BettingDecision is the agent's choice to act on a Market, produced by
// the translator from LLM output. OddsAtDecision snapshots the odds for
// the chosen position at decision time.
type BettingDecision struct {
	MarketID       string          `json:"market_id"`
	Teams          string          `json:"teams"`
	Sport          string          `json:"sport"`
	Position       int             `json:"position"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning"`
	OddsAtDecision decimal.Decimal   `json:"odds_at_decision"`
	Odds           []decimal.Decimal `json:"odds"`
	Timestamp      time.Time         `json:"timestamp"`
}

// SizedDecision is a BettingDecision plus a Kelly-derived stake.
// KellyFraction keeps the raw fraction before floor/cap clamping for audit.
type SizedDecision struct {
	BettingDecision
	StakeAmount   decimal.Decimal `json:"stake_amount"`
	KellyFraction decimal.Decimal `json:"kelly_fraction"`
}

// ComboRecommendation is a parlay bundling 2-4 sized decisions.
// CombinedConfidence multiplies component confidences, an explicit
// independence assumption inherited from the single-bet model.
type ComboRecommendation struct {
	ComboID            string          `json:"combo_id"`
	ComponentMarketIDs []string        `json:"component_market_ids"`
	ComponentTeams     []string        `json:"component_teams"`
	CombinedOdds       decimal.Decimal `json:"combined_odds"`
	CombinedConfidence decimal.Decimal `json:"combined_confidence"`
	StakeAmount        decimal.Decimal `json:"stake_amount"`
	ExpectedProfit     decimal.Decimal `json:"expected_profit"`
	Reasoning          string          `json:"reasoning"`
	Timestamp          time.Time       `json:"timestamp"`
}

// Teams renders the combo's components as a display string.
func (c *ComboRecommendation) Teams() string {
	out := ""
	for i, t := range c.ComponentTeams {
		if i > 0 {
			out += " + "
		}
		out += t
	}
	return out
}

// RecommendationRecord is a persisted single-bet recommendation.
type RecommendationRecord struct {
	ID            int64             `json:"id"`
	MarketID      string            `json:"market_id"`
	Teams         string            `json:"teams"`
	Sport         string            `json:"sport"`
	Amount        decimal.Decimal   `json:"recommended_amount"`
	Position      int               `json:"position"`
	Confidence    float64           `json:"confidence_score"`
	Reasoning     string            `json:"reasoning"`
	KellyFraction decimal.Decimal   `json:"kelly_fraction"`
	Odds          []decimal.Decimal `json:"odds"`
	Status        string            `json:"status"`
	CycleID       string            `json:"cycle_id"`
	ProfitLoss    decimal.Decimal   `json:"profit_loss"`
	CreatedAt     time.Time         `json:"created_at"`
}

// OddsAtPosition returns the snapshotted odds for the record's position.
func (r *RecommendationRecord) OddsAtPosition() decimal.Decimal {
	if r.Position < 0 || r.Position >= len(r.Odds) {
		return decimal.Zero
	}
	return r.Odds[r.Position]
}

// Cycle is one execution of the pipeline.
type Cycle struct {
	CycleID         string    `json:"cycle_id"`
	AgentID         string    `json:"agent_id"`
	StartTime       time.Time `json:"cycle_start_time"`
	EndTime         time.Time `json:"cycle_end_time"`
	GamesAnalyzed   int       `json:"games_analyzed"`
	Recommendations int       `json:"recommendations_generated"`
	Status          string    `json:"cycle_status"`
}
