// Package store persists recommendations, combos, cycles, and manual
// executions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/phenomenon0/overtime-agents/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_recommendations (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id          TEXT NOT NULL UNIQUE,
    teams              TEXT NOT NULL DEFAULT '',
    sport              TEXT NOT NULL DEFAULT '',
    recommended_amount TEXT NOT NULL,
    position           INTEGER NOT NULL,
    confidence_score   REAL NOT NULL DEFAULT 0,
    reasoning          TEXT NOT NULL DEFAULT '',
    kelly_fraction     TEXT NOT NULL DEFAULT '0',
    odds               TEXT NOT NULL DEFAULT '[]',
    status             TEXT NOT NULL,
    cycle_id           TEXT NOT NULL DEFAULT '',
    profit_loss        TEXT NOT NULL DEFAULT '0',
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS combo_recommendations (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    combo_id            TEXT NOT NULL UNIQUE,
    component_market_ids TEXT NOT NULL,
    component_teams     TEXT NOT NULL DEFAULT '[]',
    combined_odds       TEXT NOT NULL,
    combined_confidence TEXT NOT NULL,
    stake_amount        TEXT NOT NULL,
    expected_profit     TEXT NOT NULL,
    reasoning           TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL,
    cycle_id            TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS manual_executions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id   TEXT NOT NULL,
    amount      TEXT NOT NULL,
    executed_at DATETIME NOT NULL,
    notes       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS agent_cycles (
    id                        INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id                  TEXT NOT NULL UNIQUE,
    agent_id                  TEXT NOT NULL DEFAULT '',
    cycle_start_time          DATETIME NOT NULL,
    cycle_end_time            DATETIME,
    games_analyzed            INTEGER NOT NULL DEFAULT 0,
    recommendations_generated INTEGER NOT NULL DEFAULT 0,
    cycle_status              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rec_status  ON agent_recommendations(status);
CREATE INDEX IF NOT EXISTS idx_rec_cycle   ON agent_recommendations(cycle_id);
CREATE INDEX IF NOT EXISTS idx_rec_created ON agent_recommendations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_combo_cycle ON combo_recommendations(cycle_id);
CREATE INDEX IF NOT EXISTS idx_cycle_start ON agent_cycles(cycle_start_time DESC);
`

// Store is a SQLite-backed recommendation store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at the given path and applies
// the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.New: open %q: %w", path, err)
	}
	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.New: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecommendations persists a batch of sized decisions inside a
// single transaction, so readers sharing the database never see a
// half-written cycle. One bad record does not discard the rest, and a
// market that already has a recommendation is left untouched.
// Returns the number of rows actually written.
func (s *Store) SaveRecommendations(ctx context.Context, cycleID string, decisions []core.SizedDecision) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store.SaveRecommendations: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	saved := 0

	for i := range decisions {
		d := &decisions[i]
		oddsJSON, err := marshalOdds(d.Odds)
		if err != nil {
			log.Printf("[STORE] skipping %s: %v", d.MarketID, err)
			continue
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO agent_recommendations
			(market_id, teams, sport, recommended_amount, position, confidence_score,
			 reasoning, kelly_fraction, odds, status, cycle_id, profit_loss, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '0', ?, ?)`,
			d.MarketID, d.Teams, d.Sport, d.StakeAmount.String(), d.Position, d.Confidence,
			d.Reasoning, d.KellyFraction.String(), oddsJSON, core.StatusPendingManual,
			cycleID, now, now)
		if err != nil {
			log.Printf("[STORE] failed to save %s: %v", d.MarketID, err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store.SaveRecommendations: commit: %w", err)
	}
	return saved, nil
}

// SaveCombo persists a parlay recommendation.
func (s *Store) SaveCombo(ctx context.Context, cycleID string, combo *core.ComboRecommendation) error {
	ids, err := json.Marshal(combo.ComponentMarketIDs)
	if err != nil {
		return fmt.Errorf("store.SaveCombo: marshal ids: %w", err)
	}
	teams, err := json.Marshal(combo.ComponentTeams)
	if err != nil {
		return fmt.Errorf("store.SaveCombo: marshal teams: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO combo_recommendations
		(combo_id, component_market_ids, component_teams, combined_odds, combined_confidence,
		 stake_amount, expected_profit, reasoning, status, cycle_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		combo.ComboID, string(ids), string(teams), combo.CombinedOdds.String(),
		combo.CombinedConfidence.String(), combo.StakeAmount.String(),
		combo.ExpectedProfit.String(), combo.Reasoning, core.StatusPendingManual,
		cycleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store.SaveCombo: %w", err)
	}
	return nil
}

// HistoricalMarketIDs returns every market ID the agent has ever bet
// on, in any status.
func (s *Store) HistoricalMarketIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT market_id FROM agent_recommendations`)
	if err != nil {
		return nil, fmt.Errorf("store.HistoricalMarketIDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store.HistoricalMarketIDs: scan: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// OpenRecommendations returns records still awaiting an outcome.
func (s *Store) OpenRecommendations(ctx context.Context) ([]core.RecommendationRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, market_id, teams, sport, recommended_amount, position, confidence_score,
		       reasoning, kelly_fraction, odds, status, cycle_id, profit_loss, created_at
		FROM agent_recommendations
		WHERE status IN (?, ?, ?)
		ORDER BY created_at ASC, id ASC`,
		core.StatusPendingManual, core.StatusManuallyExecuted, core.StatusExecutedOnChain)
}

// PendingRecommendations returns records awaiting operator review,
// newest first.
func (s *Store) PendingRecommendations(ctx context.Context, limit int) ([]core.RecommendationRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, market_id, teams, sport, recommended_amount, position, confidence_score,
		       reasoning, kelly_fraction, odds, status, cycle_id, profit_loss, created_at
		FROM agent_recommendations
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`, core.StatusPendingManual, limit)
}

// RecentRecommendations returns the newest records first.
func (s *Store) RecentRecommendations(ctx context.Context, limit int) ([]core.RecommendationRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, market_id, teams, sport, recommended_amount, position, confidence_score,
		       reasoning, kelly_fraction, odds, status, cycle_id, profit_loss, created_at
		FROM agent_recommendations
		ORDER BY created_at DESC
		LIMIT ?`, limit)
}

// MarkStatus updates the status of a recommendation.
func (s *Store) MarkStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_recommendations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store.MarkStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store.MarkStatus: recommendation %d not found", id)
	}
	return nil
}

// MarkStatusByMarket updates the status of the recommendation for a
// market. Used by the executor, which knows the market but not the
// row id.
func (s *Store) MarkStatusByMarket(ctx context.Context, marketID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_recommendations SET status = ?, updated_at = ? WHERE market_id = ?`,
		status, time.Now().UTC(), marketID)
	if err != nil {
		return fmt.Errorf("store.MarkStatusByMarket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store.MarkStatusByMarket: no recommendation for %s", marketID)
	}
	return nil
}

// Settle records the final outcome and profit of a recommendation.
func (s *Store) Settle(ctx context.Context, id int64, status string, profitLoss decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_recommendations SET status = ?, profit_loss = ?, updated_at = ? WHERE id = ?`,
		status, profitLoss.String(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store.Settle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store.Settle: recommendation %d not found", id)
	}
	return nil
}

// RecordManualExecution logs that a human placed the bet, and moves
// the recommendation out of pending.
func (s *Store) RecordManualExecution(ctx context.Context, recID int64, marketID string, amount decimal.Decimal, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_executions (market_id, amount, executed_at, notes)
		VALUES (?, ?, ?, ?)`,
		marketID, amount.String(), time.Now().UTC(), notes)
	if err != nil {
		return fmt.Errorf("store.RecordManualExecution: %w", err)
	}
	return s.MarkStatus(ctx, recID, core.StatusManuallyExecuted)
}

// StartCycle records the beginning of a pipeline run.
func (s *Store) StartCycle(ctx context.Context, cycle *core.Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_cycles (cycle_id, agent_id, cycle_start_time, games_analyzed,
		                          recommendations_generated, cycle_status)
		VALUES (?, ?, ?, 0, 0, ?)`,
		cycle.CycleID, cycle.AgentID, cycle.StartTime.UTC(), core.CycleRunning)
	if err != nil {
		return fmt.Errorf("store.StartCycle: %w", err)
	}
	return nil
}

// CompleteCycle closes out a pipeline run with its final counts.
func (s *Store) CompleteCycle(ctx context.Context, cycleID string, gamesAnalyzed, recommendations int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_cycles
		SET cycle_end_time = ?, games_analyzed = ?, recommendations_generated = ?, cycle_status = ?
		WHERE cycle_id = ?`,
		time.Now().UTC(), gamesAnalyzed, recommendations, core.CycleCompleted, cycleID)
	if err != nil {
		return fmt.Errorf("store.CompleteCycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycles first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]core.Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, agent_id, cycle_start_time, COALESCE(cycle_end_time, cycle_start_time),
		       games_analyzed, recommendations_generated, cycle_status
		FROM agent_cycles
		ORDER BY cycle_start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.RecentCycles: %w", err)
	}
	defer rows.Close()

	var cycles []core.Cycle
	for rows.Next() {
		var c core.Cycle
		if err := rows.Scan(&c.CycleID, &c.AgentID, &c.StartTime, &c.EndTime,
			&c.GamesAnalyzed, &c.Recommendations, &c.Status); err != nil {
			return nil, fmt.Errorf("store.RecentCycles: scan: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// Summary aggregates overall betting performance.
type Summary struct {
	Total      int             `json:"total"`
	Pending    int             `json:"pending"`
	Won        int             `json:"won"`
	Lost       int             `json:"lost"`
	Dismissed  int             `json:"dismissed"`
	TotalStake decimal.Decimal `json:"total_stake"`
	TotalPnL   decimal.Decimal `json:"total_pnl"`
	WinRate    float64         `json:"win_rate"`
}

// GetSummary computes the performance summary across all records.
func (s *Store) GetSummary(ctx context.Context) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, recommended_amount, profit_loss FROM agent_recommendations`)
	if err != nil {
		return nil, fmt.Errorf("store.GetSummary: %w", err)
	}
	defer rows.Close()

	summary := &Summary{TotalStake: decimal.Zero, TotalPnL: decimal.Zero}
	for rows.Next() {
		var status, amount, pnl string
		if err := rows.Scan(&status, &amount, &pnl); err != nil {
			return nil, fmt.Errorf("store.GetSummary: scan: %w", err)
		}

		summary.Total++
		switch status {
		case core.StatusWon:
			summary.Won++
		case core.StatusLost:
			summary.Lost++
		case core.StatusDismissed:
			summary.Dismissed++
		default:
			summary.Pending++
		}

		if a, err := decimal.NewFromString(amount); err == nil {
			summary.TotalStake = summary.TotalStake.Add(a)
		}
		if p, err := decimal.NewFromString(pnl); err == nil {
			summary.TotalPnL = summary.TotalPnL.Add(p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if settled := summary.Won + summary.Lost; settled > 0 {
		summary.WinRate = float64(summary.Won) / float64(settled)
	}
	return summary, nil
}

// PnLPoint is one settled bet on the profit history.
type PnLPoint struct {
	SettledAt     time.Time       `json:"settled_at"`
	MarketID      string          `json:"market_id"`
	Teams         string          `json:"teams"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	CumulativePnL decimal.Decimal `json:"cumulative_pnl"`
}

// PnLHistory returns settled bets in chronological order with a
// running profit total.
func (s *Store) PnLHistory(ctx context.Context, limit int) ([]PnLPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT updated_at, market_id, teams, profit_loss
		FROM agent_recommendations
		WHERE status IN (?, ?)
		ORDER BY updated_at ASC
		LIMIT ?`, core.StatusWon, core.StatusLost, limit)
	if err != nil {
		return nil, fmt.Errorf("store.PnLHistory: %w", err)
	}
	defer rows.Close()

	var points []PnLPoint
	running := decimal.Zero
	for rows.Next() {
		var p PnLPoint
		var pnl string
		if err := rows.Scan(&p.SettledAt, &p.MarketID, &p.Teams, &pnl); err != nil {
			return nil, fmt.Errorf("store.PnLHistory: scan: %w", err)
		}
		p.ProfitLoss, _ = decimal.NewFromString(pnl)
		running = running.Add(p.ProfitLoss)
		p.CumulativePnL = running
		points = append(points, p)
	}
	return points, rows.Err()
}

// ComboRecord is a persisted parlay.
type ComboRecord struct {
	ID                 int64           `json:"id"`
	ComboID            string          `json:"combo_id"`
	ComponentMarketIDs []string        `json:"component_market_ids"`
	ComponentTeams     []string        `json:"component_teams"`
	CombinedOdds       decimal.Decimal `json:"combined_odds"`
	CombinedConfidence decimal.Decimal `json:"combined_confidence"`
	StakeAmount        decimal.Decimal `json:"stake_amount"`
	ExpectedProfit     decimal.Decimal `json:"expected_profit"`
	Reasoning          string          `json:"reasoning"`
	Status             string          `json:"status"`
	CycleID            string          `json:"cycle_id"`
	CreatedAt          time.Time       `json:"created_at"`
}

// RecentCombos returns the newest parlays first.
func (s *Store) RecentCombos(ctx context.Context, limit int) ([]ComboRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, combo_id, component_market_ids, component_teams, combined_odds,
		       combined_confidence, stake_amount, expected_profit, reasoning, status,
		       cycle_id, created_at
		FROM combo_recommendations
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.RecentCombos: %w", err)
	}
	defer rows.Close()

	var combos []ComboRecord
	for rows.Next() {
		var c ComboRecord
		var ids, teams, odds, conf, stake, profit string
		if err := rows.Scan(&c.ID, &c.ComboID, &ids, &teams, &odds, &conf,
			&stake, &profit, &c.Reasoning, &c.Status, &c.CycleID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.RecentCombos: scan: %w", err)
		}
		json.Unmarshal([]byte(ids), &c.ComponentMarketIDs)
		json.Unmarshal([]byte(teams), &c.ComponentTeams)
		c.CombinedOdds, _ = decimal.NewFromString(odds)
		c.CombinedConfidence, _ = decimal.NewFromString(conf)
		c.StakeAmount, _ = decimal.NewFromString(stake)
		c.ExpectedProfit, _ = decimal.NewFromString(profit)
		combos = append(combos, c)
	}
	return combos, rows.Err()
}

// --- Internal helpers ---

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]core.RecommendationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var records []core.RecommendationRecord
	for rows.Next() {
		var r core.RecommendationRecord
		var amount, kelly, odds, pnl string
		if err := rows.Scan(&r.ID, &r.MarketID, &r.Teams, &r.Sport, &amount, &r.Position,
			&r.Confidence, &r.Reasoning, &kelly, &odds, &r.Status, &r.CycleID,
			&pnl, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.Amount, _ = decimal.NewFromString(amount)
		r.KellyFraction, _ = decimal.NewFromString(kelly)
		r.ProfitLoss, _ = decimal.NewFromString(pnl)
		r.Odds = unmarshalOdds(odds)
		records = append(records, r)
	}
	return records, rows.Err()
}

func marshalOdds(odds []decimal.Decimal) (string, error) {
	strs := make([]string, 0, len(odds))
	for _, o := range odds {
		strs = append(strs, o.String())
	}
	data, err := json.Marshal(strs)
	if err != nil {
		return "", fmt.Errorf("marshal odds: %w", err)
	}
	return string(data), nil
}

func unmarshalOdds(data string) []decimal.Decimal {
	var strs []string
	if err := json.Unmarshal([]byte(data), &strs); err != nil {
		return nil
	}
	odds := make([]decimal.Decimal, 0, len(strs))
	for _, s := range strs {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		odds = append(odds, d)
	}
	return odds
}
