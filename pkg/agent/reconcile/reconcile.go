// Package reconcile settles open recommendations against resolved
// market results and accumulates win-rate patterns for future prompts.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/overtime"
)

// ResultSource fetches resolution state for a market.
type ResultSource interface {
	GetMarketResult(ctx context.Context, marketID string) (*overtime.MarketResult, error)
}

// RecordStore is the slice of the store the reconciler needs.
type RecordStore interface {
	OpenRecommendations(ctx context.Context) ([]core.RecommendationRecord, error)
	Settle(ctx context.Context, id int64, status string, profitLoss decimal.Decimal) error
}

// Outcome summarizes one reconciliation pass.
type Outcome struct {
	Checked    int
	Won        int
	Lost       int
	Dismissed  int
	ProfitLoss decimal.Decimal
}

// Reconciler settles open bets and tracks per-sport performance.
type Reconciler struct {
	source ResultSource
	store  RecordStore

	mu    sync.Mutex
	stats map[string]*sportStats // sport -> record
}

type sportStats struct {
	won  int
	lost int
}

// New creates a reconciler.
func New(source ResultSource, store RecordStore) *Reconciler {
	return &Reconciler{
		source: source,
		store:  store,
		stats:  make(map[string]*sportStats),
	}
}

// Run checks every open recommendation against the result source.
// Records whose market is unresolved stay open, and a lookup failure
// on one record never blocks the rest. Profit on a win is computed
// from the odds snapshotted at decision time.
func (r *Reconciler) Run(ctx context.Context) (*Outcome, error) {
	records, err := r.store.OpenRecommendations(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: load open records: %w", err)
	}

	outcome := &Outcome{ProfitLoss: decimal.Zero}
	for i := range records {
		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		default:
		}

		rec := &records[i]
		result, err := r.source.GetMarketResult(ctx, rec.MarketID)
		if err != nil {
			log.Printf("[RECONCILE] result lookup failed for %s: %v", rec.MarketID, err)
			continue
		}
		outcome.Checked++

		if result.IsCancelled {
			if err := r.store.Settle(ctx, rec.ID, core.StatusDismissed, decimal.Zero); err != nil {
				log.Printf("[RECONCILE] failed to dismiss %s: %v", rec.MarketID, err)
				continue
			}
			outcome.Dismissed++
			continue
		}

		if !result.IsResolved {
			continue
		}

		if result.WinningPosition == rec.Position {
			profit := rec.Amount.Mul(rec.OddsAtPosition().Sub(decimal.NewFromInt(1)))
			if err := r.store.Settle(ctx, rec.ID, core.StatusWon, profit); err != nil {
				log.Printf("[RECONCILE] failed to settle win %s: %v", rec.MarketID, err)
				continue
			}
			outcome.Won++
			outcome.ProfitLoss = outcome.ProfitLoss.Add(profit)
			r.recordResult(rec, true)
			log.Printf("[RECONCILE] %s (%s) won, profit $%s", rec.MarketID, rec.Teams, profit.Round(2))
		} else {
			loss := rec.Amount.Neg()
			if err := r.store.Settle(ctx, rec.ID, core.StatusLost, loss); err != nil {
				log.Printf("[RECONCILE] failed to settle loss %s: %v", rec.MarketID, err)
				continue
			}
			outcome.Lost++
			outcome.ProfitLoss = outcome.ProfitLoss.Add(loss)
			r.recordResult(rec, false)
			log.Printf("[RECONCILE] %s (%s) lost, stake $%s", rec.MarketID, rec.Teams, rec.Amount.Round(2))
		}
	}

	return outcome, nil
}

func (r *Reconciler) recordResult(rec *core.RecommendationRecord, won bool) {
	sport := rec.Sport
	if sport == "" {
		sport = "Unknown"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[sport]
	if !ok {
		s = &sportStats{}
		r.stats[sport] = s
	}
	if won {
		s.won++
	} else {
		s.lost++
	}
}

// PatternSection renders accumulated per-sport performance as a prompt
// section, or empty when nothing has settled yet.
func (r *Reconciler) PatternSection() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.stats) == 0 {
		return ""
	}

	sports := make([]string, 0, len(r.stats))
	for sport := range r.stats {
		sports = append(sports, sport)
	}
	sort.Strings(sports)

	var b strings.Builder
	b.WriteString("Your recent performance by sport:\n")
	for _, sport := range sports {
		s := r.stats[sport]
		total := s.won + s.lost
		b.WriteString(fmt.Sprintf("- %s: %d won, %d lost (%.0f%% win rate)\n",
			sport, s.won, s.lost, 100*float64(s.won)/float64(total)))
	}
	return b.String()
}
