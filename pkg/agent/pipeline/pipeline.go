// Package pipeline coordinates the betting workflow: fetch, screen,
// analyze, size, persist, reconcile.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/agent/bankroll"
	"github.com/phenomenon0/overtime-agents/pkg/agent/combo"
	"github.com/phenomenon0/overtime-agents/pkg/agent/filter"
	"github.com/phenomenon0/overtime-agents/pkg/agent/reconcile"
)

// Stage represents a stage in the betting workflow.
type Stage string

const (
	StageFetch     Stage = "market_fetch"
	StageDedupe    Stage = "dedupe"
	StageValidity  Stage = "validity_filter"
	StageContext   Stage = "context_enrichment"
	StageTranslate Stage = "decision_translation"
	StageSizing    Stage = "bankroll_sizing"
	StagePersist   Stage = "persistence"
	StageCombo     Stage = "combo_generation"
	StageReconcile Stage = "reconciliation"
)

// StageResult holds the result of a stage execution.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	CycleID   string        `json:"cycle_id"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// MarketSource provides the market catalog.
type MarketSource interface {
	ListMarkets(ctx context.Context) ([]core.Market, error)
}

// Translator turns the slate into betting decisions.
type Translator interface {
	Translate(ctx context.Context, markets []core.Market, contextSections []string) []core.BettingDecision
}

// ContextCollector gathers optional prompt sections.
type ContextCollector interface {
	Collect(ctx context.Context, markets []core.Market) []string
}

// Executor places a sized bet on chain. Only used when analysis-only
// mode is off.
type Executor interface {
	Execute(ctx context.Context, decision *core.SizedDecision) (txHash string, err error)
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	HistoricalMarketIDs(ctx context.Context) (map[string]bool, error)
	SaveRecommendations(ctx context.Context, cycleID string, decisions []core.SizedDecision) (int, error)
	SaveCombo(ctx context.Context, cycleID string, combo *core.ComboRecommendation) error
	MarkStatusByMarket(ctx context.Context, marketID, status string) error
	StartCycle(ctx context.Context, cycle *core.Cycle) error
	CompleteCycle(ctx context.Context, cycleID string, gamesAnalyzed, recommendations int) error
}

// BalanceFunc reports the bankroll available for the cycle.
type BalanceFunc func(ctx context.Context) (decimal.Decimal, error)

// Config configures the pipeline.
type Config struct {
	AgentID           string
	AnalysisOnly      bool // no on-chain execution; recommendations await manual action
	CycleInterval     time.Duration
	ReconcileInterval time.Duration
}

// DefaultConfig returns the standard pipeline configuration. Analysis
// only is the default: execution has to be opted into.
func DefaultConfig() *Config {
	return &Config{
		AgentID:           "overtime-agent",
		AnalysisOnly:      true,
		CycleInterval:     30 * time.Minute,
		ReconcileInterval: 10 * time.Minute,
	}
}

// CycleReport summarizes one full cycle.
type CycleReport struct {
	CycleID         string                    `json:"cycle_id"`
	GamesFetched    int                       `json:"games_fetched"`
	GamesFresh      int                       `json:"games_fresh"`
	GamesValid      int                       `json:"games_valid"`
	Decisions       int                       `json:"decisions"`
	Recommendations []core.SizedDecision      `json:"recommendations"`
	Combo           *core.ComboRecommendation `json:"combo,omitempty"`
	Saved           int                       `json:"saved"`
	ShortCircuited  bool                      `json:"short_circuited"`
	Error           string                    `json:"error,omitempty"`
	Duration        time.Duration             `json:"duration"`
}

// Pipeline runs betting cycles.
type Pipeline struct {
	config     *Config
	source     MarketSource
	store      Store
	translator Translator
	collector  ContextCollector
	criteria   *filter.Criteria
	sizer      *bankroll.Sizer
	comboBuild *combo.Builder
	reconciler *reconcile.Reconciler
	executor   Executor
	balance    BalanceFunc

	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	lastCycle *CycleReport

	onStageComplete  func(*StageResult)
	onCycleComplete  func(*CycleReport)
	onRecommendation func(*core.SizedDecision)
	onCombo          func(*core.ComboRecommendation)
	onReconcile      func(*reconcile.Outcome)
	onBankroll       func(decimal.Decimal)
	onExecution      func(marketID string, success bool)
	onError          func(error)
}

// New creates a pipeline. criteria, sizer, and comboBuild may be nil
// to use their defaults.
func New(
	config *Config,
	source MarketSource,
	store Store,
	translator Translator,
	collector ContextCollector,
	criteria *filter.Criteria,
	sizer *bankroll.Sizer,
	comboBuild *combo.Builder,
	reconciler *reconcile.Reconciler,
	executor Executor,
	balance BalanceFunc,
) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if criteria == nil {
		criteria = filter.DefaultCriteria()
	}
	if sizer == nil {
		sizer = bankroll.NewSizer(nil)
	}
	if comboBuild == nil {
		comboBuild = combo.NewBuilder(nil)
	}

	return &Pipeline{
		config:     config,
		source:     source,
		store:      store,
		translator: translator,
		collector:  collector,
		criteria:   criteria,
		sizer:      sizer,
		comboBuild: comboBuild,
		reconciler: reconciler,
		executor:   executor,
		balance:    balance,
		stopCh:     make(chan struct{}),
	}
}

// OnStageComplete sets a callback for stage completions.
func (p *Pipeline) OnStageComplete(fn func(*StageResult)) { p.onStageComplete = fn }

// OnCycleComplete sets a callback for finished cycles, successful or not.
func (p *Pipeline) OnCycleComplete(fn func(*CycleReport)) { p.onCycleComplete = fn }

// OnRecommendation sets a callback for each persisted recommendation.
func (p *Pipeline) OnRecommendation(fn func(*core.SizedDecision)) { p.onRecommendation = fn }

// OnCombo sets a callback for persisted parlays.
func (p *Pipeline) OnCombo(fn func(*core.ComboRecommendation)) { p.onCombo = fn }

// OnReconcile sets a callback for reconciliation outcomes.
func (p *Pipeline) OnReconcile(fn func(*reconcile.Outcome)) { p.onReconcile = fn }

// OnBankroll sets a callback for the balance observed at sizing time.
func (p *Pipeline) OnBankroll(fn func(decimal.Decimal)) { p.onBankroll = fn }

// OnExecution sets a callback for each on-chain execution attempt.
func (p *Pipeline) OnExecution(fn func(marketID string, success bool)) { p.onExecution = fn }

// OnError sets a callback for background loop errors.
func (p *Pipeline) OnError(fn func(error)) { p.onError = fn }

// Start launches the cycle and reconcile loops.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	go p.cycleLoop(ctx)
	go p.reconcileLoop(ctx)

	return nil
}

// Stop halts the background loops.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		close(p.stopCh)
		p.running = false
	}
}

// IsRunning returns true while the loops are active.
func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// LastCycle returns the most recent cycle report.
func (p *Pipeline) LastCycle() *CycleReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCycle
}

// RunOnce executes a single betting cycle.
func (p *Pipeline) RunOnce(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	cycleID := newCycleID()
	report := &CycleReport{CycleID: cycleID}

	if err := p.store.StartCycle(ctx, &core.Cycle{
		CycleID:   cycleID,
		AgentID:   p.config.AgentID,
		StartTime: start,
		Status:    core.CycleRunning,
	}); err != nil {
		return nil, fmt.Errorf("start cycle: %w", err)
	}

	err := p.runCycleStages(ctx, report)
	if err != nil {
		report.Error = err.Error()
	}

	report.Duration = time.Since(start)
	if cErr := p.store.CompleteCycle(ctx, cycleID, report.GamesValid, report.Saved); cErr != nil {
		log.Printf("[PIPELINE] failed to complete cycle %s: %v", cycleID, cErr)
	}

	p.mu.Lock()
	p.lastCycle = report
	p.mu.Unlock()

	if p.onCycleComplete != nil {
		p.onCycleComplete(report)
	}

	if err != nil {
		return report, err
	}
	log.Printf("[PIPELINE] cycle %s done: %d fetched, %d valid, %d saved (%s)",
		cycleID, report.GamesFetched, report.GamesValid, report.Saved,
		report.Duration.Round(time.Millisecond))
	return report, nil
}

func (p *Pipeline) runCycleStages(ctx context.Context, report *CycleReport) error {
	var markets []core.Market
	var sections []string
	var decisions []core.BettingDecision
	var sized []core.SizedDecision

	// Fetch
	err := p.runStage(ctx, report.CycleID, StageFetch, func() (interface{}, error) {
		var err error
		markets, err = p.source.ListMarkets(ctx)
		if err != nil {
			return nil, err
		}
		report.GamesFetched = len(markets)
		return map[string]int{"fetched": len(markets)}, nil
	})
	if err != nil {
		return err
	}

	// Dedupe against history
	err = p.runStage(ctx, report.CycleID, StageDedupe, func() (interface{}, error) {
		seen, err := p.store.HistoricalMarketIDs(ctx)
		if err != nil {
			return nil, err
		}
		markets = filter.Dedupe(markets, seen)
		report.GamesFresh = len(markets)
		return map[string]int{"fresh": len(markets)}, nil
	})
	if err != nil {
		return err
	}

	// Validity screen
	err = p.runStage(ctx, report.CycleID, StageValidity, func() (interface{}, error) {
		markets = p.criteria.Apply(markets, time.Now())
		report.GamesValid = len(markets)
		return map[string]int{"valid": len(markets)}, nil
	})
	if err != nil {
		return err
	}

	// Nothing left to analyze: end the cycle before spending an LLM call.
	if len(markets) == 0 {
		report.ShortCircuited = true
		log.Printf("[PIPELINE] cycle %s: no fresh valid markets, skipping analysis", report.CycleID)
		return nil
	}

	// Context enrichment
	err = p.runStage(ctx, report.CycleID, StageContext, func() (interface{}, error) {
		if p.collector != nil {
			sections = p.collector.Collect(ctx, markets)
		}
		if p.reconciler != nil {
			if pattern := p.reconciler.PatternSection(); pattern != "" {
				sections = append(sections, pattern)
			}
		}
		return map[string]int{"sections": len(sections)}, nil
	})
	if err != nil {
		return err
	}

	// Decision translation
	err = p.runStage(ctx, report.CycleID, StageTranslate, func() (interface{}, error) {
		decisions = p.translator.Translate(ctx, markets, sections)
		report.Decisions = len(decisions)
		return map[string]int{"decisions": len(decisions)}, nil
	})
	if err != nil {
		return err
	}

	if len(decisions) == 0 {
		return nil
	}

	// Bankroll sizing
	err = p.runStage(ctx, report.CycleID, StageSizing, func() (interface{}, error) {
		balance, err := p.balance(ctx)
		if err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}
		if p.onBankroll != nil {
			p.onBankroll(balance)
		}
		sized, err = p.sizer.Size(decisions, balance)
		if err != nil {
			return nil, err
		}
		report.Recommendations = sized
		return map[string]interface{}{
			"sized":       len(sized),
			"total_stake": bankroll.TotalStake(sized).String(),
		}, nil
	})
	if err != nil {
		return err
	}

	if len(sized) == 0 {
		return nil
	}

	// Persistence (and optional execution)
	err = p.runStage(ctx, report.CycleID, StagePersist, func() (interface{}, error) {
		saved, err := p.store.SaveRecommendations(ctx, report.CycleID, sized)
		if err != nil {
			return nil, err
		}
		report.Saved = saved

		for i := range sized {
			if p.onRecommendation != nil {
				p.onRecommendation(&sized[i])
			}
			if !p.config.AnalysisOnly && p.executor != nil {
				if txHash, err := p.executor.Execute(ctx, &sized[i]); err != nil {
					// Record stays pending_manual_execution for the operator.
					log.Printf("[PIPELINE] execution failed for %s, left pending: %v", sized[i].MarketID, err)
					if p.onExecution != nil {
						p.onExecution(sized[i].MarketID, false)
					}
				} else {
					log.Printf("[PIPELINE] executed %s on chain: %s", sized[i].MarketID, txHash)
					if err := p.store.MarkStatusByMarket(ctx, sized[i].MarketID, core.StatusExecutedOnChain); err != nil {
						log.Printf("[PIPELINE] failed to mark %s executed: %v", sized[i].MarketID, err)
					}
					if p.onExecution != nil {
						p.onExecution(sized[i].MarketID, true)
					}
				}
			}
		}
		return map[string]int{"saved": saved}, nil
	})
	if err != nil {
		return err
	}

	// Combo generation
	return p.runStage(ctx, report.CycleID, StageCombo, func() (interface{}, error) {
		c := p.comboBuild.Build(sized)
		if c == nil {
			return map[string]bool{"combo": false}, nil
		}
		if err := p.store.SaveCombo(ctx, report.CycleID, c); err != nil {
			return nil, err
		}
		report.Combo = c
		if p.onCombo != nil {
			p.onCombo(c)
		}
		return map[string]bool{"combo": true}, nil
	})
}

// Reconcile settles open recommendations against market results.
func (p *Pipeline) Reconcile(ctx context.Context) (*reconcile.Outcome, error) {
	if p.reconciler == nil {
		return nil, nil
	}

	var outcome *reconcile.Outcome
	err := p.runStage(ctx, "", StageReconcile, func() (interface{}, error) {
		var err error
		outcome, err = p.reconciler.Run(ctx)
		if err != nil {
			return nil, err
		}
		return outcome, nil
	})
	if err != nil {
		return nil, err
	}
	if p.onReconcile != nil && outcome != nil {
		p.onReconcile(outcome)
	}
	return outcome, nil
}

// --- Background loops ---

func (p *Pipeline) cycleLoop(ctx context.Context) {
	// First cycle runs immediately.
	if _, err := p.RunOnce(ctx); err != nil {
		p.handleError(fmt.Errorf("cycle failed: %w", err))
	}

	ticker := time.NewTicker(p.config.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.handleError(fmt.Errorf("cycle failed: %w", err))
			}
		}
	}
}

func (p *Pipeline) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if _, err := p.Reconcile(ctx); err != nil {
				p.handleError(fmt.Errorf("reconcile failed: %w", err))
			}
		}
	}
}

// --- Stage execution ---

func (p *Pipeline) runStage(ctx context.Context, cycleID string, stage Stage, fn func() (interface{}, error)) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	start := time.Now()
	data, err := fn()

	result := &StageResult{
		Stage:     stage,
		CycleID:   cycleID,
		Success:   err == nil,
		Data:      data,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	if p.onStageComplete != nil {
		p.onStageComplete(result)
	}

	if err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	return nil
}

func (p *Pipeline) handleError(err error) {
	log.Printf("[PIPELINE] %v", err)
	if p.onError != nil {
		p.onError(err)
	}
}

func newCycleID() string {
	return "cycle_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
