package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
)

type fakeSource struct {
	markets []core.Market
	err     error
	calls   int
}

func (f *fakeSource) ListMarkets(ctx context.Context) ([]core.Market, error) {
	f.calls++
	return f.markets, f.err
}

type fakeTranslator struct {
	decisions []core.BettingDecision
	calls     int
}

func (f *fakeTranslator) Translate(ctx context.Context, markets []core.Market, sections []string) []core.BettingDecision {
	f.calls++
	return f.decisions
}

type fakeStore struct {
	historical map[string]bool
	saved      []core.SizedDecision
	combos     []*core.ComboRecommendation
	started    []string
	completed  []string
	marked     []string
}

func (f *fakeStore) HistoricalMarketIDs(ctx context.Context) (map[string]bool, error) {
	if f.historical == nil {
		return map[string]bool{}, nil
	}
	return f.historical, nil
}

func (f *fakeStore) SaveRecommendations(ctx context.Context, cycleID string, decisions []core.SizedDecision) (int, error) {
	f.saved = append(f.saved, decisions...)
	return len(decisions), nil
}

func (f *fakeStore) SaveCombo(ctx context.Context, cycleID string, combo *core.ComboRecommendation) error {
	f.combos = append(f.combos, combo)
	return nil
}

func (f *fakeStore) MarkStatusByMarket(ctx context.Context, marketID, status string) error {
	f.marked = append(f.marked, fmt.Sprintf("%s:%s", marketID, status))
	return nil
}

func (f *fakeStore) StartCycle(ctx context.Context, cycle *core.Cycle) error {
	f.started = append(f.started, cycle.CycleID)
	return nil
}

func (f *fakeStore) CompleteCycle(ctx context.Context, cycleID string, games, recs int) error {
	f.completed = append(f.completed, fmt.Sprintf("%s:%d:%d", cycleID, games, recs))
	return nil
}

func testMarkets() []core.Market {
	maturity := time.Now().Add(3 * time.Hour)
	return []core.Market{
		{
			MarketID: "0xabc",
			Sport:    "Soccer",
			HomeTeam: "Arsenal",
			AwayTeam: "Chelsea",
			Maturity: maturity,
			IsOpen:   true,
			Odds: []decimal.Decimal{
				decimal.NewFromFloat(2.0),
				decimal.NewFromFloat(3.5),
				decimal.NewFromFloat(3.8),
			},
		},
		{
			MarketID: "0xdef",
			Sport:    "Basketball",
			HomeTeam: "Lakers",
			AwayTeam: "Celtics",
			Maturity: maturity,
			IsOpen:   true,
			Odds: []decimal.Decimal{
				decimal.NewFromFloat(1.9),
				decimal.NewFromFloat(1.95),
			},
		},
	}
}

func decisionFor(m core.Market, position int, confidence float64) core.BettingDecision {
	return core.BettingDecision{
		MarketID:       m.MarketID,
		Teams:          m.Teams(),
		Sport:          m.Sport,
		Position:       position,
		Confidence:     confidence,
		Reasoning:      "strong home form over the last ten fixtures",
		OddsAtDecision: m.Odds[position],
		Odds:           m.Odds,
		Timestamp:      time.Now(),
	}
}

func staticBalance(amount float64) BalanceFunc {
	return func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.NewFromFloat(amount), nil
	}
}

func TestRunOnceFullCycle(t *testing.T) {
	markets := testMarkets()
	source := &fakeSource{markets: markets}
	store := &fakeStore{}
	translator := &fakeTranslator{decisions: []core.BettingDecision{
		decisionFor(markets[0], 0, 0.62),
	}}

	p := New(nil, source, store, translator, nil, nil, nil, nil, nil, nil, staticBalance(1000))

	var stages []Stage
	p.OnStageComplete(func(r *StageResult) {
		if !r.Success {
			t.Errorf("stage %s failed: %s", r.Stage, r.Error)
		}
		stages = append(stages, r.Stage)
	})

	var recommended []string
	p.OnRecommendation(func(d *core.SizedDecision) {
		recommended = append(recommended, d.MarketID)
	})

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if report.GamesFetched != 2 || report.GamesFresh != 2 || report.GamesValid != 2 {
		t.Errorf("counts: fetched=%d fresh=%d valid=%d, want 2/2/2",
			report.GamesFetched, report.GamesFresh, report.GamesValid)
	}
	if report.Saved != 1 {
		t.Errorf("saved = %d, want 1", report.Saved)
	}
	if len(store.saved) != 1 || store.saved[0].MarketID != "0xabc" {
		t.Fatalf("store.saved = %+v", store.saved)
	}
	// half-Kelly at odds 2.0 with the default edge: 2% of the bankroll
	if !store.saved[0].StakeAmount.Equal(decimal.NewFromInt(20)) {
		t.Errorf("stake = %s, want 20", store.saved[0].StakeAmount)
	}
	if len(recommended) != 1 || recommended[0] != "0xabc" {
		t.Errorf("recommendation callback got %v", recommended)
	}

	want := []Stage{StageFetch, StageDedupe, StageValidity, StageContext, StageTranslate, StageSizing, StagePersist, StageCombo}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i], want[i])
		}
	}

	if len(store.started) != 1 || len(store.completed) != 1 {
		t.Errorf("cycle bookkeeping: started=%v completed=%v", store.started, store.completed)
	}
	if report.CycleID == "" || report.CycleID != store.started[0] {
		t.Errorf("cycle id mismatch: report=%s started=%v", report.CycleID, store.started)
	}
}

func TestRunOnceShortCircuitsWhenNothingFresh(t *testing.T) {
	markets := testMarkets()
	source := &fakeSource{markets: markets}
	store := &fakeStore{historical: map[string]bool{"0xabc": true, "0xdef": true}}
	translator := &fakeTranslator{}

	p := New(nil, source, store, translator, nil, nil, nil, nil, nil, nil, staticBalance(1000))

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !report.ShortCircuited {
		t.Error("expected short circuit with empty fresh slate")
	}
	if translator.calls != 0 {
		t.Errorf("translator called %d times, want 0", translator.calls)
	}
	if len(store.completed) != 1 {
		t.Errorf("cycle not completed: %v", store.completed)
	}
}

func TestRunOnceFetchFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("upstream down")}
	store := &fakeStore{}

	p := New(nil, source, store, &fakeTranslator{}, nil, nil, nil, nil, nil, nil, staticBalance(1000))

	var failed []Stage
	p.OnStageComplete(func(r *StageResult) {
		if !r.Success {
			failed = append(failed, r.Stage)
		}
	})

	_, err := p.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error from failed fetch")
	}
	if len(failed) != 1 || failed[0] != StageFetch {
		t.Errorf("failed stages = %v, want [%s]", failed, StageFetch)
	}
	// the cycle record is still closed out
	if len(store.completed) != 1 {
		t.Errorf("cycle not completed after failure: %v", store.completed)
	}
}

func TestRunOnceBuildsCombo(t *testing.T) {
	markets := testMarkets()
	source := &fakeSource{markets: markets}
	store := &fakeStore{}
	translator := &fakeTranslator{decisions: []core.BettingDecision{
		decisionFor(markets[0], 0, 0.62),
		decisionFor(markets[1], 1, 0.55),
	}}

	p := New(nil, source, store, translator, nil, nil, nil, nil, nil, nil, staticBalance(1000))

	var combos []*core.ComboRecommendation
	p.OnCombo(func(c *core.ComboRecommendation) { combos = append(combos, c) })

	report, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Combo == nil {
		t.Fatal("expected a combo from two viable legs")
	}
	if len(store.combos) != 1 {
		t.Errorf("combo not persisted: %v", store.combos)
	}
	if len(combos) != 1 {
		t.Errorf("combo callback fired %d times, want 1", len(combos))
	}
	if len(report.Combo.ComponentMarketIDs) != 2 {
		t.Errorf("combo legs = %v, want both markets", report.Combo.ComponentMarketIDs)
	}
}

type fakeExecutor struct {
	failFor map[string]bool
	calls   []string
}

func (f *fakeExecutor) Execute(ctx context.Context, d *core.SizedDecision) (string, error) {
	f.calls = append(f.calls, d.MarketID)
	if f.failFor[d.MarketID] {
		return "", errors.New("quote rejected")
	}
	return "0xtxhash", nil
}

func TestRunOnceExecutionCallbacks(t *testing.T) {
	markets := testMarkets()
	source := &fakeSource{markets: markets}
	store := &fakeStore{}
	translator := &fakeTranslator{decisions: []core.BettingDecision{
		decisionFor(markets[0], 0, 0.62),
		decisionFor(markets[1], 1, 0.55),
	}}
	executor := &fakeExecutor{failFor: map[string]bool{"0xdef": true}}

	cfg := DefaultConfig()
	cfg.AnalysisOnly = false

	p := New(cfg, source, store, translator, nil, nil, nil, nil, nil, executor, staticBalance(1000))

	var bankroll []decimal.Decimal
	p.OnBankroll(func(b decimal.Decimal) { bankroll = append(bankroll, b) })

	executions := make(map[string]bool)
	p.OnExecution(func(marketID string, success bool) { executions[marketID] = success })

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(bankroll) != 1 || !bankroll[0].Equal(decimal.NewFromInt(1000)) {
		t.Errorf("bankroll callback got %v, want [1000]", bankroll)
	}

	if len(executor.calls) != 2 {
		t.Fatalf("executor called for %v, want both markets", executor.calls)
	}
	if !executions["0xabc"] {
		t.Error("successful execution not reported")
	}
	if success, ok := executions["0xdef"]; !ok || success {
		t.Errorf("failed execution reported as %v", executions["0xdef"])
	}

	// only the successful trade moves out of pending
	if len(store.marked) != 1 || store.marked[0] != "0xabc:"+core.StatusExecutedOnChain {
		t.Errorf("status updates = %v", store.marked)
	}
}

func TestStartStop(t *testing.T) {
	source := &fakeSource{markets: nil}
	store := &fakeStore{}

	cfg := DefaultConfig()
	cfg.CycleInterval = time.Hour
	cfg.ReconcileInterval = time.Hour

	p := New(cfg, source, store, &fakeTranslator{}, nil, nil, nil, nil, nil, nil, staticBalance(1000))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	// wait for the immediate first cycle
	deadline := time.After(2 * time.Second)
	for p.LastCycle() == nil {
		select {
		case <-deadline:
			t.Fatal("first cycle never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("still running after Stop")
	}
	p.Stop() // second Stop is a no-op
}
