// Package metrics provides Prometheus metrics for the betting agent.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// AgentMetrics collects and exposes agent-related Prometheus metrics.
type AgentMetrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	StageLatency  *prometheus.HistogramVec

	// Market metrics
	MarketsFetched *prometheus.GaugeVec
	MarketsValid   *prometheus.GaugeVec

	// Recommendation metrics
	RecommendationsTotal *prometheus.CounterVec
	StakeVolume          *prometheus.CounterVec
	RecommendationStake  *prometheus.HistogramVec
	DecisionConfidence   *prometheus.HistogramVec
	CombosTotal          *prometheus.CounterVec

	// Settlement metrics
	SettlementsTotal *prometheus.CounterVec
	RealizedPnL      *prometheus.GaugeVec

	// Bankroll metrics
	BankrollBalance *prometheus.GaugeVec

	// LLM metrics
	LLMCallsTotal *prometheus.CounterVec
	LLMLatency    *prometheus.HistogramVec
	LLMErrors     *prometheus.CounterVec

	// Execution metrics
	ExecutionsTotal *prometheus.CounterVec

	// Streaming metrics
	StreamClients *prometheus.GaugeVec
}

// NewAgentMetrics creates a new agent metrics collector.
func NewAgentMetrics() *AgentMetrics {
	registry := prometheus.NewRegistry()

	am := &AgentMetrics{
		registry: registry,

		// Cycle metrics
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_cycles_total",
				Help: "Total number of betting cycles run",
			},
			[]string{"status"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overtime_cycle_duration_seconds",
				Help:    "Full betting cycle duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~400s
			},
			[]string{},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overtime_stage_latency_seconds",
				Help:    "Individual cycle stage latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"stage"},
		),

		// Market metrics
		MarketsFetched: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overtime_markets_fetched",
				Help: "Markets returned by the catalog in the last cycle",
			},
			[]string{},
		),
		MarketsValid: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overtime_markets_valid",
				Help: "Markets that survived dedup and validity screening",
			},
			[]string{},
		),

		// Recommendation metrics
		RecommendationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_recommendations_total",
				Help: "Total number of bet recommendations produced",
			},
			[]string{"sport"},
		),
		StakeVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_stake_volume_usd",
				Help: "Total recommended stake in USD",
			},
			[]string{},
		),
		RecommendationStake: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overtime_recommendation_stake_usd",
				Help:    "Individual recommendation stake in USD",
				Buckets: []float64{1, 3, 5, 10, 25, 50, 100, 250},
			},
			[]string{},
		),
		DecisionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overtime_decision_confidence",
				Help:    "Model confidence per recommendation (0-1)",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{},
		),
		CombosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_combos_total",
				Help: "Total number of parlay recommendations produced",
			},
			[]string{},
		),

		// Settlement metrics
		SettlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_settlements_total",
				Help: "Total number of settled recommendations",
			},
			[]string{"outcome"},
		),
		RealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overtime_realized_pnl_usd",
				Help: "Realized P&L in USD (can be negative)",
			},
			[]string{},
		),

		// Bankroll metrics
		BankrollBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overtime_bankroll_balance_usd",
				Help: "Current bankroll balance in USD",
			},
			[]string{},
		),

		// LLM metrics
		LLMCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_llm_calls_total",
				Help: "Total number of LLM analysis calls",
			},
			[]string{"provider", "status"},
		),
		LLMLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overtime_llm_latency_seconds",
				Help:    "LLM analysis latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
			},
			[]string{"provider"},
		),
		LLMErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_llm_errors_total",
				Help: "Total number of LLM errors",
			},
			[]string{"provider", "error_type"},
		),

		// Execution metrics
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overtime_executions_total",
				Help: "Total number of on-chain trade executions",
			},
			[]string{"status"},
		),

		// Streaming metrics
		StreamClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overtime_stream_clients",
				Help: "Connected websocket clients",
			},
			[]string{},
		),
	}

	// Register all metrics
	am.registerAll()

	return am
}

func (am *AgentMetrics) registerAll() {
	am.registry.MustRegister(
		am.CyclesTotal,
		am.CycleDuration,
		am.StageLatency,
		am.MarketsFetched,
		am.MarketsValid,
		am.RecommendationsTotal,
		am.StakeVolume,
		am.RecommendationStake,
		am.DecisionConfidence,
		am.CombosTotal,
		am.SettlementsTotal,
		am.RealizedPnL,
		am.BankrollBalance,
		am.LLMCallsTotal,
		am.LLMLatency,
		am.LLMErrors,
		am.ExecutionsTotal,
		am.StreamClients,
	)
}

// Registry returns the prometheus registry.
func (am *AgentMetrics) Registry() *prometheus.Registry {
	return am.registry
}

// --- Helper methods for recording metrics ---

// RecordCycle records a completed betting cycle.
func (am *AgentMetrics) RecordCycle(status string, durationSec float64) {
	am.CyclesTotal.WithLabelValues(status).Inc()
	if durationSec > 0 {
		am.CycleDuration.WithLabelValues().Observe(durationSec)
	}
}

// RecordStage records a stage execution.
func (am *AgentMetrics) RecordStage(stage string, durationSec float64) {
	am.StageLatency.WithLabelValues(stage).Observe(durationSec)
}

// UpdateMarkets updates the market funnel gauges.
func (am *AgentMetrics) UpdateMarkets(fetched, valid int) {
	am.MarketsFetched.WithLabelValues().Set(float64(fetched))
	am.MarketsValid.WithLabelValues().Set(float64(valid))
}

// RecordRecommendation records a produced bet recommendation.
func (am *AgentMetrics) RecordRecommendation(sport string, stakeUSD, confidence float64) {
	am.RecommendationsTotal.WithLabelValues(sport).Inc()
	am.StakeVolume.WithLabelValues().Add(stakeUSD)
	am.RecommendationStake.WithLabelValues().Observe(stakeUSD)
	if confidence >= 0 {
		am.DecisionConfidence.WithLabelValues().Observe(confidence)
	}
}

// RecordCombo records a produced parlay.
func (am *AgentMetrics) RecordCombo() {
	am.CombosTotal.WithLabelValues().Inc()
}

// RecordSettlements records the outcome counts of one reconciliation
// pass and moves the realized P&L gauge by its net profit.
func (am *AgentMetrics) RecordSettlements(won, lost, dismissed int, pnlUSD float64) {
	am.SettlementsTotal.WithLabelValues("won").Add(float64(won))
	am.SettlementsTotal.WithLabelValues("lost").Add(float64(lost))
	am.SettlementsTotal.WithLabelValues("dismissed").Add(float64(dismissed))
	am.RealizedPnL.WithLabelValues().Add(pnlUSD)
}

// UpdateBankroll updates the bankroll gauge.
func (am *AgentMetrics) UpdateBankroll(balanceUSD float64) {
	am.BankrollBalance.WithLabelValues().Set(balanceUSD)
}

// RecordLLMCall records an LLM analysis call.
func (am *AgentMetrics) RecordLLMCall(provider, status string, latencySec float64) {
	am.LLMCallsTotal.WithLabelValues(provider, status).Inc()
	if latencySec > 0 {
		am.LLMLatency.WithLabelValues(provider).Observe(latencySec)
	}
}

// RecordLLMError records an LLM error.
func (am *AgentMetrics) RecordLLMError(provider, errorType string) {
	am.LLMErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordExecution records an on-chain execution attempt.
func (am *AgentMetrics) RecordExecution(status string) {
	am.ExecutionsTotal.WithLabelValues(status).Inc()
}

// UpdateStreamClients updates the connected client gauge.
func (am *AgentMetrics) UpdateStreamClients(count int) {
	am.StreamClients.WithLabelValues().Set(float64(count))
}

// --- Decimal helpers ---

// DecimalToFloat64 safely converts decimal.Decimal to float64 for metrics.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Global instance for convenience
var defaultMetrics *AgentMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *AgentMetrics {
	once.Do(func() {
		defaultMetrics = NewAgentMetrics()
	})
	return defaultMetrics
}
