// betd is the Overtime betting agent daemon. It runs a continuous
// analysis cycle over the Overtime Protocol market catalog and serves
// the recommendation dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/agent/bankroll"
	"github.com/phenomenon0/overtime-agents/pkg/agent/combo"
	"github.com/phenomenon0/overtime-agents/pkg/agent/filter"
	"github.com/phenomenon0/overtime-agents/pkg/agent/pipeline"
	"github.com/phenomenon0/overtime-agents/pkg/agent/reconcile"
	"github.com/phenomenon0/overtime-agents/pkg/agent/translator"
	"github.com/phenomenon0/overtime-agents/pkg/config"
	"github.com/phenomenon0/overtime-agents/pkg/dashboard"
	"github.com/phenomenon0/overtime-agents/pkg/enrich"
	"github.com/phenomenon0/overtime-agents/pkg/eth"
	"github.com/phenomenon0/overtime-agents/pkg/llm"
	"github.com/phenomenon0/overtime-agents/pkg/metrics"
	"github.com/phenomenon0/overtime-agents/pkg/overtime"
	"github.com/phenomenon0/overtime-agents/pkg/store"
	"github.com/phenomenon0/overtime-agents/pkg/streaming"
)

var (
	// Flags
	configPath = flag.String("config", "", "Path to YAML config file")
	httpAddr   = flag.String("http", "", "HTTP server address (overrides config)")
	runOnce    = flag.Bool("once", false, "Run a single cycle and exit")
	verbose    = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting Overtime Betting Agent")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	agent, err := newAgent(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}
	defer agent.store.Close()

	agent.wireCallbacks()

	if *runOnce {
		report, err := agent.pipe.RunOnce(ctx)
		if err != nil {
			log.Fatalf("Cycle failed: %v", err)
		}
		log.Printf("Cycle %s: %d recommendations saved", report.CycleID, report.Saved)
		return
	}

	stopCh := make(chan struct{})
	go agent.hub.Run(stopCh)
	go agent.startHTTP()

	if err := agent.pipe.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	mode := "analysis-only"
	if !agent.pipeConfig.AnalysisOnly {
		mode = "live execution"
	}
	log.Printf("Agent running (%s, http=%s)", mode, cfg.Server.Addr)
	log.Printf("WebSocket streaming available at ws://%s/ws", cfg.Server.Addr)
	log.Println("Press Ctrl+C to stop")

	<-sigCh
	log.Println("Shutting down...")

	agent.pipe.Stop()
	close(stopCh)
	cancel()

	if summary, err := agent.store.GetSummary(context.Background()); err == nil {
		log.Printf("Final Stats: recommendations=%d, won=%d, lost=%d, pnl=$%s",
			summary.Total, summary.Won, summary.Lost, summary.TotalPnL.Round(2))
	}

	log.Println("Goodbye!")
}

type bettingAgent struct {
	cfg        *config.Config
	market     *overtime.Client
	store      *store.Store
	trans      *translator.Translator
	enricher   *enrich.Enricher
	reconciler *reconcile.Reconciler
	executor   *eth.Executor
	pipe       *pipeline.Pipeline
	pipeConfig *pipeline.Config
	metrics    *metrics.AgentMetrics
	hub        *streaming.Hub
}

func newAgent(cfg *config.Config) (*bettingAgent, error) {
	agent := &bettingAgent{
		cfg:     cfg,
		metrics: metrics.NewAgentMetrics(),
		hub:     streaming.NewHub(),
	}

	// Overtime API client
	agent.market = overtime.NewClient(cfg.Overtime.APIKey,
		overtime.WithBaseURL(cfg.Overtime.BaseURL),
		overtime.WithNetwork(cfg.Overtime.NetworkID),
	)

	// Persistence
	var err error
	agent.store, err = store.New(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// LLM translator
	llmConfig := llm.DefaultConfig(cfg.LLM.Provider)
	llmConfig.APIKey = cfg.LLM.APIKey
	if cfg.LLM.Model != "" {
		llmConfig.Model = cfg.LLM.Model
	}
	if cfg.LLM.BaseURL != "" {
		llmConfig.BaseURL = cfg.LLM.BaseURL
	}
	agent.trans = translator.New(&instrumentedLLM{
		Client:   llm.NewClient(llmConfig),
		provider: llmConfig.Provider,
		metrics:  agent.metrics,
	})

	// Context enrichment. Sources with empty keys stay silent.
	sources := []enrich.Source{
		enrich.NewOddsSource(cfg.Context.OddsAPIKey),
		enrich.NewWeatherSource(cfg.Context.WeatherAPIKey),
		enrich.NewNewsSource(cfg.Context.NewsAPIKey),
	}
	if cfg.Context.GeoEnabled {
		sources = append(sources, enrich.NewGeoSource())
	}
	agent.enricher = enrich.New(sources...)

	// Reconciler
	agent.reconciler = reconcile.New(agent.market, agent.store)

	// Optional on-chain execution
	balance := staticBalance(cfg.Bankroll.StaticBalance)
	if cfg.Execution.Enabled {
		wallet, err := eth.NewWallet(cfg.Execution.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load wallet: %w", err)
		}
		agent.executor, err = eth.NewExecutor(cfg.Execution.RPCURL, wallet, agent.market)
		if err != nil {
			return nil, fmt.Errorf("create executor: %w", err)
		}
		balance = agent.executor.USDCBalance
		log.Printf("Executor initialized (address: %s)", wallet.AddressHex())
	} else {
		log.Printf("No execution configured - recommendations await manual action ($%.2f static bankroll)",
			cfg.Bankroll.StaticBalance)
	}

	// Pipeline
	agent.pipeConfig = pipeline.DefaultConfig()
	agent.pipeConfig.AgentID = cfg.Agent.ID
	agent.pipeConfig.AnalysisOnly = !cfg.Execution.Enabled
	agent.pipeConfig.CycleInterval = cfg.CycleInterval()
	agent.pipeConfig.ReconcileInterval = cfg.ReconcileInterval()

	criteria := &filter.Criteria{
		MinLead:         time.Duration(cfg.Filter.MinLeadHours * float64(time.Hour)),
		MaxLead:         time.Duration(cfg.Filter.MaxLeadHours * float64(time.Hour)),
		LiquidityBypass: decimal.NewFromFloat(cfg.Filter.LiquidityBypass),
		VolumeBypass:    decimal.NewFromFloat(cfg.Filter.VolumeBypass),
	}

	sizerConfig := bankroll.DefaultConfig()
	sizerConfig.Edge = decimal.NewFromFloat(cfg.Bankroll.Edge)
	sizerConfig.KellyDivisor = decimal.NewFromInt(int64(cfg.Bankroll.KellyDivisor))
	sizerConfig.MinimumBet = decimal.NewFromFloat(cfg.Bankroll.MinimumBetUSD)
	sizerConfig.PortfolioCap = decimal.NewFromFloat(cfg.Bankroll.PortfolioCap)

	comboConfig := combo.DefaultConfig()
	comboConfig.MinConfidence = decimal.NewFromFloat(cfg.Combo.MinConfidence)
	comboConfig.MinKelly = decimal.NewFromFloat(cfg.Combo.MinKelly)
	comboConfig.StakeFraction = decimal.NewFromFloat(cfg.Combo.StakeFraction)
	comboConfig.MaxStake = decimal.NewFromFloat(cfg.Combo.MaxStakeUSD)

	var executor pipeline.Executor
	if agent.executor != nil {
		executor = agent.executor
	}

	agent.pipe = pipeline.New(
		agent.pipeConfig,
		agent.market,
		agent.store,
		agent.trans,
		agent.enricher,
		criteria,
		bankroll.NewSizer(sizerConfig),
		combo.NewBuilder(comboConfig),
		agent.reconciler,
		executor,
		balance,
	)

	return agent, nil
}

func (a *bettingAgent) wireCallbacks() {
	a.pipe.OnStageComplete(func(result *pipeline.StageResult) {
		a.metrics.RecordStage(string(result.Stage), result.Duration.Seconds())
		a.hub.Publish(streaming.EventStage, result)

		if *verbose || !result.Success {
			log.Printf("[%s] %s (%.2fms)", result.Stage, statusStr(result.Success),
				float64(result.Duration.Microseconds())/1000)
			if result.Error != "" {
				log.Printf("  Error: %s", result.Error)
			}
		}
	})

	a.pipe.OnCycleComplete(func(report *pipeline.CycleReport) {
		status := "completed"
		if report.Error != "" {
			status = "failed"
		}
		a.metrics.RecordCycle(status, report.Duration.Seconds())
		a.metrics.UpdateMarkets(report.GamesFetched, report.GamesValid)
		a.hub.Publish(streaming.EventCycle, report)
	})

	a.pipe.OnRecommendation(func(d *core.SizedDecision) {
		log.Printf("[RECOMMEND] %s position %d @ %s ($%s, kelly %s, confidence %.2f)",
			d.Teams, d.Position, d.OddsAtDecision, d.StakeAmount, d.KellyFraction.Round(4), d.Confidence)
		log.Printf("  %s", d.Reasoning)

		a.metrics.RecordRecommendation(d.Sport,
			metrics.DecimalToFloat64(d.StakeAmount), d.Confidence)
		a.hub.Publish(streaming.EventRecommendation, d)
	})

	a.pipe.OnCombo(func(c *core.ComboRecommendation) {
		log.Printf("[COMBO] %s: %d legs @ %s ($%s, EV $%s)",
			c.ComboID, len(c.ComponentMarketIDs), c.CombinedOdds.Round(2),
			c.StakeAmount, c.ExpectedProfit.Round(2))

		a.metrics.RecordCombo()
		a.hub.Publish(streaming.EventCombo, c)
	})

	a.pipe.OnReconcile(func(o *reconcile.Outcome) {
		if o.Checked == 0 {
			return
		}
		log.Printf("[RECONCILE] checked %d: %d won, %d lost, %d dismissed (pnl $%s)",
			o.Checked, o.Won, o.Lost, o.Dismissed, o.ProfitLoss.Round(2))

		a.metrics.RecordSettlements(o.Won, o.Lost, o.Dismissed,
			metrics.DecimalToFloat64(o.ProfitLoss))
		a.hub.Publish(streaming.EventReconcile, o)
	})

	a.pipe.OnBankroll(func(balance decimal.Decimal) {
		a.metrics.UpdateBankroll(metrics.DecimalToFloat64(balance))
	})

	a.pipe.OnExecution(func(marketID string, success bool) {
		status := "failed"
		if success {
			status = "success"
		}
		a.metrics.RecordExecution(status)
	})

	a.pipe.OnError(func(err error) {
		log.Printf("[ERROR] %v", err)
		a.hub.Publish(streaming.EventError, err.Error())
	})

	a.hub.OnClientCount(a.metrics.UpdateStreamClients)
}

func (a *bettingAgent) startHTTP() {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Status endpoint
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"running":       a.pipe.IsRunning(),
			"analysis_only": a.pipeConfig.AnalysisOnly,
			"last_cycle":    a.pipe.LastCycle(),
		})
	})

	// Dashboard API
	mux.Handle("/api/", http.StripPrefix("/api", dashboard.NewHandler(a.store).Router(a.cfg.Server.CORSOrigins)))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))

	// WebSocket streaming endpoint
	mux.Handle("/ws", a.hub)

	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("HTTP server listening on %s", a.cfg.Server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

// instrumentedLLM times and counts completion calls around the
// underlying client.
type instrumentedLLM struct {
	llm.Client
	provider string
	metrics  *metrics.AgentMetrics
}

func (c *instrumentedLLM) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	start := time.Now()
	content, err := c.Client.Complete(ctx, prompt, systemPrompt)
	if err != nil {
		c.metrics.RecordLLMCall(c.provider, "error", time.Since(start).Seconds())
		c.metrics.RecordLLMError(c.provider, "completion")
		return content, err
	}
	c.metrics.RecordLLMCall(c.provider, "success", time.Since(start).Seconds())
	return content, nil
}

func statusStr(success bool) string {
	if success {
		return "OK"
	}
	return "FAILED"
}

func staticBalance(amount float64) pipeline.BalanceFunc {
	return func(ctx context.Context) (decimal.Decimal, error) {
		return decimal.NewFromFloat(amount), nil
	}
}
