// Package dashboard serves the recommendation review API.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/store"
)

// Store is the persistence surface the dashboard reads and updates.
type Store interface {
	PendingRecommendations(ctx context.Context, limit int) ([]core.RecommendationRecord, error)
	RecentRecommendations(ctx context.Context, limit int) ([]core.RecommendationRecord, error)
	RecentCombos(ctx context.Context, limit int) ([]store.ComboRecord, error)
	RecentCycles(ctx context.Context, limit int) ([]core.Cycle, error)
	GetSummary(ctx context.Context) (*store.Summary, error)
	PnLHistory(ctx context.Context, limit int) ([]store.PnLPoint, error)
	MarkStatus(ctx context.Context, id int64, status string) error
	RecordManualExecution(ctx context.Context, recID int64, marketID string, amount decimal.Decimal, notes string) error
}

// Handler contains dependencies for the dashboard HTTP handlers.
type Handler struct {
	store Store
}

// NewHandler creates a handler backed by the given store.
func NewHandler(s Store) *Handler {
	return &Handler{store: s}
}

// Router builds the dashboard API router.
func (h *Handler) Router(corsOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/recommendations", h.GetRecommendations)
	r.Get("/combos", h.GetCombos)
	r.Get("/cycles", h.GetCycles)
	r.Get("/summary", h.GetSummary)
	r.Get("/pnl-history", h.GetPnLHistory)
	r.Post("/recommendations/{id}/execute", h.ExecuteRecommendation)
	r.Post("/recommendations/{id}/dismiss", h.DismissRecommendation)

	return r
}

// GetRecommendations returns recommendations awaiting operator review,
// newest first. Pass status=all to include settled and dismissed records.
// Query params: limit, status
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := parseIntParam(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	var (
		recs []core.RecommendationRecord
		err  error
	)
	if r.URL.Query().Get("status") == "all" {
		recs, err = h.store.RecentRecommendations(ctx, limit)
	} else {
		recs, err = h.store.PendingRecommendations(ctx, limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve recommendations", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// GetCombos returns recent parlay recommendations.
func (h *Handler) GetCombos(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := parseIntParam(r, "limit", 20)

	combos, err := h.store.RecentCombos(ctx, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve combos", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"combos": combos,
		"count":  len(combos),
	})
}

// GetCycles returns recent agent cycles.
func (h *Handler) GetCycles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := parseIntParam(r, "limit", 20)

	cycles, err := h.store.RecentCycles(ctx, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve cycles", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

// GetSummary returns aggregate performance statistics.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	summary, err := h.store.GetSummary(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute summary", err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetPnLHistory returns the cumulative P&L series over settled bets.
func (h *Handler) GetPnLHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := parseIntParam(r, "limit", 200)

	points, err := h.store.PnLHistory(ctx, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve pnl history", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"points": points,
		"count":  len(points),
	})
}

type executeRequest struct {
	MarketID string `json:"market_id"`
	Amount   string `json:"amount"`
	Notes    string `json:"notes"`
}

// ExecuteRecommendation records that the operator placed the bet by hand.
func (h *Handler) ExecuteRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recommendation id", err)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	if err := h.store.RecordManualExecution(ctx, id, req.MarketID, amount, req.Notes); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record execution", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": core.StatusManuallyExecuted,
	})
}

// DismissRecommendation marks a recommendation as dismissed.
func (h *Handler) DismissRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := parseID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recommendation id", err)
		return
	}

	if err := h.store.MarkStatus(ctx, id, core.StatusDismissed); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to dismiss recommendation", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": core.StatusDismissed,
	})
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[DASHBOARD] encode response: %v", err)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		log.Printf("[DASHBOARD] %s: %v", message, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
