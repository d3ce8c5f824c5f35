package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	handler := NewHandler(s)
	server := httptest.NewServer(handler.Router([]string{"*"}))
	t.Cleanup(server.Close)

	return server, s
}

func seedRecommendation(t *testing.T, s *store.Store, marketID string) int64 {
	t.Helper()

	saved, err := s.SaveRecommendations(context.Background(), "cycle_test", []core.SizedDecision{
		{
			BettingDecision: core.BettingDecision{
				MarketID:       marketID,
				Teams:          "Arsenal vs Chelsea",
				Sport:          "Soccer",
				Position:       0,
				Confidence:     0.6,
				Reasoning:      "home side unbeaten in eight",
				OddsAtDecision: decimal.NewFromFloat(2.0),
				Odds:           []decimal.Decimal{decimal.NewFromFloat(2.0), decimal.NewFromFloat(3.5)},
				Timestamp:      time.Now().UTC(),
			},
			StakeAmount:   decimal.NewFromInt(10),
			KellyFraction: decimal.NewFromFloat(0.04),
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, saved)

	recs, err := s.RecentRecommendations(context.Background(), 10)
	require.NoError(t, err)
	for _, rec := range recs {
		if rec.MarketID == marketID {
			return rec.ID
		}
	}
	t.Fatalf("seeded recommendation %s not found", marketID)
	return 0
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestGetRecommendations(t *testing.T) {
	server, s := newTestServer(t)
	seedRecommendation(t, s, "0xabc")

	var body struct {
		Recommendations []core.RecommendationRecord `json:"recommendations"`
		Count           int                         `json:"count"`
	}
	resp := getJSON(t, server.URL+"/recommendations", &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "0xabc", body.Recommendations[0].MarketID)
	assert.Equal(t, core.StatusPendingManual, body.Recommendations[0].Status)
}

func TestGetRecommendationsDefaultsToPending(t *testing.T) {
	server, s := newTestServer(t)
	seedRecommendation(t, s, "0xabc")
	dismissed := seedRecommendation(t, s, "0xdef")
	require.NoError(t, s.MarkStatus(context.Background(), dismissed, core.StatusDismissed))

	var body struct {
		Recommendations []core.RecommendationRecord `json:"recommendations"`
		Count           int                         `json:"count"`
	}
	getJSON(t, server.URL+"/recommendations", &body)

	require.Equal(t, 1, body.Count)
	assert.Equal(t, "0xabc", body.Recommendations[0].MarketID)

	getJSON(t, server.URL+"/recommendations?status=all", &body)
	assert.Equal(t, 2, body.Count)
}

func TestGetSummaryEmpty(t *testing.T) {
	server, _ := newTestServer(t)

	var summary store.Summary
	resp := getJSON(t, server.URL+"/summary", &summary)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, summary.Total)
}

func TestDismissRecommendation(t *testing.T) {
	server, s := newTestServer(t)
	id := seedRecommendation(t, s, "0xabc")

	resp, err := http.Post(server.URL+"/recommendations/"+itoa(id)+"/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	recs, err := s.RecentRecommendations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDismissed, recs[0].Status)
}

func TestExecuteRecommendation(t *testing.T) {
	server, s := newTestServer(t)
	id := seedRecommendation(t, s, "0xabc")

	body := strings.NewReader(`{"market_id":"0xabc","amount":"12.50","notes":"placed via app"}`)
	resp, err := http.Post(server.URL+"/recommendations/"+itoa(id)+"/execute", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	recs, err := s.RecentRecommendations(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, core.StatusManuallyExecuted, recs[0].Status)
}

func TestExecuteRejectsBadAmount(t *testing.T) {
	server, s := newTestServer(t)
	id := seedRecommendation(t, s, "0xabc")

	body := strings.NewReader(`{"market_id":"0xabc","amount":"lots"}`)
	resp, err := http.Post(server.URL+"/recommendations/"+itoa(id)+"/execute", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDismissInvalidID(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/recommendations/abc/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
