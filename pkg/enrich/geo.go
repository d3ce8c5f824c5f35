package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/phenomenon0/overtime-agents/core"
)

const geoLookupURL = "http://ip-api.com/json/?fields=status,message,country,countryCode,regionName,city,timezone,query"

// GeoInfo contains geographic information about the agent's host.
type GeoInfo struct {
	IP          string `json:"query"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"regionName"`
	City        string `json:"city"`
	Timezone    string `json:"timezone"`
}

// GeoSource resolves the agent's location via ip-api.com so the model
// can reason about local start times. Results are cached since the
// free tier allows 45 requests a minute.
type GeoSource struct {
	httpClient *http.Client

	mu          sync.Mutex
	cached      *GeoInfo
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// NewGeoSource creates the source.
func NewGeoSource() *GeoSource {
	return &GeoSource{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   time.Hour,
	}
}

func (s *GeoSource) Name() string { return "geo" }

// Section renders the agent's locale for timezone-aware analysis.
func (s *GeoSource) Section(ctx context.Context, markets []core.Market) (string, error) {
	geo, err := s.lookup(ctx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Agent locale: %s, %s (timezone %s). Game start times above are UTC.",
		geo.City, geo.Country, geo.Timezone), nil
}

func (s *GeoSource) lookup(ctx context.Context) (*GeoInfo, error) {
	s.mu.Lock()
	if s.cached != nil && time.Now().Before(s.cacheExpiry) {
		geo := s.cached
		s.mu.Unlock()
		return geo, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, "GET", geoLookupURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
		GeoInfo
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("geo lookup failed: %s", result.Message)
	}

	geo := &result.GeoInfo
	s.mu.Lock()
	s.cached = geo
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return geo, nil
}
