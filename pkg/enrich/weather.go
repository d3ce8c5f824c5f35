package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phenomenon0/overtime-agents/core"
)

const weatherBaseURL = "http://api.openweathermap.org/data/2.5/weather"

// Outdoor sports where conditions move the line.
var outdoorSports = map[string]bool{
	"Soccer":   true,
	"Baseball": true,
	"Football": true,
	"Golf":     true,
	"Tennis":   true,
}

// WeatherSource pulls current conditions near the home team's venue
// from OpenWeatherMap. Lookups are by team name, which the geocoder
// resolves for most major clubs.
type WeatherSource struct {
	apiKey     string
	baseURL    string
	maxLookups int
	httpClient *http.Client
}

// NewWeatherSource creates the source. An empty key disables it.
func NewWeatherSource(apiKey string) *WeatherSource {
	return &WeatherSource{
		apiKey:     apiKey,
		baseURL:    weatherBaseURL,
		maxLookups: 5,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WeatherSource) Name() string { return "weather" }

// Section renders conditions for up to a handful of outdoor games.
func (s *WeatherSource) Section(ctx context.Context, markets []core.Market) (string, error) {
	if s.apiKey == "" {
		return "", nil
	}

	var lines []string
	for i := range markets {
		if len(lines) >= s.maxLookups {
			break
		}
		if !outdoorSports[markets[i].Sport] {
			continue
		}

		line, err := s.lookup(ctx, &markets[i])
		if err != nil {
			// One failed geocode is normal; keep going.
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return "", nil
	}
	return "Game-time weather near the home venue:\n" + strings.Join(lines, "\n"), nil
}

func (s *WeatherSource) lookup(ctx context.Context, m *core.Market) (string, error) {
	params := url.Values{}
	params.Set("q", m.HomeTeam)
	params.Set("appid", s.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("weather api error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Weather) == 0 {
		return "", fmt.Errorf("no weather data")
	}

	return fmt.Sprintf("- %s: %s, %.0fC, wind %.0f m/s",
		m.Teams(), result.Weather[0].Description, result.Main.Temp, result.Wind.Speed), nil
}
