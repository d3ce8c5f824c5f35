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

const oddsAPIBaseURL = "https://api.the-odds-api.com/v4"

// sportKeys maps catalog sport names to The Odds API sport keys.
var sportKeys = map[string]string{
	"Soccer":     "soccer_epl",
	"Basketball": "basketball_nba",
	"Baseball":   "baseball_mlb",
	"Hockey":     "icehockey_nhl",
	"Football":   "americanfootball_nfl",
}

// OddsSource pulls bookmaker consensus lines from The Odds API so the
// model can compare the protocol's odds against the wider market.
type OddsSource struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOddsSource creates the source. An empty key disables it.
func NewOddsSource(apiKey string) *OddsSource {
	return &OddsSource{
		apiKey:     apiKey,
		baseURL:    oddsAPIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *OddsSource) Name() string { return "odds-comparison" }

type bookmakerEvent struct {
	HomeTeam   string `json:"home_team"`
	AwayTeam   string `json:"away_team"`
	Bookmakers []struct {
		Title   string `json:"title"`
		Markets []struct {
			Key      string `json:"key"`
			Outcomes []struct {
				Name  string  `json:"name"`
				Price float64 `json:"price"`
			} `json:"outcomes"`
		} `json:"markets"`
	} `json:"bookmakers"`
}

// Section fetches head-to-head lines for the sports on the slate and
// renders consensus odds for any games that overlap.
func (s *OddsSource) Section(ctx context.Context, markets []core.Market) (string, error) {
	if s.apiKey == "" {
		return "", nil
	}

	seen := make(map[string]bool)
	var lines []string
	for i := range markets {
		key, ok := sportKeys[markets[i].Sport]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true

		events, err := s.fetchSport(ctx, key)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", key, err)
		}
		lines = append(lines, renderEvents(events, markets)...)
	}

	if len(lines) == 0 {
		return "", nil
	}
	return "Bookmaker consensus odds (home/away averages):\n" + strings.Join(lines, "\n"), nil
}

func (s *OddsSource) fetchSport(ctx context.Context, sportKey string) ([]bookmakerEvent, error) {
	params := url.Values{}
	params.Set("apiKey", s.apiKey)
	params.Set("regions", "us,eu")
	params.Set("markets", "h2h")
	params.Set("oddsFormat", "decimal")

	u := fmt.Sprintf("%s/sports/%s/odds?%s", s.baseURL, sportKey, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("odds api error %d: %s", resp.StatusCode, string(body))
	}

	var events []bookmakerEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, err
	}
	return events, nil
}

func renderEvents(events []bookmakerEvent, markets []core.Market) []string {
	var lines []string
	for _, ev := range events {
		if !slateHas(markets, ev.HomeTeam, ev.AwayTeam) {
			continue
		}

		homeSum, awaySum := 0.0, 0.0
		count := 0
		for _, bk := range ev.Bookmakers {
			for _, mkt := range bk.Markets {
				if mkt.Key != "h2h" {
					continue
				}
				var home, away float64
				for _, out := range mkt.Outcomes {
					switch out.Name {
					case ev.HomeTeam:
						home = out.Price
					case ev.AwayTeam:
						away = out.Price
					}
				}
				if home > 0 && away > 0 {
					homeSum += home
					awaySum += away
					count++
				}
			}
		}
		if count == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s vs %s: home %.2f, away %.2f (%d books)",
			ev.HomeTeam, ev.AwayTeam, homeSum/float64(count), awaySum/float64(count), count))
	}
	return lines
}

func slateHas(markets []core.Market, home, away string) bool {
	home = strings.ToLower(home)
	away = strings.ToLower(away)
	for i := range markets {
		h := strings.ToLower(markets[i].HomeTeam)
		a := strings.ToLower(markets[i].AwayTeam)
		if (strings.Contains(h, home) || strings.Contains(home, h)) &&
			(strings.Contains(a, away) || strings.Contains(away, a)) {
			return true
		}
	}
	return false
}
