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

const newsBaseURL = "https://newsapi.org/v2/everything"

// NewsSource pulls recent headlines about the teams on the slate from
// NewsAPI.
type NewsSource struct {
	apiKey     string
	baseURL    string
	maxQueries int
	httpClient *http.Client
}

// NewNewsSource creates the source. An empty key disables it.
func NewNewsSource(apiKey string) *NewsSource {
	return &NewsSource{
		apiKey:     apiKey,
		baseURL:    newsBaseURL,
		maxQueries: 3,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *NewsSource) Name() string { return "news" }

// Section renders headlines for the first few games on the slate.
func (s *NewsSource) Section(ctx context.Context, markets []core.Market) (string, error) {
	if s.apiKey == "" {
		return "", nil
	}

	var lines []string
	for i := range markets {
		if i >= s.maxQueries {
			break
		}
		headlines, err := s.headlines(ctx, &markets[i])
		if err != nil {
			return "", err
		}
		lines = append(lines, headlines...)
	}

	if len(lines) == 0 {
		return "", nil
	}
	return "Recent news about teams on the slate:\n" + strings.Join(lines, "\n"), nil
}

func (s *NewsSource) headlines(ctx context.Context, m *core.Market) ([]string, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q OR %q", m.HomeTeam, m.AwayTeam))
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", "3")
	params.Set("language", "en")
	params.Set("apiKey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"?"+params.Encode(), nil)
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
		return nil, fmt.Errorf("news api error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Articles []struct {
			Title  string `json:"title"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	var lines []string
	for _, a := range result.Articles {
		if a.Title == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s (%s)", m.Teams(), a.Title, a.Source.Name))
	}
	return lines, nil
}
