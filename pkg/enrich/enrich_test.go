package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phenomenon0/overtime-agents/core"
)

type staticSource struct {
	name    string
	section string
	err     error
}

func (s *staticSource) Name() string { return s.name }
func (s *staticSource) Section(ctx context.Context, markets []core.Market) (string, error) {
	return s.section, s.err
}

func TestCollectSkipsFailuresAndEmpties(t *testing.T) {
	e := New(
		&staticSource{name: "a", section: "section a"},
		&staticSource{name: "b", err: fmt.Errorf("down")},
		&staticSource{name: "c", section: ""},
		&staticSource{name: "d", section: "section d"},
	)

	sections := e.Collect(context.Background(), nil)

	if len(sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(sections))
	}
	if sections[0] != "section a" || sections[1] != "section d" {
		t.Errorf("Wrong sections: %v", sections)
	}
}

func TestOddsSourceDisabledWithoutKey(t *testing.T) {
	s := NewOddsSource("")
	section, err := s.Section(context.Background(), []core.Market{{Sport: "Soccer"}})
	if err != nil || section != "" {
		t.Errorf("Keyless source should be silent, got %q, %v", section, err)
	}
}

func TestOddsSourceSection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/sports/soccer_epl/odds") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("apiKey") != "k" {
			t.Errorf("Missing api key")
		}

		events := []map[string]any{
			{
				"home_team": "Arsenal",
				"away_team": "Chelsea",
				"bookmakers": []map[string]any{
					{
						"title": "BookA",
						"markets": []map[string]any{
							{
								"key": "h2h",
								"outcomes": []map[string]any{
									{"name": "Arsenal", "price": 2.0},
									{"name": "Chelsea", "price": 3.6},
								},
							},
						},
					},
					{
						"title": "BookB",
						"markets": []map[string]any{
							{
								"key": "h2h",
								"outcomes": []map[string]any{
									{"name": "Arsenal", "price": 2.2},
									{"name": "Chelsea", "price": 3.4},
								},
							},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(events)
	}))
	defer server.Close()

	s := NewOddsSource("k")
	s.baseURL = server.URL

	section, err := s.Section(context.Background(), []core.Market{
		{Sport: "Soccer", HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
	})
	if err != nil {
		t.Fatalf("Section failed: %v", err)
	}
	if !strings.Contains(section, "home 2.10, away 3.50 (2 books)") {
		t.Errorf("Unexpected section:\n%s", section)
	}
}

func TestWeatherSourceSection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := map[string]any{
			"weather": []map[string]string{{"description": "light rain"}},
			"main":    map[string]float64{"temp": 12.0},
			"wind":    map[string]float64{"speed": 8.0},
		}
		json.NewEncoder(w).Encode(result)
	}))
	defer server.Close()

	s := NewWeatherSource("k")
	s.baseURL = server.URL

	section, err := s.Section(context.Background(), []core.Market{
		{Sport: "Soccer", HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
		{Sport: "Basketball", HomeTeam: "Lakers", AwayTeam: "Celtics"}, // indoor, skipped
	})
	if err != nil {
		t.Fatalf("Section failed: %v", err)
	}
	if !strings.Contains(section, "light rain, 12C, wind 8 m/s") {
		t.Errorf("Unexpected section:\n%s", section)
	}
	if strings.Contains(section, "Lakers") {
		t.Error("Indoor sport should be skipped")
	}
}

func TestNewsSourceSection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := map[string]any{
			"articles": []map[string]any{
				{"title": "Star striker ruled out", "source": map[string]string{"name": "Wire"}},
			},
		}
		json.NewEncoder(w).Encode(result)
	}))
	defer server.Close()

	s := NewNewsSource("k")
	s.baseURL = server.URL

	section, err := s.Section(context.Background(), []core.Market{
		{Sport: "Soccer", HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
	})
	if err != nil {
		t.Fatalf("Section failed: %v", err)
	}
	if !strings.Contains(section, "Star striker ruled out") {
		t.Errorf("Unexpected section:\n%s", section)
	}
}
