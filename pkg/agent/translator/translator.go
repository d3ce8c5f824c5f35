// Package translator turns LLM analysis of the market slate into
// concrete betting decisions. Market IDs always come from the catalog;
// model output that cannot be matched back to a real market is thrown
// away rather than trusted.
package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/llm"
)

const minReasoningLength = 20

// DefaultSystemPrompt frames the model as a disciplined sports analyst.
const DefaultSystemPrompt = `You are an expert sports betting analyst with deep knowledge of team form, matchups, and value betting.
Your task is to review the slate of upcoming games and identify the opportunities with positive expected value.

Guidelines:
1. Only recommend bets where you see genuine value against the posted odds
2. Use the exact market_id from the slate for every recommendation
3. Position is an index into the odds array: 0 = home, 1 = away, 2 = draw where offered
4. Confidence is your probability the bet wins, between 0 and 1
5. It is correct to recommend nothing when the slate offers no value
6. Give concrete reasoning for each pick

Output format (JSON):
{
  "betting_opportunities": [
    {
      "market_id": "the exact market_id from the slate",
      "teams": "Home vs Away",
      "sport": "Soccer",
      "position": 0,
      "confidence": 0.XX,
      "reasoning": "Your analysis for this pick"
    }
  ]
}

Important: Only output valid JSON, nothing else.`

// Translator runs one analysis prompt per cycle and resolves the
// model's picks against the live slate.
type Translator struct {
	client       llm.Client
	systemPrompt string
}

// New creates a translator backed by the given completion client.
func New(client llm.Client) *Translator {
	return &Translator{
		client:       client,
		systemPrompt: DefaultSystemPrompt,
	}
}

// SetSystemPrompt overrides the default system prompt.
func (t *Translator) SetSystemPrompt(prompt string) {
	t.systemPrompt = prompt
}

// BuildPrompt renders the market slate and any enrichment sections
// into the single analysis prompt for a cycle.
func (t *Translator) BuildPrompt(markets []core.Market, contextSections []string) string {
	var b strings.Builder

	b.WriteString("Upcoming games available for betting:\n\n")
	for i := range markets {
		m := &markets[i]
		b.WriteString(fmt.Sprintf("market_id: %s\n", m.MarketID))
		b.WriteString(fmt.Sprintf("  teams: %s\n", m.Teams()))
		b.WriteString(fmt.Sprintf("  sport: %s (%s)\n", m.Sport, m.League))
		b.WriteString(fmt.Sprintf("  starts: %s\n", m.Maturity.Format(time.RFC3339)))

		odds := make([]string, 0, len(m.Odds))
		for _, o := range m.Odds {
			odds = append(odds, o.StringFixed(2))
		}
		b.WriteString(fmt.Sprintf("  odds: [%s]\n", strings.Join(odds, ", ")))
		b.WriteString(fmt.Sprintf("  liquidity: %s, volume: %s\n\n",
			m.Liquidity.StringFixed(0), m.Volume.StringFixed(0)))
	}

	for _, section := range contextSections {
		if section == "" {
			continue
		}
		b.WriteString(section)
		b.WriteString("\n\n")
	}

	b.WriteString("Analyze the slate and return your betting opportunities in JSON format.")
	return b.String()
}

// Translate asks the model for picks on the slate and returns only the
// decisions that resolve to real markets. Any failure yields an empty
// list so the cycle can continue without bets.
func (t *Translator) Translate(ctx context.Context, markets []core.Market, contextSections []string) []core.BettingDecision {
	if len(markets) == 0 {
		return nil
	}

	prompt := t.BuildPrompt(markets, contextSections)

	response, err := t.client.Complete(ctx, prompt, t.systemPrompt)
	if err != nil {
		log.Printf("[TRANSLATOR] LLM call failed: %v", err)
		return nil
	}

	return t.parseResponse(response, markets)
}

type rawOpportunity struct {
	MarketID   string  `json:"market_id"`
	Teams      string  `json:"teams"`
	Sport      string  `json:"sport"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (t *Translator) parseResponse(response string, markets []core.Market) []core.BettingDecision {
	response = stripMarkdownCodeBlocks(response)

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		log.Printf("[TRANSLATOR] no JSON found in response")
		return nil
	}

	var parsed struct {
		Opportunities []rawOpportunity `json:"betting_opportunities"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		log.Printf("[TRANSLATOR] failed to parse JSON: %v", err)
		return nil
	}

	decisions := make([]core.BettingDecision, 0, len(parsed.Opportunities))
	for _, opp := range parsed.Opportunities {
		market := resolveMarket(&opp, markets)
		if market == nil {
			log.Printf("[TRANSLATOR] discarding pick %q (%s): no matching market", opp.MarketID, opp.Teams)
			continue
		}

		if opp.Position < 0 || opp.Position >= len(market.Odds) {
			log.Printf("[TRANSLATOR] discarding pick %s: position %d out of range", market.MarketID, opp.Position)
			continue
		}

		confidence := opp.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		reasoning := strings.TrimSpace(opp.Reasoning)
		if len(reasoning) < minReasoningLength {
			reasoning = fmt.Sprintf("LLM analysis for %s - confidence %.2f", market.Teams(), confidence)
		}

		decisions = append(decisions, core.BettingDecision{
			MarketID:       market.MarketID,
			Teams:          market.Teams(),
			Sport:          market.Sport,
			Position:       opp.Position,
			Confidence:     confidence,
			Reasoning:      reasoning,
			OddsAtDecision: market.Odds[opp.Position],
			Odds:           market.Odds,
			Timestamp:      time.Now(),
		})
	}

	return decisions
}

// resolveMarket matches a pick back to the slate. Exact market ID wins,
// then an exact team-pair match, then a substring match. Picks that
// match nothing are dropped.
func resolveMarket(opp *rawOpportunity, markets []core.Market) *core.Market {
	for i := range markets {
		if markets[i].MarketID == opp.MarketID {
			return &markets[i]
		}
	}

	if opp.Teams == "" {
		return nil
	}
	normTeams := normalizeName(opp.Teams)

	for i := range markets {
		if normalizeName(markets[i].Teams()) == normTeams {
			return &markets[i]
		}
	}

	for i := range markets {
		candidate := normalizeName(markets[i].Teams())
		if strings.Contains(candidate, normTeams) || strings.Contains(normTeams, candidate) {
			return &markets[i]
		}
	}

	return nil
}

// stripMarkdownCodeBlocks removes ```json ... ``` wrappers
func stripMarkdownCodeBlocks(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

// extractJSON finds the first complete JSON object in a string
func extractJSON(s string) string {
	start := -1
	braceCount := 0

	for i, c := range s {
		if c == '{' {
			if start == -1 {
				start = i
			}
			braceCount++
		} else if c == '}' {
			braceCount--
			if braceCount == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// normalizeName normalizes a team string for matching.
func normalizeName(name string) string {
	name = strings.ToLower(name)

	// Remove accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	// Remove common suffixes
	name = strings.ReplaceAll(name, " fc", "")
	name = strings.ReplaceAll(name, " afc", "")

	// Normalize spaces
	name = strings.Join(strings.Fields(name), " ")

	return strings.TrimSpace(name)
}
