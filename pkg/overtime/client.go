// Package overtime is a client for the Overtime Protocol REST API.
package overtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/overtime-agents/core"
)

const (
	// DefaultBaseURL is the Overtime API base URL
	DefaultBaseURL = "https://api.overtime.io"

	// ArbitrumNetworkID is the chain ID used in API paths.
	ArbitrumNetworkID = 42161

	defaultRateLimit = 5.0 // requests per second
	defaultBurst     = 3
)

// Client is an Overtime API client.
type Client struct {
	baseURL    string
	apiKey     string
	networkID  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithNetwork sets the chain ID used in API paths.
func WithNetwork(networkID int) ClientOption {
	return func(c *Client) {
		c.networkID = networkID
	}
}

// NewClient creates a new Overtime API client. All requests carry the
// API key in the X-API-Key header.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		networkID: ArbitrumNetworkID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListMarkets fetches the full market catalog and flattens the nested
// sport/league grouping into a single slice of domain markets. Games
// that fail to parse are skipped rather than failing the whole fetch.
func (c *Client) ListMarkets(ctx context.Context) ([]core.Market, error) {
	params := url.Values{}
	params.Set("ungroup", "false")

	// Response shape: {"Soccer": {"11": [game, ...], ...}, ...}
	var grouped map[string]map[string][]Game
	path := fmt.Sprintf("/overtime-v2/networks/%d/markets", c.networkID)
	if err := c.get(ctx, path, params, &grouped); err != nil {
		return nil, err
	}

	var markets []core.Market
	for sport, leagues := range grouped {
		for _, games := range leagues {
			for i := range games {
				games[i].Sport = sport
				m, err := toMarket(&games[i])
				if err != nil {
					continue
				}
				markets = append(markets, m)
			}
		}
	}

	// Map iteration order is random; keep output deterministic.
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].MarketID < markets[j].MarketID
	})

	return markets, nil
}

// GetMarket fetches a single market in its raw form, including the
// merkle proof needed to build trade data.
func (c *Client) GetMarket(ctx context.Context, marketID string) (*Game, error) {
	var game Game
	path := fmt.Sprintf("/overtime-v2/networks/%d/markets/%s", c.networkID, marketID)
	if err := c.get(ctx, path, nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// GetMarketResult fetches the resolution state of a single market.
func (c *Client) GetMarketResult(ctx context.Context, marketID string) (*MarketResult, error) {
	var result MarketResult
	path := fmt.Sprintf("/overtime-v2/networks/%d/markets/%s", c.networkID, marketID)
	if err := c.get(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetQuote prices a prospective trade with USDC collateral.
func (c *Client) GetQuote(ctx context.Context, buyIn float64, trades []TradeData) (*Quote, error) {
	reqBody := QuoteRequest{
		BuyInAmount: buyIn,
		TradeData:   trades,
		Collateral:  "USDC",
	}

	var quote Quote
	path := fmt.Sprintf("/overtime-v2/networks/%d/quote", c.networkID)
	if err := c.post(ctx, path, &reqBody, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// toMarket converts a raw game into the domain type.
func toMarket(g *Game) (core.Market, error) {
	if g.GameID == "" {
		return core.Market{}, fmt.Errorf("game missing id")
	}

	maturity, err := time.Parse(time.RFC3339, g.MaturityDate)
	if err != nil {
		return core.Market{}, fmt.Errorf("parse maturity %q: %w", g.MaturityDate, err)
	}

	odds := make([]decimal.Decimal, 0, len(g.Odds))
	for _, o := range g.Odds {
		odds = append(odds, decimal.NewFromFloat(o.Decimal))
	}

	return core.Market{
		MarketID:  g.GameID,
		Sport:     g.Sport,
		League:    g.LeagueName,
		HomeTeam:  g.HomeTeam,
		AwayTeam:  g.AwayTeam,
		Maturity:  maturity,
		IsOpen:    g.IsOpen,
		IsPaused:  g.IsPaused,
		Status:    g.Status,
		Line:      decimal.NewFromFloat(g.Line),
		Type:      g.Type,
		Odds:      odds,
		Liquidity: decimal.NewFromFloat(g.Liquidity),
		Volume:    decimal.NewFromFloat(g.Volume),
	}, nil
}

// get performs a GET request with rate limiting.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	return c.do(req, result)
}

// post performs a JSON POST request with rate limiting.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
