package overtime

import (
	"github.com/shopspring/decimal"
)

// Game is a raw market entry as returned by the Overtime markets endpoint.
// The API nests games under sport and league keys; Sport is filled in
// during flattening since the raw entry does not carry it.
type Game struct {
	GameID       string     `json:"gameId"`
	Sport        string     `json:"sport"`
	LeagueID     int        `json:"leagueId"`
	LeagueName   string     `json:"leagueName"`
	HomeTeam     string     `json:"homeTeam"`
	AwayTeam     string     `json:"awayTeam"`
	MaturityDate string     `json:"maturityDate"`
	Maturity     int64      `json:"maturity"`
	IsOpen       bool       `json:"isOpen"`
	IsPaused     bool       `json:"isPaused"`
	Status       int        `json:"status"`
	Type         string     `json:"type"`
	TypeID       int        `json:"typeId"`
	SubLeagueID  int        `json:"subLeagueId"`
	Line         float64    `json:"line"`
	PlayerID     int        `json:"playerId"`
	Odds         []GameOdds `json:"odds"`
	Proof        []string   `json:"proof"`
	Liquidity    float64    `json:"liquidity"`
	Volume       float64    `json:"volume"`
}

// ToTradeData converts the game into the trade leg shape expected by
// the quote endpoint and the AMM contract.
func (g *Game) ToTradeData(position int) TradeData {
	odds := make([]string, len(g.Odds))
	for i, o := range g.Odds {
		odds[i] = decimal.NewFromFloat(o.NormalizedImplied).String()
	}
	return TradeData{
		GameID:            g.GameID,
		SportID:           g.LeagueID,
		TypeID:            g.TypeID,
		Maturity:          g.Maturity,
		Status:            g.Status,
		Line:              g.Line,
		PlayerID:          g.PlayerID,
		Odds:              odds,
		MerkleProof:       g.Proof,
		Position:          position,
		CombinedPositions: make([][]CombinedPosition, len(g.Odds)),
		Live:              false,
	}
}

// GameOdds is one position's pricing on a game.
type GameOdds struct {
	American          float64 `json:"american"`
	Decimal           float64 `json:"decimal"`
	NormalizedImplied float64 `json:"normalizedImplied"`
}

// MarketResult is the resolution state of a market.
type MarketResult struct {
	GameID          string `json:"gameId"`
	IsResolved      bool   `json:"isResolved"`
	IsCancelled     bool   `json:"isCancelled"`
	WinningPosition int    `json:"winningPosition"`
	HomeScore       int    `json:"homeScore"`
	AwayScore       int    `json:"awayScore"`
}

// TradeData is one leg of a trade as required by the quote and trade
// endpoints.
type TradeData struct {
	GameID            string               `json:"gameId"`
	SportID           int                  `json:"sportId"`
	TypeID            int                  `json:"typeId"`
	Maturity          int64                `json:"maturity"`
	Status            int                  `json:"status"`
	Line              float64              `json:"line"`
	PlayerID          int                  `json:"playerId"`
	Odds              []string             `json:"odds"`
	MerkleProof       []string             `json:"merkleProof"`
	Position          int                  `json:"position"`
	CombinedPositions [][]CombinedPosition `json:"combinedPositions"`
	Live              bool                 `json:"live"`
}

// CombinedPosition is a nested leg descriptor used by combined markets.
type CombinedPosition struct {
	TypeID   int     `json:"typeId"`
	Position int     `json:"position"`
	Line     float64 `json:"line"`
}

// QuoteRequest is the body for the quote endpoint.
type QuoteRequest struct {
	BuyInAmount float64     `json:"buyInAmount"`
	TradeData   []TradeData `json:"tradeData"`
	Collateral  string      `json:"collateral"`
}

// Quote is the priced response for a prospective trade.
type Quote struct {
	QuoteData struct {
		TotalQuote struct {
			Decimal           float64 `json:"decimal"`
			American          float64 `json:"american"`
			NormalizedImplied float64 `json:"normalizedImplied"`
		} `json:"totalQuote"`
		Payout struct {
			USD float64 `json:"usd"`
		} `json:"payout"`
		BuyInAmountInUSD float64 `json:"buyInAmountInUsd"`
	} `json:"quoteData"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidityData"`
}

// TotalQuoteDecimal is a convenience accessor for the quoted combined odds.
func (q *Quote) TotalQuoteDecimal() decimal.Decimal {
	return decimal.NewFromFloat(q.QuoteData.TotalQuote.Decimal)
}
