package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/pkg/overtime"
)

func TestNewWallet(t *testing.T) {
	// well-known anvil test key
	key := "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	w, err := NewWallet(key)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	if got := w.AddressHex(); got != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("address = %s", got)
	}

	// 0x prefix is optional
	w2, err := NewWallet(key[2:])
	if err != nil {
		t.Fatalf("NewWallet without prefix: %v", err)
	}
	if w2.AddressHex() != w.AddressHex() {
		t.Error("prefix handling changed the derived address")
	}
}

func TestNewWalletRejectsGarbage(t *testing.T) {
	if _, err := NewWallet("not-a-key"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestSignTx(t *testing.T) {
	w, err := NewWallet("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}

	to := common.HexToAddress("0xfb64E79A562F7250131cf528242CEB10fDC82395")
	tx := types.NewTransaction(0, to, big.NewInt(0), 21000, big.NewInt(1), nil)

	signed, err := w.SignTx(tx, ArbitrumChainID)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(ArbitrumChainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != w.Address() {
		t.Errorf("recovered sender %s, want %s", sender.Hex(), w.AddressHex())
	}
}

func TestToWei(t *testing.T) {
	got := toWei(decimal.NewFromFloat(0.02))
	want := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if got.Cmp(want) != 0 {
		t.Errorf("toWei(0.02) = %s, want %s", got, want)
	}

	if toWei(decimal.NewFromInt(1)).String() != "1000000000000000000" {
		t.Errorf("toWei(1) = %s", toWei(decimal.NewFromInt(1)))
	}
}

func TestToContractTradeData(t *testing.T) {
	trade := &overtime.TradeData{
		GameID:      "0x3100000000000000000000000000000000000000000000000000000000000000",
		SportID:     11,
		TypeID:      0,
		Maturity:    1767225600,
		Status:      0,
		Line:        -7.5,
		PlayerID:    0,
		Odds:        []string{"0.5", "0.3", "0.2"},
		MerkleProof: []string{"0xaa", "0xbb"},
		Position:    1,
		CombinedPositions: [][]overtime.CombinedPosition{
			nil, nil, nil,
		},
	}

	ctd, err := toContractTradeData(trade)
	if err != nil {
		t.Fatalf("toContractTradeData: %v", err)
	}

	if ctd.SportId != 11 || ctd.Position != 1 {
		t.Errorf("sportId=%d position=%d", ctd.SportId, ctd.Position)
	}
	if ctd.Line.Int64() != -750 {
		t.Errorf("line = %d, want -750 (scaled by 100)", ctd.Line.Int64())
	}
	if len(ctd.Odds) != 3 {
		t.Fatalf("odds count = %d", len(ctd.Odds))
	}
	if ctd.Odds[0].String() != "500000000000000000" {
		t.Errorf("odds[0] = %s, want 0.5 at 1e18", ctd.Odds[0])
	}
	if len(ctd.MerkleProof) != 2 {
		t.Errorf("proof count = %d", len(ctd.MerkleProof))
	}
	if ctd.Maturity.Int64() != 1767225600 {
		t.Errorf("maturity = %d", ctd.Maturity.Int64())
	}
}

func TestToContractTradeDataBadOdds(t *testing.T) {
	trade := &overtime.TradeData{
		GameID: "0x31",
		Odds:   []string{"not-a-number"},
	}
	if _, err := toContractTradeData(trade); err == nil {
		t.Error("expected error for malformed odds")
	}
}
