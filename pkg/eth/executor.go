package eth

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/overtime-agents/core"
	"github.com/phenomenon0/overtime-agents/pkg/overtime"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const sportsAMMABIJSON = `[
	{"name":"trade","type":"function","stateMutability":"payable","inputs":[
		{"name":"_tradeData","type":"tuple[]","components":[
			{"name":"gameId","type":"bytes32"},
			{"name":"sportId","type":"uint16"},
			{"name":"typeId","type":"uint16"},
			{"name":"maturity","type":"uint256"},
			{"name":"status","type":"uint8"},
			{"name":"line","type":"int256"},
			{"name":"playerId","type":"uint256"},
			{"name":"odds","type":"uint256[]"},
			{"name":"merkleProof","type":"bytes32[]"},
			{"name":"position","type":"uint8"},
			{"name":"combinedPositions","type":"tuple[][]","components":[
				{"name":"typeId","type":"uint16"},
				{"name":"position","type":"uint8"},
				{"name":"line","type":"int256"}
			]}
		]},
		{"name":"_buyInAmount","type":"uint256"},
		{"name":"_expectedQuote","type":"uint256"},
		{"name":"_additionalSlippage","type":"uint256"},
		{"name":"_referrer","type":"address"},
		{"name":"_collateral","type":"address"},
		{"name":"_isEth","type":"bool"}
	],"outputs":[]}
]`

// contractTradeData mirrors the SportsAMMV2 TradeData tuple.
type contractTradeData struct {
	GameId            [32]byte
	SportId           uint16
	TypeId            uint16
	Maturity          *big.Int
	Status            uint8
	Line              *big.Int
	PlayerId          *big.Int
	Odds              []*big.Int
	MerkleProof       [][32]byte
	Position          uint8
	CombinedPositions [][]contractCombinedPosition
}

type contractCombinedPosition struct {
	TypeId   uint16
	Position uint8
	Line     *big.Int
}

// MarketData supplies the raw market and a fresh quote for a trade.
type MarketData interface {
	GetMarket(ctx context.Context, marketID string) (*overtime.Game, error)
	GetQuote(ctx context.Context, buyIn float64, trades []overtime.TradeData) (*overtime.Quote, error)
}

// Executor places trades through the SportsAMM contract.
type Executor struct {
	client   *ethclient.Client
	wallet   *Wallet
	markets  MarketData
	chainID  *big.Int
	slippage *big.Int
	erc20    abi.ABI
	amm      abi.ABI
}

// NewExecutor connects to an Arbitrum RPC endpoint. Slippage tolerance
// is fixed at 2%.
func NewExecutor(rpcURL string, wallet *Wallet, markets MarketData) (*Executor, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	amm, err := abi.JSON(strings.NewReader(sportsAMMABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse amm abi: %w", err)
	}

	return &Executor{
		client:   client,
		wallet:   wallet,
		markets:  markets,
		chainID:  ArbitrumChainID,
		slippage: toWei(decimal.NewFromFloat(0.02)),
		erc20:    erc20,
		amm:      amm,
	}, nil
}

// USDCBalance reads the wallet's USDC balance in dollars.
func (e *Executor) USDCBalance(ctx context.Context) (decimal.Decimal, error) {
	data, err := e.erc20.Pack("balanceOf", e.wallet.Address())
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}

	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &USDCAddress, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("call balanceOf: %w", err)
	}

	out, err := e.erc20.Unpack("balanceOf", raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance := out[0].(*big.Int)

	return decimal.NewFromBigInt(balance, -USDCDecimals), nil
}

// Execute quotes, approves, and places a single trade. The returned
// string is the trade transaction hash.
func (e *Executor) Execute(ctx context.Context, d *core.SizedDecision) (string, error) {
	game, err := e.markets.GetMarket(ctx, d.MarketID)
	if err != nil {
		return "", fmt.Errorf("fetch market %s: %w", d.MarketID, err)
	}

	trade := game.ToTradeData(d.Position)
	buyIn, _ := d.StakeAmount.Float64()

	quote, err := e.markets.GetQuote(ctx, buyIn, []overtime.TradeData{trade})
	if err != nil {
		return "", fmt.Errorf("quote %s: %w", d.MarketID, err)
	}
	if quote.QuoteData.TotalQuote.NormalizedImplied <= 0 {
		return "", fmt.Errorf("quote %s: no liquidity", d.MarketID)
	}

	buyInUnits := d.StakeAmount.Shift(USDCDecimals).BigInt()

	if err := e.ensureAllowance(ctx, buyInUnits); err != nil {
		return "", err
	}

	expectedQuote := toWei(decimal.NewFromFloat(quote.QuoteData.TotalQuote.NormalizedImplied))

	ctd, err := toContractTradeData(&trade)
	if err != nil {
		return "", fmt.Errorf("build trade data: %w", err)
	}

	data, err := e.amm.Pack("trade",
		[]contractTradeData{*ctd},
		buyInUnits,
		expectedQuote,
		e.slippage,
		common.Address{},
		USDCAddress,
		false,
	)
	if err != nil {
		return "", fmt.Errorf("pack trade: %w", err)
	}

	tx, err := e.sendTx(ctx, SportsAMMAddress, data)
	if err != nil {
		return "", fmt.Errorf("send trade: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx.Hash())
	if err != nil {
		return "", fmt.Errorf("await trade %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("trade %s reverted", tx.Hash().Hex())
	}

	log.Printf("[ETH] trade placed for %s: %s ($%s)", d.MarketID, tx.Hash().Hex(), d.StakeAmount)
	return tx.Hash().Hex(), nil
}

// ensureAllowance approves the AMM for the buy-in if the current
// allowance does not cover it.
func (e *Executor) ensureAllowance(ctx context.Context, amount *big.Int) error {
	data, err := e.erc20.Pack("allowance", e.wallet.Address(), SportsAMMAddress)
	if err != nil {
		return fmt.Errorf("pack allowance: %w", err)
	}

	raw, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &USDCAddress, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call allowance: %w", err)
	}

	out, err := e.erc20.Unpack("allowance", raw)
	if err != nil {
		return fmt.Errorf("unpack allowance: %w", err)
	}
	if out[0].(*big.Int).Cmp(amount) >= 0 {
		return nil
	}

	approveData, err := e.erc20.Pack("approve", SportsAMMAddress, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}

	tx, err := e.sendTx(ctx, USDCAddress, approveData)
	if err != nil {
		return fmt.Errorf("send approve: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx.Hash())
	if err != nil {
		return fmt.Errorf("await approve %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve %s reverted", tx.Hash().Hex())
	}

	log.Printf("[ETH] approved %s USDC units for AMM", amount)
	return nil
}

func (e *Executor) sendTx(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := e.wallet.Address()

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signed, err := e.wallet.SignTx(tx, e.chainID)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcast tx: %w", err)
	}

	return signed, nil
}

// waitMined polls for the transaction receipt.
func (e *Executor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// toContractTradeData converts an API trade leg into the on-chain
// tuple. Lines are scaled by 100 and odds by 1e18, matching the
// contract's fixed-point conventions.
func toContractTradeData(t *overtime.TradeData) (*contractTradeData, error) {
	odds := make([]*big.Int, len(t.Odds))
	for i, o := range t.Odds {
		dec, err := decimal.NewFromString(o)
		if err != nil {
			return nil, fmt.Errorf("parse odds %q: %w", o, err)
		}
		odds[i] = toWei(dec)
	}

	proof := make([][32]byte, len(t.MerkleProof))
	for i, p := range t.MerkleProof {
		proof[i] = common.HexToHash(p)
	}

	combined := make([][]contractCombinedPosition, len(t.CombinedPositions))
	for i, group := range t.CombinedPositions {
		combined[i] = make([]contractCombinedPosition, len(group))
		for j, cp := range group {
			combined[i][j] = contractCombinedPosition{
				TypeId:   uint16(cp.TypeID),
				Position: uint8(cp.Position),
				Line:     big.NewInt(int64(cp.Line * 100)),
			}
		}
	}

	return &contractTradeData{
		GameId:            common.HexToHash(t.GameID),
		SportId:           uint16(t.SportID),
		TypeId:            uint16(t.TypeID),
		Maturity:          big.NewInt(t.Maturity),
		Status:            uint8(t.Status),
		Line:              big.NewInt(int64(t.Line * 100)),
		PlayerId:          big.NewInt(int64(t.PlayerID)),
		Odds:              odds,
		MerkleProof:       proof,
		Position:          uint8(t.Position),
		CombinedPositions: combined,
	}, nil
}

// toWei scales a decimal value to 18 fixed decimals.
func toWei(d decimal.Decimal) *big.Int {
	return d.Shift(18).BigInt()
}
