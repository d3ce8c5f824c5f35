package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Overtime Protocol contract addresses on Arbitrum One.
var (
	// SportsAMMAddress is the SportsAMMV2 trading contract.
	SportsAMMAddress = common.HexToAddress("0xfb64E79A562F7250131cf528242CEB10fDC82395")

	// USDCAddress is native USDC on Arbitrum, the collateral the agent trades with.
	USDCAddress = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")

	// ArbitrumChainID is the chain ID for transaction signing.
	ArbitrumChainID = big.NewInt(42161)
)

// USDCDecimals is the token precision of USDC.
const USDCDecimals = 6
