package comet

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const cometABIJSON = `[
  {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"isLiquidatable","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"baseToken","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"asset","type":"address"}],"name":"getCollateralReserves","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"baseAmount","type":"uint256"}],"name":"quoteCollateral","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Uniswap v3 QuoterV1. quoteExactOutputSingle is not a view function but is
// only ever invoked through eth_call.
const quoterABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"tokenIn","type":"address"},
    {"internalType":"address","name":"tokenOut","type":"address"},
    {"internalType":"uint24","name":"fee","type":"uint24"},
    {"internalType":"uint256","name":"amountOut","type":"uint256"},
    {"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
  ],"name":"quoteExactOutputSingle","outputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const liquidatorABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"comet","type":"address"},
    {"internalType":"address[]","name":"liquidatableAccounts","type":"address[]"},
    {"internalType":"address[]","name":"assets","type":"address[]"},
    {"components":[
      {"internalType":"uint8","name":"exchange","type":"uint8"},
      {"internalType":"uint24","name":"uniswapPoolFee","type":"uint24"},
      {"internalType":"bool","name":"swapViaWeth","type":"bool"},
      {"internalType":"bytes32","name":"balancerPoolId","type":"bytes32"},
      {"internalType":"address","name":"curvePool","type":"address"}
    ],"internalType":"struct PoolConfig[]","name":"poolConfigs","type":"tuple[]"},
    {"internalType":"uint256[]","name":"maxAmountsToPurchase","type":"uint256[]"},
    {"internalType":"address","name":"flashLoanPairToken","type":"address"},
    {"internalType":"uint24","name":"flashLoanPoolFee","type":"uint24"},
    {"internalType":"uint256","name":"liquidationThreshold","type":"uint256"}
  ],"name":"absorbAndArbitrage","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	cometABI      = mustParseABI(cometABIJSON)
	quoterABI     = mustParseABI(quoterABIJSON)
	liquidatorABI = mustParseABI(liquidatorABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("comet: abi parse: " + err.Error())
	}
	return parsed
}
