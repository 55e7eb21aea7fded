// Package uniswap holds the Uniswap V3 contract surface the dex session
// uses: quoter, swap router, factory, and the pool swap event.
package uniswap

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/flash-defi/venus/internal/venue"
)

// Fee tiers in Uniswap V3 (in hundredths of a bip)
const (
	FeeTier001 uint32 = 100   // 0.01%
	FeeTier005 uint32 = 500   // 0.05%
	FeeTier030 uint32 = 3000  // 0.30%
	FeeTier100 uint32 = 10000 // 1.00%
)

// Deployment holds the per-network contract addresses.
type Deployment struct {
	Quoter  common.Address
	Router  common.Address
	Factory common.Address
}

// Deployments maps networks to canonical Uniswap V3 deployments.
var Deployments = map[venue.Network]Deployment{
	venue.Ethereum: {
		Quoter:  common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
		Router:  common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"),
		Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
	},
	venue.Arbitrum: {
		Quoter:  common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e"),
		Router:  common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"),
		Factory: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
	},
}

// Price-limit sentinels: the pool's sqrt price cannot cross TickMath's
// MIN/MAX ratio, so limit±1 disables the limit in the chosen direction.
var (
	minSqrtRatioPlusOne  = new(big.Int).Add(big.NewInt(4295128739), big.NewInt(1))
	maxSqrtRatioMinusOne = func() *big.Int {
		v, _ := new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
		return new(big.Int).Sub(v, big.NewInt(1))
	}()
)

// SwapEventTopic is keccak("Swap(address,address,int256,int256,uint160,uint128,int24)").
var SwapEventTopic = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))

// SortTokens orders two token addresses byte-wise, the canonical on-chain
// (token0, token1) convention.
func SortTokens(a, b common.Address) (token0, token1 common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// IsToken0 reports whether a is token0 of the (a, b) pool.
func IsToken0(a, b common.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// SwapPriceLimit returns the sqrtPriceLimitX96 sentinel so the pool price
// cannot cross to the wrong side of the swap. Selling tokenIn where tokenIn
// is token0 drives the price down toward the minimum.
func SwapPriceLimit(tokenIn, tokenOut common.Address) *big.Int {
	if IsToken0(tokenIn, tokenOut) {
		return new(big.Int).Set(minSqrtRatioPlusOne)
	}
	return new(big.Int).Set(maxSqrtRatioMinusOne)
}

// QuoterV2ABI covers the two quote paths.
const QuoterV2ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amount", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactOutputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactOutputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// SwapRouterABI covers the two single-hop execution paths (SwapRouter02:
// no deadline field in the param structs).
const SwapRouterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint256", "name": "amountOutMinimum", "type": "uint256"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IV3SwapRouter.ExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "exactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"}
		],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
					{"internalType": "uint256", "name": "amountInMaximum", "type": "uint256"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IV3SwapRouter.ExactOutputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "exactOutputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"}
		],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// FactoryABI covers pool discovery.
const FactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"},
			{"internalType": "uint24", "name": "fee", "type": "uint24"}
		],
		"name": "getPool",
		"outputs": [
			{"internalType": "address", "name": "pool", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PoolABI covers the swap event for log decoding.
const PoolABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "recipient", "type": "address"},
			{"indexed": false, "internalType": "int256", "name": "amount0", "type": "int256"},
			{"indexed": false, "internalType": "int256", "name": "amount1", "type": "int256"},
			{"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"indexed": false, "internalType": "uint128", "name": "liquidity", "type": "uint128"},
			{"indexed": false, "internalType": "int24", "name": "tick", "type": "int24"}
		],
		"name": "Swap",
		"type": "event"
	}
]`
