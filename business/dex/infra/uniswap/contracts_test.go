package uniswap

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	arb  = common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548")
	usdc = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
)

func TestSortTokens(t *testing.T) {
	t0, t1 := SortTokens(arb, usdc)
	if t0 != arb || t1 != usdc {
		t.Errorf("sort = (%s, %s)", t0, t1)
	}
	// Order of arguments must not matter.
	r0, r1 := SortTokens(usdc, arb)
	if r0 != t0 || r1 != t1 {
		t.Error("SortTokens must be argument-order independent")
	}
}

func TestIsToken0(t *testing.T) {
	if !IsToken0(arb, usdc) {
		t.Error("0x91... sorts below 0xFF...")
	}
	if IsToken0(usdc, arb) {
		t.Error("0xFF... is not token0")
	}
}

func TestSwapPriceLimit(t *testing.T) {
	// Selling token0 pushes the price down: limit just above the minimum.
	down := SwapPriceLimit(arb, usdc)
	if down.String() != "4295128740" {
		t.Errorf("limit selling token0 = %s", down)
	}

	// Selling token1 pushes the price up: limit just below the maximum.
	up := SwapPriceLimit(usdc, arb)
	if up.String() != "1461446703485210103287273052203988822378723970341" {
		t.Errorf("limit selling token1 = %s", up)
	}
}

func TestSwapEventTopic(t *testing.T) {
	// Canonical Uniswap V3 pool Swap topic.
	want := "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
	if SwapEventTopic.Hex() != want {
		t.Errorf("topic = %s", SwapEventTopic.Hex())
	}
}
