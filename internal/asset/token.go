package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flash-defi/venus/internal/venue"
)

// TokenInfo is the on-chain identity of an asset on one network.
type TokenInfo struct {
	Symbol   Symbol
	Network  venue.Network
	Address  common.Address
	Decimals uint8
	Native   bool
}

// Registry maps (network, symbol) to token metadata.
type Registry struct {
	tokens map[venue.Network]map[Symbol]TokenInfo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[venue.Network]map[Symbol]TokenInfo)}
}

// Register adds or replaces a token entry.
func (r *Registry) Register(t TokenInfo) {
	m, ok := r.tokens[t.Network]
	if !ok {
		m = make(map[Symbol]TokenInfo)
		r.tokens[t.Network] = m
	}
	m[t.Symbol] = t
}

// Token looks up the token for a symbol on a network.
func (r *Registry) Token(network venue.Network, sym Symbol) (TokenInfo, error) {
	if m, ok := r.tokens[network]; ok {
		if t, ok := m[sym]; ok {
			return t, nil
		}
	}
	return TokenInfo{}, fmt.Errorf("asset: no token info for %s on %s", sym, network)
}

// DefaultRegistry returns a registry pre-populated with the tokens the bot
// trades out of the box.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Arbitrum One
	r.Register(TokenInfo{Symbol: ARB, Network: venue.Arbitrum, Address: common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548"), Decimals: 18})
	r.Register(TokenInfo{Symbol: USDC, Network: venue.Arbitrum, Address: common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"), Decimals: 6})
	r.Register(TokenInfo{Symbol: USDT, Network: venue.Arbitrum, Address: common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"), Decimals: 6})
	r.Register(TokenInfo{Symbol: WETH, Network: venue.Arbitrum, Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Decimals: 18})

	// Ethereum mainnet
	r.Register(TokenInfo{Symbol: WETH, Network: venue.Ethereum, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18})
	r.Register(TokenInfo{Symbol: USDC, Network: venue.Ethereum, Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6})
	r.Register(TokenInfo{Symbol: USDT, Network: venue.Ethereum, Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6})

	return r
}
