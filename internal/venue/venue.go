// Package venue defines the closed enumerations for exchanges and networks.
package venue

import "fmt"

// Cex identifies a centralized exchange.
type Cex string

const (
	Bitfinex Cex = "BITFINEX"
	Binance  Cex = "BINANCE"
)

// ParseCex parses a CEX tag (case-sensitive, as written in config/CLI).
func ParseCex(s string) (Cex, error) {
	switch Cex(s) {
	case Bitfinex, Binance:
		return Cex(s), nil
	}
	return "", fmt.Errorf("venue: unknown cex %q", s)
}

func (c Cex) String() string { return string(c) }

// Dex identifies a decentralized exchange.
type Dex string

const (
	UniswapV3 Dex = "UNISWAP_V3"
)

// ParseDex parses a DEX tag.
func ParseDex(s string) (Dex, error) {
	switch Dex(s) {
	case UniswapV3:
		return Dex(s), nil
	}
	return "", fmt.Errorf("venue: unknown dex %q", s)
}

func (d Dex) String() string { return string(d) }

// Network identifies a blockchain network.
type Network string

const (
	Ethereum Network = "ETH"
	Arbitrum Network = "ARBI"
	BSC      Network = "BSC"
)

// ParseNetwork parses a network tag.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case Ethereum, Arbitrum, BSC:
		return Network(s), nil
	}
	return "", fmt.Errorf("venue: unknown network %q", s)
}

func (n Network) String() string { return string(n) }

// ChainID returns the EVM chain id for the network.
func (n Network) ChainID() uint64 {
	switch n {
	case Ethereum:
		return 1
	case Arbitrum:
		return 42161
	case BSC:
		return 56
	}
	return 0
}
