package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/venue"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
network: ARBI
dex: UNISWAP_V3
cex: BITFINEX
base_asset: ARB
quote_asset: USDC
base_asset_quote_amt: 10
spread_diff_threshold: 50
provider:
  provider: quick
  ws_url: wss://example.invalid/ws
  ws_interval_milli: 200
account:
  private_key_path: /tmp/pk
lark:
  webhook: https://example.invalid/hook
bitfinex:
  api_key: key
  api_secret: secret
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cex, err := cfg.CexEnum()
	if err != nil || cex != venue.Bitfinex {
		t.Errorf("cex = %v (%v)", cex, err)
	}
	pair, err := cfg.Pair()
	if err != nil || pair.String() != "ARB_USDC" {
		t.Errorf("pair = %v (%v)", pair, err)
	}
	if !cfg.BaseQuoteAmtDecimal().Equal(decimal.NewFromInt(10)) {
		t.Errorf("quote amt = %s", cfg.BaseQuoteAmtDecimal())
	}
	if !cfg.ThresholdDecimal().Equal(decimal.NewFromInt(50)) {
		t.Errorf("threshold = %s", cfg.ThresholdDecimal())
	}
	keys, err := cfg.Keys(venue.Bitfinex)
	if err != nil || keys.APIKey != "key" {
		t.Errorf("keys = %+v (%v)", keys, err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown_network", func(c *Config) { c.Network = "SOLANA" }},
		{"unknown_cex", func(c *Config) { c.Cex = "FTX" }},
		{"unknown_asset", func(c *Config) { c.BaseAsset = "DOGE2" }},
		{"zero_notional", func(c *Config) { c.BaseAssetQuoteAmt = 0 }},
		{"missing_ws_url", func(c *Config) { c.Provider.WSURL = "" }},
		{"missing_key_path", func(c *Config) { c.Account.PrivateKeyPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validConfig))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
