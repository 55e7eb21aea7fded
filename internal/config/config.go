// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/venue"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig `mapstructure:"app"`
	Network    string    `mapstructure:"network"`
	Dex        string    `mapstructure:"dex"`
	Cex        string    `mapstructure:"cex"`
	BaseAsset  string    `mapstructure:"base_asset"`
	QuoteAsset string    `mapstructure:"quote_asset"`
	// BaseAssetQuoteAmt is the notional of every arbitrage leg, in base asset.
	BaseAssetQuoteAmt float64 `mapstructure:"base_asset_quote_amt"`
	// SpreadDiffThreshold is the minimum dislocation in basis points; a cross
	// fires only when strictly greater.
	SpreadDiffThreshold uint32 `mapstructure:"spread_diff_threshold"`

	Provider  ProviderConfig  `mapstructure:"provider"`
	Account   AccountConfig   `mapstructure:"account"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Bitfinex  AccessKey       `mapstructure:"bitfinex"`
	Binance   AccessKey       `mapstructure:"binance"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// ProviderConfig selects the blockchain RPC provider.
type ProviderConfig struct {
	Provider        string `mapstructure:"provider"`
	WSURL           string `mapstructure:"ws_url"`
	WSIntervalMilli uint64 `mapstructure:"ws_interval_milli"`
}

// AccountConfig holds signing key material locations.
type AccountConfig struct {
	PrivateKeyPath string `mapstructure:"private_key_path"`
}

// LarkConfig holds the notification webhook.
type LarkConfig struct {
	Webhook string `mapstructure:"webhook"`
}

// AccessKey holds one exchange's API credentials.
type AccessKey struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// NetworkEnum returns the parsed network tag.
func (c *Config) NetworkEnum() (venue.Network, error) { return venue.ParseNetwork(c.Network) }

// DexEnum returns the parsed DEX tag.
func (c *Config) DexEnum() (venue.Dex, error) { return venue.ParseDex(c.Dex) }

// CexEnum returns the parsed CEX tag.
func (c *Config) CexEnum() (venue.Cex, error) { return venue.ParseCex(c.Cex) }

// Pair returns the configured trading pair.
func (c *Config) Pair() (asset.Pair, error) {
	base, err := asset.Parse(c.BaseAsset)
	if err != nil {
		return asset.Pair{}, err
	}
	quote, err := asset.Parse(c.QuoteAsset)
	if err != nil {
		return asset.Pair{}, err
	}
	return asset.Pair{Base: base, Quote: quote}, nil
}

// BaseQuoteAmtDecimal returns the per-leg notional as decimal.Decimal.
func (c *Config) BaseQuoteAmtDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.BaseAssetQuoteAmt)
}

// ThresholdDecimal returns the spread threshold in bp as decimal.Decimal.
func (c *Config) ThresholdDecimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c.SpreadDiffThreshold))
}

// WSInterval returns the provider polling interval.
func (c *Config) WSInterval() time.Duration {
	return time.Duration(c.Provider.WSIntervalMilli) * time.Millisecond
}

// Keys returns the access key for the given CEX.
func (c *Config) Keys(cex venue.Cex) (AccessKey, error) {
	switch cex {
	case venue.Bitfinex:
		return c.Bitfinex, nil
	case venue.Binance:
		return c.Binance, nil
	}
	return AccessKey{}, fmt.Errorf("no credentials for cex %s", cex)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("VENUS")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "VENUS_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "VENUS_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "VENUS_LOG_LEVEL", "LOG_LEVEL")

	// Market selection
	v.BindEnv("network", "VENUS_NETWORK")
	v.BindEnv("dex", "VENUS_DEX")
	v.BindEnv("cex", "VENUS_CEX")
	v.BindEnv("base_asset", "VENUS_BASE_ASSET")
	v.BindEnv("quote_asset", "VENUS_QUOTE_ASSET")
	v.BindEnv("base_asset_quote_amt", "VENUS_BASE_ASSET_QUOTE_AMT")
	v.BindEnv("spread_diff_threshold", "VENUS_SPREAD_DIFF_THRESHOLD")

	// Provider
	v.BindEnv("provider.provider", "VENUS_RPC_PROVIDER")
	v.BindEnv("provider.ws_url", "VENUS_RPC_WS_URL", "ETH_WS_URL")
	v.BindEnv("provider.ws_interval_milli", "VENUS_RPC_WS_INTERVAL_MILLI")

	// Account and notification
	v.BindEnv("account.private_key_path", "VENUS_PRIVATE_KEY_PATH")
	v.BindEnv("lark.webhook", "VENUS_LARK_WEBHOOK")

	// Exchange credentials
	v.BindEnv("bitfinex.api_key", "VENUS_BITFINEX_API_KEY", "BITFINEX_API_KEY")
	v.BindEnv("bitfinex.api_secret", "VENUS_BITFINEX_API_SECRET", "BITFINEX_API_SECRET")
	v.BindEnv("binance.api_key", "VENUS_BINANCE_API_KEY", "BINANCE_API_KEY")
	v.BindEnv("binance.api_secret", "VENUS_BINANCE_API_SECRET", "BINANCE_API_SECRET")

	// Telemetry
	v.BindEnv("telemetry.enabled", "VENUS_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "VENUS_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "venus")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Market defaults
	v.SetDefault("network", string(venue.Arbitrum))
	v.SetDefault("dex", string(venue.UniswapV3))
	v.SetDefault("cex", string(venue.Bitfinex))
	v.SetDefault("base_asset", string(asset.ARB))
	v.SetDefault("quote_asset", string(asset.USDC))
	v.SetDefault("base_asset_quote_amt", 10.0)
	v.SetDefault("spread_diff_threshold", 50)

	// Provider defaults
	v.SetDefault("provider.ws_interval_milli", 200)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "venus")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.NetworkEnum(); err != nil {
		return err
	}
	if _, err := c.DexEnum(); err != nil {
		return err
	}
	if _, err := c.CexEnum(); err != nil {
		return err
	}
	if _, err := c.Pair(); err != nil {
		return err
	}
	if c.BaseAssetQuoteAmt <= 0 {
		return fmt.Errorf("base_asset_quote_amt must be positive")
	}
	if c.Provider.WSURL == "" {
		return fmt.Errorf("provider.ws_url is required")
	}
	if c.Account.PrivateKeyPath == "" {
		return fmt.Errorf("account.private_key_path is required")
	}
	return nil
}
