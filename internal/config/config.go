// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

// LiquidStakingConfig describes the wrapper token that is priced through its
// underlying token. Rate is kept as a string so it never passes through a
// float.
type LiquidStakingConfig struct {
	WrapperToken    string `mapstructure:"wrapper_token"`
	UnderlyingToken string `mapstructure:"underlying_token"`
	Rate            string `mapstructure:"rate"`
}

type Config struct {
	PriceFeedURL   string                `mapstructure:"price_feed_url"`
	NearRPCURL     string                `mapstructure:"near_rpc_url"`
	PriceDelay     int                   `mapstructure:"price_delay"`
	RequestTimeout int                   `mapstructure:"request_timeout"`
	Retries        int                   `mapstructure:"retries"`
	DebugLogging   bool                  `mapstructure:"debug_logging"`
	LogFile        string                `mapstructure:"log_file"`
	PostgresURL    string                `mapstructure:"postgres_url"`
	ExportDir      string                `mapstructure:"export_dir"`
	LiquidStaking  LiquidStakingConfig   `mapstructure:"liquid_staking"`
	VaultContracts []types.VaultContract `mapstructure:"vault_contracts"`
}

const (
	DefaultPriceFeedURL   = "https://pikespeak.ai/api/swap/tokenprice"
	DefaultNearRPCURL     = "https://rpc.mainnet.near.org"
	DefaultPriceDelay     = 60000
	DefaultRequestTimeout = 10000
	DefaultRetries        = 3
	DefaultLogFile        = "logs/jumpdefi.log"
	DefaultExportDir      = "exports"

	envPrefix = "JUMPDEFI"
)

// DefaultVaultContracts is the production vault used when the config file
// lists none.
func DefaultVaultContracts() []types.VaultContract {
	return []types.VaultContract{
		{
			ContractID:  "jumpvault1.near",
			StakeToken:  types.TokenRef{ID: finmath.DefaultWrapperToken, Name: "xJUMP", Decimals: 18},
			RewardToken: types.TokenRef{ID: "blackdragon.tkn.near", Name: "BLACKDRAGON", Decimals: 24},
		},
	}
}

// LoadConfig reads the config file at path. An empty path skips the file and
// uses defaults plus environment overrides only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"price_feed_url":                  DefaultPriceFeedURL,
		"near_rpc_url":                    DefaultNearRPCURL,
		"price_delay":                     DefaultPriceDelay,
		"request_timeout":                 DefaultRequestTimeout,
		"retries":                         DefaultRetries,
		"debug_logging":                   false,
		"log_file":                        DefaultLogFile,
		"postgres_url":                    "",
		"export_dir":                      DefaultExportDir,
		"liquid_staking.wrapper_token":    finmath.DefaultWrapperToken,
		"liquid_staking.underlying_token": finmath.DefaultUnderlyingToken,
		"liquid_staking.rate":             finmath.DefaultWrapperRate.String(),
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	loadEnvironmentVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.VaultContracts) == 0 {
		cfg.VaultContracts = DefaultVaultContracts()
	}

	return &cfg, validateConfig(&cfg)
}

// PriceInterval is price_delay as a duration.
func (c *Config) PriceInterval() time.Duration {
	return time.Duration(c.PriceDelay) * time.Millisecond
}

// Timeout is request_timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// Staking converts the liquid staking section for the APR calculator.
// validateConfig has already checked the rate.
func (c *Config) Staking() finmath.LiquidStaking {
	rate, err := decimal.NewFromString(c.LiquidStaking.Rate)
	if err != nil {
		rate = finmath.DefaultWrapperRate
	}
	return finmath.LiquidStaking{
		WrapperToken:    c.LiquidStaking.WrapperToken,
		UnderlyingToken: c.LiquidStaking.UnderlyingToken,
		Rate:            rate,
	}
}

func validateConfig(cfg *Config) error {
	if err := validateURLWithCache(cfg.PriceFeedURL, "http"); err != nil {
		return fmt.Errorf("invalid price_feed_url: %w", err)
	}
	if err := validateURLWithCache(cfg.NearRPCURL, "http"); err != nil {
		return fmt.Errorf("invalid near_rpc_url: %w", err)
	}
	if cfg.PostgresURL != "" {
		if err := validateURLWithCache(cfg.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("invalid postgres_url: %w", err)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if err := validateLiquidStaking(cfg.LiquidStaking); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.VaultContracts))
	for i, vc := range cfg.VaultContracts {
		if err := vc.Validate(); err != nil {
			return fmt.Errorf("vault_contracts[%d]: %w", i, err)
		}
		if _, dup := seen[vc.ContractID]; dup {
			return fmt.Errorf("vault_contracts[%d]: duplicate contract %s", i, vc.ContractID)
		}
		seen[vc.ContractID] = struct{}{}
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.PriceDelay <= 0 {
		return errors.New("invalid price_delay")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("invalid request_timeout")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	return nil
}

func validateLiquidStaking(ls LiquidStakingConfig) error {
	if ls.WrapperToken == "" {
		// pricing through the underlying token is switched off
		return nil
	}
	if ls.UnderlyingToken == "" {
		return errors.New("liquid_staking.underlying_token is required with wrapper_token")
	}
	rate, err := decimal.NewFromString(ls.Rate)
	if err != nil || !rate.IsPositive() {
		return fmt.Errorf("invalid liquid_staking.rate %q", ls.Rate)
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	if rawURL == "" {
		return errors.New("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// loadEnvironmentVariables lets JUMPDEFI_* variables override file values,
// e.g. JUMPDEFI_POSTGRES_URL or JUMPDEFI_LIQUID_STAKING_RATE.
func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
