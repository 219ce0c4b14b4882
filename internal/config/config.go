package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Chain       ChainConfig       `mapstructure:"chain"`
	Contracts   ContractsConfig   `mapstructure:"contracts"`
	Safe        SafeConfig        `mapstructure:"safe"`
	Bundler     BundlerConfig     `mapstructure:"bundler"`
	Paymaster   PaymasterConfig   `mapstructure:"paymaster"`
	Indexer     IndexerConfig     `mapstructure:"indexer"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Deploy      DeployConfig      `mapstructure:"deploy"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ChainConfig struct {
	RPCURL  string `mapstructure:"rpc_url"`
	ChainID int64  `mapstructure:"chain_id"`
}

type ContractsConfig struct {
	FarmFactory  string `mapstructure:"farm_factory"`
	USDC         string `mapstructure:"usdc"`
	USDCDecimals int    `mapstructure:"usdc_decimals"`
}

// SafeConfig holds the Safe 4337 deployment addresses.
type SafeConfig struct {
	EntryPoint            string        `mapstructure:"entry_point"`
	Module                string        `mapstructure:"module"`
	ModuleSetup           string        `mapstructure:"module_setup"`
	Singleton             string        `mapstructure:"singleton"`
	ProxyFactory          string        `mapstructure:"proxy_factory"`
	MultiSend             string        `mapstructure:"multisend"`
	MultiSendCallOnly     string        `mapstructure:"multisend_call_only"`
	WebAuthnSignerFactory string        `mapstructure:"webauthn_signer_factory"`
	WebAuthnVerifier      string        `mapstructure:"webauthn_verifier"`
	WebAuthnPrecompile    uint16        `mapstructure:"webauthn_precompile"`
	SaltNonce             int64         `mapstructure:"salt_nonce"`
	ValidFor              time.Duration `mapstructure:"valid_for"`
}

type BundlerConfig struct {
	URL string `mapstructure:"url"`
}

// PaymasterConfig enables sponsorship when URL is set.
type PaymasterConfig struct {
	URL                 string `mapstructure:"url"`
	SponsorshipPolicyID string `mapstructure:"sponsorship_policy_id"`
}

type IndexerConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxPages int           `mapstructure:"max_pages"`
}

type SettlementConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RegistryConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	MaxFarms    uint64 `mapstructure:"max_farms"`
}

// CacheConfig enables the Redis farm cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type CredentialsConfig struct {
	Path string `mapstructure:"path"`
}

type JournalConfig struct {
	Dir    string        `mapstructure:"dir"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type DeployConfig struct {
	MinNativeBalance string `mapstructure:"min_native_balance"` // wei, decimal
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from an optional file and DEMETER_* environment
// variables. Nested keys map to upper-case names with dots replaced by
// underscores, e.g. DEMETER_BUNDLER_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides are picked up.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.rpc_url", "https://sepolia.base.org")
	v.SetDefault("chain.chain_id", 84532)

	v.SetDefault("contracts.farm_factory", "")
	v.SetDefault("contracts.usdc", "0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	v.SetDefault("contracts.usdc_decimals", 6)

	v.SetDefault("safe.entry_point", "0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	v.SetDefault("safe.module", "0x75cf11467937ce3F2f357CE24ffc3DBF8fD5c226")
	v.SetDefault("safe.module_setup", "0x2dd68b007B46fBe91B9A7c3EDa5A7a1063cB5b47")
	v.SetDefault("safe.singleton", "0x29fcB43b46531BcA003ddC8FCB67FFE91900C762")
	v.SetDefault("safe.proxy_factory", "0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
	v.SetDefault("safe.multisend", "0x38869bf66a61cF6bDB996A6aE40D5853Fd43B526")
	v.SetDefault("safe.multisend_call_only", "0x9641d764fc13c8B624c04430C7356C1C7C8102e2")
	v.SetDefault("safe.webauthn_signer_factory", "0x1d31F259eE307358a26dFb23EB365939E8641195")
	v.SetDefault("safe.webauthn_verifier", "0x445a0683e494ea0c5AF3E83c5159fBE47Cf9e765")
	v.SetDefault("safe.webauthn_precompile", 0x100)
	v.SetDefault("safe.salt_nonce", 0)
	v.SetDefault("safe.valid_for", "1h")

	v.SetDefault("bundler.url", "")
	v.SetDefault("paymaster.url", "")
	v.SetDefault("paymaster.sponsorship_policy_id", "")

	v.SetDefault("indexer.base_url", "https://safe-transaction-base-sepolia.safe.global/api")
	v.SetDefault("indexer.api_key", "")
	v.SetDefault("indexer.timeout", "15s")
	v.SetDefault("indexer.max_pages", 20)

	v.SetDefault("settlement.poll_interval", "2s")
	v.SetDefault("settlement.timeout", "3m")

	v.SetDefault("registry.concurrency", 8)
	v.SetDefault("registry.max_farms", 1000)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "10m")

	v.SetDefault("credentials.path", "")
	v.SetDefault("journal.dir", "")
	v.SetDefault("journal.max_age", "168h")
	v.SetDefault("deploy.min_native_balance", "0")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.addr", "")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if c.Bundler.URL == "" {
		return fmt.Errorf("bundler.url is required")
	}

	addresses := map[string]string{
		"contracts.farm_factory":       c.Contracts.FarmFactory,
		"contracts.usdc":               c.Contracts.USDC,
		"safe.entry_point":             c.Safe.EntryPoint,
		"safe.module":                  c.Safe.Module,
		"safe.module_setup":            c.Safe.ModuleSetup,
		"safe.singleton":               c.Safe.Singleton,
		"safe.proxy_factory":           c.Safe.ProxyFactory,
		"safe.multisend":               c.Safe.MultiSend,
		"safe.multisend_call_only":     c.Safe.MultiSendCallOnly,
		"safe.webauthn_signer_factory": c.Safe.WebAuthnSignerFactory,
		"safe.webauthn_verifier":       c.Safe.WebAuthnVerifier,
	}
	for key, value := range addresses {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s must be a hex address, got %q", key, value)
		}
	}

	if c.Contracts.USDCDecimals < 0 || c.Contracts.USDCDecimals > 36 {
		return fmt.Errorf("contracts.usdc_decimals must be between 0 and 36")
	}
	if c.Settlement.PollInterval <= 0 {
		return fmt.Errorf("settlement.poll_interval must be positive")
	}
	if c.Settlement.Timeout < c.Settlement.PollInterval {
		return fmt.Errorf("settlement.timeout must be at least settlement.poll_interval")
	}
	if c.Registry.Concurrency < 1 {
		return fmt.Errorf("registry.concurrency must be at least 1")
	}
	if c.Registry.MaxFarms < 1 {
		return fmt.Errorf("registry.max_farms must be at least 1")
	}
	if c.Safe.ValidFor < 0 {
		return fmt.Errorf("safe.valid_for must not be negative")
	}
	if c.Journal.MaxAge < 0 {
		return fmt.Errorf("journal.max_age must not be negative")
	}
	if _, err := c.MinNativeBalance(); err != nil {
		return err
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}

// MinNativeBalance parses deploy.min_native_balance as wei.
func (c *Config) MinNativeBalance() (*big.Int, error) {
	raw := strings.TrimSpace(c.Deploy.MinNativeBalance)
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("deploy.min_native_balance must be a non-negative integer, got %q", raw)
	}
	return v, nil
}

