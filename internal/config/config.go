// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
)

type Config struct {
	Network      types.Network     `mapstructure:"network"`
	Contracts    ContractsConfig   `mapstructure:"contracts"`
	Tokens       []types.Token     `mapstructure:"tokens"`
	TokensFile   string            `mapstructure:"tokens_file"`
	Quote        QuoteConfig       `mapstructure:"quote"`
	Swap         SwapConfig        `mapstructure:"swap"`
	Gas          GasConfig         `mapstructure:"gas"`
	Transactions TransactionConfig `mapstructure:"transactions"`
	Logging      logger.Config     `mapstructure:"logging"`
	API          APIConfig         `mapstructure:"api"`
	PostgresURL  string            `mapstructure:"postgres_url"`
	RedisURL     string            `mapstructure:"redis_url"`
	WalletsFile  string            `mapstructure:"wallets_file"`
}

type ContractsConfig struct {
	SwapRouter    string       `mapstructure:"swap_router"`
	QuoterV2      string       `mapstructure:"quoter_v2"`
	QuoterV1      string       `mapstructure:"quoter_v1"`
	WrappedNative string       `mapstructure:"wrapped_native"`
	Marketplace   string       `mapstructure:"marketplace"`
	NFTCollection string       `mapstructure:"nft_collection"`
	Pools         []PoolConfig `mapstructure:"pools"`
}

// PoolConfig describes a directly known pair contract. Token1/Token2 are token ids.
type PoolConfig struct {
	Address string `mapstructure:"address"`
	Token1  string `mapstructure:"token1"`
	Token2  string `mapstructure:"token2"`
}

type QuoteConfig struct {
	Timeout         time.Duration      `mapstructure:"timeout"`
	FeeTiers        []uint32           `mapstructure:"fee_tiers"`
	SyntheticFactor float64            `mapstructure:"synthetic_factor"`
	ReferencePrices map[string]float64 `mapstructure:"reference_prices"`
	Debounce        time.Duration      `mapstructure:"debounce"`
}

type SwapConfig struct {
	FeeTier         uint32        `mapstructure:"fee_tier"`
	DeadlineMinutes int           `mapstructure:"deadline_minutes"`
	SlippagePercent float64       `mapstructure:"slippage_percent"`
	SimulatedDelay  time.Duration `mapstructure:"simulated_delay"`
	GasMultiplier   float64       `mapstructure:"gas_multiplier"`
}

type GasConfig struct {
	FallbackPriceGwei int64 `mapstructure:"fallback_price_gwei"`
}

type TransactionConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type APIConfig struct {
	Listen      string   `mapstructure:"listen"`
	RateLimit   int      `mapstructure:"rate_limit"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

const (
	DefaultChainID         = 146
	DefaultQuoteTimeout    = 15 * time.Second
	DefaultDebounce        = 500 * time.Millisecond
	DefaultSyntheticFactor = 0.996
	DefaultFeeTier         = 3000
	DefaultDeadlineMinutes = 20
	DefaultSimulatedDelay  = 2 * time.Second
	DefaultGasMultiplier   = 1.2
	DefaultFallbackGasGwei = 20
	DefaultConfirmTimeout  = 2 * time.Minute
	DefaultPollInterval    = 2 * time.Second
	DefaultAPIListen       = ":8080"
	DefaultAPIRateLimit    = 120
	envPrefix              = "SONIC_DEFI"
	defaultEnvFile         = ".env"
	maxFeeTier             = 1_000_000
	maxTokenDecimals       = 36
	maxSlippagePercent     = 50
	placeholderPool        = "0xPLACEHOLDERSLLwSPoolAddress"
	placeholderMarketplace = "0xPLACEHOLDERMarketplaceAddress"
	defaultSwapRouter      = "0x5543c6176feb9b4b179078205d7c29eea2e2d695"
	defaultQuoterV2        = "0x219b7ADebc0935a3eC889a148c6924D51A07535A"
	defaultQuoterV1        = "0x3003B4FeAFF95e09683FEB7fc5d11b330cd79Dc7"
	defaultWrappedNative   = "0x039e2fB66102314Ce7b64Ce5Ce3E5183bc94aD38"
	defaultNFTCollection   = "0x0dcbf9741bbc21b7696ca73f5f87731c9a3d303e"
	defaultRPCURL          = "https://rpc.soniclabs.com"
	defaultExplorerURL     = "https://explorer.soniclabs.com"
)

// DefaultFeeTiers are the concentrated-liquidity tiers tried by the quoter.
var DefaultFeeTiers = []uint32{500, 3000, 10000}

// DefaultReferencePrices are demo USD prices for the synthetic quote.
func DefaultReferencePrices() map[string]float64 {
	return map[string]float64{
		"s":       1,
		"sll":     1,
		"ws":      1,
		"usdc":    1,
		"usdt":    1,
		"weth":    2500,
		"wbtc":    45000,
		"dai":     1,
		"unknown": 1,
	}
}

// LoadConfig reads .env, the optional config file at path and SONIC_DEFI_* env vars.
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(defaultEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	defaults := map[string]interface{}{
		"network.chain_id":                 DefaultChainID,
		"network.name":                     "Sonic Mainnet",
		"network.rpc_url":                  defaultRPCURL,
		"network.explorer_url":             defaultExplorerURL,
		"network.native_currency.name":     "Sonic",
		"network.native_currency.symbol":   "S",
		"network.native_currency.decimals": 18,
		"contracts.swap_router":            defaultSwapRouter,
		"contracts.quoter_v2":              defaultQuoterV2,
		"contracts.quoter_v1":              defaultQuoterV1,
		"contracts.wrapped_native":         defaultWrappedNative,
		"contracts.marketplace":            placeholderMarketplace,
		"contracts.nft_collection":         defaultNFTCollection,
		"quote.timeout":                    DefaultQuoteTimeout,
		"quote.fee_tiers":                  DefaultFeeTiers,
		"quote.synthetic_factor":           DefaultSyntheticFactor,
		"quote.reference_prices":           DefaultReferencePrices(),
		"quote.debounce":                   DefaultDebounce,
		"swap.fee_tier":                    DefaultFeeTier,
		"swap.deadline_minutes":            DefaultDeadlineMinutes,
		"swap.slippage_percent":            types.DefaultSlippagePercent,
		"swap.simulated_delay":             DefaultSimulatedDelay,
		"swap.gas_multiplier":              DefaultGasMultiplier,
		"gas.fallback_price_gwei":          DefaultFallbackGasGwei,
		"transactions.confirm_timeout":     DefaultConfirmTimeout,
		"transactions.poll_interval":       DefaultPollInterval,
		"logging.log_file":                 logger.DefaultConfig().LogFile,
		"logging.max_size":                 logger.DefaultConfig().MaxSize,
		"logging.max_age":                  logger.DefaultConfig().MaxAge,
		"logging.max_backups":              logger.DefaultConfig().MaxBackups,
		"logging.compress":                 true,
		"logging.console":                  true,
		"api.listen":                       DefaultAPIListen,
		"api.rate_limit":                   DefaultAPIRateLimit,
		"postgres_url":                     "",
		"redis_url":                        "",
		"tokens_file":                      "",
		"wallets_file":                     "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	if err := resolveTokens(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Contracts.Pools) == 0 {
		cfg.Contracts.Pools = []PoolConfig{{Address: placeholderPool, Token1: "sll", Token2: "ws"}}
	}

	return &cfg, validateConfig(&cfg)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func resolveTokens(cfg *Config) error {
	if cfg.TokensFile != "" {
		tokens, err := LoadTokens(cfg.TokensFile)
		if err != nil {
			return err
		}
		cfg.Tokens = tokens
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = DefaultTokens()
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Network.ChainID == 0 {
		return errors.New("network.chain_id must be set")
	}
	if err := validateURLWithCache(cfg.Network.RPCURL, "http", "ws"); err != nil {
		return fmt.Errorf("invalid network.rpc_url: %w", err)
	}
	for _, u := range cfg.Network.FallbackRPCURLs {
		if err := validateURLWithCache(u, "http", "ws"); err != nil {
			return fmt.Errorf("invalid network.fallback_rpc_urls entry %q: %w", u, err)
		}
	}
	if cfg.Network.ExplorerURL != "" {
		if err := validateURLWithCache(cfg.Network.ExplorerURL, "https"); err != nil {
			return errors.New("network.explorer_url must use HTTPS")
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if err := validateContracts(cfg); err != nil {
		return err
	}
	return validateTokens(cfg.Tokens)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Quote.Timeout <= 0 {
		return errors.New("invalid quote.timeout")
	}
	if len(cfg.Quote.FeeTiers) == 0 {
		return errors.New("quote.fee_tiers is empty")
	}
	for _, tier := range append(append([]uint32{}, cfg.Quote.FeeTiers...), cfg.Swap.FeeTier) {
		if tier == 0 || tier >= maxFeeTier {
			return fmt.Errorf("invalid fee tier %d", tier)
		}
	}
	if cfg.Quote.SyntheticFactor <= 0 || cfg.Quote.SyntheticFactor > 1 {
		return errors.New("quote.synthetic_factor must be in (0, 1]")
	}
	if cfg.Swap.DeadlineMinutes <= 0 {
		return errors.New("invalid swap.deadline_minutes")
	}
	if cfg.Swap.SlippagePercent < 0 || cfg.Swap.SlippagePercent > maxSlippagePercent {
		return errors.New("invalid swap.slippage_percent")
	}
	if cfg.Swap.GasMultiplier < 1 {
		return errors.New("swap.gas_multiplier must be >= 1")
	}
	if cfg.Gas.FallbackPriceGwei <= 0 {
		return errors.New("invalid gas.fallback_price_gwei")
	}
	if cfg.Transactions.ConfirmTimeout <= 0 || cfg.Transactions.PollInterval <= 0 {
		return errors.New("invalid transactions timing")
	}
	if cfg.API.RateLimit < 0 {
		return errors.New("invalid api.rate_limit")
	}
	return nil
}

// Contract addresses may be placeholders; anything else must be a hex address.
func validateContracts(cfg *Config) error {
	named := map[string]string{
		"swap_router":    cfg.Contracts.SwapRouter,
		"quoter_v2":      cfg.Contracts.QuoterV2,
		"quoter_v1":      cfg.Contracts.QuoterV1,
		"wrapped_native": cfg.Contracts.WrappedNative,
		"marketplace":    cfg.Contracts.Marketplace,
		"nft_collection": cfg.Contracts.NFTCollection,
	}
	for name, addr := range named {
		if _, err := address.Resolve(addr); err != nil {
			return fmt.Errorf("invalid contracts.%s: %w", name, err)
		}
	}
	for _, pool := range cfg.Contracts.Pools {
		if _, err := address.Resolve(pool.Address); err != nil {
			return fmt.Errorf("invalid pool address: %w", err)
		}
	}
	return nil
}

func validateTokens(tokens []types.Token) error {
	seen := make(map[string]struct{}, len(tokens))
	natives := 0
	for _, t := range tokens {
		if t.ID == "" || t.Symbol == "" {
			return errors.New("token id and symbol are required")
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate token id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Decimals > maxTokenDecimals {
			return fmt.Errorf("token %q: too many decimals", t.ID)
		}
		if t.IsNative() {
			natives++
			continue
		}
		if _, err := address.Resolve(t.Address); err != nil {
			return fmt.Errorf("token %q: %w", t.ID, err)
		}
	}
	if natives != 1 {
		return fmt.Errorf("exactly one native token required, got %d", natives)
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocols ...string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	for _, protocol := range protocols {
		if strings.HasPrefix(parsed.Scheme, protocol) {
			urlCache.Store(rawURL, parsed)
			return nil
		}
	}
	return errors.New("invalid URL protocol")
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	envOrigins := v.GetString("API_CORS_ORIGINS")
	if envOrigins != "" {
		var clean []string
		for _, origin := range strings.Split(envOrigins, ",") {
			if o := strings.TrimSpace(origin); o != "" {
				clean = append(clean, o)
			}
		}
		if len(clean) > 0 {
			cfg.API.CORSOrigins = clean
		}
	}
	return nil
}
