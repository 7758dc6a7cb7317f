package config

import (
	"fmt"
	"strings"
	"time"

	"monad-trade-agent-go/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Chain       Chain       `mapstructure:"chain"`
	Dex         Dex         `mapstructure:"dex"`
	Social      Social      `mapstructure:"social"`
	Signal      Signal      `mapstructure:"signal"`
	Trading     Trading     `mapstructure:"trading"`
	Legacy      Legacy      `mapstructure:"legacy"`
	Wallets     []Wallet    `mapstructure:"wallets"`
	Logger      Logger      `mapstructure:"logger"`
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Broker      Broker      `mapstructure:"broker"`
	Telegram    Telegram    `mapstructure:"telegram"`
	Performance Performance `mapstructure:"performance"`
}

// Chain holds the configuration for the chain gateway.
type Chain struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ApiKey         string        `mapstructure:"api_key"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Dex holds the configuration for the DEX quote aggregator.
type Dex struct {
	QuoteURL string `mapstructure:"quote_url"`
	Enabled  bool   `mapstructure:"enabled"`
}

// Social holds the configuration for the social data API.
type Social struct {
	BaseURL         string        `mapstructure:"base_url"`
	BearerToken     string        `mapstructure:"bearer_token"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	WatchedAccounts []string      `mapstructure:"watched_accounts"`
}

// Signal holds the scoring parameters of the signal evaluator.
type Signal struct {
	BuyKeywords      []string      `mapstructure:"buy_keywords"`
	SellKeywords     []string      `mapstructure:"sell_keywords"`
	KeywordWeight    float64       `mapstructure:"keyword_weight"`
	TrustWeight      float64       `mapstructure:"trust_weight"`
	RecencyWeight    float64       `mapstructure:"recency_weight"`
	KeywordSaturate  int           `mapstructure:"keyword_saturate"`
	BaseTrust        float64       `mapstructure:"base_trust"`
	WatchedBoost     float64       `mapstructure:"watched_boost"`
	RecencyHalfLife  time.Duration `mapstructure:"recency_half_life"`
	ConfidenceFloor  float64       `mapstructure:"confidence_floor"`
	ExpiryHorizon    time.Duration `mapstructure:"expiry_horizon"`
	DefaultTokenRisk string        `mapstructure:"default_token_risk"`

	// TokenRisk declares the risk tier of known tokens, keyed by lowercase address.
	TokenRisk map[string]string `mapstructure:"token_risk"`
}

// Trading holds the configuration for the trading logic.
type Trading struct {
	Strategy            string        `mapstructure:"strategy"`
	DryRun              bool          `mapstructure:"dry_run"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	DefaultSlippageBps  int           `mapstructure:"default_slippage_bps"`
	VolatileSlippageBps int           `mapstructure:"volatile_slippage_bps"`
	MaxSlippageBps      int           `mapstructure:"max_slippage_bps"`
	VolatilityThreshold float64       `mapstructure:"volatility_threshold"`
	MaxPositionMON      string        `mapstructure:"max_position_mon"`
	MaxPositionPercent  string        `mapstructure:"max_position_percent"`
	Deadline            time.Duration `mapstructure:"deadline"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
}

// Legacy holds the simple poll-interval bot profile.
type Legacy struct {
	Enabled       bool          `mapstructure:"enabled"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxBuyAmount  string        `mapstructure:"max_buy_amount"`
	MinConfidence float64       `mapstructure:"min_confidence"`
}

// Wallet is an agent-managed wallet.
type Wallet struct {
	Name       string `mapstructure:"name"`
	PrivateKey string `mapstructure:"private_key"`
	Strategy   string `mapstructure:"strategy"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// JWTSecret enables bearer auth on operator endpoints when set.
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Broker holds the configuration for the trade event queue.
type Broker struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Queue   string `mapstructure:"queue"`
}

// Telegram holds the configuration for trade notifications.
type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// Performance holds the schedule of strategy performance snapshots.
type Performance struct {
	Schedule string `mapstructure:"schedule"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.rate_limit", 10)
	v.SetDefault("chain.rate_limit_burst", 5)
	v.SetDefault("chain.timeout", 15*time.Second)
	v.SetDefault("dex.enabled", true)

	v.SetDefault("social.cache_ttl", 5*time.Minute)
	v.SetDefault("social.rate_limit", 1)
	v.SetDefault("social.rate_limit_burst", 3)

	v.SetDefault("signal.buy_keywords", []string{"buy", "ape", "moon", "bullish", "pump", "long", "gem", "send it"})
	v.SetDefault("signal.sell_keywords", []string{"sell", "dump", "rug", "bearish", "exit", "short", "scam"})
	v.SetDefault("signal.keyword_weight", 0.5)
	v.SetDefault("signal.trust_weight", 0.3)
	v.SetDefault("signal.recency_weight", 0.2)
	v.SetDefault("signal.keyword_saturate", 3)
	v.SetDefault("signal.base_trust", 0.3)
	v.SetDefault("signal.watched_boost", 0.7)
	v.SetDefault("signal.recency_half_life", 10*time.Minute)
	v.SetDefault("signal.confidence_floor", 0.4)
	v.SetDefault("signal.expiry_horizon", 5*time.Minute)
	v.SetDefault("signal.default_token_risk", "high")

	limits := strategy.DefaultLimits()
	v.SetDefault("trading.strategy", string(strategy.Balanced))
	v.SetDefault("trading.tick_interval", 30*time.Second)
	v.SetDefault("trading.default_slippage_bps", limits.Slippage.DefaultBps)
	v.SetDefault("trading.volatile_slippage_bps", limits.Slippage.HighVolatilityBps)
	v.SetDefault("trading.max_slippage_bps", limits.Slippage.MaxBps)
	v.SetDefault("trading.volatility_threshold", limits.Slippage.VolatilityThreshold)
	v.SetDefault("trading.max_position_mon", limits.Position.MaxPositionMON.String())
	v.SetDefault("trading.max_position_percent", limits.Position.MaxPositionPercent.String())
	v.SetDefault("trading.deadline", limits.Transaction.Deadline)
	v.SetDefault("trading.max_retries", limits.Transaction.MaxRetries)
	v.SetDefault("trading.retry_delay", limits.Transaction.RetryDelay)

	v.SetDefault("legacy.poll_interval", time.Minute)
	v.SetDefault("legacy.max_buy_amount", "0.05")
	v.SetDefault("legacy.min_confidence", 0.6)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("database.dsn", "agent.db")
	v.SetDefault("broker.queue", "trade_results")
	v.SetDefault("performance.schedule", "@every 15m")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, config.Validate()
}

// Social responses are cached for this window.
const (
	minCacheTTL = 5 * time.Minute
	maxCacheTTL = 10 * time.Minute
)

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if _, err := c.Limits(); err != nil {
		return err
	}
	if c.Trading.MaxRetries < 1 {
		return fmt.Errorf("trading.max_retries must be at least 1")
	}
	if c.Social.CacheTTL < minCacheTTL || c.Social.CacheTTL > maxCacheTTL {
		return fmt.Errorf("social.cache_ttl must be between %s and %s, got %s", minCacheTTL, maxCacheTTL, c.Social.CacheTTL)
	}
	if c.Signal.ExpiryHorizon <= 0 {
		return fmt.Errorf("signal.expiry_horizon must be positive")
	}
	return nil
}

// Limits converts the trading section into process-wide trading limits.
func (c Config) Limits() (strategy.TradingLimits, error) {
	maxMON, err := decimal.NewFromString(c.Trading.MaxPositionMON)
	if err != nil {
		return strategy.TradingLimits{}, fmt.Errorf("invalid trading.max_position_mon %q: %w", c.Trading.MaxPositionMON, err)
	}
	maxPct, err := decimal.NewFromString(c.Trading.MaxPositionPercent)
	if err != nil {
		return strategy.TradingLimits{}, fmt.Errorf("invalid trading.max_position_percent %q: %w", c.Trading.MaxPositionPercent, err)
	}
	return strategy.TradingLimits{
		Slippage: strategy.Slippage{
			DefaultBps:          c.Trading.DefaultSlippageBps,
			HighVolatilityBps:   c.Trading.VolatileSlippageBps,
			MaxBps:              c.Trading.MaxSlippageBps,
			VolatilityThreshold: c.Trading.VolatilityThreshold,
		},
		Position: strategy.PositionLimits{
			MaxPositionMON:     maxMON,
			MaxPositionPercent: maxPct,
		},
		Transaction: strategy.Transaction{
			Deadline:   c.Trading.Deadline,
			MaxRetries: c.Trading.MaxRetries,
			RetryDelay: c.Trading.RetryDelay,
		},
	}, nil
}

// Strategies returns the strategy table, extended with the legacy profile when enabled.
func (c Config) Strategies() (*strategy.Table, error) {
	table := strategy.DefaultTable()
	if !c.Legacy.Enabled {
		return table, nil
	}
	maxBuy, err := decimal.NewFromString(c.Legacy.MaxBuyAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid legacy.max_buy_amount %q: %w", c.Legacy.MaxBuyAmount, err)
	}
	return table.WithProfile(strategy.LegacyProfile(c.Legacy.MinConfidence, maxBuy, c.Legacy.PollInterval)), nil
}
