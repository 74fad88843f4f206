package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/tradebot/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Log        LogConfig                 `mapstructure:"log"`
	Exchange   ExchangeConfig            `mapstructure:"exchange"`
	Trading    TradingConfig             `mapstructure:"trading"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Aggregator AggregatorConfig          `mapstructure:"aggregator"`
	Router     RouterConfig              `mapstructure:"router"`
	Realtime   RealtimeConfig            `mapstructure:"realtime"`
	Cache      CacheConfig               `mapstructure:"cache"`
	Journal    JournalConfig             `mapstructure:"journal"`
	Archive    ArchiveConfig             `mapstructure:"archive"`
	Notifiers  map[string]NotifierConfig `mapstructure:"notifiers"`
	Feed       FeedConfig                `mapstructure:"feed"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Alerts     AlertsConfig              `mapstructure:"alerts"`
}

type ServerConfig struct {
	Host   string   `mapstructure:"host"`
	Port   int      `mapstructure:"port"`
	APIKey string   `mapstructure:"api_key"`
	CORS   []string `mapstructure:"cors"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ExchangeConfig selects the market data and execution venue.
type ExchangeConfig struct {
	Provider       string      `mapstructure:"provider"` // "bybit" or "paper"
	APIKey         string      `mapstructure:"api_key"`
	APISecret      string      `mapstructure:"api_secret"`
	Testnet        bool        `mapstructure:"testnet"`
	Category       string      `mapstructure:"category"`
	KlineInterval  string      `mapstructure:"kline_interval"`
	KlineLimit     int         `mapstructure:"kline_limit"`
	OrderBookDepth int         `mapstructure:"orderbook_depth"`
	Retry          RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Jitter          float64       `mapstructure:"jitter"`
}

type TradingConfig struct {
	Pairs            []string      `mapstructure:"pairs"`
	InitialCapital   float64       `mapstructure:"initial_capital"`
	MaxPositions     int           `mapstructure:"max_positions"`
	RiskPerTrade     float64       `mapstructure:"risk_per_trade"`
	StopLossPct      float64       `mapstructure:"stop_loss_pct"`
	TakeProfitPct    float64       `mapstructure:"take_profit_pct"`
	CommissionRate   float64       `mapstructure:"commission_rate"`
	AutoTrade        bool          `mapstructure:"auto_trade"`
	Virtual          bool          `mapstructure:"virtual"`
	AnalysisInterval time.Duration `mapstructure:"analysis_interval"`
}

type StrategyConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Weight        float64        `mapstructure:"weight"`
	Reliability   float64        `mapstructure:"reliability"`
	MinConfidence float64        `mapstructure:"min_confidence"`
	Priority      int            `mapstructure:"priority"`
	Params        map[string]any `mapstructure:"params"`
}

type AggregatorConfig struct {
	Window        time.Duration `mapstructure:"window"`
	MinConfidence float64       `mapstructure:"min_confidence"`
}

type RouterConfig struct {
	MinConfidence float64       `mapstructure:"min_confidence"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
}

type RealtimeConfig struct {
	BroadcastInterval  time.Duration        `mapstructure:"broadcast_interval"`
	PriceFlushInterval time.Duration        `mapstructure:"price_flush_interval"`
	Client             RealtimeClientConfig `mapstructure:"client"`
}

// RealtimeClientConfig tunes the reconnecting client used by `tradebot watch`.
type RealtimeClientConfig struct {
	URL          string        `mapstructure:"url"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout"`
}

type CacheConfig struct {
	Type  string        `mapstructure:"type"` // "memory" or "redis"
	Redis RedisConfig   `mapstructure:"redis"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JournalConfig struct {
	Dir              string `mapstructure:"dir"`
	SegmentThreshold int    `mapstructure:"segment_threshold"`
	MaxSegments      int    `mapstructure:"max_segments"`
	Sync             bool   `mapstructure:"sync"`
	// CheckpointInterval re-journals the ledger and open trades so they
	// outlive segment eviction.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type NotifierConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
}

// FeedConfig sizes the news, social and whale stores.
type FeedConfig struct {
	Capacity    int     `mapstructure:"capacity"`
	WhaleMinUSD float64 `mapstructure:"whale_min_usd"`
}

// AlertsConfig holds the operational alert rules evaluated after each cycle.
type AlertsConfig struct {
	Cooldown time.Duration     `mapstructure:"cooldown"`
	Rules    []AlertRuleConfig `mapstructure:"rules"`
}

// AlertRuleConfig is one "metric op value" rule, e.g. "drawdown_pct > 10".
type AlertRuleConfig struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if v.IsSet("trading.pairs") {
		// mapstructure keeps trailing default elements when decoding a shorter slice
		cfg.Trading.Pairs = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config that runs a paper-trading bot out of the box.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{Level: "info"},
		Exchange: ExchangeConfig{
			Provider:       "paper",
			Testnet:        true,
			Category:       "spot",
			KlineInterval:  "1h",
			KlineLimit:     200,
			OrderBookDepth: 50,
			Retry: RetryConfig{
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2.0,
				MaxRetries:      5,
				Jitter:          0.1,
			},
		},
		Trading: TradingConfig{
			Pairs:            []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			InitialCapital:   10000,
			MaxPositions:     5,
			RiskPerTrade:     0.02,
			StopLossPct:      2.0,
			TakeProfitPct:    4.0,
			CommissionRate:   0.001,
			AutoTrade:        false,
			Virtual:          true,
			AnalysisInterval: 60 * time.Second,
		},
		Strategies: map[string]StrategyConfig{
			"whale_hunting":       {Enabled: true},
			"sleeping_giants":     {Enabled: true},
			"order_book_analysis": {Enabled: true},
			"momentum":            {Enabled: true},
			"ma_crossover":        {Enabled: false},
			"multi_indicator":     {Enabled: false},
		},
		Aggregator: AggregatorConfig{
			Window:        60 * time.Second,
			MinConfidence: 0.4,
		},
		Router: RouterConfig{
			MinConfidence: 0.6,
			Cooldown:      15 * time.Minute,
		},
		Realtime: RealtimeConfig{
			BroadcastInterval:  5 * time.Second,
			PriceFlushInterval: 200 * time.Millisecond,
			Client: RealtimeClientConfig{
				URL:          "ws://127.0.0.1:8080/ws",
				BaseDelay:    time.Second,
				MaxDelay:     30 * time.Second,
				MaxAttempts:  10,
				PingInterval: 25 * time.Second,
				PongTimeout:  60 * time.Second,
			},
		},
		Cache: CacheConfig{
			Type: "memory",
			TTL:  30 * time.Second,
		},
		Journal: JournalConfig{
			Dir:                "./data/journal",
			SegmentThreshold:   1000,
			MaxSegments:        100,
			Sync:               false,
			CheckpointInterval: time.Hour,
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "./data/archive",
		},
		Feed: FeedConfig{
			Capacity:    500,
			WhaleMinUSD: 100000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Alerts: AlertsConfig{Cooldown: 5 * time.Minute},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Exchange.Provider {
	case "paper":
	case "bybit":
		if !c.Trading.Virtual && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("bybit api_key and api_secret required for live trading"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown exchange provider %q", c.Exchange.Provider))
	}

	if len(c.Trading.Pairs) == 0 {
		return core.Errorf(core.ErrConfigMissing, "trading.pairs cannot be empty")
	}
	if c.Trading.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %f", c.Trading.InitialCapital))
	}
	if c.Trading.MaxPositions < 1 || c.Trading.MaxPositions > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_positions must be between 1 and 100, got %d", c.Trading.MaxPositions))
	}
	if c.Trading.RiskPerTrade <= 0 || c.Trading.RiskPerTrade > 0.1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk_per_trade must be in (0, 0.1], got %f", c.Trading.RiskPerTrade))
	}
	if c.Trading.CommissionRate < 0 || c.Trading.CommissionRate >= 0.05 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission_rate must be in [0, 0.05), got %f", c.Trading.CommissionRate))
	}
	if c.Trading.AnalysisInterval < time.Second {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("analysis_interval must be at least 1s, got %s", c.Trading.AnalysisInterval))
	}

	// Router validation
	if c.Router.MinConfidence < 0 || c.Router.MinConfidence > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_confidence must be between 0 and 1, got %f", c.Router.MinConfidence))
	}
	if c.Router.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cooldown cannot be negative, got %s", c.Router.Cooldown))
	}

	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("cache.redis.addr required when cache type is redis"))
		}
	default:
		return core.Errorf(core.ErrConfigInvalid, "unknown cache type %q", c.Cache.Type)
	}

	switch c.Archive.Type {
	case "localfs":
		if c.Archive.Path == "" {
			return core.Errorf(core.ErrConfigMissing, "archive.path required for localfs")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.Errorf(core.ErrConfigMissing, "archive.s3.bucket required for s3")
		}
	default:
		return core.Errorf(core.ErrConfigInvalid, "unknown archive type %q", c.Archive.Type)
	}

	for name, sc := range c.Strategies {
		if sc.Weight < 0 || sc.Reliability < 0 || sc.Reliability > 1 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("strategy %s: weight must be >= 0 and reliability in [0, 1]", name))
		}
	}

	return nil
}
