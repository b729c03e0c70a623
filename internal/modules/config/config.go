package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDir         = "configs"
	defaultConfigName = "values_local.yaml"
	envPrefix         = "BOT"

	BalancePolicyFallback = "fallback"
	BalancePolicyHalt     = "halt"
)

// Config ...
type Config struct {
	Exchange  Exchange  `mapstructure:"exchange" yaml:"exchange"`
	Trading   Trading   `mapstructure:"trading" yaml:"trading"`
	Scanner   Scanner   `mapstructure:"scanner" yaml:"scanner"`
	Scoring   Scoring   `mapstructure:"scoring" yaml:"scoring"`
	Executor  Executor  `mapstructure:"executor" yaml:"executor"`
	Reconcile Reconcile `mapstructure:"reconcile" yaml:"reconcile"`
	Strict    Strict    `mapstructure:"strict" yaml:"strict"`
	Dashboard Dashboard `mapstructure:"dashboard" yaml:"dashboard"`
	Telegram  Telegram  `mapstructure:"telegram" yaml:"telegram"`
	Tracing   Tracing   `mapstructure:"tracing" yaml:"tracing"`
	Log       Log       `mapstructure:"log" yaml:"log"`
	DB        string    `mapstructure:"db_dsn" yaml:"db_dsn"`
}

type Exchange struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	APISecret      string        `mapstructure:"api_secret" yaml:"api_secret"`
	RecvWindow     int           `mapstructure:"recv_window" yaml:"recv_window"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Category       string        `mapstructure:"category" yaml:"category"`
	SettleCoin     string        `mapstructure:"settle_coin" yaml:"settle_coin"`
	SymbolSuffix   string        `mapstructure:"symbol_suffix" yaml:"symbol_suffix"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	Breaker        Breaker       `mapstructure:"breaker" yaml:"breaker"`
}

type Breaker struct {
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// Дефолты риска
type Trading struct {
	Leverage        int     `mapstructure:"leverage" yaml:"leverage"`
	PositionSizePct float64 `mapstructure:"position_size_pct" yaml:"position_size_pct"` // доля баланса под маржу
	MaxPositions    int     `mapstructure:"max_positions" yaml:"max_positions"`
	StopLoss        float64 `mapstructure:"stop_loss" yaml:"stop_loss"` // 0.10 => стоп в 10% от цены
	MinNotional     float64 `mapstructure:"min_notional" yaml:"min_notional"`
	// что делать, если баланс неизвестен: fallback | halt
	BalancePolicy       string  `mapstructure:"balance_policy" yaml:"balance_policy"`
	HighConfidenceScore float64 `mapstructure:"high_confidence_score" yaml:"high_confidence_score"`
}

type Scanner struct {
	UpdateInterval time.Duration `mapstructure:"update_interval" yaml:"update_interval"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	TopMarkets     int           `mapstructure:"top_markets" yaml:"top_markets"`
	MinVolume24h   float64       `mapstructure:"min_volume_24h" yaml:"min_volume_24h"`
	CandleLimit    int           `mapstructure:"candle_limit" yaml:"candle_limit"`
	FetchWorkers   int           `mapstructure:"fetch_workers" yaml:"fetch_workers"`
	ScoreWorkers   int           `mapstructure:"score_workers" yaml:"score_workers"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	ScoreTimeout   time.Duration `mapstructure:"score_timeout" yaml:"score_timeout"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff" yaml:"error_backoff"`
	FullBackoff    time.Duration `mapstructure:"full_backoff" yaml:"full_backoff"`
	QueueCapacity  int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
}

type Weights struct {
	Momentum float64 `mapstructure:"momentum" yaml:"momentum"`
	Volume   float64 `mapstructure:"volume" yaml:"volume"`
	Pattern  float64 `mapstructure:"pattern" yaml:"pattern"`
	Trend    float64 `mapstructure:"trend" yaml:"trend"`
	Micro    float64 `mapstructure:"micro" yaml:"micro"`
}

type Scoring struct {
	MinScore float64 `mapstructure:"min_score" yaml:"min_score"`
	Weights  Weights `mapstructure:"weights" yaml:"weights"`
}

type Executor struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	Idle        time.Duration `mapstructure:"idle" yaml:"idle"`
	PendingTTL  time.Duration `mapstructure:"pending_ttl" yaml:"pending_ttl"`
}

type Reconcile struct {
	Interval            time.Duration `mapstructure:"interval" yaml:"interval"`
	ErrorBackoff        time.Duration `mapstructure:"error_backoff" yaml:"error_backoff"`
	PerformanceInterval time.Duration `mapstructure:"performance_interval" yaml:"performance_interval"`
	BalanceAttempts     int           `mapstructure:"balance_attempts" yaml:"balance_attempts"`
}

// Strict — перевод повторяющихся ошибок в остановку процесса.
type Strict struct {
	Enabled                bool `mapstructure:"enabled" yaml:"enabled"`
	MaxConsecutiveFailures int  `mapstructure:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

type Dashboard struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	PushInterval time.Duration `mapstructure:"push_interval" yaml:"push_interval"`
}

type Telegram struct {
	Token  string `mapstructure:"token" yaml:"token"`
	ChatID int64  `mapstructure:"chat_id" yaml:"chat_id"`
}

type Tracing struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func NewConfig() (*Config, error) {
	name := os.Getenv(configFilePathENV)
	if name == "" {
		name = defaultConfigName
	}
	return Load(filepath.Join(configDir, name))
}

// Load читает YAML (если файл есть), накладывает env и дефолты.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// исторические имена переменных без префикса
	_ = v.BindEnv("exchange.api_key", "BOT_EXCHANGE_API_KEY", "API_KEY")
	_ = v.BindEnv("exchange.api_secret", "BOT_EXCHANGE_API_SECRET", "API_SECRET")
	_ = v.BindEnv("telegram.token", "BOT_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "BOT_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	_ = v.BindEnv("db_dsn", "BOT_DB_DSN", "DATABASE_DSN")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.base_url", "https://api.bybit.com")
	v.SetDefault("exchange.recv_window", 5000)
	v.SetDefault("exchange.request_timeout", 5*time.Second)
	v.SetDefault("exchange.category", "linear")
	v.SetDefault("exchange.settle_coin", "USDC")
	v.SetDefault("exchange.symbol_suffix", "PERP")
	v.SetDefault("exchange.rate_limit_rps", 50)
	v.SetDefault("exchange.rate_burst", 20)
	v.SetDefault("exchange.breaker.max_failures", 10)
	v.SetDefault("exchange.breaker.cooldown", 15*time.Second)

	v.SetDefault("trading.leverage", 20)
	v.SetDefault("trading.position_size_pct", 0.10)
	v.SetDefault("trading.max_positions", 10)
	v.SetDefault("trading.stop_loss", 0.10)
	v.SetDefault("trading.min_notional", 100.0)
	v.SetDefault("trading.balance_policy", BalancePolicyFallback)
	v.SetDefault("trading.high_confidence_score", 85.0)

	v.SetDefault("scanner.update_interval", time.Second)
	v.SetDefault("scanner.batch_size", 20)
	v.SetDefault("scanner.cache_ttl", 30*time.Second)
	v.SetDefault("scanner.top_markets", 100)
	v.SetDefault("scanner.min_volume_24h", 500000.0)
	v.SetDefault("scanner.candle_limit", 50)
	v.SetDefault("scanner.fetch_workers", 10)
	v.SetDefault("scanner.score_workers", 20)
	v.SetDefault("scanner.fetch_timeout", 3*time.Second)
	v.SetDefault("scanner.score_timeout", 2*time.Second)
	v.SetDefault("scanner.error_backoff", 5*time.Second)
	v.SetDefault("scanner.full_backoff", 5*time.Second)
	v.SetDefault("scanner.queue_capacity", 500)

	v.SetDefault("scoring.min_score", 95.0)
	v.SetDefault("scoring.weights.momentum", 0.30)
	v.SetDefault("scoring.weights.volume", 0.20)
	v.SetDefault("scoring.weights.pattern", 0.20)
	v.SetDefault("scoring.weights.trend", 0.15)
	v.SetDefault("scoring.weights.micro", 0.15)

	v.SetDefault("executor.poll_timeout", time.Second)
	v.SetDefault("executor.idle", 100*time.Millisecond)
	v.SetDefault("executor.pending_ttl", 30*time.Second)

	v.SetDefault("reconcile.interval", 10*time.Second)
	v.SetDefault("reconcile.error_backoff", 30*time.Second)
	v.SetDefault("reconcile.performance_interval", 30*time.Second)
	v.SetDefault("reconcile.balance_attempts", 3)

	v.SetDefault("strict.enabled", false)
	v.SetDefault("strict.max_consecutive_failures", 10)

	v.SetDefault("dashboard.addr", ":5000")
	v.SetDefault("dashboard.push_interval", time.Second)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("log.level", "info")
	v.SetDefault("db_dsn", "")
}

func (c *Config) Validate() error {
	w := c.Scoring.Weights
	for name, val := range map[string]float64{
		"momentum": w.Momentum, "volume": w.Volume, "pattern": w.Pattern, "trend": w.Trend, "micro": w.Micro,
	} {
		if val < 0 {
			return errors.Errorf("scoring.weights.%s must be >= 0", name)
		}
	}
	if sum := w.Momentum + w.Volume + w.Pattern + w.Trend + w.Micro; math.Abs(sum-1.0) > 1e-6 {
		return errors.Errorf("scoring.weights must sum to 1.0, got %.6f", sum)
	}
	if c.Scoring.MinScore < 0 || c.Scoring.MinScore > 100 {
		return errors.Errorf("scoring.min_score must be in [0,100], got %v", c.Scoring.MinScore)
	}

	t := c.Trading
	switch {
	case t.Leverage < 1:
		return errors.New("trading.leverage must be >= 1")
	case t.PositionSizePct <= 0 || t.PositionSizePct > 1:
		return errors.New("trading.position_size_pct must be in (0,1]")
	case t.MaxPositions < 1:
		return errors.New("trading.max_positions must be >= 1")
	case t.StopLoss <= 0 || t.StopLoss >= 1:
		return errors.New("trading.stop_loss must be in (0,1)")
	case t.MinNotional <= 0:
		return errors.New("trading.min_notional must be > 0")
	case t.BalancePolicy != BalancePolicyFallback && t.BalancePolicy != BalancePolicyHalt:
		return errors.Errorf("trading.balance_policy must be %q or %q", BalancePolicyFallback, BalancePolicyHalt)
	}

	s := c.Scanner
	switch {
	case s.BatchSize < 1:
		return errors.New("scanner.batch_size must be >= 1")
	case s.TopMarkets < 1:
		return errors.New("scanner.top_markets must be >= 1")
	case s.FetchWorkers < 1 || s.ScoreWorkers < 1:
		return errors.New("scanner workers must be >= 1")
	case s.QueueCapacity < 1:
		return errors.New("scanner.queue_capacity must be >= 1")
	case s.CandleLimit < 10 || s.CandleLimit > 200:
		return errors.New("scanner.candle_limit must be in [10,200]")
	}

	for name, d := range map[string]time.Duration{
		"scanner.update_interval":        s.UpdateInterval,
		"scanner.cache_ttl":              s.CacheTTL,
		"scanner.fetch_timeout":          s.FetchTimeout,
		"scanner.score_timeout":          s.ScoreTimeout,
		"scanner.error_backoff":          s.ErrorBackoff,
		"scanner.full_backoff":           s.FullBackoff,
		"executor.poll_timeout":          c.Executor.PollTimeout,
		"executor.pending_ttl":           c.Executor.PendingTTL,
		"reconcile.interval":             c.Reconcile.Interval,
		"reconcile.error_backoff":        c.Reconcile.ErrorBackoff,
		"reconcile.performance_interval": c.Reconcile.PerformanceInterval,
		"exchange.request_timeout":       c.Exchange.RequestTimeout,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive", name)
		}
	}

	if c.Strict.Enabled && c.Strict.MaxConsecutiveFailures < 1 {
		return errors.New("strict.max_consecutive_failures must be >= 1")
	}
	return nil
}

// Dump — эффективная конфигурация в YAML, секреты замаскированы.
func (c *Config) Dump() (string, error) {
	cp := *c
	cp.Exchange.APIKey = mask(cp.Exchange.APIKey)
	cp.Exchange.APISecret = mask(cp.Exchange.APISecret)
	cp.Telegram.Token = mask(cp.Telegram.Token)
	cp.DB = mask(cp.DB)

	bs, err := yaml.Marshal(cp)
	if err != nil {
		return "", errors.Wrap(err, "marshal config to yaml")
	}
	return string(bs), nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
