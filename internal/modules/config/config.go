package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"perp_bot/internal/exchange"
	"perp_bot/internal/indicator"
	"perp_bot/internal/killswitch"
	"perp_bot/internal/modules/journal/service"
	"perp_bot/internal/strategy"
	"perp_bot/pkg/logger"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	envPrefix         = "BOT"
)

// Trading: статическая конфигурация процесса; ключи ровно такие.
type Trading struct {
	Symbol        string        `yaml:"symbol"`
	Leverage      float64       `yaml:"leverage"`
	RiskPerTrade  float64       `yaml:"risk_per_trade"`  // доля баланса, 0.01 = 1%
	StopLossPct   float64       `yaml:"stop_loss_pct"`   // PNL позиции в %, 0: без стопа
	TakeProfitPct float64       `yaml:"take_profit_pct"` // PNL позиции в %, 0: без цели
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// Market: откуда и сколько истории брать.
type Market struct {
	Timeframe  string `yaml:"timeframe"`
	Candles    int    `yaml:"candles"`
	QuoteAsset string `yaml:"quote_asset"`
}

type Strategy struct {
	BollingerK    float64 `yaml:"bollinger_k"`
	EntryRatio    float64 `yaml:"entry_ratio"`
	ExitRatio     float64 `yaml:"exit_ratio"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	ExitRSILong   float64 `yaml:"exit_rsi_long"`
	ExitRSIShort  float64 `yaml:"exit_rsi_short"`
	ExitDebounce  int     `yaml:"exit_debounce"`
	ExitPolicy    string  `yaml:"exit_policy"` // indicator | target | both
	VolumeConfirm bool    `yaml:"volume_confirm"`
	ZoneFilter    bool    `yaml:"zone_filter"`
	ZoneWindow    int     `yaml:"zone_window"`
	ZoneTolerance float64 `yaml:"zone_tolerance"`
}

const (
	SourceREST = "rest"
	SourceWS   = "ws"
)

type Sampler struct {
	Source      string `yaml:"source"`   // rest | ws
	Schedule    string `yaml:"schedule"` // cron, например "@every 10s"
	BookDepth   int    `yaml:"book_depth"`
	BookHistory int    `yaml:"book_history"`
	// снимок старше max_age для дельт не годится
	MaxAge time.Duration `yaml:"max_age"`
}

type OKX struct {
	APIKey       string  `yaml:"api_key"`
	APISecret    string  `yaml:"api_secret"`
	Passphrase   string  `yaml:"passphrase"`
	BaseURL      string  `yaml:"base_url"`
	WSURL        string  `yaml:"ws_url"`
	Paper        bool    `yaml:"paper"`
	PaperBalance float64 `yaml:"paper_balance"`
	MarginMode   string  `yaml:"margin_mode"` // cross | isolated
}

type Telegram struct {
	Token           string        `yaml:"token"`
	ChatID          int64         `yaml:"chat_id"`
	ConfirmRequired bool          `yaml:"confirm_required"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"`
}

type Journal struct {
	File     service.FileConfig `yaml:"file"`
	Postgres bool               `yaml:"postgres"`
}

type Tracing struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Config ...
type Config struct {
	Service struct {
		Name       string `yaml:"name"`
		HealthAddr string `yaml:"health_addr"`
	} `yaml:"service"`

	Trading    Trading                `yaml:"trading"`
	Market     Market                 `yaml:"market"`
	Strategy   Strategy               `yaml:"strategy"`
	KillSwitch killswitch.Config      `yaml:"kill_switch"`
	Sampler    Sampler                `yaml:"sampler"`
	Retry      exchange.RetryConfig   `yaml:"retry"`
	Breaker    exchange.BreakerConfig `yaml:"breaker"`
	OKX        OKX                    `yaml:"okx"`
	Telegram   Telegram               `yaml:"telegram"`
	Journal    Journal                `yaml:"journal"`
	DB         string                 `yaml:"db_dsn"`
	Log        logger.Config          `yaml:"log"`
	Tracing    Tracing                `yaml:"tracing"`
}

// Default: значения до чтения файла.
func Default() Config {
	sc := strategy.DefaultConfig()
	c := Config{
		Trading: Trading{
			Symbol:        "BTC-USDT-SWAP",
			Leverage:      5,
			RiskPerTrade:  0.01,
			TakeProfitPct: 4,
			PollInterval:  time.Minute,
		},
		Market: Market{Timeframe: "1m", Candles: 100, QuoteAsset: "USDT"},
		Strategy: Strategy{
			BollingerK:    2.0,
			EntryRatio:    sc.EntryRatio,
			ExitRatio:     sc.ExitRatio,
			RSIOverbought: sc.RSIOverbought,
			RSIOversold:   sc.RSIOversold,
			ExitRSILong:   sc.ExitRSILong,
			ExitRSIShort:  sc.ExitRSIShort,
			ExitDebounce:  sc.ExitDebounce,
			ExitPolicy:    string(sc.ExitPolicy),
			ZoneWindow:    strategy.DefaultZoneWindow,
			ZoneTolerance: strategy.DefaultZoneTolerance,
		},
		KillSwitch: killswitch.Config{MaxRetries: killswitch.DefaultMaxRetries, Delay: killswitch.DefaultDelay},
		Sampler:    Sampler{Source: SourceREST, Schedule: "@every 10s", BookDepth: 5, BookHistory: 10, MaxAge: 30 * time.Second},
		Retry:      exchange.RetryConfig{Initial: 500 * time.Millisecond, MaxInterval: 5 * time.Second, MaxElapsed: 20 * time.Second},
		Breaker:    exchange.BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second},
		OKX: OKX{
			BaseURL:      "https://www.okx.com",
			WSURL:        "wss://ws.okx.com:8443/ws/v5/public",
			Paper:        true,
			PaperBalance: 1000,
			MarginMode:   "cross",
		},
		Telegram: Telegram{ConfirmTimeout: 30 * time.Second},
		Journal:  Journal{File: service.FileConfig{Path: "logs/trades.log", MaxSizeMB: 50, MaxBackups: 10}},
		Log:      logger.Config{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Tracing:  Tracing{Host: "localhost", Port: 6831},
	}
	c.Service.Name = "perp_bot"
	c.Service.HealthAddr = ":8080"
	return c
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	dir := getenvDefault(configDirENV, "configs")
	configFileName := getenvDefault(configFilePathENV, "values_local.yaml")

	config := Default()
	file, err := os.Open(dir + "/" + configFileName)
	switch {
	case err == nil:
		defer func() {
			_ = file.Close()
		}()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, errors.Wrapf(err, "decode config %s", configFileName)
		}
	case os.IsNotExist(err):
		logger.Warn("config %s/%s not found, using defaults", dir, configFileName)
	default:
		return nil, errors.Wrap(err, "open config file")
	}

	applyEnv(&config)

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv: BOT_TRADING_LEVERAGE=10 переопределяет trading.leverage.
func applyEnv(c *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := map[string]*string{
		"trading.symbol":       &c.Trading.Symbol,
		"market.timeframe":     &c.Market.Timeframe,
		"strategy.exit_policy": &c.Strategy.ExitPolicy,
		"sampler.source":       &c.Sampler.Source,
		"sampler.schedule":     &c.Sampler.Schedule,
		"okx.api_key":          &c.OKX.APIKey,
		"okx.api_secret":       &c.OKX.APISecret,
		"okx.passphrase":       &c.OKX.Passphrase,
		"okx.base_url":         &c.OKX.BaseURL,
		"telegram.token":       &c.Telegram.Token,
		"journal.file.path":    &c.Journal.File.Path,
		"db_dsn":               &c.DB,
		"log.level":            &c.Log.Level,
		"log.file":             &c.Log.File,
		"service.health_addr":  &c.Service.HealthAddr,
	}
	for key, dst := range str {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	floats := map[string]*float64{
		"trading.leverage":        &c.Trading.Leverage,
		"trading.risk_per_trade":  &c.Trading.RiskPerTrade,
		"trading.stop_loss_pct":   &c.Trading.StopLossPct,
		"trading.take_profit_pct": &c.Trading.TakeProfitPct,
		"strategy.bollinger_k":    &c.Strategy.BollingerK,
		"okx.paper_balance":       &c.OKX.PaperBalance,
	}
	for key, dst := range floats {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	ints := map[string]*int{
		"strategy.exit_debounce":  &c.Strategy.ExitDebounce,
		"kill_switch.max_retries": &c.KillSwitch.MaxRetries,
		"market.candles":          &c.Market.Candles,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	durations := map[string]*time.Duration{
		"trading.poll_interval": &c.Trading.PollInterval,
		"kill_switch.delay":     &c.KillSwitch.Delay,
		"sampler.max_age":       &c.Sampler.MaxAge,
	}
	for key, dst := range durations {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	bools := map[string]*bool{
		"okx.paper":                 &c.OKX.Paper,
		"telegram.confirm_required": &c.Telegram.ConfirmRequired,
		"journal.postgres":          &c.Journal.Postgres,
		"tracing.enabled":           &c.Tracing.Enabled,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("telegram.chat_id") {
		c.Telegram.ChatID = v.GetInt64("telegram.chat_id")
	}
}

// Validate отсекает конфигурацию, с которой торговать нельзя.
func (c *Config) Validate() error {
	t := c.Trading
	switch {
	case strings.TrimSpace(t.Symbol) == "":
		return errors.Errorf("trading.symbol is required")
	case t.Leverage <= 0:
		return errors.Errorf("trading.leverage must be > 0, got %v", t.Leverage)
	case t.RiskPerTrade <= 0 || t.RiskPerTrade > 1:
		return errors.Errorf("trading.risk_per_trade must be in (0, 1], got %v", t.RiskPerTrade)
	case t.StopLossPct < 0:
		return errors.Errorf("trading.stop_loss_pct must be >= 0, got %v", t.StopLossPct)
	case t.TakeProfitPct < 0:
		return errors.Errorf("trading.take_profit_pct must be >= 0, got %v", t.TakeProfitPct)
	case t.PollInterval <= 0:
		return errors.Errorf("trading.poll_interval must be > 0, got %v", t.PollInterval)
	case c.KillSwitch.MaxRetries < 1:
		return errors.Errorf("kill_switch.max_retries must be >= 1, got %d", c.KillSwitch.MaxRetries)
	case c.Strategy.ExitDebounce < 1:
		return errors.Errorf("strategy.exit_debounce must be >= 1, got %d", c.Strategy.ExitDebounce)
	case !strategy.ExitPolicy(c.Strategy.ExitPolicy).Valid():
		return errors.Errorf("strategy.exit_policy %q: want indicator, target or both", c.Strategy.ExitPolicy)
	case c.Sampler.Source != SourceREST && c.Sampler.Source != SourceWS:
		return errors.Errorf("sampler.source %q: want rest or ws", c.Sampler.Source)
	case c.Sampler.MaxAge <= 0:
		return errors.Errorf("sampler.max_age must be > 0, got %v", c.Sampler.MaxAge)
	case c.Journal.Postgres && c.DB == "":
		return errors.Errorf("journal.postgres requires db_dsn")
	case !c.OKX.Paper && (c.OKX.APIKey == "" || c.OKX.APISecret == "" || c.OKX.Passphrase == ""):
		return errors.Errorf("okx credentials are required when okx.paper is false")
	}
	return nil
}

// StrategyConfig собирает пороги оценщиков из секций trading и strategy.
func (c *Config) StrategyConfig() strategy.Config {
	s := c.Strategy
	return strategy.Config{
		EntryRatio:    s.EntryRatio,
		RSIOverbought: s.RSIOverbought,
		RSIOversold:   s.RSIOversold,
		VolumeConfirm: s.VolumeConfirm,
		ZoneFilter:    s.ZoneFilter,
		ExitPolicy:    strategy.ExitPolicy(s.ExitPolicy),
		ExitRatio:     s.ExitRatio,
		ExitRSILong:   s.ExitRSILong,
		ExitRSIShort:  s.ExitRSIShort,
		ExitDebounce:  s.ExitDebounce,
		TakeProfitPct: c.Trading.TakeProfitPct,
		StopLossPct:   c.Trading.StopLossPct,
	}
}

// IndicatorParams: периоды по умолчанию, множитель Боллинджера из конфига.
func (c *Config) IndicatorParams() indicator.Params {
	p := indicator.DefaultParams()
	if c.Strategy.BollingerK > 0 {
		p.BollingerK = c.Strategy.BollingerK
	}
	return p
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
