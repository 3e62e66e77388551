package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Instrument is a tradable symbol with its fixed target allocation, expressed
// as a fraction of total account equity.
type Instrument struct {
	Symbol string  `yaml:"symbol"`
	Weight float64 `yaml:"weight"`
}

// MACDParams are the oscillator windows.
type MACDParams struct {
	Fast   int `yaml:"fast"`   // default 12
	Slow   int `yaml:"slow"`   // default 26
	Signal int `yaml:"signal"` // default 9
}

// Rules holds the decision constants of the controller.
type Rules struct {
	Tolerance           float64 `yaml:"tolerance"`             // default 0.0025
	TrailingStopFactor  float64 `yaml:"trailing_stop_factor"`  // default 0.95
	PostStopFactor      float64 `yaml:"post_stop_factor"`      // default 0.80
	WarningFactor       float64 `yaml:"warning_factor"`        // default 0.90
	DrawdownFloorFactor float64 `yaml:"drawdown_floor_factor"` // default 0.85
}

type SMTP struct {
	Host     string `yaml:"host" envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port" envconfig:"SMTP_PORT"`
	Username string `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password string `yaml:"-" envconfig:"SMTP_PASSWORD"`
	From     string `yaml:"from" envconfig:"SMTP_FROM"`
}

type Notify struct {
	Recipient      string `yaml:"recipient" envconfig:"NOTIFY_RECIPIENT"`
	DiscordWebhook string `yaml:"-" envconfig:"DISCORD_WEBHOOK_URL"`
	SMTP           SMTP   `yaml:"smtp"`
}

type Alpaca struct {
	APIKey    string  `yaml:"-" envconfig:"ALPACA_API_KEY"`
	APISecret string  `yaml:"-" envconfig:"ALPACA_SECRET_KEY"`
	BaseURL   string  `yaml:"base_url" envconfig:"ALPACA_BASE_URL"`
	Feed      string  `yaml:"feed" envconfig:"ALPACA_FEED"`
	RPS       float64 `yaml:"rps"`
	// PollInterval is how often the live feed asks for a new daily bar.
	PollInterval string `yaml:"poll_interval"`
}

type Redis struct {
	Addr string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Key  string `yaml:"key"`
}

// Config is the immutable run configuration.
type Config struct {
	Instruments []Instrument `yaml:"instruments"`
	InitialCash float64      `yaml:"initial_cash"`
	MACD        MACDParams   `yaml:"macd"`
	TrendWindow int          `yaml:"trend_window"` // default 200
	WarmUpBars  int          `yaml:"warm_up_bars"` // default 200
	Rules       Rules        `yaml:"rules"`

	Notify      Notify `yaml:"notify"`
	Alpaca      Alpaca `yaml:"alpaca"`
	Redis       Redis  `yaml:"redis"`
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
}

// Default returns the stock universe and parameters the strategy was tuned on.
func Default() Config {
	return Config{
		Instruments: []Instrument{
			{Symbol: "ADBE", Weight: 0.12},
			{Symbol: "PG", Weight: 0.08},
			{Symbol: "AMD", Weight: 0.02},
			{Symbol: "NVDA", Weight: 0.02},
			{Symbol: "LULU", Weight: 0.06},
			{Symbol: "MSFT", Weight: 0.11},
			{Symbol: "TSLA", Weight: 0.03},
			{Symbol: "CDNS", Weight: 0.05},
			{Symbol: "VGLT", Weight: 0.47},
			{Symbol: "NEM", Weight: 0.02},
		},
		InitialCash: 100_000,
		MACD:        MACDParams{Fast: 12, Slow: 26, Signal: 9},
		TrendWindow: 200,
		WarmUpBars:  200,
		Rules: Rules{
			Tolerance:           0.0025,
			TrailingStopFactor:  0.95,
			PostStopFactor:      0.80,
			WarningFactor:       0.90,
			DrawdownFloorFactor: 0.85,
		},
		Alpaca: Alpaca{
			BaseURL:      "https://paper-api.alpaca.markets",
			Feed:         "iex",
			RPS:          3,
			PollInterval: "1h",
		},
		Redis: Redis{Key: "gotrend:snapshot"},
	}
}

// Load builds a Config from the defaults, an optional YAML file, an optional
// .env file and finally the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	// .env is optional outside of local development.
	_ = godotenv.Load()
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("env config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Symbols lists the configured symbols in configuration order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Instruments))
	for _, in := range c.Instruments {
		out = append(out, in.Symbol)
	}
	return out
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, allowing the caller to surface a
// clear configuration problem before any trading starts.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.New("at least one instrument is required")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for _, in := range c.Instruments {
		if in.Symbol == "" {
			return errors.New("instrument symbol cannot be empty")
		}
		if _, dup := seen[in.Symbol]; dup {
			return fmt.Errorf("duplicate instrument %q", in.Symbol)
		}
		seen[in.Symbol] = struct{}{}
		if in.Weight <= 0 || in.Weight > 1 {
			return fmt.Errorf("weight of %s (%f) must be >0 and <=1", in.Symbol, in.Weight)
		}
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("InitialCash (%f) must be positive", c.InitialCash)
	}
	if c.MACD.Fast <= 0 || c.MACD.Slow <= 0 || c.MACD.Signal <= 0 {
		return errors.New("MACD windows must be positive")
	}
	if c.MACD.Fast >= c.MACD.Slow {
		return fmt.Errorf("MACD fast window (%d) must be shorter than slow (%d)", c.MACD.Fast, c.MACD.Slow)
	}
	if c.TrendWindow <= 0 {
		return errors.New("TrendWindow must be positive")
	}
	if c.WarmUpBars < 0 {
		return errors.New("WarmUpBars cannot be negative")
	}
	r := c.Rules
	if r.Tolerance < 0 {
		return fmt.Errorf("Tolerance (%f) cannot be negative", r.Tolerance)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"TrailingStopFactor", r.TrailingStopFactor},
		{"PostStopFactor", r.PostStopFactor},
		{"WarningFactor", r.WarningFactor},
		{"DrawdownFloorFactor", r.DrawdownFloorFactor},
	} {
		if f.v <= 0 || f.v >= 1 {
			return fmt.Errorf("%s (%f) must be between 0 and 1", f.name, f.v)
		}
	}
	if c.Alpaca.RPS < 0 {
		return errors.New("Alpaca RPS cannot be negative")
	}
	return nil
}
