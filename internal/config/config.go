package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	DatabaseURL string         `yaml:"-"` // from MYSQL_DSN; empty disables the journal
	ListenAddr  string         `yaml:"listen_addr"`
	Exchange    ExchangeConfig `yaml:"exchange"`
	Risk        RiskConfig     `yaml:"risk"`
	Gates       GateConfig     `yaml:"gates"`
	Engine      EngineConfig   `yaml:"engine"`
}

type ExchangeConfig struct {
	BaseURL         string `yaml:"base_url"`
	Currency        string `yaml:"currency"`
	APIKey          string `yaml:"-"` // from env, never in YAML
	APISecret       string `yaml:"-"`
	Passphrase      string `yaml:"-"`
	RequestTimeout  string `yaml:"request_timeout"`
	ParsedTimeout   time.Duration
	FallbackBalance float64 `yaml:"fallback_balance"` // 0 disables the fallback
	FallbackPrice   float64 `yaml:"fallback_price"`
}

type RiskConfig struct {
	MinRiskPct    float64 `yaml:"min_risk_pct"`
	MinNotional   float64 `yaml:"min_notional"`
	SizePrecision int     `yaml:"size_precision"`
	MaxLeverage   int     `yaml:"max_leverage"`
}

type GateConfig struct {
	VolatilityThresholdPct float64 `yaml:"volatility_threshold_pct"`
	VolatilityLookback     int     `yaml:"volatility_lookback"`
	VolatilityBarSize      string  `yaml:"volatility_bar_size"`
	VolatilityFailClosed   bool    `yaml:"volatility_fail_closed"` // default fail-open
	DailyLossLimitPct      float64 `yaml:"daily_loss_limit_pct"`
	Cooldown               string  `yaml:"cooldown"`
	ParsedCooldown         time.Duration
}

type EngineConfig struct {
	TPSplit            float64 `yaml:"tp_split"` // fraction of size routed to TP1
	TrailPct           float64 `yaml:"trail_pct"`
	PollInterval       string  `yaml:"poll_interval"`
	ParsedPollInterval time.Duration
}

func Load(filename string) (*Config, error) {
	// Secrets live in a .env next to the config file, or in process env.
	envPath := filepath.Join(filepath.Dir(filename), ".env")
	err := godotenv.Load(envPath)
	if err != nil {
		fmt.Printf("Warning: Error loading .env file: %v\n", err)
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %v", err)
	}
	defer file.Close()

	var config Config
	decoder := yaml.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %v", err)
	}

	config.Exchange.APIKey = os.Getenv("EXCHANGE_API_KEY")
	config.Exchange.APISecret = os.Getenv("EXCHANGE_API_SECRET")
	config.Exchange.Passphrase = os.Getenv("EXCHANGE_PASSPHRASE")
	config.DatabaseURL = os.Getenv("MYSQL_DSN")

	if config.Exchange.APIKey == "" || config.Exchange.APISecret == "" {
		fmt.Println("Warning: API key or secret is empty")
	}

	applyDefaults(&config)

	config.Exchange.ParsedTimeout, err = time.ParseDuration(config.Exchange.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request timeout: %v", err)
	}
	config.Gates.ParsedCooldown, err = time.ParseDuration(config.Gates.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cooldown: %v", err)
	}
	config.Engine.ParsedPollInterval, err = time.ParseDuration(config.Engine.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse poll interval: %v", err)
	}

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Exchange.Currency == "" {
		c.Exchange.Currency = "USDT"
	}
	if c.Exchange.RequestTimeout == "" {
		c.Exchange.RequestTimeout = "10s"
	}
	if c.Risk.MinRiskPct == 0 {
		c.Risk.MinRiskPct = 0.5
	}
	if c.Risk.MinNotional == 0 {
		c.Risk.MinNotional = 5
	}
	if c.Risk.SizePrecision == 0 {
		c.Risk.SizePrecision = 4
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = 20
	}
	if c.Gates.VolatilityLookback == 0 {
		c.Gates.VolatilityLookback = 10
	}
	if c.Gates.VolatilityBarSize == "" {
		c.Gates.VolatilityBarSize = "1m"
	}
	if c.Gates.DailyLossLimitPct == 0 {
		c.Gates.DailyLossLimitPct = 5
	}
	if c.Gates.Cooldown == "" {
		c.Gates.Cooldown = "30m"
	}
	if c.Engine.TPSplit == 0 {
		c.Engine.TPSplit = 0.5
	}
	if c.Engine.TrailPct == 0 {
		c.Engine.TrailPct = 0.5
	}
	if c.Engine.PollInterval == "" {
		c.Engine.PollInterval = "5s"
	}
}
