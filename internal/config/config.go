package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/position"
)

type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	GRPCAddr  string `yaml:"grpc_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	DatabaseURL  string   `yaml:"database_url"`
	RedisAddr    string   `yaml:"redis_addr"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	NATSURL      string   `yaml:"nats_url"`
	OTLPEndpoint string   `yaml:"otlp_endpoint"`
	PebbleDir    string   `yaml:"pebble_dir"`

	RateLimit          string `yaml:"rate_limit"`
	ExpiryInterval     string `yaml:"expiry_interval"`
	LiquidationTimeout string `yaml:"liquidation_timeout"`
	EventBuffer        int    `yaml:"event_buffer"`
	DepthLevels        int    `yaml:"depth_levels"`

	Symbols       []SymbolConfig `yaml:"symbols"`
	Risk          RiskConfig     `yaml:"risk"`
	Fees          FeeConfig      `yaml:"fees"`
	InsuranceFund string         `yaml:"insurance_fund"`

	// SeedBalances are credited at startup when balances live in memory.
	SeedBalances []BalanceConfig `yaml:"seed_balances"`

	Parsed Parsed `yaml:"-"`
}

type SymbolConfig struct {
	Symbol      string `yaml:"symbol"`
	QuoteAsset  string `yaml:"quote_asset"`
	MaxLeverage int    `yaml:"max_leverage"`
}

type RiskConfig struct {
	MaintenanceRate    string `yaml:"maintenance_rate"`
	LiquidationFeeRate string `yaml:"liquidation_fee_rate"`
	DefaultLeverage    int    `yaml:"default_leverage"`
	MinLeverage        int    `yaml:"min_leverage"`
	MaxLeverage        int    `yaml:"max_leverage"`
}

type BalanceConfig struct {
	Account string `yaml:"account"`
	Asset   string `yaml:"asset"`
	Amount  string `yaml:"amount"`
}

type FeeConfig struct {
	Maker string `yaml:"maker"`
	Taker string `yaml:"taker"`
}

// Parsed holds the typed values decoded from the string fields.
type Parsed struct {
	RateLimit          time.Duration
	ExpiryInterval     time.Duration
	LiquidationTimeout time.Duration
	Positions          position.Config
	Fees               core.FeeSchedule
	InsuranceFund      domain.Amount
	SeedBalances       []domain.Amount
}

// Load reads .env next to filename, decodes the YAML, applies environment
// overrides and parses durations and decimals.
func Load(filename string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(filename), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.parse(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default is the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		HTTPAddr:           ":8080",
		GRPCAddr:           ":9090",
		LogLevel:           "info",
		LogFormat:          "json",
		KafkaTopic:         "perp.events",
		RateLimit:          "0s",
		ExpiryInterval:     "1s",
		LiquidationTimeout: "5s",
		EventBuffer:        4096,
		DepthLevels:        50,
		Risk: RiskConfig{
			MaintenanceRate:    "0.005",
			LiquidationFeeRate: "0.005",
			DefaultLeverage:    10,
			MinLeverage:        1,
			MaxLeverage:        125,
		},
		Fees:          FeeConfig{Maker: "0.0002", Taker: "0.0005"},
		InsuranceFund: "0",
	}
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	override(&c.DatabaseURL, "DATABASE_URL")
	override(&c.RedisAddr, "REDIS_ADDR")
	override(&c.NATSURL, "NATS_URL")
	override(&c.OTLPEndpoint, "OTLP_ENDPOINT")
	override(&c.LogLevel, "LOG_LEVEL")
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
	}
}

func (c *Config) parse() error {
	var err error
	p := &c.Parsed
	if p.RateLimit, err = time.ParseDuration(c.RateLimit); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if p.ExpiryInterval, err = time.ParseDuration(c.ExpiryInterval); err != nil {
		return fmt.Errorf("expiry_interval: %w", err)
	}
	if p.LiquidationTimeout, err = time.ParseDuration(c.LiquidationTimeout); err != nil {
		return fmt.Errorf("liquidation_timeout: %w", err)
	}

	p.Positions = position.Config{
		DefaultLeverage: c.Risk.DefaultLeverage,
		MinLeverage:     c.Risk.MinLeverage,
		MaxLeverage:     c.Risk.MaxLeverage,
	}
	rates := []struct {
		name string
		in   string
		out  *domain.Rate
	}{
		{"risk.maintenance_rate", c.Risk.MaintenanceRate, &p.Positions.MaintenanceRate},
		{"risk.liquidation_fee_rate", c.Risk.LiquidationFeeRate, &p.Positions.LiquidationFeeRate},
		{"fees.maker", c.Fees.Maker, &p.Fees.Maker},
		{"fees.taker", c.Fees.Taker, &p.Fees.Taker},
	}
	for _, r := range rates {
		d, err := decimal.NewFromString(r.in)
		if err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
		if *r.out, err = domain.RateFromDecimal(d); err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
	}

	fund, err := decimal.NewFromString(c.InsuranceFund)
	if err != nil {
		return fmt.Errorf("insurance_fund: %w", err)
	}
	if p.InsuranceFund, err = domain.AmountFromDecimal(fund); err != nil {
		return fmt.Errorf("insurance_fund: %w", err)
	}

	p.SeedBalances = make([]domain.Amount, len(c.SeedBalances))
	for i, b := range c.SeedBalances {
		amt, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return fmt.Errorf("seed_balances[%d]: %w", i, err)
		}
		p.SeedBalances[i] = amt
	}
	return nil
}

func (c *Config) Validate() error {
	r := c.Risk
	if r.MinLeverage < 1 || r.MaxLeverage < r.MinLeverage {
		return fmt.Errorf("invalid leverage bounds [%d, %d]", r.MinLeverage, r.MaxLeverage)
	}
	if r.DefaultLeverage < r.MinLeverage || r.DefaultLeverage > r.MaxLeverage {
		return fmt.Errorf("default leverage %d outside [%d, %d]", r.DefaultLeverage, r.MinLeverage, r.MaxLeverage)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" || s.QuoteAsset == "" {
			return fmt.Errorf("symbol %q needs a name and a quote asset", s.Symbol)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("duplicate symbol %q", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.MaxLeverage < 0 || s.MaxLeverage > r.MaxLeverage {
			return fmt.Errorf("symbol %s: max leverage %d exceeds %d", s.Symbol, s.MaxLeverage, r.MaxLeverage)
		}
	}
	if c.Parsed.Positions.MaintenanceRate < 0 || c.Parsed.Positions.LiquidationFeeRate < 0 {
		return fmt.Errorf("risk rates must be non-negative")
	}
	if c.Parsed.InsuranceFund < 0 {
		return fmt.Errorf("insurance fund must be non-negative")
	}
	return nil
}

func (c *Config) Specs() []core.SymbolSpec {
	out := make([]core.SymbolSpec, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		out = append(out, core.SymbolSpec{Symbol: domain.Symbol(s.Symbol), QuoteAsset: s.QuoteAsset, MaxLeverage: s.MaxLeverage})
	}
	return out
}
