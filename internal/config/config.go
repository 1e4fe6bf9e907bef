// Package config loads server settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// cashScale matches the NUMERIC(20,4) cash column of the postgres store.
const cashScale = 4

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	StoreDriver  string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL  string `env:"DATABASE_URL"`
	PebblePath   string `env:"PEBBLE_PATH" envDefault:"data/ledger"`
	StartingCash string `env:"STARTING_CASH" envDefault:"10000.00"`

	QuoteBaseURL      string        `env:"QUOTE_BASE_URL" envDefault:"https://query1.finance.yahoo.com"`
	QuoteTimeout      time.Duration `env:"QUOTE_TIMEOUT" envDefault:"5s"`
	QuoteMaxStaleness time.Duration `env:"QUOTE_MAX_STALENESS" envDefault:"15s"`
	QuoteRateLimit    int           `env:"QUOTE_RATE_LIMIT" envDefault:"5"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"trade_executed"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env files (missing ones are ignored) and then the environment.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory, DriverPebble:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if cash, err := c.Cash(); err != nil {
		errs = append(errs, err)
	} else if cash.IsNegative() {
		errs = append(errs, fmt.Errorf("STARTING_CASH must not be negative, got %s", cash))
	} else if !cash.Equal(cash.Truncate(cashScale)) {
		errs = append(errs, fmt.Errorf("STARTING_CASH allows at most %d decimal places, got %s", cashScale, cash))
	}
	if c.QuoteMaxStaleness < 0 {
		errs = append(errs, errors.New("QUOTE_MAX_STALENESS must not be negative"))
	}
	return errors.Join(errs...)
}

// Cash is the starting balance of newly opened accounts.
func (c Config) Cash() (decimal.Decimal, error) {
	cash, err := decimal.NewFromString(strings.TrimSpace(c.StartingCash))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid STARTING_CASH %q: %w", c.StartingCash, err)
	}
	return cash, nil
}

func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
