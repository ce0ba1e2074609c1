// Package config loads simulator settings from the environment and strategy
// descriptors from YAML files.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/guyghost/cryptosim/internal/costs"
	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/shopspring/decimal"
)

// ServiceName tags every log line of the CLI.
const ServiceName = "crypto-trader"

// AppConfig holds application-wide configuration.
type AppConfig struct {
	Environment     string
	StartingBalance decimal.Decimal
	Costs           costs.Config
	RiskFreeRate    float64 // annual, as a fraction
	ResultsDB       string  // empty keeps results in memory
	TelemetryAddr   string  // empty disables the metrics server
	SweepWorkers    int
	Flags           Flags
}

// Load loads application configuration from environment variables. Values
// that fail to parse keep their defaults; values that parse but make no sense
// are a configuration error.
func Load() (*AppConfig, error) {
	defaults := costs.DefaultConfig()
	cfg := &AppConfig{
		Environment:     os.Getenv("CRYPTO_TRADER_ENV"),
		StartingBalance: parseDecimalEnv("BACKTEST_STARTING_BALANCE", decimal.NewFromInt(10000)),
		Costs: costs.Config{
			MakerFeePercent:     parseDecimalEnv("COST_MAKER_FEE_PERCENT", defaults.MakerFeePercent),
			TakerFeePercent:     parseDecimalEnv("COST_TAKER_FEE_PERCENT", defaults.TakerFeePercent),
			SpreadPercent:       parseDecimalEnv("COST_SPREAD_PERCENT", defaults.SpreadPercent),
			BaseSlippagePercent: parseDecimalEnv("COST_BASE_SLIPPAGE_PERCENT", defaults.BaseSlippagePercent),
			SlippageTiers:       defaults.SlippageTiers,
		},
		RiskFreeRate:  parseFloatEnv("BACKTEST_RISK_FREE_RATE", 0),
		ResultsDB:     strings.TrimSpace(os.Getenv("BACKTEST_RESULTS_DB")),
		TelemetryAddr: strings.TrimSpace(os.Getenv("TELEMETRY_ADDR")),
		SweepWorkers:  parseIntEnv("BACKTEST_SWEEP_WORKERS", 4),
		Flags:         LoadFlags(os.Environ()),
	}

	if !cfg.StartingBalance.IsPositive() {
		return nil, simerrors.Newf(simerrors.KindConfiguration, "load_config", "BACKTEST_STARTING_BALANCE",
			"starting balance %s must be positive", cfg.StartingBalance)
	}
	if err := cfg.Costs.Validate(); err != nil {
		return nil, err
	}
	if cfg.RiskFreeRate < 0 || cfg.RiskFreeRate > 1 {
		return nil, simerrors.Newf(simerrors.KindConfiguration, "load_config", "BACKTEST_RISK_FREE_RATE",
			"risk-free rate %v must be a fraction in [0, 1]", cfg.RiskFreeRate)
	}
	if cfg.SweepWorkers < 1 {
		cfg.SweepWorkers = 1
	}
	return cfg, nil
}

// parseIntEnv parses an integer environment variable.
func parseIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseFloatEnv parses a float environment variable.
func parseFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseDecimalEnv parses a decimal environment variable.
func parseDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
