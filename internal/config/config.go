// Package config loads and validates the YAML run configuration used by the
// CLI and the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stock-backtest/internal/cost"
	"stock-backtest/internal/model"
	"stock-backtest/internal/portfolio"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Backtest BacktestSection `yaml:"backtest"`
	Costs    CostSection     `yaml:"costs"`
	Limits   LimitSection    `yaml:"limits"`
	Strategy StrategySection `yaml:"strategy"`
	Data     DataSection     `yaml:"data"`
}

// BacktestSection sets the run window, capital and base cost rates. Dates are
// YYYY-MM-DD; omitted rates fall back to the model defaults.
type BacktestSection struct {
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate"`
	TaxRate        float64 `yaml:"tax_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`
}

// CostSection overrides the cost model beyond the base rates. Empty fields
// keep the defaults; an empty tier list keeps the default ladder.
type CostSection struct {
	MinCommission float64               `yaml:"min_commission"`
	MaxCommission float64               `yaml:"max_commission"`
	Condition     model.MarketCondition `yaml:"market_condition"`
	Tiers         []TierSection         `yaml:"commission_tiers"`
}

// TierSection is one commission ladder rung. The last rung must omit the
// limit.
type TierSection struct {
	Limit float64 `yaml:"limit"`
	Rate  float64 `yaml:"rate"`
}

// LimitSection caps order and position sizing; zero fields keep the defaults.
type LimitSection struct {
	MaxPositionPercentage float64 `yaml:"max_position_percentage"`
	MaxSingleOrderValue   float64 `yaml:"max_single_order_value"`
}

// StrategySection names a registered strategy and its parameter bag. Symbols
// may be given here or inside params.
type StrategySection struct {
	Name    string         `yaml:"name"`
	Symbols []string       `yaml:"symbols"`
	Params  map[string]any `yaml:"params"`
}

// DataSection points at the candle file served to the engine.
type DataSection struct {
	File      string `yaml:"file"`
	BatchSize int    `yaml:"batch_size"`
}

// Load reads, resolves and validates a config file. The data file path is
// interpreted relative to the config file's directory when it is not
// absolute and does not exist as given.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadUnchecked loads a config without validating it.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.Data.File != "" && !filepath.IsAbs(c.Data.File) {
		if _, err := os.Stat(c.Data.File); err != nil {
			cand := filepath.Join(filepath.Dir(path), c.Data.File)
			if _, err := os.Stat(cand); err == nil {
				c.Data.File = cand
			}
		}
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Strategy.Name == "" {
		return errors.New("strategy.name is required")
	}
	if c.Data.File == "" {
		return errors.New("data.file is required")
	}
	if _, err := c.BacktestConfig(); err != nil {
		return err
	}
	if _, err := cost.NewModel(c.CostParams()); err != nil {
		return fmt.Errorf("costs: %w", err)
	}
	if c.Limits.MaxPositionPercentage < 0 || c.Limits.MaxSingleOrderValue < 0 {
		return errors.New("limits must be non-negative")
	}
	return nil
}

// BacktestConfig builds the validated run configuration. Rates left at zero
// take the package defaults, matching a config that simply omits them.
func (c *Config) BacktestConfig() (model.BacktestConfig, error) {
	start, err := parseDate(c.Backtest.StartDate)
	if err != nil {
		return model.BacktestConfig{}, fmt.Errorf("backtest.start_date: %w", err)
	}
	end, err := parseDate(c.Backtest.EndDate)
	if err != nil {
		return model.BacktestConfig{}, fmt.Errorf("backtest.end_date: %w", err)
	}

	cfg, err := model.NewBacktestConfig(start, end, decimal.NewFromFloat(c.Backtest.InitialCapital))
	if err != nil {
		return model.BacktestConfig{}, err
	}
	if c.Backtest.CommissionRate != 0 {
		cfg.CommissionRate = decimal.NewFromFloat(c.Backtest.CommissionRate)
	}
	if c.Backtest.TaxRate != 0 {
		cfg.TaxRate = decimal.NewFromFloat(c.Backtest.TaxRate)
	}
	if c.Backtest.SlippageRate != 0 {
		cfg.SlippageRate = decimal.NewFromFloat(c.Backtest.SlippageRate)
	}
	if err := cfg.Validate(); err != nil {
		return model.BacktestConfig{}, err
	}
	return cfg, nil
}

// CostParams assembles the cost model parameters from the base rates and the
// overrides section.
func (c *Config) CostParams() cost.Params {
	p := cost.Params{
		CommissionRate: rateOrDefault(c.Backtest.CommissionRate, model.DefaultCommissionRate),
		TaxRate:        rateOrDefault(c.Backtest.TaxRate, model.DefaultTaxRate),
		SlippageRate:   rateOrDefault(c.Backtest.SlippageRate, model.DefaultSlippageRate),
		MinCommission:  decimal.NewFromFloat(c.Costs.MinCommission),
		MaxCommission:  decimal.NewFromFloat(c.Costs.MaxCommission),
		Condition:      c.Costs.Condition,
	}
	for _, tier := range c.Costs.Tiers {
		p.Tiers = append(p.Tiers, cost.CommissionTier{
			Limit: decimal.NewFromFloat(tier.Limit),
			Rate:  decimal.NewFromFloat(tier.Rate),
		})
	}
	return p
}

// PositionLimits returns the configured limits, defaulting zeroed fields.
func (c *Config) PositionLimits() portfolio.Limits {
	limits := portfolio.DefaultLimits()
	if c.Limits.MaxPositionPercentage != 0 {
		limits.MaxPositionPercentage = decimal.NewFromFloat(c.Limits.MaxPositionPercentage)
	}
	if c.Limits.MaxSingleOrderValue != 0 {
		limits.MaxSingleOrderValue = decimal.NewFromFloat(c.Limits.MaxSingleOrderValue)
	}
	return limits
}

// StrategyParams merges the symbols list into the parameter bag so strategies
// only need to read one key.
func (c *Config) StrategyParams() map[string]any {
	params := make(map[string]any, len(c.Strategy.Params)+1)
	for k, v := range c.Strategy.Params {
		params[k] = v
	}
	if _, ok := params["symbols"]; !ok && len(c.Strategy.Symbols) > 0 {
		params["symbols"] = c.Strategy.Symbols
	}
	return params
}

func rateOrDefault(v float64, def decimal.Decimal) decimal.Decimal {
	if v == 0 {
		return def
	}
	return decimal.NewFromFloat(v)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("required")
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}
