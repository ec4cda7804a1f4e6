package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Default cost rates applied when a config leaves them unset.
var (
	DefaultCommissionRate = decimal.RequireFromString("0.0015") // 0.15%
	DefaultTaxRate        = decimal.RequireFromString("0.003")  // 0.3%
	DefaultSlippageRate   = decimal.RequireFromString("0.001")  // 0.1%
)

// BacktestConfig is the immutable run configuration. Construct through
// NewBacktestConfig so that an invalid config can never reach the engine.
type BacktestConfig struct {
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	SlippageRate   decimal.Decimal `json:"slippage_rate"`
}

// NewBacktestConfig applies the default rates and validates.
func NewBacktestConfig(start, end time.Time, initialCapital decimal.Decimal) (BacktestConfig, error) {
	c := BacktestConfig{
		StartDate:      start,
		EndDate:        end,
		InitialCapital: initialCapital,
		CommissionRate: DefaultCommissionRate,
		TaxRate:        DefaultTaxRate,
		SlippageRate:   DefaultSlippageRate,
	}
	if err := c.Validate(); err != nil {
		return BacktestConfig{}, err
	}
	return c, nil
}

func (c BacktestConfig) Validate() error {
	if !c.EndDate.After(c.StartDate) {
		return errors.New("end_date must be after start_date")
	}
	if !c.InitialCapital.IsPositive() {
		return errors.New("initial_capital must be positive")
	}
	if c.CommissionRate.IsNegative() {
		return errors.New("commission_rate must be non-negative")
	}
	if c.TaxRate.IsNegative() {
		return errors.New("tax_rate must be non-negative")
	}
	if c.SlippageRate.IsNegative() {
		return errors.New("slippage_rate must be non-negative")
	}
	return nil
}

// DurationDays is the configured calendar span of the run.
func (c BacktestConfig) DurationDays() int {
	return int(c.EndDate.Sub(c.StartDate).Hours() / 24)
}
