// Package models holds the API's request and response shapes.
package models

import (
	"stock-backtest/internal/config"
	"stock-backtest/internal/model"
)

// BacktestRequest is the body of POST /api/v1/backtest. It mirrors the YAML
// config file so the same run can be described either way.
type BacktestRequest struct {
	Backtest BacktestSection `json:"backtest" binding:"required"`
	Costs    CostSection     `json:"costs,omitempty"`
	Limits   LimitSection    `json:"limits,omitempty"`
	Strategy StrategySection `json:"strategy" binding:"required"`
	Data     DataSection     `json:"data" binding:"required"`
	Options  RunOptions      `json:"options,omitempty"`
}

type BacktestSection struct {
	StartDate      string  `json:"start_date" binding:"required"`
	EndDate        string  `json:"end_date" binding:"required"`
	InitialCapital float64 `json:"initial_capital" binding:"required"`
	CommissionRate float64 `json:"commission_rate,omitempty"`
	TaxRate        float64 `json:"tax_rate,omitempty"`
	SlippageRate   float64 `json:"slippage_rate,omitempty"`
}

type CostSection struct {
	MinCommission float64       `json:"min_commission,omitempty"`
	MaxCommission float64       `json:"max_commission,omitempty"`
	Condition     string        `json:"market_condition,omitempty"`
	Tiers         []TierSection `json:"commission_tiers,omitempty"`
}

type TierSection struct {
	Limit float64 `json:"limit,omitempty"`
	Rate  float64 `json:"rate"`
}

type LimitSection struct {
	MaxPositionPercentage float64 `json:"max_position_percentage,omitempty"`
	MaxSingleOrderValue   float64 `json:"max_single_order_value,omitempty"`
}

type StrategySection struct {
	Name    string         `json:"name" binding:"required"`
	Symbols []string       `json:"symbols,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

type DataSection struct {
	File      string `json:"file" binding:"required"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// RunOptions tweak the response, not the run.
type RunOptions struct {
	IncludeTransactions bool `json:"include_transactions,omitempty"`
}

// ToConfig converts the request into the config package's shape so both entry
// points share validation and wiring.
func (r BacktestRequest) ToConfig() *config.Config {
	c := &config.Config{
		Backtest: config.BacktestSection{
			StartDate:      r.Backtest.StartDate,
			EndDate:        r.Backtest.EndDate,
			InitialCapital: r.Backtest.InitialCapital,
			CommissionRate: r.Backtest.CommissionRate,
			TaxRate:        r.Backtest.TaxRate,
			SlippageRate:   r.Backtest.SlippageRate,
		},
		Costs: config.CostSection{
			MinCommission: r.Costs.MinCommission,
			MaxCommission: r.Costs.MaxCommission,
			Condition:     model.MarketCondition(r.Costs.Condition),
		},
		Limits: config.LimitSection{
			MaxPositionPercentage: r.Limits.MaxPositionPercentage,
			MaxSingleOrderValue:   r.Limits.MaxSingleOrderValue,
		},
		Strategy: config.StrategySection{
			Name:    r.Strategy.Name,
			Symbols: r.Strategy.Symbols,
			Params:  r.Strategy.Params,
		},
		Data: config.DataSection{
			File:      r.Data.File,
			BatchSize: r.Data.BatchSize,
		},
	}
	for _, tier := range r.Costs.Tiers {
		c.Costs.Tiers = append(c.Costs.Tiers, config.TierSection{Limit: tier.Limit, Rate: tier.Rate})
	}
	return c
}
