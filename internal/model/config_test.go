package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBacktestConfig(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	cfg, err := NewBacktestConfig(start, end, decimal.NewFromInt(10_000_000))
	require.NoError(t, err)
	assert.True(t, cfg.CommissionRate.Equal(DefaultCommissionRate))
	assert.True(t, cfg.TaxRate.Equal(DefaultTaxRate))
	assert.True(t, cfg.SlippageRate.Equal(DefaultSlippageRate))
	assert.Equal(t, 364, cfg.DurationDays())
}

func TestBacktestConfigValidate(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	capital := decimal.NewFromInt(10_000_000)

	valid := BacktestConfig{
		StartDate:      start,
		EndDate:        end,
		InitialCapital: capital,
		CommissionRate: DefaultCommissionRate,
		TaxRate:        DefaultTaxRate,
		SlippageRate:   DefaultSlippageRate,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*BacktestConfig)
	}{
		{"end before start", func(c *BacktestConfig) { c.EndDate = start.AddDate(0, 0, -1) }},
		{"end equals start", func(c *BacktestConfig) { c.EndDate = start }},
		{"zero capital", func(c *BacktestConfig) { c.InitialCapital = decimal.Zero }},
		{"negative capital", func(c *BacktestConfig) { c.InitialCapital = decimal.NewFromInt(-1) }},
		{"negative commission", func(c *BacktestConfig) { c.CommissionRate = decimal.NewFromFloat(-0.001) }},
		{"negative tax", func(c *BacktestConfig) { c.TaxRate = decimal.NewFromFloat(-0.001) }},
		{"negative slippage", func(c *BacktestConfig) { c.SlippageRate = decimal.NewFromFloat(-0.001) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSignalValidate(t *testing.T) {
	ok := Signal{Symbol: "005930", Side: SideBuy, Quantity: 10}
	assert.NoError(t, ok.Validate())

	assert.Error(t, Signal{Side: SideBuy, Quantity: 10}.Validate())
	assert.Error(t, Signal{Symbol: "005930", Side: "HOLD", Quantity: 10}.Validate())
	assert.Error(t, Signal{Symbol: "005930", Side: SideSell, Quantity: 0}.Validate())
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" buy ")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)

	_, err = ParseSide("short")
	assert.Error(t, err)
}
