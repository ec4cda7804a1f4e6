package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-backtest/internal/model"
)

func series(symbol string, closes ...float64) []model.MarketDataPoint {
	out := make([]model.MarketDataPoint, 0, len(closes))
	for i, c := range closes {
		out = append(out, model.MarketDataPoint{
			Symbol:    symbol,
			Timestamp: time.Date(2023, 1, 2, 15, 30, 0, 0, time.UTC).AddDate(0, 0, i),
			Close:     decimal.NewFromFloat(c),
		})
	}
	return out
}

func TestComputePotentialStats(t *testing.T) {
	p := ComputePotential(series("005930", 100, 110, 105, 120))

	assert.Equal(t, "005930", p.Symbol)
	assert.Equal(t, 4, p.Count)
	assert.InDelta(t, 100, p.MinClose, 1e-12)
	assert.InDelta(t, 120, p.MaxClose, 1e-12)
	assert.InDelta(t, 108.75, p.MeanClose, 1e-12)

	// Perfect foresight rides +10 and +15, skips the -5.
	assert.InDelta(t, 25, p.OracleProfit, 1e-12)
	assert.InDelta(t, 25/108.75, p.OracleReturn, 1e-12)
	assert.Positive(t, p.Volatility)
}

func TestComputePotentialEdgeCases(t *testing.T) {
	assert.Zero(t, ComputePotential(nil).Count)

	flat := ComputePotential(series("X", 100, 100, 100))
	assert.Zero(t, flat.OracleProfit)
	assert.Zero(t, flat.Volatility)
	assert.Zero(t, flat.SpreadP95P05)

	falling := ComputePotential(series("X", 120, 110, 100))
	assert.Zero(t, falling.OracleProfit, "no profitable move exists")
}

func TestPercentileSorted(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	assert.InDelta(t, 10, percentileSorted(sorted, 0), 1e-12)
	assert.InDelta(t, 50, percentileSorted(sorted, 1), 1e-12)
	assert.InDelta(t, 30, percentileSorted(sorted, 0.5), 1e-12)
	assert.InDelta(t, 18, percentileSorted(sorted, 0.2), 1e-12)
}

func TestRankByOracleReturn(t *testing.T) {
	// A: oracle 40 on mean 110. B: oracle 2 on mean 100.5.
	// C: oracle 400 on mean 1100, the same normalized return as A.
	bySymbol := map[string][]model.MarketDataPoint{
		"A": series("A", 100, 120, 100, 120),
		"B": series("B", 100, 101, 100, 101),
		"C": series("C", 1000, 1200, 1000, 1200),
	}
	ranked := RankByOracleReturn(bySymbol)
	require.Len(t, ranked, 3)

	// A and C share the same normalized return; the symbol breaks the tie.
	assert.Equal(t, "A", ranked[0].Symbol)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "C", ranked[1].Symbol)
	assert.Equal(t, "B", ranked[2].Symbol)
	assert.Equal(t, 3, ranked[2].Rank)
}
