package performance

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-backtest/internal/model"
)

func ds(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = decimal.RequireFromString(s)
	}
	return out
}

func newCalc(t *testing.T, values, returns []decimal.Decimal, txs []model.Transaction) *Calculator {
	t.Helper()
	c, err := NewCalculator(decimal.NewFromInt(100), values, returns, txs, Options{})
	require.NoError(t, err)
	return c
}

func TestNewCalculatorValidation(t *testing.T) {
	values := ds("100", "101", "99.99")
	returns := ds("0.01", "-0.01")

	_, err := NewCalculator(decimal.NewFromInt(100), ds("100"), nil, nil, Options{})
	assert.Error(t, err, "fewer than two value points")

	_, err = NewCalculator(decimal.NewFromInt(100), values, ds("0.01"), nil, Options{})
	assert.Error(t, err, "returns must be one shorter than values")

	_, err = NewCalculator(decimal.Zero, values, returns, nil, Options{})
	assert.Error(t, err, "capital must be positive")
}

func TestTotalReturnAndDrawdown(t *testing.T) {
	c := newCalc(t, ds("100", "101", "99.99"), ds("0.01", "-0.01"), nil)

	assert.InDelta(t, -0.0001, c.TotalReturn(), 1e-12)

	dd, peak, trough := c.MaxDrawdown()
	assert.InDelta(t, (101.0-99.99)/101.0, dd, 1e-12)
	assert.Equal(t, 1, peak)
	assert.Equal(t, 2, trough)
}

func TestDrawdownBounds(t *testing.T) {
	// Non-decreasing series has zero drawdown.
	c := newCalc(t, ds("100", "100", "105", "110"), ds("0", "0.05", "0.047619"), nil)
	dd, _, _ := c.MaxDrawdown()
	assert.Zero(t, dd)

	// A crash to near zero stays within [0, 1].
	c = newCalc(t, ds("100", "150", "1"), ds("0.5", "-0.993333"), nil)
	dd, peak, trough := c.MaxDrawdown()
	assert.Greater(t, dd, 0.0)
	assert.LessOrEqual(t, dd, 1.0)
	assert.Equal(t, 1, peak)
	assert.Equal(t, 2, trough)
}

func TestVolatilityIsPopulationStdDev(t *testing.T) {
	c := newCalc(t, ds("100", "101", "99.99"), ds("0.01", "-0.01"), nil)

	assert.InDelta(t, 0.01, c.Volatility(false), 1e-12)
	assert.InDelta(t, 0.01*math.Sqrt(252), c.Volatility(true), 1e-12)
}

func TestSharpeZeroWhenFlat(t *testing.T) {
	c := newCalc(t, ds("100", "100", "100"), ds("0", "0"), nil)
	assert.Zero(t, c.SharpeRatio())
}

func TestSortinoInfiniteWithoutDownside(t *testing.T) {
	c := newCalc(t, ds("100", "101", "102"), ds("0.01", "0.009901"), nil)
	assert.True(t, math.IsInf(c.SortinoRatio(0), 1))
}

func TestSortinoUsesFullSampleDenominator(t *testing.T) {
	c := newCalc(t, ds("100", "102", "101", "103"), ds("0.02", "-0.009804", "0.019802"), nil)

	// Downside variance divides the squared shortfall by N=3, not by the
	// single downside observation.
	downsideDev := math.Sqrt(0.009804 * 0.009804 / 3)
	m := (0.02 - 0.009804 + 0.019802) / 3
	want := (m - 0) / downsideDev * math.Sqrt(252)
	assert.InDelta(t, want, c.SortinoRatio(0), 1e-6)
}

func TestCalmarInfiniteWithZeroDrawdown(t *testing.T) {
	c := newCalc(t, ds("100", "101", "102"), ds("0.01", "0.009901"), nil)
	assert.True(t, math.IsInf(c.CalmarRatio(), 1))

	flat := newCalc(t, ds("100", "100", "100"), ds("0", "0"), nil)
	assert.Zero(t, flat.CalmarRatio())
}

func TestValueAtRiskEmpiricalQuantile(t *testing.T) {
	// 20 returns: -0.10, -0.09, ..., 0.09.
	values := []decimal.Decimal{decimal.NewFromInt(100)}
	var returns []decimal.Decimal
	for i := 0; i < 20; i++ {
		returns = append(returns, decimal.NewFromFloat(float64(i-10)/100))
		values = append(values, decimal.NewFromInt(100)) // values unused here
	}
	c := newCalc(t, values, returns, nil)

	// floor(20 * 0.05) = 1: second-smallest return.
	assert.InDelta(t, -0.09, c.ValueAtRisk(0.95), 1e-12)
	// floor(20 * 0.01) = 0: the smallest.
	assert.InDelta(t, -0.10, c.ValueAtRisk(0.99), 1e-12)
	// CVaR95: mean of returns <= -0.09.
	assert.InDelta(t, (-0.10-0.09)/2, c.ConditionalVaR(0.95), 1e-12)
}

func TestBetaAlphaAgainstSelfBenchmark(t *testing.T) {
	returns := ds("0.01", "-0.02", "0.015", "0.005")
	values := ds("100", "101", "98.98", "100.46", "100.96")

	c, err := NewCalculator(decimal.NewFromInt(100), values, returns, nil, Options{
		BenchmarkReturns: []float64{0.01, -0.02, 0.015, 0.005},
	})
	require.NoError(t, err)

	beta, alpha := c.BetaAlpha()
	require.NotNil(t, beta)
	require.NotNil(t, alpha)
	assert.InDelta(t, 1.0, *beta, 1e-9)
	assert.InDelta(t, 0.0, *alpha, 1e-9)

	// No benchmark: both nil.
	none := newCalc(t, values, returns, nil)
	beta, alpha = none.BetaAlpha()
	assert.Nil(t, beta)
	assert.Nil(t, alpha)
}

func TestConsecutivePeriods(t *testing.T) {
	c := newCalc(t,
		ds("1", "1", "1", "1", "1", "1", "1", "1", "1", "1"),
		ds("0.01", "0.02", "-0.01", "0.005", "0.01", "0.03", "-0.02", "-0.01", "0"),
		nil)

	wins, losses := c.ConsecutivePeriods()
	assert.Equal(t, 3, wins)
	assert.Equal(t, 2, losses)
}

func TestAnalyzeTradesUsesRealizedPnL(t *testing.T) {
	now := time.Now()
	sell := func(pnl string) model.Transaction {
		tx := model.NewTransaction("005930", model.SideSell, 10, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, now)
		tx.RealizedPnL = decimal.RequireFromString(pnl)
		return tx
	}
	txs := []model.Transaction{
		model.NewTransaction("005930", model.SideBuy, 10, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, now),
		sell("500"), sell("-200"), sell("300"),
	}

	c := newCalc(t, ds("100", "101"), ds("0.01"), txs)
	a := c.AnalyzeTrades()

	assert.Equal(t, 3, a.TotalTrades, "only SELL fills count")
	assert.Equal(t, 2, a.WinningTrades)
	assert.Equal(t, 1, a.LosingTrades)
	assert.InDelta(t, 2.0/3.0, a.WinRate, 1e-12)
	assert.InDelta(t, 400, a.AverageWin, 1e-12)
	assert.InDelta(t, -200, a.AverageLoss, 1e-12)
	assert.InDelta(t, 500, a.LargestWin, 1e-12)
	assert.InDelta(t, -200, a.LargestLoss, 1e-12)
	assert.InDelta(t, 800.0/200.0, a.ProfitFactor, 1e-12)
	assert.InDelta(t, 200, a.Expectancy, 1e-12)
}

func TestMetricsAreCachedAndIdempotent(t *testing.T) {
	c := newCalc(t, ds("100", "101", "99.99"), ds("0.01", "-0.01"), nil)

	first := c.PerformanceMetrics()
	second := c.PerformanceMetrics()
	assert.Equal(t, first, second)

	risk1 := c.GetRiskMetrics()
	risk2 := c.GetRiskMetrics()
	assert.Equal(t, risk1, risk2)
}

func TestGenerateReportShape(t *testing.T) {
	c := newCalc(t, ds("100", "101", "99.99"), ds("0.01", "-0.01"), nil)
	report := c.GenerateReport()

	summary, ok := report["summary"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, -0.01, summary["total_return_pct"].(float64), 1e-9)
	assert.InDelta(t, 99.99, summary["final_value"].(float64), 1e-9)

	for _, key := range []string{"performance_metrics", "risk_metrics", "trade_analysis"} {
		_, ok := report[key].(map[string]any)
		assert.True(t, ok, "missing block %s", key)
	}
}
