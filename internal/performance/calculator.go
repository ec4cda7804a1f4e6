// Package performance computes return, risk and trade statistics over a
// completed backtest. All ratios use float64; monetary inputs arrive as
// decimals and are converted once at construction. A Calculator's inputs are
// immutable, so every derived block is computed once and cached.
package performance

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// TradingDaysPerYear is the annualization convention.
const TradingDaysPerYear = 252

// DefaultRiskFreeRate is the annual risk-free rate applied when none is
// configured, 3%.
const DefaultRiskFreeRate = 0.03

// Metrics is the headline performance block.
type Metrics struct {
	TotalReturn          float64 `json:"total_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	AverageDailyReturn   float64 `json:"average_daily_return"`
	Volatility           float64 `json:"volatility"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	DrawdownPeakIndex    int     `json:"drawdown_peak_index"`
	DrawdownTroughIndex  int     `json:"drawdown_trough_index"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	CalmarRatio          float64 `json:"calmar_ratio"`
	TotalTrades          int     `json:"total_trades"`
	WinRate              float64 `json:"win_rate"`
	ProfitFactor         float64 `json:"profit_factor"`
	BestDay              float64 `json:"best_day"`
	WorstDay             float64 `json:"worst_day"`
	ConsecutiveWins      int     `json:"consecutive_wins"`
	ConsecutiveLosses    int     `json:"consecutive_losses"`
}

// RiskMetrics is the tail-risk block. Beta and Alpha are nil when no
// benchmark series was supplied.
type RiskMetrics struct {
	ValueAtRisk95     float64  `json:"var_95"`
	ValueAtRisk99     float64  `json:"var_99"`
	ConditionalVaR95  float64  `json:"cvar_95"`
	ConditionalVaR99  float64  `json:"cvar_99"`
	DownsideDeviation float64  `json:"downside_deviation"`
	UpsideDeviation   float64  `json:"upside_deviation"`
	Beta              *float64 `json:"beta,omitempty"`
	Alpha             *float64 `json:"alpha,omitempty"`
}

// TradeAnalysis summarizes realized P&L over SELL fills only.
type TradeAnalysis struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
	Expectancy    float64 `json:"expectancy"`
}

// Options carries the optional Calculator inputs.
type Options struct {
	BenchmarkReturns []float64
	RiskFreeRate     float64 // annual; zero means DefaultRiskFreeRate
	Logger           *slog.Logger
}

// Calculator derives metrics from one run's value and return series.
type Calculator struct {
	initialCapital float64
	values         []float64
	returns        []float64
	transactions   []model.Transaction
	benchmark      []float64
	riskFree       float64
	logger         *slog.Logger

	metricsOnce sync.Once
	metrics     Metrics
	riskOnce    sync.Once
	risk        RiskMetrics
	tradesOnce  sync.Once
	trades      TradeAnalysis
}

// NewCalculator validates the series relationship: values has N+1 points,
// returns has N, at least two value points, positive initial capital.
func NewCalculator(initialCapital decimal.Decimal, values, returns []decimal.Decimal, transactions []model.Transaction, opts Options) (*Calculator, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("portfolio values need at least 2 data points, got %d", len(values))
	}
	if len(returns) != len(values)-1 {
		return nil, fmt.Errorf("daily returns length %d must be portfolio values length - 1 (%d)", len(returns), len(values)-1)
	}
	if !initialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive, got %s", initialCapital)
	}

	riskFree := opts.RiskFreeRate
	if riskFree == 0 {
		riskFree = DefaultRiskFreeRate
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		initialCapital: initialCapital.InexactFloat64(),
		values:         toFloats(values),
		returns:        toFloats(returns),
		transactions:   transactions,
		benchmark:      opts.BenchmarkReturns,
		riskFree:       riskFree,
		logger:         logger,
	}, nil
}

func toFloats(in []decimal.Decimal) []float64 {
	out := make([]float64, len(in))
	for i, d := range in {
		out[i] = d.InexactFloat64()
	}
	return out
}

// TotalReturn is (final - initial) / initial over the value series.
func (c *Calculator) TotalReturn() float64 {
	initial := c.values[0]
	if initial <= 0 {
		return 0
	}
	return (c.values[len(c.values)-1] - initial) / initial
}

// AnnualizedReturn compounds the total return geometrically onto a
// 252-trading-day year.
func (c *Calculator) AnnualizedReturn() float64 {
	n := len(c.returns)
	if n == 0 {
		return 0
	}
	annualized := math.Pow(1+c.TotalReturn(), float64(TradingDaysPerYear)/float64(n)) - 1
	if math.IsNaN(annualized) || math.IsInf(annualized, 0) {
		return 0
	}
	return annualized
}

// Volatility is the population standard deviation of the daily returns,
// optionally annualized by sqrt(252).
func (c *Calculator) Volatility(annualized bool) float64 {
	if len(c.returns) < 2 {
		return 0
	}
	vol := math.Sqrt(populationVariance(c.returns, mean(c.returns)))
	if annualized {
		vol *= math.Sqrt(TradingDaysPerYear)
	}
	return vol
}

// MaxDrawdown runs a single forward pass over the value series tracking the
// running peak. Returns the deepest drawdown with its peak and trough indices.
func (c *Calculator) MaxDrawdown() (float64, int, int) {
	var (
		maxDD     float64
		peakIndex int
		ddStart   int
		ddEnd     int
	)
	peak := c.values[0]
	for i, v := range c.values {
		if v > peak {
			peak = v
			peakIndex = i
			continue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
			ddStart = peakIndex
			ddEnd = i
		}
	}
	return maxDD, ddStart, ddEnd
}

// SharpeRatio annualizes the mean daily excess return over total volatility.
// Zero when volatility is zero.
func (c *Calculator) SharpeRatio() float64 {
	if len(c.returns) < 2 {
		return 0
	}
	vol := c.Volatility(false)
	if vol == 0 {
		return 0
	}
	excess := mean(c.returns) - c.dailyRiskFree()
	return excess / vol * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio replaces total volatility with downside deviation below the
// target. The variance denominator is the full sample size, not the downside
// count. +Inf when no return falls below the target.
func (c *Calculator) SortinoRatio(target float64) float64 {
	if len(c.returns) < 2 {
		return 0
	}
	var downsideSum float64
	downsideCount := 0
	for _, r := range c.returns {
		if r < target {
			d := r - target
			downsideSum += d * d
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return math.Inf(1)
	}
	downsideDev := math.Sqrt(downsideSum / float64(len(c.returns)))
	if downsideDev == 0 {
		return math.Inf(1)
	}
	return (mean(c.returns) - target) / downsideDev * math.Sqrt(TradingDaysPerYear)
}

// CalmarRatio divides annualized return by max drawdown. +Inf for a positive
// return with zero drawdown, 0 otherwise.
func (c *Calculator) CalmarRatio() float64 {
	annualized := c.AnnualizedReturn()
	dd, _, _ := c.MaxDrawdown()
	if dd == 0 {
		if annualized > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return annualized / dd
}

// WinRate is the share of strictly positive daily returns.
func (c *Calculator) WinRate() float64 {
	if len(c.returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range c.returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(c.returns))
}

// ProfitFactor is gross daily gains over gross daily losses. +Inf when there
// are gains but no losses.
func (c *Calculator) ProfitFactor() float64 {
	var grossProfit, grossLoss float64
	for _, r := range c.returns {
		switch {
		case r > 0:
			grossProfit += r
		case r < 0:
			grossLoss += -r
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// ValueAtRisk is the empirical quantile: the return at position
// floor((1-confidence)*N) of the ascending-sorted series.
func (c *Calculator) ValueAtRisk(confidence float64) float64 {
	if len(c.returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), c.returns...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * (1 - confidence))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ConditionalVaR is the mean of all returns at or below the VaR quantile.
func (c *Calculator) ConditionalVaR(confidence float64) float64 {
	if len(c.returns) == 0 {
		return 0
	}
	threshold := c.ValueAtRisk(confidence)
	var sum float64
	count := 0
	for _, r := range c.returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

// BetaAlpha regresses the return series against the benchmark using
// population covariance/variance and a CAPM alpha against the daily
// risk-free rate. Both are nil without a matching benchmark series.
func (c *Calculator) BetaAlpha() (*float64, *float64) {
	if len(c.benchmark) != len(c.returns) || len(c.returns) < 2 {
		return nil, nil
	}
	portfolioMean := mean(c.returns)
	benchmarkMean := mean(c.benchmark)

	var covariance float64
	for i := range c.returns {
		covariance += (c.returns[i] - portfolioMean) * (c.benchmark[i] - benchmarkMean)
	}
	covariance /= float64(len(c.returns))

	benchmarkVariance := populationVariance(c.benchmark, benchmarkMean)
	if benchmarkVariance == 0 {
		return nil, nil
	}

	beta := covariance / benchmarkVariance
	rf := c.dailyRiskFree()
	alpha := portfolioMean - (rf + beta*(benchmarkMean-rf))
	return &beta, &alpha
}

// ConsecutivePeriods returns the longest winning and losing streaks in the
// daily return series. A flat day resets both.
func (c *Calculator) ConsecutivePeriods() (int, int) {
	var maxWins, maxLosses, wins, losses int
	for _, r := range c.returns {
		switch {
		case r > 0:
			wins++
			losses = 0
			if wins > maxWins {
				maxWins = wins
			}
		case r < 0:
			losses++
			wins = 0
			if losses > maxLosses {
				maxLosses = losses
			}
		default:
			wins, losses = 0, 0
		}
	}
	return maxWins, maxLosses
}

// PerformanceMetrics assembles the headline block. Computed once.
func (c *Calculator) PerformanceMetrics() Metrics {
	c.metricsOnce.Do(func() {
		dd, peak, trough := c.MaxDrawdown()
		wins, losses := c.ConsecutivePeriods()
		best, worst := extremes(c.returns)
		c.metrics = Metrics{
			TotalReturn:          c.TotalReturn(),
			AnnualizedReturn:     c.AnnualizedReturn(),
			AverageDailyReturn:   mean(c.returns),
			Volatility:           c.Volatility(false),
			AnnualizedVolatility: c.Volatility(true),
			MaxDrawdown:          dd,
			DrawdownPeakIndex:    peak,
			DrawdownTroughIndex:  trough,
			SharpeRatio:          c.SharpeRatio(),
			SortinoRatio:         c.SortinoRatio(0),
			CalmarRatio:          c.CalmarRatio(),
			TotalTrades:          c.AnalyzeTrades().TotalTrades,
			WinRate:              c.WinRate(),
			ProfitFactor:         c.ProfitFactor(),
			BestDay:              best,
			WorstDay:             worst,
			ConsecutiveWins:      wins,
			ConsecutiveLosses:    losses,
		}
	})
	return c.metrics
}

// GetRiskMetrics assembles the tail-risk block. Computed once.
func (c *Calculator) GetRiskMetrics() RiskMetrics {
	c.riskOnce.Do(func() {
		m := mean(c.returns)
		beta, alpha := c.BetaAlpha()
		c.risk = RiskMetrics{
			ValueAtRisk95:     c.ValueAtRisk(0.95),
			ValueAtRisk99:     c.ValueAtRisk(0.99),
			ConditionalVaR95:  c.ConditionalVaR(0.95),
			ConditionalVaR99:  c.ConditionalVaR(0.99),
			DownsideDeviation: sidedDeviation(c.returns, m, false),
			UpsideDeviation:   sidedDeviation(c.returns, m, true),
			Beta:              beta,
			Alpha:             alpha,
		}
	})
	return c.risk
}

// AnalyzeTrades summarizes realized P&L across SELL fills. BUY fills carry no
// realized result and are excluded. Computed once.
func (c *Calculator) AnalyzeTrades() TradeAnalysis {
	c.tradesOnce.Do(func() {
		var pnls []float64
		for i := range c.transactions {
			if c.transactions[i].Side == model.SideSell {
				pnls = append(pnls, c.transactions[i].RealizedPnL.InexactFloat64())
			}
		}
		if len(pnls) == 0 {
			c.trades = TradeAnalysis{TotalTrades: 0}
			return
		}

		a := TradeAnalysis{TotalTrades: len(pnls)}
		var grossProfit, grossLoss, total float64
		for _, pnl := range pnls {
			total += pnl
			switch {
			case pnl > 0:
				a.WinningTrades++
				grossProfit += pnl
				if pnl > a.LargestWin {
					a.LargestWin = pnl
				}
			case pnl < 0:
				a.LosingTrades++
				grossLoss += -pnl
				if pnl < a.LargestLoss {
					a.LargestLoss = pnl
				}
			}
		}
		a.WinRate = float64(a.WinningTrades) / float64(a.TotalTrades)
		if a.WinningTrades > 0 {
			a.AverageWin = grossProfit / float64(a.WinningTrades)
		}
		if a.LosingTrades > 0 {
			a.AverageLoss = -grossLoss / float64(a.LosingTrades)
		}
		if grossLoss > 0 {
			a.ProfitFactor = grossProfit / grossLoss
		} else if grossProfit > 0 {
			a.ProfitFactor = math.Inf(1)
		}
		a.Expectancy = total / float64(a.TotalTrades)
		c.trades = a
	})
	return c.trades
}

func (c *Calculator) dailyRiskFree() float64 {
	return c.riskFree / TradingDaysPerYear
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func populationVariance(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

// sidedDeviation is the standard deviation of returns strictly below (or
// above) the mean, over the count of those returns only.
func sidedDeviation(xs []float64, m float64, upside bool) float64 {
	var sum float64
	count := 0
	for _, x := range xs {
		if (upside && x > m) || (!upside && x < m) {
			d := x - m
			sum += d * d
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

func extremes(xs []float64) (best, worst float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	best, worst = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x > best {
			best = x
		}
		if x < worst {
			worst = x
		}
	}
	return best, worst
}
