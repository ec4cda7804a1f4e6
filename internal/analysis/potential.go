// Package analysis screens candle series for trading potential before a full
// backtest is run.
package analysis

import (
	"math"
	"sort"
	"time"

	"stock-backtest/internal/model"
)

// TradingPotential is a symbol-level summary usable for ranking. It does not
// depend on a specific strategy; it combines raw price stats with an "oracle"
// profit for a canonical single-share trader.
type TradingPotential struct {
	Symbol string

	Start time.Time
	End   time.Time

	Count int

	MinClose  float64
	MaxClose  float64
	MeanClose float64
	P05Close  float64
	P95Close  float64

	SpreadP95P05 float64

	// Volatility is the population standard deviation of daily close-to-close
	// returns.
	Volatility float64

	// OracleProfit is the profit per share of a perfect-foresight trader who
	// holds through every rise and sits out every fall, with no costs.
	OracleProfit float64

	// OracleReturn normalizes OracleProfit by the mean close so symbols with
	// different price levels compare fairly.
	OracleReturn float64
}

// ComputePotential summarizes one symbol's chronologically ordered candles.
func ComputePotential(points []model.MarketDataPoint) TradingPotential {
	p := TradingPotential{}
	if len(points) == 0 {
		return p
	}
	p.Symbol = points[0].Symbol
	p.Count = len(points)
	p.Start = points[0].Timestamp
	p.End = points[len(points)-1].Timestamp

	sum := 0.0
	minv := math.Inf(1)
	maxv := math.Inf(-1)
	closes := make([]float64, 0, len(points))
	for _, point := range points {
		v := point.Close.InexactFloat64()
		closes = append(closes, v)
		sum += v
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	p.MinClose = minv
	p.MaxClose = maxv
	p.MeanClose = sum / float64(len(closes))

	p.OracleProfit = oracleProfit(closes)
	if p.MeanClose > 0 {
		p.OracleReturn = p.OracleProfit / p.MeanClose
	}
	p.Volatility = dailyVolatility(closes)

	sorted := append([]float64(nil), closes...)
	sort.Float64s(sorted)
	p.P05Close = percentileSorted(sorted, 0.05)
	p.P95Close = percentileSorted(sorted, 0.95)
	p.SpreadP95P05 = p.P95Close - p.P05Close

	return p
}

// oracleProfit sums every positive close-to-close move: the maximum profit of
// a one-share trader with unlimited free trades and perfect foresight.
func oracleProfit(closes []float64) float64 {
	profit := 0.0
	for i := 1; i < len(closes); i++ {
		if gain := closes[i] - closes[i-1]; gain > 0 {
			profit += gain
		}
	}
	return profit
}

func dailyVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
