package strategy

import "math"

// Indicator helpers operate on a close-price series oldest-first and report
// the latest value only. The ok return is false until the series is long
// enough.

// SMA is the simple moving average of the last period closes.
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), true
}

// EMA is the exponential moving average, seeded with the SMA of the first
// period closes and smoothed with 2/(period+1).
func EMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	var seed float64
	for _, c := range closes[:period] {
		seed += c
	}
	ema := seed / float64(period)
	k := 2 / (float64(period) + 1)
	for _, c := range closes[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema, true
}

// RollingStdDev is the population standard deviation of the last period
// closes.
func RollingStdDev(closes []float64, period int) (float64, bool) {
	m, ok := SMA(closes, period)
	if !ok {
		return 0, false
	}
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		d := c - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(period)), true
}

// RSI is the relative strength index over simple averages of the last period
// gains and losses. 100 when the window has no losses, 50 when it is flat.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	window := closes[len(closes)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := gains / losses
	return 100 - 100/(1+rs), true
}

// BollingerBands returns the middle/upper/lower bands over the last period
// closes at numStd standard deviations.
func BollingerBands(closes []float64, period int, numStd float64) (middle, upper, lower float64, ok bool) {
	middle, ok = SMA(closes, period)
	if !ok {
		return 0, 0, 0, false
	}
	std, _ := RollingStdDev(closes, period)
	return middle, middle + numStd*std, middle - numStd*std, true
}

// PercentB locates a price within its Bollinger bands: 0 at the lower band,
// 1 at the upper. 0.5 when the bands collapse.
func PercentB(price, upper, lower float64) float64 {
	if upper == lower {
		return 0.5
	}
	return (price - lower) / (upper - lower)
}
