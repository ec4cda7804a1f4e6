package analysis

import (
	"sort"

	"stock-backtest/internal/model"
)

// RankedPotential is one symbol's position in a screening run.
type RankedPotential struct {
	Rank int
	TradingPotential
}

// RankByOracleReturn computes potentials per symbol and sorts descending by
// normalized oracle return, symbol ascending on ties.
func RankByOracleReturn(bySymbol map[string][]model.MarketDataPoint) []RankedPotential {
	out := make([]RankedPotential, 0, len(bySymbol))
	for _, points := range bySymbol {
		out = append(out, RankedPotential{TradingPotential: ComputePotential(points)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OracleReturn == out[j].OracleReturn {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].OracleReturn > out[j].OracleReturn
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
