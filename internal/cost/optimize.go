package cost

import (
	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// Split is one execution plan evaluated by OptimizeExecution.
type Split struct {
	Quantities []int64         `json:"quantities"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// OptimizeExecution searches equal-size splits of an order for the cheapest
// aggregate cost. Only exact divisors of the total quantity are considered, up
// to maxSplitCount child orders; this is a bounded brute-force enumeration,
// not a continuous optimizer.
func (m *Model) OptimizeExecution(totalQuantity int64, price decimal.Decimal, side model.Side, maxSplitCount int) Split {
	if maxSplitCount < 1 {
		maxSplitCount = 1
	}
	best := Split{
		Quantities: []int64{totalQuantity},
		TotalCost:  m.CalculateTotalCost(Quote{Price: price, Quantity: totalQuantity, Side: side}).Total(),
	}

	for n := int64(2); n <= int64(maxSplitCount); n++ {
		if totalQuantity%n != 0 {
			continue
		}
		child := totalQuantity / n
		cost := m.CalculateTotalCost(Quote{Price: price, Quantity: child, Side: side}).Total().Mul(decimal.NewFromInt(n))
		if cost.LessThan(best.TotalCost) {
			qs := make([]int64, n)
			for i := range qs {
				qs[i] = child
			}
			best = Split{Quantities: qs, TotalCost: cost}
		}
	}
	return best
}

// ComponentShare is one row of a Breakdown report.
type ComponentShare struct {
	Amount decimal.Decimal `json:"amount"`
	Ratio  decimal.Decimal `json:"ratio"`
}

// Breakdown is a cost report for one prospective fill.
type Breakdown struct {
	Notional   decimal.Decimal           `json:"notional_value"`
	TotalCost  decimal.Decimal           `json:"total_cost"`
	CostRatio  decimal.Decimal           `json:"cost_ratio"`
	Components map[string]ComponentShare `json:"components"`
	Condition  model.MarketCondition     `json:"market_condition"`
	TradeSize  model.TradeSize           `json:"trade_size"`
}

// GetBreakdown expands a total-cost calculation into per-component amounts
// and shares for reporting.
func (m *Model) GetBreakdown(q Quote) Breakdown {
	costs := m.CalculateTotalCost(q)
	notional := q.Price.Mul(decimal.NewFromInt(q.Quantity))
	total := costs.Total()

	share := func(amount decimal.Decimal) ComponentShare {
		s := ComponentShare{Amount: amount}
		if total.IsPositive() {
			s.Ratio = amount.Div(total).Round(6)
		}
		return s
	}

	b := Breakdown{
		Notional:  notional,
		TotalCost: total,
		Components: map[string]ComponentShare{
			"commission":    share(costs.Commission),
			"tax":           share(costs.Tax),
			"slippage":      share(costs.Slippage),
			"spread":        share(costs.Spread),
			"market_impact": share(costs.MarketImpact),
			"other_fees":    share(costs.OtherFees),
		},
		Condition: m.params.Condition,
		TradeSize: m.tradeSize(q.Quantity, q.DailyAvgVolume),
	}
	if notional.IsPositive() {
		b.CostRatio = total.Div(notional).Round(6)
	}
	return b
}
