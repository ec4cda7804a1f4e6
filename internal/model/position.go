package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Position is one open holding. Quantity is always > 0 while the position
// exists; a fully closed position is removed from the portfolio, not zeroed.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CostBasis is quantity times average price.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AveragePrice.Mul(decimal.NewFromInt(p.Quantity))
}

// AddLot merges a buy fill into the position using weighted-average cost:
// new_avg = (old_qty*old_avg + added_qty*added_price) / (old_qty+added_qty).
func (p *Position) AddLot(quantity int64, price decimal.Decimal, at time.Time) {
	totalCost := p.CostBasis().Add(price.Mul(decimal.NewFromInt(quantity)))
	p.Quantity += quantity
	p.AveragePrice = totalCost.Div(decimal.NewFromInt(p.Quantity))
	p.UpdatedAt = at
}

// Reduce removes quantity from the position at the given price and returns the
// realized P&L, quantity*(price-average). Average cost never changes on a
// reduction.
func (p *Position) Reduce(quantity int64, price decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if quantity > p.Quantity {
		return decimal.Zero, fmt.Errorf("cannot reduce %d: position holds %d", quantity, p.Quantity)
	}
	realized := price.Sub(p.AveragePrice).Mul(decimal.NewFromInt(quantity))
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.Quantity -= quantity
	p.UpdatedAt = at
	return realized, nil
}

// UnrealizedPnL values the position at a current price.
func (p *Position) UnrealizedPnL(currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Mul(decimal.NewFromInt(p.Quantity)).Sub(p.CostBasis())
}

// MarketValue is quantity times the given current price.
func (p *Position) MarketValue(currentPrice decimal.Decimal) decimal.Decimal {
	return currentPrice.Mul(decimal.NewFromInt(p.Quantity))
}
