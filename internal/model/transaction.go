package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of one fill. It is created by the
// portfolio layer when a trade settles and never mutated afterwards.
type Transaction struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Tax        decimal.Decimal `json:"tax"`

	// RealizedPnL is set on SELL fills: quantity*(price-average) net of
	// commission and tax. Zero on BUY fills.
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	ExecutedAt time.Time `json:"executed_at"`
}

// NewTransaction stamps a fill record with a fresh id.
func NewTransaction(symbol string, side Side, quantity int64, price, commission, tax decimal.Decimal, at time.Time) Transaction {
	return Transaction{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Commission: commission,
		Tax:        tax,
		ExecutedAt: at,
	}
}

// Amount is the trade notional, price times quantity.
func (t Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// NetAmount is the cash moved by the fill: notional plus costs on a buy,
// notional minus costs on a sell.
func (t Transaction) NetAmount() decimal.Decimal {
	if t.Side == SideBuy {
		return t.Amount().Add(t.Commission).Add(t.Tax)
	}
	return t.Amount().Sub(t.Commission).Sub(t.Tax)
}
