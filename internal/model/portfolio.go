package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrPositionNotFound     = errors.New("position not found")
)

// Portfolio holds cash, open positions and the transaction ledger for one
// backtest run. Cash only moves when a trade settles. Exactly one goroutine
// mutates a Portfolio during a run, so the type itself carries no lock.
type Portfolio struct {
	AccountID      string                `json:"account_id"`
	InitialCapital decimal.Decimal       `json:"initial_capital"`
	Cash           decimal.Decimal       `json:"cash"`
	Positions      map[string]*Position  `json:"positions"`
	Transactions   []Transaction         `json:"transactions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPortfolio seeds a portfolio with its initial capital.
func NewPortfolio(accountID string, initialCapital decimal.Decimal) *Portfolio {
	now := time.Now()
	return &Portfolio{
		AccountID:      accountID,
		InitialCapital: initialCapital,
		Cash:           initialCapital,
		Positions:      make(map[string]*Position),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AddPosition settles a buy fill: deducts notional+commission from cash,
// merges the lot into the position at weighted-average cost and appends a BUY
// transaction. Fails with ErrInsufficientCash before any mutation.
func (p *Portfolio) AddPosition(symbol string, quantity int64, price, commission decimal.Decimal, at time.Time) (*Position, error) {
	totalCost := price.Mul(decimal.NewFromInt(quantity)).Add(commission)
	if p.Cash.LessThan(totalCost) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientCash, p.Cash, totalCost)
	}

	p.Cash = p.Cash.Sub(totalCost)

	pos, ok := p.Positions[symbol]
	if ok {
		pos.AddLot(quantity, price, at)
	} else {
		pos = &Position{
			Symbol:       symbol,
			Quantity:     quantity,
			AveragePrice: price,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		p.Positions[symbol] = pos
	}

	p.Transactions = append(p.Transactions, NewTransaction(symbol, SideBuy, quantity, price, commission, decimal.Zero, at))
	p.UpdatedAt = at
	return pos, nil
}

// ClosePosition settles a full liquidation: credits cash with
// proceeds-commission-tax, removes the symbol from the position map and
// appends a SELL transaction. Returns the net realized P&L,
// quantity*(price-average) - commission - tax.
func (p *Portfolio) ClosePosition(symbol string, price, commission, tax decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	pos, ok := p.Positions[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	return p.sell(pos, pos.Quantity, price, commission, tax, at)
}

// ReducePosition settles a partial sell. The position's average cost is
// untouched; only quantity drops. Selling the full held quantity behaves like
// ClosePosition.
func (p *Portfolio) ReducePosition(symbol string, quantity int64, price, commission, tax decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	pos, ok := p.Positions[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	if quantity > pos.Quantity {
		return decimal.Zero, fmt.Errorf("%w: %d > %d", ErrInsufficientQuantity, quantity, pos.Quantity)
	}
	return p.sell(pos, quantity, price, commission, tax, at)
}

func (p *Portfolio) sell(pos *Position, quantity int64, price, commission, tax decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	realized, err := pos.Reduce(quantity, price, at)
	if err != nil {
		return decimal.Zero, err
	}
	netPnL := realized.Sub(commission).Sub(tax)
	proceeds := price.Mul(decimal.NewFromInt(quantity)).Sub(commission).Sub(tax)
	p.Cash = p.Cash.Add(proceeds)

	if pos.Quantity == 0 {
		delete(p.Positions, pos.Symbol)
	}

	tx := NewTransaction(pos.Symbol, SideSell, quantity, price, commission, tax, at)
	tx.RealizedPnL = netPnL
	p.Transactions = append(p.Transactions, tx)
	p.UpdatedAt = at
	return netPnL, nil
}

// Valuation is a point-in-time portfolio summary at the supplied prices.
// Symbols without a price contribute nothing to market value.
type Valuation struct {
	TotalValue    decimal.Decimal            `json:"total_value"`
	Cash          decimal.Decimal            `json:"cash"`
	MarketValue   decimal.Decimal            `json:"market_value"`
	UnrealizedPnL decimal.Decimal            `json:"unrealized_pnl"`
	Positions     map[string]decimal.Decimal `json:"positions"`
}

func (p *Portfolio) Valuate(currentPrices map[string]decimal.Decimal) Valuation {
	v := Valuation{
		Cash:      p.Cash,
		Positions: make(map[string]decimal.Decimal, len(p.Positions)),
	}
	for symbol, pos := range p.Positions {
		price, ok := currentPrices[symbol]
		if !ok {
			continue
		}
		mv := pos.MarketValue(price)
		v.Positions[symbol] = mv
		v.MarketValue = v.MarketValue.Add(mv)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(pos.UnrealizedPnL(price))
	}
	v.TotalValue = p.Cash.Add(v.MarketValue)
	return v
}
