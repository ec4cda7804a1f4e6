package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// PositionSummary is one open position in reporting form.
type PositionSummary struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// GetPositionSummary lists open positions sorted by symbol.
func (m *Manager) GetPositionSummary() []PositionSummary {
	out := make([]PositionSummary, 0, len(m.portfolio.Positions))
	for _, pos := range m.portfolio.Positions {
		out = append(out, PositionSummary{
			Symbol:       pos.Symbol,
			Quantity:     pos.Quantity,
			AveragePrice: pos.AveragePrice,
			CostBasis:    pos.CostBasis(),
			RealizedPnL:  pos.RealizedPnL,
			CreatedAt:    pos.CreatedAt,
			UpdatedAt:    pos.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TransactionSummary aggregates the ledger.
type TransactionSummary struct {
	TotalTransactions int             `json:"total_transactions"`
	BuyCount          int             `json:"buy_count"`
	SellCount         int             `json:"sell_count"`
	TotalCommission   decimal.Decimal `json:"total_commission"`
	TotalTax          decimal.Decimal `json:"total_tax"`
	FirstTransaction  *time.Time      `json:"first_transaction,omitempty"`
	LastTransaction   *time.Time      `json:"last_transaction,omitempty"`
}

// GetTransactionSummary tallies counts, commissions and taxes over the ledger.
func (m *Manager) GetTransactionSummary() TransactionSummary {
	s := TransactionSummary{TotalTransactions: len(m.portfolio.Transactions)}
	for i := range m.portfolio.Transactions {
		tx := &m.portfolio.Transactions[i]
		switch tx.Side {
		case model.SideBuy:
			s.BuyCount++
		case model.SideSell:
			s.SellCount++
		}
		s.TotalCommission = s.TotalCommission.Add(tx.Commission)
		s.TotalTax = s.TotalTax.Add(tx.Tax)
	}
	if s.TotalTransactions > 0 {
		first := m.portfolio.Transactions[0].ExecutedAt
		last := m.portfolio.Transactions[s.TotalTransactions-1].ExecutedAt
		s.FirstTransaction = &first
		s.LastTransaction = &last
	}
	return s
}

// RiskSnapshot is a point-in-time exposure summary. Percentages are on a
// 0-100 scale.
type RiskSnapshot struct {
	TotalExposure      decimal.Decimal `json:"total_exposure"`
	LargestPositionPct decimal.Decimal `json:"largest_position_pct"`
	NumberOfPositions  int             `json:"number_of_positions"`
	CashPercentage     decimal.Decimal `json:"cash_percentage"`
}

// GetRiskSnapshot values the portfolio and reports exposure concentration. An
// empty or unvaluable portfolio reads as 100% cash.
func (m *Manager) GetRiskSnapshot(ctx context.Context) RiskSnapshot {
	v := m.GetPortfolioValuation(ctx, true)
	snap := RiskSnapshot{
		NumberOfPositions: len(m.portfolio.Positions),
		CashPercentage:    decimal.NewFromInt(100),
	}
	if !v.TotalValue.IsPositive() {
		return snap
	}

	snap.TotalExposure = v.MarketValue
	hundred := decimal.NewFromInt(100)
	snap.CashPercentage = v.Cash.Div(v.TotalValue).Mul(hundred)

	var largest decimal.Decimal
	for _, mv := range v.Positions {
		if mv.GreaterThan(largest) {
			largest = mv
		}
	}
	snap.LargestPositionPct = largest.Div(v.TotalValue).Mul(hundred)
	return snap
}
