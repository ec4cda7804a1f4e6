package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestStatus is the engine's run state. PENDING -> RUNNING ->
// {COMPLETED, FAILED, CANCELLED}; the terminal states are absorbing.
type BacktestStatus string

const (
	StatusPending   BacktestStatus = "pending"
	StatusRunning   BacktestStatus = "running"
	StatusCompleted BacktestStatus = "completed"
	StatusFailed    BacktestStatus = "failed"
	StatusCancelled BacktestStatus = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s BacktestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// BacktestResult is built once when a run ends and is immutable afterwards.
// The final portfolio is embedded here and not reused across runs.
type BacktestResult struct {
	Config         BacktestConfig    `json:"config"`
	Status         BacktestStatus    `json:"status"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	FinalPortfolio *Portfolio        `json:"final_portfolio"`
	Transactions   []Transaction     `json:"transactions"`
	DailyReturns   []decimal.Decimal `json:"daily_returns"`
	DailyValues    []decimal.Decimal `json:"daily_values"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// ExecutionTime is the wall-clock duration of the run.
func (r *BacktestResult) ExecutionTime() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Successful reports whether the run reached COMPLETED.
func (r *BacktestResult) Successful() bool {
	return r.Status == StatusCompleted
}

// TotalValue is cash plus positions at their average cost. Current prices are
// not available after the run; cost-basis valuation matches the engine's
// end-of-day convention for still-open positions.
func (r *BacktestResult) TotalValue() decimal.Decimal {
	total := r.FinalPortfolio.Cash
	for _, pos := range r.FinalPortfolio.Positions {
		total = total.Add(pos.CostBasis())
	}
	return total
}

// TotalReturn is (final - initial) / initial.
func (r *BacktestResult) TotalReturn() decimal.Decimal {
	if r.Config.InitialCapital.IsZero() {
		return decimal.Zero
	}
	return r.TotalValue().Sub(r.Config.InitialCapital).Div(r.Config.InitialCapital)
}

// AbsoluteProfit is final value minus initial capital.
func (r *BacktestResult) AbsoluteProfit() decimal.Decimal {
	return r.TotalValue().Sub(r.Config.InitialCapital)
}

// BuyCount counts BUY fills in the ledger.
func (r *BacktestResult) BuyCount() int {
	n := 0
	for _, t := range r.Transactions {
		if t.Side == SideBuy {
			n++
		}
	}
	return n
}

// SellCount counts SELL fills in the ledger.
func (r *BacktestResult) SellCount() int {
	n := 0
	for _, t := range r.Transactions {
		if t.Side == SideSell {
			n++
		}
	}
	return n
}

// TotalCommission sums commission across all fills.
func (r *BacktestResult) TotalCommission() decimal.Decimal {
	total := decimal.Zero
	for _, t := range r.Transactions {
		total = total.Add(t.Commission)
	}
	return total
}

// TradingPeriodDays is the span between the first and last fill, inclusive.
func (r *BacktestResult) TradingPeriodDays() int {
	if len(r.Transactions) == 0 {
		return 0
	}
	first := r.Transactions[0].ExecutedAt
	last := r.Transactions[0].ExecutedAt
	for _, t := range r.Transactions[1:] {
		if t.ExecutedAt.Before(first) {
			first = t.ExecutedAt
		}
		if t.ExecutedAt.After(last) {
			last = t.ExecutedAt
		}
	}
	return int(last.Sub(first).Hours()/24) + 1
}
