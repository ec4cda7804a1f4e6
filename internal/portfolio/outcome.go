package portfolio

import (
	"github.com/shopspring/decimal"

	"stock-backtest/internal/cost"
	"stock-backtest/internal/model"
)

// RejectReason classifies a business-rule rejection.
type RejectReason string

const (
	RejectInsufficientCash     RejectReason = "insufficient_cash"
	RejectInsufficientHoldings RejectReason = "insufficient_holdings"
	RejectLimitExceeded        RejectReason = "limit_exceeded"
	RejectRiskManager          RejectReason = "risk_manager"
	RejectNoPrice              RejectReason = "no_price"
)

// Outcome is the result of an order execution attempt. Business-rule
// rejections are Outcome values, not errors: an unaffordable order is a
// normal simulation event, not a fault. Reason and Message are set only when
// Accepted is false; Position, Transaction and the cost fields only when it
// is true.
type Outcome struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`

	Position    *model.Position    `json:"position,omitempty"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	RealizedPnL decimal.Decimal    `json:"realized_pnl"`
	Costs       cost.Components    `json:"costs"`
}

func rejected(reason RejectReason, message string) Outcome {
	return Outcome{Reason: reason, Message: message}
}
