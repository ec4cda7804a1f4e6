package models

import (
	"time"

	"stock-backtest/internal/model"
)

// RunStarted is the 202 body of POST /api/v1/backtest.
type RunStarted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ProgressResponse reports a run's progress.
type ProgressResponse struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"`
	ProgressPercentage float64   `json:"progress_percentage"`
	CurrentDate        time.Time `json:"current_date"`
	ProcessedEvents    int64     `json:"processed_events"`
	TotalTrades        int       `json:"total_trades"`
	PortfolioCash      string    `json:"portfolio_cash"`
}

// ReportResponse is the final report of a finished run.
type ReportResponse struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Summary      Summary             `json:"summary"`
	Performance  map[string]any      `json:"performance,omitempty"`
	Transactions []model.Transaction `json:"transactions,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Summary aggregates the run outcome.
type Summary struct {
	StrategyName    string `json:"strategy_name"`
	InitialCapital  string `json:"initial_capital"`
	FinalValue      string `json:"final_value"`
	TotalReturnPct  string `json:"total_return_pct"`
	AbsoluteProfit  string `json:"absolute_profit"`
	TotalTrades     int    `json:"total_trades"`
	BuyCount        int    `json:"buy_count"`
	SellCount       int    `json:"sell_count"`
	TotalCommission string `json:"total_commission"`
	TradingDays     int    `json:"trading_days"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// StrategyList is the body of GET /api/v1/strategies.
type StrategyList struct {
	Strategies []StrategyInfo `json:"strategies"`
}

// StrategyInfo describes one registered strategy.
type StrategyInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine code and human message.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewError builds the envelope.
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}
