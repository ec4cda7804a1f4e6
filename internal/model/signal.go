package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a trade instruction emitted by a strategy. Price is optional; a
// zero price means "execute at the engine's current market price".
type Signal struct {
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Reason    string          `json:"reason,omitempty"`
}

// Validate rejects malformed signals. Invalid signals are dropped by the
// engine, never fatal.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return errors.New("signal missing symbol")
	}
	if s.Side != SideBuy && s.Side != SideSell {
		return errors.New("signal side must be BUY or SELL")
	}
	if s.Quantity <= 0 {
		return errors.New("signal quantity must be positive")
	}
	return nil
}
