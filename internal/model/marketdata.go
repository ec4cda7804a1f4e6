package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketDataPoint is one bar (or quote snapshot) for one symbol.
// Timestamps are emitted by providers in non-decreasing order per symbol.
type MarketDataPoint struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`

	// Optional top-of-book context.
	Bid decimal.Decimal `json:"bid,omitempty"`
	Ask decimal.Decimal `json:"ask,omitempty"`
}

// Date truncates the timestamp to its calendar day, used by the engine to
// detect day boundaries.
func (m MarketDataPoint) Date() time.Time {
	y, mo, d := m.Timestamp.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, m.Timestamp.Location())
}
