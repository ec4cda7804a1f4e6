// Package data supplies historical market data to the engine. Providers
// stream candles in batches over a channel so the engine's producer can run
// ahead of consumption without loading whole histories per event.
package data

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// ErrPriceUnavailable marks a symbol with no resolvable current price.
var ErrPriceUnavailable = errors.New("price unavailable")

// DefaultBatchSize is the number of candles per streamed batch.
const DefaultBatchSize = 100

// Provider is the market-data source the engine and portfolio manager
// consume. GetHistoricalData returns a channel of chronologically ordered
// batches for one symbol; the channel closes when the range is exhausted or
// the context is cancelled.
type Provider interface {
	GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (<-chan []model.MarketDataPoint, error)
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// series is one symbol's candles sorted by timestamp.
type series []model.MarketDataPoint

func (s series) sorted() series {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
	return s
}

// slice returns the candles inside [start, end] (inclusive).
func (s series) slice(start, end time.Time) []model.MarketDataPoint {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(start) })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(end) })
	if lo >= hi {
		return nil
	}
	return s[lo:hi]
}

// streamBatches feeds points into a fresh channel in batchSize chunks,
// stopping early on context cancellation.
func streamBatches(ctx context.Context, points []model.MarketDataPoint, batchSize int) <-chan []model.MarketDataPoint {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make(chan []model.MarketDataPoint)
	go func() {
		defer close(out)
		for len(points) > 0 {
			n := batchSize
			if n > len(points) {
				n = len(points)
			}
			select {
			case out <- points[:n:n]:
				points = points[n:]
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
