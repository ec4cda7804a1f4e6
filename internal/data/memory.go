package data

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// MemoryProvider serves candles held in memory; the demo and tests use it.
type MemoryProvider struct {
	candles   map[string]series
	batchSize int
}

// NewMemoryProvider groups the given points by symbol and sorts each series.
func NewMemoryProvider(points []model.MarketDataPoint, batchSize int) *MemoryProvider {
	p := &MemoryProvider{
		candles:   make(map[string]series),
		batchSize: batchSize,
	}
	p.Add(points...)
	return p
}

// Add merges more points into the provider.
func (p *MemoryProvider) Add(points ...model.MarketDataPoint) {
	touched := make(map[string]bool)
	for _, point := range points {
		p.candles[point.Symbol] = append(p.candles[point.Symbol], point)
		touched[point.Symbol] = true
	}
	for symbol := range touched {
		p.candles[symbol] = p.candles[symbol].sorted()
	}
}

// Symbols lists the symbols with data.
func (p *MemoryProvider) Symbols() []string {
	out := make([]string, 0, len(p.candles))
	for symbol := range p.candles {
		out = append(out, symbol)
	}
	return out
}

func (p *MemoryProvider) GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (<-chan []model.MarketDataPoint, error) {
	s, ok := p.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for symbol %s", symbol)
	}
	return streamBatches(ctx, s.slice(start, end), p.batchSize), nil
}

// GetCurrentPrice serves the last known close for the symbol.
func (p *MemoryProvider) GetCurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s, ok := p.candles[symbol]
	if !ok || len(s) == 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	return s[len(s)-1].Close, nil
}
