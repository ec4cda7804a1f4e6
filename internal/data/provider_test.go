package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-backtest/internal/model"
)

func candle(symbol string, day int, close string) model.MarketDataPoint {
	return model.MarketDataPoint{
		Symbol:    symbol,
		Timestamp: time.Date(2023, 1, 1, 15, 30, 0, 0, time.UTC).AddDate(0, 0, day),
		Close:     decimal.RequireFromString(close),
		Volume:    1000,
	}
}

func drain(ch <-chan []model.MarketDataPoint) []model.MarketDataPoint {
	var out []model.MarketDataPoint
	for batch := range ch {
		out = append(out, batch...)
	}
	return out
}

func TestMemoryProviderStreamsChronologicalBatches(t *testing.T) {
	// Inserted out of order on purpose.
	points := []model.MarketDataPoint{
		candle("005930", 2, "102"),
		candle("005930", 0, "100"),
		candle("005930", 4, "104"),
		candle("005930", 1, "101"),
		candle("005930", 3, "103"),
	}
	p := NewMemoryProvider(points, 2)

	ch, err := p.GetHistoricalData(context.Background(),
		"005930", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	got := drain(ch)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp), "batch stream must be chronological")
	}
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("100")))
}

func TestMemoryProviderRangeFilter(t *testing.T) {
	p := NewMemoryProvider([]model.MarketDataPoint{
		candle("005930", 0, "100"),
		candle("005930", 1, "101"),
		candle("005930", 2, "102"),
	}, 0)

	ch, err := p.GetHistoricalData(context.Background(),
		"005930",
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 2, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)

	got := drain(ch)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("101")))
}

func TestMemoryProviderUnknownSymbol(t *testing.T) {
	p := NewMemoryProvider(nil, 0)

	_, err := p.GetHistoricalData(context.Background(), "X", time.Time{}, time.Now())
	assert.Error(t, err)

	_, err = p.GetCurrentPrice(context.Background(), "X")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestMemoryProviderCurrentPriceIsLastClose(t *testing.T) {
	p := NewMemoryProvider([]model.MarketDataPoint{
		candle("005930", 0, "100"),
		candle("005930", 5, "123"),
	}, 0)

	price, err := p.GetCurrentPrice(context.Background(), "005930")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("123")))
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	var points []model.MarketDataPoint
	for i := 0; i < 500; i++ {
		points = append(points, candle("005930", i, "100"))
	}
	p := NewMemoryProvider(points, 10)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.GetHistoricalData(ctx, "005930", time.Time{}, time.Now().AddDate(10, 0, 0))
	require.NoError(t, err)

	<-ch
	cancel()

	// The producer goroutine must notice and close the channel.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestFileProviderJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.json")
	payload := `[
		{"symbol":"005930","timestamp":"2023-01-02T15:30:00Z","open":"100","high":"105","low":"99","close":"104","volume":1200},
		{"symbol":"005930","timestamp":"2023-01-03T15:30:00Z","open":"104","high":"108","low":"103","close":"107","volume":900}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	p, err := NewFileProvider(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"005930"}, p.Symbols())

	price, err := p.GetCurrentPrice(context.Background(), "005930")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("107")))
}

func TestFileProviderCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	payload := "symbol,timestamp,open,high,low,close,volume\n" +
		"005930,2023-01-02,100,105,99,104,1200\n" +
		"035720,2023-01-02 15:30:00,50,52,49,51,800\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	p, err := NewFileProvider(path, 0)
	require.NoError(t, err)

	ch, err := p.GetHistoricalData(context.Background(), "035720",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	got := drain(ch)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(decimal.RequireFromString("51")))
	assert.Equal(t, int64(800), got[0].Volume)
}

func TestFileProviderRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileProvider(filepath.Join(dir, "missing.json"), 0)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("a,b\n1,2\n"), 0o644))
	_, err = NewFileProvider(bad, 0)
	assert.Error(t, err, "missing required columns")

	other := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	_, err = NewFileProvider(other, 0)
	assert.Error(t, err, "unsupported extension")
}
