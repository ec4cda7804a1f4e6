package data

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// FileProvider reads a candle file (JSON array or CSV) once at construction
// and serves it from memory. The format follows the file extension.
type FileProvider struct {
	inner *MemoryProvider
}

// NewFileProvider loads path, which must end in .json or .csv.
func NewFileProvider(path string, batchSize int) (*FileProvider, error) {
	var (
		points []model.MarketDataPoint
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		points, err = loadJSON(path)
	case ".csv":
		points, err = loadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported data file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("load %s: no candles", path)
	}
	return &FileProvider{inner: NewMemoryProvider(points, batchSize)}, nil
}

// Symbols lists the symbols present in the file.
func (p *FileProvider) Symbols() []string { return p.inner.Symbols() }

func (p *FileProvider) GetHistoricalData(ctx context.Context, symbol string, start, end time.Time) (<-chan []model.MarketDataPoint, error) {
	return p.inner.GetHistoricalData(ctx, symbol, start, end)
}

func (p *FileProvider) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.inner.GetCurrentPrice(ctx, symbol)
}

func loadJSON(path string) ([]model.MarketDataPoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var points []model.MarketDataPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// loadCSV expects a header row with the columns
// symbol,timestamp,open,high,low,close,volume. Timestamps are RFC 3339 or
// plain dates.
func loadCSV(path string) ([]model.MarketDataPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"symbol", "timestamp", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var points []model.MarketDataPoint
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		point, err := parseCSVRecord(record, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		points = append(points, point)
	}
	return points, nil
}

func parseCSVRecord(record []string, col map[string]int) (model.MarketDataPoint, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	ts, err := parseTimestamp(field("timestamp"))
	if err != nil {
		return model.MarketDataPoint{}, err
	}
	point := model.MarketDataPoint{
		Symbol:    field("symbol"),
		Timestamp: ts,
	}
	if point.Symbol == "" {
		return model.MarketDataPoint{}, fmt.Errorf("empty symbol")
	}

	decimals := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &point.Open},
		{"high", &point.High},
		{"low", &point.Low},
		{"close", &point.Close},
	}
	for _, d := range decimals {
		raw := field(d.name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return model.MarketDataPoint{}, fmt.Errorf("column %s: %w", d.name, err)
		}
		*d.dst = v
	}
	if raw := field("volume"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.MarketDataPoint{}, fmt.Errorf("column volume: %w", err)
		}
		point.Volume = v
	}
	return point, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
