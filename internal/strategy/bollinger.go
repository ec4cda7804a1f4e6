package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"stock-backtest/internal/model"
)

// BollingerStrategy trades %B mean reversion: it buys when price sits near
// the lower band and exits near the upper band, optionally confirmed by an
// RSI filter.
type BollingerStrategy struct {
	symbols        []string
	period         int
	numStd         float64
	lowerThreshold float64
	upperThreshold float64
	useRSIFilter   bool
	rsiPeriod      int
	rsiOversold    float64
	rsiOverbought  float64
	positionSize   float64

	run    *Context
	logger *slog.Logger
	closes map[string][]float64
	inLong map[string]bool
}

// NewBollingerStrategy reads bb_period (20), bb_std (2.0), lower_threshold
// (0.2), upper_threshold (0.8), use_rsi_filter (true), rsi_period (14),
// rsi_oversold (35), rsi_overbought (65), position_size (0.8) and symbols.
func NewBollingerStrategy(p Params) (*BollingerStrategy, error) {
	s := &BollingerStrategy{
		symbols:        p.Strings("symbols"),
		period:         p.Int("bb_period", 20),
		numStd:         p.Float("bb_std", 2.0),
		lowerThreshold: p.Float("lower_threshold", 0.2),
		upperThreshold: p.Float("upper_threshold", 0.8),
		useRSIFilter:   p.Bool("use_rsi_filter", true),
		rsiPeriod:      p.Int("rsi_period", 14),
		rsiOversold:    p.Float("rsi_oversold", 35),
		rsiOverbought:  p.Float("rsi_overbought", 65),
		positionSize:   p.Float("position_size", 0.8),
	}
	if s.period <= 1 {
		return nil, fmt.Errorf("bollinger: bb_period %d must be above 1", s.period)
	}
	if s.numStd <= 0 {
		return nil, fmt.Errorf("bollinger: bb_std %v must be positive", s.numStd)
	}
	if s.lowerThreshold >= s.upperThreshold {
		return nil, fmt.Errorf("bollinger: lower_threshold %v must be below upper_threshold %v", s.lowerThreshold, s.upperThreshold)
	}
	if s.positionSize <= 0 || s.positionSize > 1 {
		return nil, fmt.Errorf("bollinger: position_size %v must be in (0, 1]", s.positionSize)
	}
	return s, nil
}

func (s *BollingerStrategy) Name() string    { return "bollinger" }
func (s *BollingerStrategy) Version() string { return "1.0.0" }
func (s *BollingerStrategy) Description() string {
	return "Bollinger %B mean reversion with optional RSI confirmation"
}
func (s *BollingerStrategy) Universe() []string { return s.symbols }

func (s *BollingerStrategy) Initialize(_ context.Context, run *Context) error {
	if err := validateUniverse(s.symbols); err != nil {
		return fmt.Errorf("bollinger: %w", err)
	}
	s.run = run
	s.logger = run.Logger
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.closes = make(map[string][]float64, len(s.symbols))
	s.inLong = make(map[string]bool)
	return nil
}

func (s *BollingerStrategy) OnData(point model.MarketDataPoint) ([]model.Signal, error) {
	symbol := point.Symbol
	px := point.Close.InexactFloat64()
	s.closes[symbol] = append(s.closes[symbol], px)

	_, upper, lower, ok := BollingerBands(s.closes[symbol], s.period, s.numStd)
	if !ok {
		return nil, nil
	}
	pb := PercentB(px, upper, lower)

	rsi, rsiOK := RSI(s.closes[symbol], s.rsiPeriod)
	filterActive := s.useRSIFilter && rsiOK

	if pb <= s.lowerThreshold && !s.inLong[symbol] {
		if filterActive && rsi > s.rsiOversold {
			return nil, nil
		}
		qty := buyQuantity(s.run, point.Close, s.positionSize)
		if qty <= 0 {
			return nil, nil
		}
		s.inLong[symbol] = true
		return []model.Signal{{
			Symbol:    symbol,
			Side:      model.SideBuy,
			Quantity:  qty,
			Price:     point.Close,
			Timestamp: point.Timestamp,
			Reason:    fmt.Sprintf("%%B %.2f at lower band", pb),
		}}, nil
	}

	if pb >= s.upperThreshold && s.inLong[symbol] {
		if filterActive && rsi < s.rsiOverbought {
			return nil, nil
		}
		held := heldQuantity(s.run, symbol)
		s.inLong[symbol] = false
		if held <= 0 {
			return nil, nil
		}
		return []model.Signal{{
			Symbol:    symbol,
			Side:      model.SideSell,
			Quantity:  held,
			Price:     point.Close,
			Timestamp: point.Timestamp,
			Reason:    fmt.Sprintf("%%B %.2f at upper band", pb),
		}}, nil
	}
	return nil, nil
}

func (s *BollingerStrategy) OnOrderFilled(tx model.Transaction) {
	s.logger.Debug("order filled", "strategy", s.Name(), "symbol", tx.Symbol, "side", string(tx.Side))
}

func (s *BollingerStrategy) OnDayEnd(model.MarketDataPoint) {}
