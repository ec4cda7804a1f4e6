package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"stock-backtest/internal/model"
)

// RSIStrategy is a mean-reversion strategy: it buys when RSI drops to the
// oversold threshold and exits when RSI reaches the overbought threshold.
// Extreme oversold readings scale the entry up.
type RSIStrategy struct {
	symbols          []string
	period           int
	oversold         float64
	overbought       float64
	extremeOversold  float64
	extremeOverbough float64
	positionSize     float64

	run    *Context
	logger *slog.Logger
	closes map[string][]float64
	inLong map[string]bool
}

// NewRSIStrategy reads rsi_period (14), oversold (30), overbought (70),
// extreme_oversold (20), extreme_overbought (80), position_size (0.8) and
// symbols.
func NewRSIStrategy(p Params) (*RSIStrategy, error) {
	s := &RSIStrategy{
		symbols:          p.Strings("symbols"),
		period:           p.Int("rsi_period", 14),
		oversold:         p.Float("oversold", 30),
		overbought:       p.Float("overbought", 70),
		extremeOversold:  p.Float("extreme_oversold", 20),
		extremeOverbough: p.Float("extreme_overbought", 80),
		positionSize:     p.Float("position_size", 0.8),
	}
	if s.period <= 1 {
		return nil, fmt.Errorf("rsi: period %d must be above 1", s.period)
	}
	if s.oversold >= s.overbought {
		return nil, fmt.Errorf("rsi: oversold %v must be below overbought %v", s.oversold, s.overbought)
	}
	if s.positionSize <= 0 || s.positionSize > 1 {
		return nil, fmt.Errorf("rsi: position_size %v must be in (0, 1]", s.positionSize)
	}
	return s, nil
}

func (s *RSIStrategy) Name() string    { return "rsi" }
func (s *RSIStrategy) Version() string { return "1.0.0" }
func (s *RSIStrategy) Description() string {
	return "RSI mean reversion: buys oversold readings, sells overbought ones"
}
func (s *RSIStrategy) Universe() []string { return s.symbols }

func (s *RSIStrategy) Initialize(_ context.Context, run *Context) error {
	if err := validateUniverse(s.symbols); err != nil {
		return fmt.Errorf("rsi: %w", err)
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

func (s *RSIStrategy) OnData(point model.MarketDataPoint) ([]model.Signal, error) {
	symbol := point.Symbol
	s.closes[symbol] = append(s.closes[symbol], point.Close.InexactFloat64())

	rsi, ok := RSI(s.closes[symbol], s.period)
	if !ok {
		return nil, nil
	}

	if rsi <= s.oversold && !s.inLong[symbol] {
		fraction := s.positionSize
		if rsi <= s.extremeOversold {
			// Deep oversold: scale the entry up, capped at full budget.
			fraction = min(1, s.positionSize*1.5)
		}
		qty := buyQuantity(s.run, point.Close, fraction)
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
			Reason:    fmt.Sprintf("RSI %.1f oversold", rsi),
		}}, nil
	}

	if rsi >= s.overbought && s.inLong[symbol] {
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
			Reason:    fmt.Sprintf("RSI %.1f overbought", rsi),
		}}, nil
	}
	return nil, nil
}

func (s *RSIStrategy) OnOrderFilled(tx model.Transaction) {
	s.logger.Debug("order filled", "strategy", s.Name(), "symbol", tx.Symbol, "side", string(tx.Side))
}

func (s *RSIStrategy) OnDayEnd(model.MarketDataPoint) {}
