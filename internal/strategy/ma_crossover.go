package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"stock-backtest/internal/model"
)

// MovingAverageCrossover is a trend-following strategy: a golden cross (short
// MA rising through the long MA) opens a long position, a death cross closes
// it.
type MovingAverageCrossover struct {
	symbols      []string
	shortPeriod  int
	longPeriod   int
	maType       string // "sma" or "ema"
	positionSize float64

	run       *Context
	logger    *slog.Logger
	closes    map[string][]float64
	prevShort map[string]float64
	prevLong  map[string]float64
	havePrev  map[string]bool
	inLong    map[string]bool
}

// NewMovingAverageCrossover reads short_period (20), long_period (50),
// ma_type (sma), position_size (0.95) and symbols from the parameter bag.
func NewMovingAverageCrossover(p Params) (*MovingAverageCrossover, error) {
	s := &MovingAverageCrossover{
		symbols:      p.Strings("symbols"),
		shortPeriod:  p.Int("short_period", 20),
		longPeriod:   p.Int("long_period", 50),
		maType:       p.String("ma_type", "sma"),
		positionSize: p.Float("position_size", 0.95),
	}
	if s.shortPeriod <= 0 || s.longPeriod <= 0 || s.shortPeriod >= s.longPeriod {
		return nil, fmt.Errorf("ma_crossover: short period %d must be positive and below long period %d", s.shortPeriod, s.longPeriod)
	}
	if s.maType != "sma" && s.maType != "ema" {
		return nil, fmt.Errorf("ma_crossover: unsupported ma_type %q", s.maType)
	}
	if s.positionSize <= 0 || s.positionSize > 1 {
		return nil, fmt.Errorf("ma_crossover: position_size %v must be in (0, 1]", s.positionSize)
	}
	return s, nil
}

func (s *MovingAverageCrossover) Name() string    { return "ma_crossover" }
func (s *MovingAverageCrossover) Version() string { return "1.0.0" }
func (s *MovingAverageCrossover) Description() string {
	return "Moving-average crossover trend follower: buys the golden cross, sells the death cross"
}
func (s *MovingAverageCrossover) Universe() []string { return s.symbols }

func (s *MovingAverageCrossover) Initialize(_ context.Context, run *Context) error {
	if err := validateUniverse(s.symbols); err != nil {
		return fmt.Errorf("ma_crossover: %w", err)
	}
	s.run = run
	s.logger = run.Logger
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.closes = make(map[string][]float64, len(s.symbols))
	s.prevShort = make(map[string]float64)
	s.prevLong = make(map[string]float64)
	s.havePrev = make(map[string]bool)
	s.inLong = make(map[string]bool)
	return nil
}

func (s *MovingAverageCrossover) movingAverage(closes []float64, period int) (float64, bool) {
	if s.maType == "ema" {
		return EMA(closes, period)
	}
	return SMA(closes, period)
}

func (s *MovingAverageCrossover) OnData(point model.MarketDataPoint) ([]model.Signal, error) {
	symbol := point.Symbol
	s.closes[symbol] = append(s.closes[symbol], point.Close.InexactFloat64())

	short, okShort := s.movingAverage(s.closes[symbol], s.shortPeriod)
	long, okLong := s.movingAverage(s.closes[symbol], s.longPeriod)
	if !okShort || !okLong {
		return nil, nil
	}

	defer func() {
		s.prevShort[symbol] = short
		s.prevLong[symbol] = long
		s.havePrev[symbol] = true
	}()

	if !s.havePrev[symbol] {
		return nil, nil
	}
	prevShort, prevLong := s.prevShort[symbol], s.prevLong[symbol]

	// Golden cross: short MA crosses above the long MA.
	if prevShort <= prevLong && short > long && !s.inLong[symbol] {
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
			Reason:    fmt.Sprintf("golden cross MA%d/MA%d", s.shortPeriod, s.longPeriod),
		}}, nil
	}

	// Death cross: short MA crosses below the long MA.
	if prevShort >= prevLong && short < long && s.inLong[symbol] {
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
			Reason:    fmt.Sprintf("death cross MA%d/MA%d", s.shortPeriod, s.longPeriod),
		}}, nil
	}
	return nil, nil
}

func (s *MovingAverageCrossover) OnOrderFilled(tx model.Transaction) {
	s.logger.Debug("order filled", "strategy", s.Name(), "symbol", tx.Symbol, "side", string(tx.Side))
}

func (s *MovingAverageCrossover) OnDayEnd(model.MarketDataPoint) {}
