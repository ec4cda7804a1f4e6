package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/backtest"
	"stock-backtest/internal/data"
	"stock-backtest/internal/model"
	"stock-backtest/internal/performance"
	"stock-backtest/internal/strategy"
)

// Demo:
// - Generate a deterministic random-walk candle series for one symbol
// - Run the moving-average crossover strategy over it
// - Print the resulting report to stdout
func main() {
	days := flag.Int("days", 120, "Number of trading days to simulate")
	seed := flag.Int64("seed", 42, "Random walk seed")
	capital := flag.Int64("capital", 10_000_000, "Initial capital")
	outCSV := flag.String("out", "", "Optional path to write the fill ledger CSV")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	points := randomWalk("005930", start, *days, *seed)
	provider := data.NewMemoryProvider(points, data.DefaultBatchSize)

	cfg, err := model.NewBacktestConfig(start, start.AddDate(0, 0, *days), decimal.NewFromInt(*capital))
	if err != nil {
		panic(err)
	}

	strat, err := strategy.NewMovingAverageCrossover(strategy.Params{
		"symbols":      []string{"005930"},
		"short_period": 5,
		"long_period":  20,
	})
	if err != nil {
		panic(err)
	}

	engine, err := backtest.NewEngine(cfg, provider, strat, backtest.Options{Logger: logger})
	if err != nil {
		panic(err)
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		panic(err)
	}

	fmt.Println("=== Demo Backtest ===")
	fmt.Printf("days simulated:  %d (seed %d)\n", *days, *seed)
	fmt.Printf("status:          %s\n", result.Status)
	fmt.Printf("initial capital: %s\n", result.Config.InitialCapital)
	fmt.Printf("final value:     %s\n", result.TotalValue())
	fmt.Printf("total return:    %s%%\n", result.TotalReturn().Mul(decimal.NewFromInt(100)).Round(4))
	fmt.Printf("trades:          %d (%d buys, %d sells)\n",
		len(result.Transactions), result.BuyCount(), result.SellCount())

	if calc, err := performance.NewCalculator(
		result.Config.InitialCapital, result.DailyValues, result.DailyReturns,
		result.Transactions, performance.Options{}); err == nil {
		m := calc.PerformanceMetrics()
		fmt.Printf("sharpe ratio:    %.4f\n", m.SharpeRatio)
		fmt.Printf("max drawdown:    %.4f\n", m.MaxDrawdown)
		fmt.Printf("win rate:        %.4f\n", m.WinRate)
	}

	if *outCSV != "" {
		if err := backtest.WriteTransactionsCSV(*outCSV, result.Transactions); err != nil {
			panic(err)
		}
		fmt.Printf("wrote ledger to %s\n", *outCSV)
	}
}

// randomWalk produces one daily candle per day with +-1.5% drift steps.
func randomWalk(symbol string, start time.Time, days int, seed int64) []model.MarketDataPoint {
	rng := rand.New(rand.NewSource(seed))
	price := 70000.0

	points := make([]model.MarketDataPoint, 0, days)
	for day := 0; day < days; day++ {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.03
		high := max(open, price) * 1.005
		low := min(open, price) * 0.995

		points = append(points, model.MarketDataPoint{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, day).Add(15*time.Hour + 30*time.Minute),
			Open:      decimal.NewFromFloat(open).Round(0),
			High:      decimal.NewFromFloat(high).Round(0),
			Low:       decimal.NewFromFloat(low).Round(0),
			Close:     decimal.NewFromFloat(price).Round(0),
			Volume:    50_000 + rng.Int63n(100_000),
		})
	}
	return points
}
