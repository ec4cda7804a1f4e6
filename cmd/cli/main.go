package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/analysis"
	"stock-backtest/internal/backtest"
	"stock-backtest/internal/config"
	"stock-backtest/internal/cost"
	"stock-backtest/internal/data"
	"stock-backtest/internal/model"
	"stock-backtest/internal/performance"
	"stock-backtest/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "backtest":
		cmdBacktest(os.Args[2:])
	case "costs":
		cmdCosts(os.Args[2:])
	case "rank":
		cmdRank(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli backtest --config examples/config.yaml [--out results/trades.csv] [--verbose]")
	fmt.Println("  cli costs --price 70000 --quantity 100 [--side BUY] [--instrument stock] [--condition volatile]")
	fmt.Println("  cli rank --data candles.csv [--limit 10]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - backtest runs the configured strategy over the configured candle file")
	fmt.Println("  - costs prints the fee breakdown and an execution-split suggestion for one trade")
	fmt.Println("  - rank scores every symbol in a candle file by perfect-foresight profit")
}

func cmdBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	outPath := fs.String("out", "", "Optional: write the fill ledger to this CSV path")
	verbose := fs.Bool("verbose", false, "Log every processed event and fill")
	_ = fs.Parse(args)

	if *cfgPath == "" {
		fmt.Println("--config is required")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(err)
	}
	runCfg, err := cfg.BacktestConfig()
	if err != nil {
		fatal(err)
	}
	provider, err := data.NewFileProvider(cfg.Data.File, cfg.Data.BatchSize)
	if err != nil {
		fatal(err)
	}
	strat, err := strategy.NewDefaultRegistry().Create(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		fatal(err)
	}
	costModel, err := cost.NewModel(cfg.CostParams())
	if err != nil {
		fatal(err)
	}

	limits := cfg.PositionLimits()
	engine, err := backtest.NewEngine(runCfg, provider, strat, backtest.Options{
		Costs:  costModel,
		Limits: &limits,
		Logger: logger,
	})
	if err != nil {
		fatal(err)
	}

	result, err := engine.Run(context.Background())
	if err != nil {
		fatal(err)
	}

	printResult(result)

	if *outPath != "" {
		if err := backtest.WriteTransactionsCSV(*outPath, result.Transactions); err != nil {
			fatal(err)
		}
		fmt.Printf("\nwrote %d fills to %s\n", len(result.Transactions), *outPath)
	}
}

func printResult(result *model.BacktestResult) {
	name, _ := result.Metadata["strategy_name"].(string)

	fmt.Println("=== Backtest Result ===")
	fmt.Printf("strategy:         %s\n", name)
	fmt.Printf("status:           %s\n", result.Status)
	fmt.Printf("window:           %s .. %s\n",
		result.Config.StartDate.Format("2006-01-02"), result.Config.EndDate.Format("2006-01-02"))
	fmt.Printf("initial capital:  %s\n", result.Config.InitialCapital)
	fmt.Printf("final value:      %s\n", result.TotalValue())
	fmt.Printf("total return:     %s%%\n", result.TotalReturn().Mul(decimal.NewFromInt(100)).Round(4))
	fmt.Printf("trades:           %d (%d buys, %d sells)\n",
		len(result.Transactions), result.BuyCount(), result.SellCount())
	fmt.Printf("commission paid:  %s\n", result.TotalCommission())
	fmt.Printf("execution time:   %s\n", result.ExecutionTime().Round(time.Millisecond))

	calc, err := performance.NewCalculator(
		result.Config.InitialCapital, result.DailyValues, result.DailyReturns,
		result.Transactions, performance.Options{})
	if err != nil {
		fmt.Printf("\nperformance metrics unavailable: %v\n", err)
		return
	}

	fmt.Println("\n=== Performance ===")
	m := calc.PerformanceMetrics()
	fmt.Printf("annualized return: %.4f\n", m.AnnualizedReturn)
	fmt.Printf("volatility:        %.4f\n", m.Volatility)
	fmt.Printf("sharpe ratio:      %.4f\n", m.SharpeRatio)
	fmt.Printf("sortino ratio:     %.4f\n", m.SortinoRatio)
	fmt.Printf("max drawdown:      %.4f\n", m.MaxDrawdown)
	fmt.Printf("win rate:          %.4f\n", m.WinRate)
}

func cmdCosts(args []string) {
	fs := flag.NewFlagSet("costs", flag.ExitOnError)
	price := fs.Float64("price", 0, "Price per share")
	quantity := fs.Int64("quantity", 0, "Number of shares")
	side := fs.String("side", "BUY", "BUY or SELL")
	instrument := fs.String("instrument", "stock", "stock, etf, reit, bond or derivative")
	condition := fs.String("condition", "sideways", "bull, bear, sideways or volatile")
	avgVolume := fs.Int64("avg-volume", 0, "Daily average volume (0=unknown)")
	at := fs.String("time", "", "Trade time HH:MM (empty=unknown)")
	splits := fs.Int("max-splits", 10, "Max child orders for the split suggestion")
	_ = fs.Parse(args)

	if *price <= 0 || *quantity <= 0 {
		fmt.Println("--price and --quantity are required and must be positive")
		os.Exit(2)
	}
	parsedSide, err := model.ParseSide(*side)
	if err != nil {
		fatal(err)
	}

	params := cost.DefaultParams()
	params.Condition = model.MarketCondition(*condition)
	costModel, err := cost.NewModel(params)
	if err != nil {
		fatal(err)
	}

	quote := cost.Quote{
		Price:          decimal.NewFromFloat(*price),
		Quantity:       *quantity,
		Side:           parsedSide,
		DailyAvgVolume: *avgVolume,
		Instrument:     model.InstrumentType(*instrument),
	}
	if *at != "" {
		tradeTime, err := time.Parse("15:04", *at)
		if err != nil {
			fatal(fmt.Errorf("--time: %w", err))
		}
		quote.TradeTime = tradeTime
	}

	b := costModel.GetBreakdown(quote)
	fmt.Println("=== Cost Breakdown ===")
	fmt.Printf("notional:     %s\n", b.Notional)
	fmt.Printf("total cost:   %s (%s of notional)\n", b.TotalCost, b.CostRatio)
	fmt.Printf("trade size:   %s, condition: %s\n", b.TradeSize, b.Condition)

	components := make([]string, 0, len(b.Components))
	for component := range b.Components {
		components = append(components, component)
	}
	sort.Strings(components)
	for _, component := range components {
		share := b.Components[component]
		fmt.Printf("  %-14s %12s  (%s)\n", component, share.Amount, share.Ratio)
	}

	split := costModel.OptimizeExecution(*quantity, quote.Price, parsedSide, *splits)
	fmt.Println("\n=== Execution Split ===")
	fmt.Printf("child orders: %d x %d shares\n", len(split.Quantities), split.Quantities[0])
	fmt.Printf("total cost:   %s\n", split.TotalCost)
}

func cmdRank(args []string) {
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	dataPath := fs.String("data", "", "Path to candle file (.json or .csv)")
	limit := fs.Int("limit", 10, "Show the top N symbols")
	_ = fs.Parse(args)

	if *dataPath == "" {
		fmt.Println("--data is required")
		os.Exit(2)
	}

	provider, err := data.NewFileProvider(*dataPath, 0)
	if err != nil {
		fatal(err)
	}

	bySymbol := make(map[string][]model.MarketDataPoint)
	farFuture := time.Now().AddDate(100, 0, 0)
	for _, symbol := range provider.Symbols() {
		ch, err := provider.GetHistoricalData(context.Background(), symbol, time.Time{}, farFuture)
		if err != nil {
			fatal(err)
		}
		for batch := range ch {
			bySymbol[symbol] = append(bySymbol[symbol], batch...)
		}
	}

	ranked := analysis.RankByOracleReturn(bySymbol)
	if *limit > 0 && *limit < len(ranked) {
		ranked = ranked[:*limit]
	}

	fmt.Println("=== Symbol Ranking (perfect-foresight return) ===")
	fmt.Printf("%-4s %-10s %8s %12s %12s %12s %10s\n",
		"rank", "symbol", "candles", "oracle", "oracle_ret", "p95-p05", "daily_vol")
	for _, r := range ranked {
		fmt.Printf("%-4d %-10s %8d %12.2f %12.4f %12.2f %10.4f\n",
			r.Rank, r.Symbol, r.Count, r.OracleProfit, r.OracleReturn, r.SpreadP95P05, r.Volatility)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
