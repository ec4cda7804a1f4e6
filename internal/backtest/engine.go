// Package backtest runs the event loop: a producer merges per-symbol candle
// streams into a single chronological feed, the consumer drives the strategy,
// prices orders through the cost model and settles fills on the portfolio.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stock-backtest/internal/cost"
	"stock-backtest/internal/data"
	"stock-backtest/internal/model"
	"stock-backtest/internal/portfolio"
	"stock-backtest/internal/strategy"
)

const (
	// DefaultQueueSize bounds the event channel between producer and consumer.
	DefaultQueueSize = 1000
	// DefaultIdleTimeout ends the run when no event arrives for this long.
	DefaultIdleTimeout = 30 * time.Second
)

// ErrAlreadyStarted is returned by Run on any but the first call.
var ErrAlreadyStarted = errors.New("backtest already started")

// errStreamIdle marks a consumer exit caused by the idle timeout, with the
// producer possibly still parked on a send. The run still completes.
var errStreamIdle = errors.New("event stream idle")

// Options are the engine's optional knobs. The zero value gives defaults:
// cost model built from the config rates, default limits, no risk manager.
type Options struct {
	Costs       *cost.Model
	Limits      *portfolio.Limits
	Risk        portfolio.RiskManager
	QueueSize   int
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Engine executes one backtest run and is not reusable. Run drives it from a
// single goroutine; Status, Progress, Pause, Resume and Cancel are safe to
// call concurrently while it runs.
type Engine struct {
	config   model.BacktestConfig
	provider data.Provider
	strat    strategy.Strategy
	costs    *cost.Model
	manager  *portfolio.Manager
	logger   *slog.Logger

	queueSize   int
	idleTimeout time.Duration

	onData      []func(model.MarketDataPoint)
	onTrade     []func(model.Transaction)
	onPortfolio []func(*model.Portfolio)
	onError     []func(error)

	mu          sync.Mutex
	status      model.BacktestStatus
	currentDate time.Time
	processed   int64
	trades      int
	cash        decimal.Decimal
	paused      bool
	resumed     chan struct{}
	cancelRun   context.CancelFunc
	result      *model.BacktestResult

	// Consumer-goroutine state, untouched by the snapshot methods.
	lastPoint    model.MarketDataPoint
	lastPrices   map[string]decimal.Decimal
	dailyValues  []decimal.Decimal
	dailyReturns []decimal.Decimal
	startTime    time.Time
}

// NewEngine wires an engine for one run. The portfolio starts at the config's
// initial capital; the provider doubles as the manager's price source.
func NewEngine(cfg model.BacktestConfig, provider data.Provider, strat strategy.Strategy, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if provider == nil || strat == nil {
		return nil, errors.New("provider and strategy are required")
	}

	costModel := opts.Costs
	if costModel == nil {
		var err error
		costModel, err = cost.NewModel(cost.Params{
			CommissionRate: cfg.CommissionRate,
			TaxRate:        cfg.TaxRate,
			SlippageRate:   cfg.SlippageRate,
		})
		if err != nil {
			return nil, fmt.Errorf("cost model: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	pf := model.NewPortfolio("BACKTEST", cfg.InitialCapital)
	manager := portfolio.NewManager(pf, costModel, portfolio.Options{
		Prices: provider,
		Risk:   opts.Risk,
		Limits: opts.Limits,
		Logger: logger,
	})

	return &Engine{
		config:      cfg,
		provider:    provider,
		strat:       strat,
		costs:       costModel,
		manager:     manager,
		logger:      logger,
		queueSize:   queueSize,
		idleTimeout: idle,
		status:      model.StatusPending,
		currentDate: cfg.StartDate,
		cash:        cfg.InitialCapital,
		lastPrices:  make(map[string]decimal.Decimal),
	}, nil
}

// Portfolio exposes the managed portfolio, mainly for observers.
func (e *Engine) Portfolio() *model.Portfolio { return e.manager.Portfolio() }

// OnDataUpdate registers an observer for every processed market event.
// Register all observers before calling Run.
func (e *Engine) OnDataUpdate(fn func(model.MarketDataPoint)) {
	e.onData = append(e.onData, fn)
}

// OnTrade registers an observer for executed fills. Rejected signals never
// reach it; they are only logged.
func (e *Engine) OnTrade(fn func(model.Transaction)) {
	e.onTrade = append(e.onTrade, fn)
}

// OnPortfolioUpdate registers an observer fired after each fill settles.
func (e *Engine) OnPortfolioUpdate(fn func(*model.Portfolio)) {
	e.onPortfolio = append(e.onPortfolio, fn)
}

// OnError registers an observer for the fatal error of a failed run.
func (e *Engine) OnError(fn func(error)) {
	e.onError = append(e.onError, fn)
}

// Run executes the backtest to completion, cancellation or failure. It may be
// called once; the returned result is also available through Result.
func (e *Engine) Run(ctx context.Context) (*model.BacktestResult, error) {
	runCtx, err := e.start(ctx)
	if err != nil {
		return nil, err
	}
	defer e.cancelRun()

	e.startTime = time.Now()
	runErr := e.run(runCtx)

	e.mu.Lock()
	switch {
	case e.status == model.StatusCancelled:
		// Cancel won the race; keep the terminal status.
	case runErr != nil:
		e.status = model.StatusFailed
	default:
		e.status = model.StatusCompleted
	}
	status := e.status
	e.mu.Unlock()

	if runErr != nil && status == model.StatusFailed {
		e.logger.Error("backtest failed", "error", runErr)
		fire(e.logger, "on_error", e.onError, runErr)
	}

	result := e.buildResult(status)
	e.mu.Lock()
	e.result = result
	e.mu.Unlock()

	if status == model.StatusFailed {
		return result, runErr
	}
	return result, nil
}

func (e *Engine) start(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != model.StatusPending {
		return nil, ErrAlreadyStarted
	}
	e.status = model.StatusRunning
	runCtx, cancel := context.WithCancel(ctx)
	e.cancelRun = cancel
	return runCtx, nil
}

func (e *Engine) run(ctx context.Context) error {
	run := &strategy.Context{
		Portfolio: e.manager.Portfolio(),
		Config:    e.config,
		Logger:    e.logger,
	}
	if err := e.strat.Initialize(ctx, run); err != nil {
		return fmt.Errorf("initialize strategy %s: %w", e.strat.Name(), err)
	}
	symbols := e.strat.Universe()
	if len(symbols) == 0 {
		return errors.New("strategy universe is empty")
	}

	e.logger.Info("backtest started",
		"strategy", e.strat.Name(),
		"symbols", len(symbols),
		"start", e.config.StartDate.Format("2006-01-02"),
		"end", e.config.EndDate.Format("2006-01-02"))

	events := make(chan model.MarketDataPoint, e.queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mergeStreams(gctx, e.provider, symbols, e.config.StartDate, e.config.EndDate, events)
	})

	loopErr := e.consume(gctx, events)

	// Unblock the producer before waiting on it. This covers the idle timeout
	// too: the stream is still open then, so the producer may be blocked on a
	// send or inside the provider.
	if loopErr != nil {
		e.cancelRun()
		for range events {
		}
	}
	produceErr := g.Wait()

	if errors.Is(loopErr, errStreamIdle) {
		loopErr = nil
		// The cancellation that freed the producer was our own.
		if errors.Is(produceErr, context.Canceled) {
			produceErr = nil
		}
	}
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	if produceErr != nil && !errors.Is(produceErr, context.Canceled) {
		return produceErr
	}
	if e.cancelled() {
		return nil
	}
	if err := errors.Join(loopErr, produceErr); err != nil {
		return err
	}

	// Close out the final trading day so its value and return are recorded.
	if !e.lastPoint.Timestamp.IsZero() {
		e.endOfDay()
	}
	return nil
}

// consume drains the event channel in order, returning errStreamIdle after
// idleTimeout without an event.
func (e *Engine) consume(ctx context.Context, events <-chan model.MarketDataPoint) error {
	idle := time.NewTimer(e.idleTimeout)
	defer idle.Stop()

	for {
		if err := e.gate(ctx); err != nil {
			return err
		}
		select {
		case point, ok := <-events:
			if !ok {
				return nil
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(e.idleTimeout)
			if err := e.processPoint(point); err != nil {
				return err
			}
		case <-idle.C:
			e.logger.Warn("event stream idle, ending run", "timeout", e.idleTimeout)
			return errStreamIdle
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// gate blocks while the engine is paused.
func (e *Engine) gate(ctx context.Context) error {
	for {
		e.mu.Lock()
		paused, resumed := e.paused, e.resumed
		e.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) processPoint(point model.MarketDataPoint) error {
	// A date change means the previous day is complete; settle it before the
	// new day's first event.
	if !e.lastPoint.Timestamp.IsZero() && !point.Date().Equal(e.lastPoint.Date()) {
		e.endOfDay()
	}
	e.lastPoint = point
	e.lastPrices[point.Symbol] = point.Close
	e.manager.SetPrice(point.Symbol, point.Close)

	signals, err := e.strat.OnData(point)
	if err != nil {
		return fmt.Errorf("strategy %s on %s@%s: %w",
			e.strat.Name(), point.Symbol, point.Timestamp.Format(time.RFC3339), err)
	}
	for _, signal := range signals {
		if err := signal.Validate(); err != nil {
			e.logger.Warn("dropping invalid signal", "symbol", signal.Symbol, "error", err)
			continue
		}
		if err := e.executeSignal(signal); err != nil {
			return err
		}
	}

	fire(e.logger, "on_data_update", e.onData, point)

	e.mu.Lock()
	e.processed++
	e.currentDate = point.Date()
	e.mu.Unlock()
	return nil
}

func (e *Engine) executeSignal(signal model.Signal) error {
	price := signal.Price
	if !price.IsPositive() {
		last, ok := e.lastPrices[signal.Symbol]
		if !ok {
			e.logger.Warn("dropping signal without price", "symbol", signal.Symbol)
			return nil
		}
		price = last
	}

	costs := e.costs.CalculateTotalCost(cost.Quote{
		Price:          price,
		Quantity:       signal.Quantity,
		Side:           signal.Side,
		TradeTime:      signal.Timestamp,
		DailyAvgVolume: e.lastPoint.Volume,
	})

	var (
		out portfolio.Outcome
		err error
	)
	at := signal.Timestamp
	if at.IsZero() {
		at = e.lastPoint.Timestamp
	}
	switch signal.Side {
	case model.SideBuy:
		out, err = e.manager.ApplyBuy(signal.Symbol, signal.Quantity, price, costs, at)
	case model.SideSell:
		out, err = e.manager.ApplySell(signal.Symbol, signal.Quantity, price, costs, at)
	}
	if err != nil {
		return fmt.Errorf("execute %s %s: %w", signal.Side, signal.Symbol, err)
	}
	if !out.Accepted {
		e.logger.Warn("signal rejected",
			"symbol", signal.Symbol, "side", string(signal.Side),
			"quantity", signal.Quantity, "reason", string(out.Reason), "detail", out.Message)
		return nil
	}

	tx := *out.Transaction
	e.mu.Lock()
	e.trades++
	e.cash = e.manager.Portfolio().Cash
	e.mu.Unlock()

	e.strat.OnOrderFilled(tx)
	fire(e.logger, "on_trade", e.onTrade, tx)
	fire(e.logger, "on_portfolio_update", e.onPortfolio, e.manager.Portfolio())
	return nil
}

// endOfDay values the portfolio at the last observed prices and records the
// daily value and return. Positions never seen in the feed are valued at
// their average cost.
func (e *Engine) endOfDay() {
	pf := e.manager.Portfolio()
	value := pf.Cash
	for symbol, pos := range pf.Positions {
		price, ok := e.lastPrices[symbol]
		if !ok {
			price = pos.AveragePrice
		}
		value = value.Add(price.Mul(decimal.NewFromInt(pos.Quantity)))
	}

	e.dailyValues = append(e.dailyValues, value)
	if n := len(e.dailyValues); n > 1 {
		prev := e.dailyValues[n-2]
		if prev.IsPositive() {
			e.dailyReturns = append(e.dailyReturns, value.Sub(prev).Div(prev))
		} else {
			e.dailyReturns = append(e.dailyReturns, decimal.Zero)
		}
	}

	e.strat.OnDayEnd(e.lastPoint)
	e.logger.Debug("end of day",
		"date", e.lastPoint.Date().Format("2006-01-02"), "portfolio_value", value.String())
}

func (e *Engine) buildResult(status model.BacktestStatus) *model.BacktestResult {
	pf := e.manager.Portfolio()
	return &model.BacktestResult{
		Config:         e.config,
		Status:         status,
		StartTime:      e.startTime,
		EndTime:        time.Now(),
		FinalPortfolio: pf,
		Transactions:   pf.Transactions,
		DailyValues:    e.dailyValues,
		DailyReturns:   e.dailyReturns,
		Metadata: map[string]any{
			"strategy_name":    e.strat.Name(),
			"strategy_version": e.strat.Version(),
			"processed_events": e.processedEvents(),
			"total_trades":     len(pf.Transactions),
		},
	}
}

// Status returns the engine's current run state.
func (e *Engine) Status() model.BacktestStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Result returns the run's result, nil until Run has returned.
func (e *Engine) Result() *model.BacktestResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

func (e *Engine) processedEvents() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed
}

func (e *Engine) cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == model.StatusCancelled
}

// Progress is a point-in-time snapshot of a run, safe to request from other
// goroutines.
type Progress struct {
	Status             model.BacktestStatus `json:"status"`
	ProgressPercentage float64              `json:"progress_percentage"`
	CurrentDate        time.Time            `json:"current_date"`
	ProcessedEvents    int64                `json:"processed_events"`
	TotalTrades        int                  `json:"total_trades"`
	PortfolioCash      decimal.Decimal      `json:"portfolio_cash"`
}

// Progress reports how far through the configured date range the run is.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	pct := 100.0
	if total := e.config.EndDate.Sub(e.config.StartDate); total > 0 {
		elapsed := e.currentDate.Sub(e.config.StartDate)
		pct = float64(elapsed) / float64(total) * 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 || e.status == model.StatusCompleted {
			pct = 100
		}
	}

	return Progress{
		Status:             e.status,
		ProgressPercentage: pct,
		CurrentDate:        e.currentDate,
		ProcessedEvents:    e.processed,
		TotalTrades:        e.trades,
		PortfolioCash:      e.cash,
	}
}

// Pause suspends event processing after the in-flight event completes.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused || e.status.Terminal() {
		return
	}
	e.paused = true
	e.resumed = make(chan struct{})
}

// Resume lifts a pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	close(e.resumed)
}

// Cancel stops the run; remaining queued events are discarded. Idempotent,
// and a no-op once the run reached another terminal state.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.status.Terminal() {
		e.mu.Unlock()
		return
	}
	e.status = model.StatusCancelled
	if e.paused {
		e.paused = false
		close(e.resumed)
	}
	cancel := e.cancelRun
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.logger.Info("backtest cancelled")
}

// fire invokes observers one by one, recovering panics so a broken observer
// cannot kill the run.
func fire[T any](logger *slog.Logger, name string, fns []func(T), v T) {
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("callback panicked", "event", name, "panic", r)
				}
			}()
			fn(v)
		}()
	}
}
