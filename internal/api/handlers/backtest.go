package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stock-backtest/internal/api/models"
	"stock-backtest/internal/backtest"
	"stock-backtest/internal/config"
	"stock-backtest/internal/cost"
	"stock-backtest/internal/data"
	"stock-backtest/internal/model"
	"stock-backtest/internal/performance"
	"stock-backtest/internal/strategy"
)

var hundred = decimal.NewFromInt(100)

// BacktestHandler serves the backtest lifecycle: submit, progress, cancel,
// report. Runs execute asynchronously; the submit response carries the id to
// poll with.
type BacktestHandler struct {
	runs     *RunManager
	registry *strategy.Registry
	logger   *slog.Logger
}

func NewBacktestHandler(runs *RunManager, registry *strategy.Registry, logger *slog.Logger) *BacktestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BacktestHandler{runs: runs, registry: registry, logger: logger}
}

// RunBacktest handles POST /api/v1/backtest.
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", err.Error()))
		return
	}

	cfg := req.ToConfig()
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}

	engine, err := h.buildEngine(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}

	id := uuid.NewString()
	r := &run{engine: engine}
	h.runs.add(id, r)

	go func() {
		if _, err := engine.Run(context.Background()); err != nil {
			r.setErr(err)
			h.logger.Error("backtest run failed", "id", id, "error", err)
		}
	}()

	h.logger.Info("backtest submitted", "id", id, "strategy", cfg.Strategy.Name)
	c.JSON(http.StatusAccepted, models.RunStarted{ID: id, Status: string(engine.Status())})
}

func (h *BacktestHandler) buildEngine(cfg *config.Config) (*backtest.Engine, error) {
	runCfg, err := cfg.BacktestConfig()
	if err != nil {
		return nil, err
	}
	provider, err := data.NewFileProvider(cfg.Data.File, cfg.Data.BatchSize)
	if err != nil {
		return nil, err
	}
	strat, err := h.registry.Create(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		return nil, err
	}
	costModel, err := cost.NewModel(cfg.CostParams())
	if err != nil {
		return nil, err
	}
	limits := cfg.PositionLimits()
	return backtest.NewEngine(runCfg, provider, strat, backtest.Options{
		Costs:  costModel,
		Limits: &limits,
		Logger: h.logger,
	})
}

// GetProgress handles GET /api/v1/backtest/:id/progress.
func (h *BacktestHandler) GetProgress(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	p := r.engine.Progress()
	c.JSON(http.StatusOK, models.ProgressResponse{
		ID:                 c.Param("id"),
		Status:             string(p.Status),
		ProgressPercentage: p.ProgressPercentage,
		CurrentDate:        p.CurrentDate,
		ProcessedEvents:    p.ProcessedEvents,
		TotalTrades:        p.TotalTrades,
		PortfolioCash:      p.PortfolioCash.String(),
	})
}

// CancelBacktest handles POST /api/v1/backtest/:id/cancel.
func (h *BacktestHandler) CancelBacktest(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	r.engine.Cancel()
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": string(r.engine.Status())})
}

// GetReport handles GET /api/v1/backtest/:id/report. The report exists only
// once the run reached a terminal state.
func (h *BacktestHandler) GetReport(c *gin.Context) {
	r, ok := h.lookup(c)
	if !ok {
		return
	}
	status := r.engine.Status()
	if !status.Terminal() {
		c.JSON(http.StatusConflict, models.NewError("RUN_NOT_FINISHED",
			fmt.Sprintf("run is %s; report is available once it finishes", status)))
		return
	}

	result := r.engine.Result()
	if result == nil {
		c.JSON(http.StatusConflict, models.NewError("RUN_NOT_FINISHED", "result not ready yet"))
		return
	}

	resp := buildReport(c.Param("id"), result)
	if err := r.runErr(); err != nil {
		resp.Error = err.Error()
	}
	if c.Query("include_transactions") == "true" {
		resp.Transactions = result.Transactions
	}
	c.JSON(http.StatusOK, resp)
}

func buildReport(id string, result *model.BacktestResult) models.ReportResponse {
	name, _ := result.Metadata["strategy_name"].(string)
	resp := models.ReportResponse{
		ID:     id,
		Status: string(result.Status),
		Summary: models.Summary{
			StrategyName:    name,
			InitialCapital:  result.Config.InitialCapital.String(),
			FinalValue:      result.TotalValue().String(),
			TotalReturnPct:  result.TotalReturn().Mul(hundred).Round(4).String(),
			AbsoluteProfit:  result.AbsoluteProfit().String(),
			TotalTrades:     len(result.Transactions),
			BuyCount:        result.BuyCount(),
			SellCount:       result.SellCount(),
			TotalCommission: result.TotalCommission().String(),
			TradingDays:     result.TradingPeriodDays(),
			ExecutionTimeMS: result.ExecutionTime().Milliseconds(),
		},
	}

	calc, err := performance.NewCalculator(
		result.Config.InitialCapital, result.DailyValues, result.DailyReturns,
		result.Transactions, performance.Options{})
	if err == nil {
		resp.Performance = calc.GenerateReport()
	}
	return resp
}

func (h *BacktestHandler) lookup(c *gin.Context) (*run, bool) {
	r, ok := h.runs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.NewError("RUN_NOT_FOUND",
			fmt.Sprintf("no backtest with id %s", c.Param("id"))))
		return nil, false
	}
	return r, true
}
