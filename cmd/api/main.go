package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"stock-backtest/internal/api/handlers"
	"stock-backtest/internal/api/middleware"
	"stock-backtest/internal/strategy"
)

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	registry := strategy.NewDefaultRegistry()
	runs := handlers.NewRunManager()
	backtests := handlers.NewBacktestHandler(runs, registry, logger)
	strategies := handlers.NewStrategyHandler(registry)

	router := gin.New()
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/backtest", backtests.RunBacktest)
		api.GET("/backtest/:id/progress", backtests.GetProgress)
		api.POST("/backtest/:id/cancel", backtests.CancelBacktest)
		api.GET("/backtest/:id/report", backtests.GetReport)
		api.GET("/strategies", strategies.ListStrategies)
	}

	addr := fmt.Sprintf(":%s", port)
	logger.Info("starting API server", "addr", addr)
	if err := router.Run(addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
