package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-backtest/internal/api/models"
	"stock-backtest/internal/strategy"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	runs := NewRunManager()
	registry := strategy.NewDefaultRegistry()
	backtests := NewBacktestHandler(runs, registry, logger)
	strategies := NewStrategyHandler(registry)

	router := gin.New()
	api := router.Group("/api/v1")
	{
		api.POST("/backtest", backtests.RunBacktest)
		api.GET("/backtest/:id/progress", backtests.GetProgress)
		api.POST("/backtest/:id/cancel", backtests.CancelBacktest)
		api.GET("/backtest/:id/report", backtests.GetReport)
		api.GET("/strategies", strategies.ListStrategies)
	}
	return router
}

func writeCandles(t *testing.T) string {
	t.Helper()
	rows := []string{"symbol,timestamp,open,high,low,close,volume"}
	closes := []string{"100", "100", "100", "120", "80", "60"}
	for i, c := range closes {
		day := time.Date(2023, 1, 2, 15, 30, 0, 0, time.UTC).AddDate(0, 0, i)
		rows = append(rows, fmt.Sprintf("005930,%s,%s,%s,%s,%s,100000",
			day.Format("2006-01-02 15:04:05"), c, c, c, c))
	}
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))
	return path
}

func submit(t *testing.T, router *gin.Engine, body string) models.RunStarted {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var started models.RunStarted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.ID)
	return started
}

func waitTerminal(t *testing.T, router *gin.Engine, id string) models.ProgressResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/backtest/"+id+"/progress", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var p models.ProgressResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		switch p.Status {
		case "completed", "failed", "cancelled":
			return p
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return models.ProgressResponse{}
}

func TestBacktestLifecycle(t *testing.T) {
	router := testRouter()
	dataFile := writeCandles(t)

	body := fmt.Sprintf(`{
		"backtest": {
			"start_date": "2023-01-01",
			"end_date": "2023-01-31",
			"initial_capital": 10000000
		},
		"strategy": {
			"name": "ma_crossover",
			"symbols": ["005930"],
			"params": {"short_period": 2, "long_period": 3}
		},
		"data": {"file": %q}
	}`, dataFile)

	started := submit(t, router, body)
	assert.Contains(t, []string{"pending", "running"}, started.Status)

	final := waitTerminal(t, router, started.ID)
	require.Equal(t, "completed", final.Status)
	assert.Equal(t, int64(6), final.ProcessedEvents)
	assert.Equal(t, 100.0, final.ProgressPercentage)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/backtest/"+started.ID+"/report?include_transactions=true", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, "ma_crossover", report.Summary.StrategyName)
	assert.Equal(t, "10000000", report.Summary.InitialCapital)
	assert.NotEmpty(t, report.Performance, "six trading days give a full metric set")
	assert.GreaterOrEqual(t, report.Summary.TotalTrades, 1, "the crossover fires at least once")
	assert.Len(t, report.Transactions, report.Summary.TotalTrades)
}

func TestBacktestRejectsBadRequests(t *testing.T) {
	router := testRouter()

	cases := map[string]string{
		"not json":         "nope",
		"missing strategy": `{"backtest":{"start_date":"2023-01-01","end_date":"2023-02-01","initial_capital":1000},"data":{"file":"x.csv"}}`,
		"missing data":     `{"backtest":{"start_date":"2023-01-01","end_date":"2023-02-01","initial_capital":1000},"strategy":{"name":"rsi"}}`,
		"unknown strategy": `{"backtest":{"start_date":"2023-01-01","end_date":"2023-02-01","initial_capital":1000},"strategy":{"name":"nope"},"data":{"file":"x.csv"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/backtest", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestBacktestUnknownRunID(t *testing.T) {
	router := testRouter()

	for _, route := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/backtest/missing/progress"},
		{http.MethodGet, "/api/v1/backtest/missing/report"},
		{http.MethodPost, "/api/v1/backtest/missing/cancel"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, route.path)
		assert.Contains(t, w.Body.String(), "RUN_NOT_FOUND")
	}
}

func TestListStrategies(t *testing.T) {
	router := testRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var out models.StrategyList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Strategies, 3)
	names := make([]string, 0, 3)
	for _, s := range out.Strategies {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"bollinger", "ma_crossover", "rsi"}, names)
}
