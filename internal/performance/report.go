package performance

// GenerateReport flattens the three metric blocks into the nested map shape
// served by the API and printed by the CLI. Percentages in the summary block
// are on a 0-100 scale; everything else is a raw ratio.
func (c *Calculator) GenerateReport() map[string]any {
	metrics := c.PerformanceMetrics()
	risk := c.GetRiskMetrics()
	trades := c.AnalyzeTrades()

	finalValue := c.values[len(c.values)-1]

	report := map[string]any{
		"summary": map[string]any{
			"initial_capital":       c.initialCapital,
			"final_value":           finalValue,
			"total_return_pct":      metrics.TotalReturn * 100,
			"annualized_return_pct": metrics.AnnualizedReturn * 100,
			"max_drawdown_pct":      metrics.MaxDrawdown * 100,
			"sharpe_ratio":          metrics.SharpeRatio,
			"win_rate_pct":          metrics.WinRate * 100,
		},
		"performance_metrics": map[string]any{
			"total_return":      metrics.TotalReturn,
			"annualized_return": metrics.AnnualizedReturn,
			"volatility":        metrics.Volatility,
			"max_drawdown":      metrics.MaxDrawdown,
			"sharpe_ratio":      metrics.SharpeRatio,
			"sortino_ratio":     metrics.SortinoRatio,
			"calmar_ratio":      metrics.CalmarRatio,
			"best_day":          metrics.BestDay,
			"worst_day":         metrics.WorstDay,
		},
		"risk_metrics": map[string]any{
			"var_95":             risk.ValueAtRisk95,
			"var_99":             risk.ValueAtRisk99,
			"cvar_95":            risk.ConditionalVaR95,
			"cvar_99":            risk.ConditionalVaR99,
			"downside_deviation": risk.DownsideDeviation,
		},
		"trade_analysis": map[string]any{
			"total_trades":  trades.TotalTrades,
			"win_rate":      trades.WinRate,
			"profit_factor": trades.ProfitFactor,
			"average_win":   trades.AverageWin,
			"average_loss":  trades.AverageLoss,
			"largest_win":   trades.LargestWin,
			"largest_loss":  trades.LargestLoss,
			"expectancy":    trades.Expectancy,
		},
	}

	if risk.Beta != nil {
		report["risk_metrics"].(map[string]any)["beta"] = *risk.Beta
	}
	if risk.Alpha != nil {
		report["risk_metrics"].(map[string]any)["alpha"] = *risk.Alpha
	}
	return report
}
