// Package strategy defines the trading-strategy plug-in surface, an explicit
// registry of named constructors and the bundled indicator-based strategies.
package strategy

import (
	"context"
	"log/slog"

	"stock-backtest/internal/model"
)

// Context is what a running strategy may inspect: the live portfolio and the
// run configuration. Strategies treat the portfolio as read-only; all
// mutation goes through signals.
type Context struct {
	Portfolio *model.Portfolio
	Config    model.BacktestConfig
	Logger    *slog.Logger
}

// Strategy is the plug-in interface the engine drives. OnData is called once
// per market event in chronological order; returned signals are validated and
// executed by the engine. OnOrderFilled and OnDayEnd are notifications and
// may be no-ops.
type Strategy interface {
	Name() string
	Version() string
	Description() string

	// Universe lists the symbols this instance trades; the engine streams
	// exactly these.
	Universe() []string

	Initialize(ctx context.Context, run *Context) error
	OnData(point model.MarketDataPoint) ([]model.Signal, error)
	OnOrderFilled(tx model.Transaction)
	OnDayEnd(date model.MarketDataPoint)
}

// Params is a loosely-typed parameter bag decoded from YAML or JSON. The
// accessors tolerate the numeric types both decoders produce.
type Params map[string]any

func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Strings reads a string slice, accepting the []any shape YAML and JSON
// decoders produce.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
