// Package portfolio implements the order-execution layer above the raw
// Portfolio entity: price resolution, position limits, optional external risk
// approval and valuation.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/cost"
	"stock-backtest/internal/model"
)

// PriceSource supplies a current price for a symbol. data.Provider satisfies
// this.
type PriceSource interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// RiskManager is an optional external order approver. A false return vetoes
// the order; the string carries the reason.
type RiskManager interface {
	ValidateOrder(ctx context.Context, symbol string, side model.Side, quantity int64, price decimal.Decimal) (bool, string)
}

// Limits caps order and position sizing.
type Limits struct {
	MaxPositionPercentage decimal.Decimal `json:"max_position_percentage" yaml:"max_position_percentage"`
	MaxSingleOrderValue   decimal.Decimal `json:"max_single_order_value" yaml:"max_single_order_value"`
}

// DefaultLimits allows single orders up to 1M KRW and positions up to 20% of
// available capital.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionPercentage: decimal.RequireFromString("0.2"),
		MaxSingleOrderValue:   decimal.NewFromInt(1_000_000),
	}
}

const defaultPriceCacheTTL = 5 * time.Second

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Manager executes orders against a Portfolio. One goroutine drives order
// execution during a run; the price cache alone is mutex-protected so that
// valuation reads from other goroutines (progress endpoints) stay safe.
type Manager struct {
	portfolio *model.Portfolio
	costs     *cost.Model
	prices    PriceSource
	risk      RiskManager
	limits    Limits
	logger    *slog.Logger
	cacheTTL  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

// Options configures optional Manager collaborators. The zero value is valid:
// no price source, no risk manager, default limits and TTL.
type Options struct {
	Prices   PriceSource
	Risk     RiskManager
	Limits   *Limits
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// NewManager wires a manager around an existing portfolio and cost model.
func NewManager(p *model.Portfolio, costModel *cost.Model, opts Options) *Manager {
	limits := DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultPriceCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		portfolio: p,
		costs:     costModel,
		prices:    opts.Prices,
		risk:      opts.Risk,
		limits:    limits,
		logger:    logger,
		cacheTTL:  ttl,
		now:       time.Now,
		cache:     make(map[string]cachedPrice),
	}
}

// Portfolio exposes the managed portfolio.
func (m *Manager) Portfolio() *model.Portfolio { return m.portfolio }

// ExecuteBuyOrder resolves a price (when the caller passed zero), validates
// cash, order and position limits plus the optional risk manager, and settles
// the fill. Rejections come back as Outcome values; the error return is
// reserved for invalid arguments.
func (m *Manager) ExecuteBuyOrder(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, validateRisk bool) (Outcome, error) {
	if symbol == "" || quantity <= 0 {
		return Outcome{}, fmt.Errorf("buy order: symbol and positive quantity required")
	}

	price, ok := m.orderPrice(ctx, symbol, price)
	if !ok {
		return rejected(RejectNoPrice, fmt.Sprintf("cannot resolve price for %s", symbol)), nil
	}

	notional := price.Mul(decimal.NewFromInt(quantity))
	commission := m.costs.Commission(notional, false)
	totalCost := notional.Add(commission)

	if out, ok := m.validateBuy(ctx, symbol, quantity, price, totalCost, validateRisk); !ok {
		m.logger.Debug("buy order rejected",
			"symbol", symbol, "quantity", quantity, "reason", string(out.Reason), "detail", out.Message)
		return out, nil
	}

	pos, err := m.portfolio.AddPosition(symbol, quantity, price, commission, m.now())
	if err != nil {
		if errors.Is(err, model.ErrInsufficientCash) {
			return rejected(RejectInsufficientCash, err.Error()), nil
		}
		return Outcome{}, err
	}

	m.logger.Info("buy order executed", "symbol", symbol, "quantity", quantity, "price", price.String())
	return Outcome{
		Accepted:    true,
		Position:    pos,
		Transaction: m.lastTransaction(),
		Costs:       cost.Components{Commission: commission},
	}, nil
}

// ExecuteSellOrder sells quantity shares (zero means the full held amount) at
// the given or resolved price, charging commission and sell tax. Returns the
// realized P&L in the outcome.
func (m *Manager) ExecuteSellOrder(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, validateRisk bool) (Outcome, error) {
	if symbol == "" || quantity < 0 {
		return Outcome{}, fmt.Errorf("sell order: symbol required, quantity must not be negative")
	}

	pos, held := m.portfolio.Positions[symbol]
	if !held {
		return rejected(RejectInsufficientHoldings, fmt.Sprintf("no position for %s", symbol)), nil
	}
	if quantity == 0 {
		quantity = pos.Quantity
	}
	if quantity > pos.Quantity {
		return rejected(RejectInsufficientHoldings,
			fmt.Sprintf("insufficient quantity: %d > %d", quantity, pos.Quantity)), nil
	}

	price, ok := m.orderPrice(ctx, symbol, price)
	if !ok {
		return rejected(RejectNoPrice, fmt.Sprintf("cannot resolve price for %s", symbol)), nil
	}

	if validateRisk && m.risk != nil {
		if approved, reason := m.risk.ValidateOrder(ctx, symbol, model.SideSell, quantity, price); !approved {
			return rejected(RejectRiskManager, reason), nil
		}
	}

	notional := price.Mul(decimal.NewFromInt(quantity))
	commission := m.costs.Commission(notional, false)
	tax := m.costs.Tax(notional, model.SideSell, "")
	return m.settleSell(symbol, pos, quantity, price, commission, tax)
}

// ApplyBuy settles a buy fill with costs the caller already computed. The
// affordability check covers notional, commission and slippage, but only
// notional plus commission leaves cash: slippage is an execution-quality
// estimate, not a cash outflow.
func (m *Manager) ApplyBuy(symbol string, quantity int64, price decimal.Decimal, costs cost.Components, at time.Time) (Outcome, error) {
	if symbol == "" || quantity <= 0 {
		return Outcome{}, fmt.Errorf("apply buy: symbol and positive quantity required")
	}

	notional := price.Mul(decimal.NewFromInt(quantity))
	required := notional.Add(costs.Commission).Add(costs.Slippage)
	if m.portfolio.Cash.LessThan(required) {
		return rejected(RejectInsufficientCash,
			fmt.Sprintf("insufficient cash: have %s, need %s", m.portfolio.Cash, required)), nil
	}

	pos, err := m.portfolio.AddPosition(symbol, quantity, price, costs.Commission, at)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientCash) {
			return rejected(RejectInsufficientCash, err.Error()), nil
		}
		return Outcome{}, err
	}
	return Outcome{
		Accepted:    true,
		Position:    pos,
		Transaction: m.lastTransaction(),
		Costs:       costs,
	}, nil
}

// ApplySell settles a sell fill with caller-computed costs. Zero quantity
// sells the full position.
func (m *Manager) ApplySell(symbol string, quantity int64, price decimal.Decimal, costs cost.Components, at time.Time) (Outcome, error) {
	if symbol == "" || quantity < 0 {
		return Outcome{}, fmt.Errorf("apply sell: symbol required, quantity must not be negative")
	}

	pos, held := m.portfolio.Positions[symbol]
	if !held {
		return rejected(RejectInsufficientHoldings, fmt.Sprintf("no position for %s", symbol)), nil
	}
	if quantity == 0 {
		quantity = pos.Quantity
	}
	if quantity > pos.Quantity {
		return rejected(RejectInsufficientHoldings,
			fmt.Sprintf("insufficient quantity: %d > %d", quantity, pos.Quantity)), nil
	}

	out, err := m.settleSellAt(symbol, pos, quantity, price, costs.Commission, costs.Tax, at)
	if err == nil && out.Accepted {
		out.Costs = costs
	}
	return out, err
}

func (m *Manager) settleSell(symbol string, pos *model.Position, quantity int64, price, commission, tax decimal.Decimal) (Outcome, error) {
	return m.settleSellAt(symbol, pos, quantity, price, commission, tax, m.now())
}

func (m *Manager) settleSellAt(symbol string, pos *model.Position, quantity int64, price, commission, tax decimal.Decimal, at time.Time) (Outcome, error) {
	var (
		pnl decimal.Decimal
		err error
	)
	if quantity == pos.Quantity {
		pnl, err = m.portfolio.ClosePosition(symbol, price, commission, tax, at)
	} else {
		pnl, err = m.portfolio.ReducePosition(symbol, quantity, price, commission, tax, at)
	}
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPositionNotFound), errors.Is(err, model.ErrInsufficientQuantity):
			return rejected(RejectInsufficientHoldings, err.Error()), nil
		default:
			return Outcome{}, err
		}
	}

	m.logger.Info("sell order executed",
		"symbol", symbol, "quantity", quantity, "price", price.String(), "realized_pnl", pnl.String())
	return Outcome{
		Accepted:    true,
		RealizedPnL: pnl,
		Transaction: m.lastTransaction(),
		Costs:       cost.Components{Commission: commission, Tax: tax},
	}, nil
}

func (m *Manager) validateBuy(ctx context.Context, symbol string, quantity int64, price, totalCost decimal.Decimal, validateRisk bool) (Outcome, bool) {
	if m.portfolio.Cash.LessThan(totalCost) {
		return rejected(RejectInsufficientCash,
			fmt.Sprintf("insufficient cash: have %s, need %s", m.portfolio.Cash, totalCost)), false
	}
	if totalCost.GreaterThan(m.limits.MaxSingleOrderValue) {
		return rejected(RejectLimitExceeded,
			fmt.Sprintf("order value %s exceeds single-order cap %s", totalCost, m.limits.MaxSingleOrderValue)), false
	}
	// Position sizing is measured against available cash, the capital the
	// order actually draws on.
	if m.portfolio.Cash.IsPositive() {
		ratio := totalCost.Div(m.portfolio.Cash)
		if ratio.GreaterThan(m.limits.MaxPositionPercentage) {
			return rejected(RejectLimitExceeded,
				fmt.Sprintf("position ratio %s exceeds cap %s", ratio.Round(4), m.limits.MaxPositionPercentage)), false
		}
	}
	if validateRisk && m.risk != nil {
		if approved, reason := m.risk.ValidateOrder(ctx, symbol, model.SideBuy, quantity, price); !approved {
			return rejected(RejectRiskManager, reason), false
		}
	}
	return Outcome{}, true
}

// GetPortfolioValuation prices every held symbol and sums market value.
// Symbols without a resolvable price are excluded rather than failing the
// whole valuation: a degraded result beats no result.
func (m *Manager) GetPortfolioValuation(ctx context.Context, useCache bool) model.Valuation {
	prices := make(map[string]decimal.Decimal, len(m.portfolio.Positions))
	for symbol := range m.portfolio.Positions {
		price, ok := m.resolvePrice(ctx, symbol, useCache)
		if !ok {
			m.logger.Warn("valuation: no price, symbol excluded", "symbol", symbol)
			continue
		}
		prices[symbol] = price
	}
	return m.portfolio.Valuate(prices)
}

func (m *Manager) orderPrice(ctx context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, bool) {
	if price.IsPositive() {
		return price, true
	}
	return m.resolvePrice(ctx, symbol, true)
}

// resolvePrice tries the cache, then the price source, then falls back to the
// symbol's most recent transaction price.
func (m *Manager) resolvePrice(ctx context.Context, symbol string, useCache bool) (decimal.Decimal, bool) {
	if useCache {
		if price, ok := m.cachedFresh(symbol); ok {
			return price, true
		}
	}

	if m.prices != nil {
		price, err := m.prices.GetCurrentPrice(ctx, symbol)
		if err == nil && price.IsPositive() {
			m.storePrice(symbol, price)
			return price, true
		}
		if err != nil {
			m.logger.Debug("price source miss", "symbol", symbol, "error", err)
		}
	}

	for i := len(m.portfolio.Transactions) - 1; i >= 0; i-- {
		if m.portfolio.Transactions[i].Symbol == symbol {
			return m.portfolio.Transactions[i].Price, true
		}
	}
	return decimal.Decimal{}, false
}

func (m *Manager) cachedFresh(symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[symbol]
	if !ok || m.now().Sub(entry.fetchedAt) >= m.cacheTTL {
		return decimal.Decimal{}, false
	}
	return entry.price, true
}

func (m *Manager) storePrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[symbol] = cachedPrice{price: price, fetchedAt: m.now()}
}

// SetPrice primes the cache directly; the engine feeds it the latest observed
// market price so valuations during a run never hit the external source.
func (m *Manager) SetPrice(symbol string, price decimal.Decimal) {
	m.storePrice(symbol, price)
}

func (m *Manager) lastTransaction() *model.Transaction {
	if len(m.portfolio.Transactions) == 0 {
		return nil
	}
	return &m.portfolio.Transactions[len(m.portfolio.Transactions)-1]
}
