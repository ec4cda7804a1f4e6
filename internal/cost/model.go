// Package cost implements the transaction cost model: commission, tax,
// slippage, spread and market-impact estimation for simulated fills. The model
// is a pure function of its inputs; all monetary outputs are rounded to two
// fractional digits, half up.
package cost

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-backtest/internal/model"
)

// Components is one fill's cost breakdown. Every component is >= 0.
type Components struct {
	Commission   decimal.Decimal `json:"commission"`
	Tax          decimal.Decimal `json:"tax"`
	Slippage     decimal.Decimal `json:"slippage"`
	Spread       decimal.Decimal `json:"spread"`
	MarketImpact decimal.Decimal `json:"market_impact"`
	OtherFees    decimal.Decimal `json:"other_fees"`
}

// Total is the sum of all components.
func (c Components) Total() decimal.Decimal {
	return c.Commission.Add(c.Tax).Add(c.Slippage).Add(c.Spread).Add(c.MarketImpact).Add(c.OtherFees)
}

// CommissionTier is one rung of the progressive commission ladder. The rate is
// marginal: it applies only to the notional between the previous tier's limit
// and this one's. A zero Limit marks the unbounded final tier.
type CommissionTier struct {
	Limit decimal.Decimal `json:"limit" yaml:"limit"`
	Rate  decimal.Decimal `json:"rate" yaml:"rate"`
}

// Params configures a Model. Zero-value fields fall back per field comment.
type Params struct {
	CommissionRate decimal.Decimal // flat commission rate on notional
	TaxRate        decimal.Decimal // fallback sell-side tax rate for unknown instruments
	SlippageRate   decimal.Decimal // reported base rate; bucket rates below drive the estimate
	MinCommission  decimal.Decimal // floor applied after rate calculation
	MaxCommission  decimal.Decimal // cap; zero means uncapped
	Tiers          []CommissionTier
	Condition      model.MarketCondition // defaults to sideways
}

// DefaultParams mirrors a Korean retail brokerage fee schedule: 0.15%
// commission clamped to [1000, 100000] KRW, 0.3% sell tax.
func DefaultParams() Params {
	return Params{
		CommissionRate: decimal.RequireFromString("0.0015"),
		TaxRate:        decimal.RequireFromString("0.003"),
		SlippageRate:   decimal.RequireFromString("0.001"),
		MinCommission:  decimal.NewFromInt(1000),
		MaxCommission:  decimal.NewFromInt(100000),
		Tiers:          DefaultTiers(),
		Condition:      model.MarketSideways,
	}
}

// DefaultTiers is the progressive ladder: 0.2% up to 1M, 0.15% up to 10M,
// 0.1% up to 100M, 0.05% beyond. Marginal rates keep the ladder continuous
// across every boundary.
func DefaultTiers() []CommissionTier {
	return []CommissionTier{
		{Limit: decimal.NewFromInt(1_000_000), Rate: decimal.RequireFromString("0.002")},
		{Limit: decimal.NewFromInt(10_000_000), Rate: decimal.RequireFromString("0.0015")},
		{Limit: decimal.NewFromInt(100_000_000), Rate: decimal.RequireFromString("0.001")},
		{Rate: decimal.RequireFromString("0.0005")},
	}
}

// Model estimates transaction costs. It is stateless apart from its
// configuration and safe for concurrent use.
type Model struct {
	params Params

	volumeSlippage    map[model.TradeSize]decimal.Decimal
	impactFallback    map[model.TradeSize]decimal.Decimal
	timeSpreads       map[timePeriod]decimal.Decimal
	marketMultipliers map[model.MarketCondition]decimal.Decimal
	taxRates          map[model.InstrumentType]decimal.Decimal
	otherFeeRates     map[model.InstrumentType]decimal.Decimal
}

type timePeriod string

const (
	periodMarketOpen  timePeriod = "market_open"
	periodNormal      timePeriod = "normal"
	periodMarketClose timePeriod = "market_close"
	periodAfterHours  timePeriod = "after_hours"
)

// NewModel validates the parameters and builds a model. Tier limits must be
// strictly increasing with exactly one unbounded final tier.
func NewModel(p Params) (*Model, error) {
	if p.CommissionRate.IsNegative() || p.TaxRate.IsNegative() || p.SlippageRate.IsNegative() {
		return nil, fmt.Errorf("cost rates must be non-negative")
	}
	if p.MinCommission.IsNegative() {
		return nil, fmt.Errorf("min commission must be non-negative")
	}
	if p.MaxCommission.IsPositive() && p.MaxCommission.LessThan(p.MinCommission) {
		return nil, fmt.Errorf("max commission %s below min commission %s", p.MaxCommission, p.MinCommission)
	}
	if p.Condition == "" {
		p.Condition = model.MarketSideways
	}
	if len(p.Tiers) == 0 {
		p.Tiers = DefaultTiers()
	}
	for i, tier := range p.Tiers {
		if tier.Rate.IsNegative() {
			return nil, fmt.Errorf("tier %d: rate must be non-negative", i)
		}
		last := i == len(p.Tiers)-1
		if last {
			if !tier.Limit.IsZero() {
				return nil, fmt.Errorf("final tier must be unbounded")
			}
			continue
		}
		if !tier.Limit.IsPositive() {
			return nil, fmt.Errorf("tier %d: limit must be positive", i)
		}
		if i > 0 && !tier.Limit.GreaterThan(p.Tiers[i-1].Limit) {
			return nil, fmt.Errorf("tier %d: limits must be strictly increasing", i)
		}
	}

	return &Model{
		params: p,
		volumeSlippage: map[model.TradeSize]decimal.Decimal{
			model.TradeSizeSmall:  decimal.RequireFromString("0.0005"),
			model.TradeSizeMedium: decimal.RequireFromString("0.001"),
			model.TradeSizeLarge:  decimal.RequireFromString("0.002"),
			model.TradeSizeHuge:   decimal.RequireFromString("0.005"),
		},
		impactFallback: map[model.TradeSize]decimal.Decimal{
			model.TradeSizeSmall:  decimal.RequireFromString("0.0001"),
			model.TradeSizeMedium: decimal.RequireFromString("0.0005"),
			model.TradeSizeLarge:  decimal.RequireFromString("0.001"),
			model.TradeSizeHuge:   decimal.RequireFromString("0.003"),
		},
		timeSpreads: map[timePeriod]decimal.Decimal{
			periodMarketOpen:  decimal.RequireFromString("0.002"),
			periodNormal:      decimal.RequireFromString("0.001"),
			periodMarketClose: decimal.RequireFromString("0.0015"),
			periodAfterHours:  decimal.RequireFromString("0.005"),
		},
		marketMultipliers: map[model.MarketCondition]decimal.Decimal{
			model.MarketBull:     decimal.RequireFromString("0.8"),
			model.MarketBear:     decimal.RequireFromString("1.2"),
			model.MarketSideways: decimal.RequireFromString("1.0"),
			model.MarketVolatile: decimal.RequireFromString("1.5"),
		},
		taxRates: map[model.InstrumentType]decimal.Decimal{
			model.InstrumentStock:      decimal.RequireFromString("0.003"),
			model.InstrumentETF:        decimal.RequireFromString("0.0008"),
			model.InstrumentREIT:       decimal.RequireFromString("0.0035"),
			model.InstrumentBond:       decimal.Zero,
			model.InstrumentDerivative: decimal.Zero,
		},
		otherFeeRates: map[model.InstrumentType]decimal.Decimal{
			model.InstrumentStock:      decimal.RequireFromString("0.00002"),
			model.InstrumentETF:        decimal.RequireFromString("0.00001"),
			model.InstrumentREIT:       decimal.RequireFromString("0.00003"),
			model.InstrumentBond:       decimal.RequireFromString("0.00001"),
			model.InstrumentDerivative: decimal.RequireFromString("0.0001"),
		},
	}, nil
}

// Condition returns the configured market condition.
func (m *Model) Condition() model.MarketCondition { return m.params.Condition }

// WithCondition returns a copy of the model under a different market
// condition. The receiver is untouched.
func (m *Model) WithCondition(c model.MarketCondition) *Model {
	clone := *m
	clone.params.Condition = c
	return &clone
}

func (m *Model) conditionMultiplier() decimal.Decimal {
	if mult, ok := m.marketMultipliers[m.params.Condition]; ok {
		return mult
	}
	return decimal.NewFromInt(1)
}

// Commission computes the flat (or progressive) commission on a notional,
// clamped to [MinCommission, MaxCommission].
func (m *Model) Commission(notional decimal.Decimal, progressive bool) decimal.Decimal {
	var commission decimal.Decimal
	if progressive {
		commission = m.progressiveCommission(notional)
	} else {
		commission = notional.Mul(m.params.CommissionRate)
	}
	if commission.LessThan(m.params.MinCommission) {
		commission = m.params.MinCommission
	}
	if m.params.MaxCommission.IsPositive() && commission.GreaterThan(m.params.MaxCommission) {
		commission = m.params.MaxCommission
	}
	return round2(commission)
}

func (m *Model) progressiveCommission(notional decimal.Decimal) decimal.Decimal {
	remaining := notional
	total := decimal.Zero
	prevLimit := decimal.Zero

	for _, tier := range m.params.Tiers {
		if !remaining.IsPositive() {
			break
		}
		if tier.Limit.IsZero() { // unbounded final tier
			total = total.Add(remaining.Mul(tier.Rate))
			break
		}
		band := decimal.Min(remaining, tier.Limit.Sub(prevLimit))
		if band.IsPositive() {
			total = total.Add(band.Mul(tier.Rate))
			remaining = remaining.Sub(band)
			prevLimit = tier.Limit
		}
	}
	return total
}

// Tax is zero on buys; on sells it applies the instrument-specific rate to the
// notional. Unknown instruments use the fallback tax rate.
func (m *Model) Tax(notional decimal.Decimal, side model.Side, instrument model.InstrumentType) decimal.Decimal {
	if side == model.SideBuy {
		return decimal.Zero
	}
	rate, ok := m.taxRates[instrument]
	if !ok {
		rate = m.params.TaxRate
	}
	return round2(notional.Mul(rate))
}

// Slippage estimates execution drift: a size-bucket base rate, adjusted for
// time of day and market condition, applied to the notional. A zero tradeTime
// means "time unknown" and skips the time-of-day adjustment; a zero
// dailyAvgVolume falls back to absolute-quantity buckets.
func (m *Model) Slippage(price decimal.Decimal, quantity int64, tradeTime time.Time, dailyAvgVolume int64) decimal.Decimal {
	rate := m.volumeSlippage[m.tradeSize(quantity, dailyAvgVolume)]
	if !tradeTime.IsZero() {
		rate = rate.Mul(timeMultiplier(tradeTime))
	}
	rate = rate.Mul(m.conditionMultiplier())
	return round2(price.Mul(rate).Mul(decimal.NewFromInt(quantity)))
}

// TradeSizeOf buckets an order. With volume data the bucket follows the
// participation ratio (<=1%, <=5%, <=10%, >10%); otherwise absolute quantity
// thresholds apply.
func (m *Model) TradeSizeOf(quantity, dailyAvgVolume int64) model.TradeSize {
	return m.tradeSize(quantity, dailyAvgVolume)
}

func (m *Model) tradeSize(quantity, dailyAvgVolume int64) model.TradeSize {
	if dailyAvgVolume > 0 {
		ratio := decimal.NewFromInt(quantity).Div(decimal.NewFromInt(dailyAvgVolume))
		switch {
		case ratio.LessThanOrEqual(decimal.RequireFromString("0.01")):
			return model.TradeSizeSmall
		case ratio.LessThanOrEqual(decimal.RequireFromString("0.05")):
			return model.TradeSizeMedium
		case ratio.LessThanOrEqual(decimal.RequireFromString("0.1")):
			return model.TradeSizeLarge
		default:
			return model.TradeSizeHuge
		}
	}
	switch {
	case quantity < 100:
		return model.TradeSizeSmall
	case quantity < 1000:
		return model.TradeSizeMedium
	case quantity < 10000:
		return model.TradeSizeLarge
	default:
		return model.TradeSizeHuge
	}
}

// MarketImpact estimates the cost of the order moving the market: a piecewise
// function of participation ratio (coefficients grow with the ratio), scaled
// by market condition. Without volume data a size-bucket default applies.
func (m *Model) MarketImpact(notional decimal.Decimal, quantity, dailyAvgVolume int64) decimal.Decimal {
	var rate decimal.Decimal
	if dailyAvgVolume > 0 {
		ratio := decimal.NewFromInt(quantity).Div(decimal.NewFromInt(dailyAvgVolume))
		rate = impactRate(ratio)
	} else {
		rate = m.impactFallback[m.tradeSize(quantity, 0)]
	}
	rate = rate.Mul(m.conditionMultiplier())
	return round2(notional.Mul(rate))
}

func impactRate(ratio decimal.Decimal) decimal.Decimal {
	switch {
	case ratio.LessThanOrEqual(decimal.RequireFromString("0.01")):
		return decimal.RequireFromString("0.0001")
	case ratio.LessThanOrEqual(decimal.RequireFromString("0.05")):
		return ratio.Mul(decimal.RequireFromString("0.01"))
	case ratio.LessThanOrEqual(decimal.RequireFromString("0.1")):
		return ratio.Mul(decimal.RequireFromString("0.02"))
	default:
		return ratio.Mul(decimal.RequireFromString("0.05"))
	}
}

// SpreadCost charges half the time-of-day spread rate on the notional, scaled
// by market condition.
func (m *Model) SpreadCost(notional decimal.Decimal, tradeTime time.Time) decimal.Decimal {
	period := periodNormal
	if !tradeTime.IsZero() {
		period = classifyTime(tradeTime)
	}
	rate := m.timeSpreads[period].Mul(m.conditionMultiplier())
	return round2(notional.Mul(rate).Mul(decimal.RequireFromString("0.5")))
}

func (m *Model) otherFees(notional decimal.Decimal, instrument model.InstrumentType) decimal.Decimal {
	rate, ok := m.otherFeeRates[instrument]
	if !ok {
		rate = m.otherFeeRates[model.InstrumentStock]
	}
	return round2(notional.Mul(rate))
}

// Quote bundles the inputs of a total-cost calculation. An empty Instrument
// charges tax at the model's flat rate instead of an instrument-specific one.
type Quote struct {
	Price          decimal.Decimal
	Quantity       int64
	Side           model.Side
	TradeTime      time.Time // zero = unknown
	DailyAvgVolume int64     // 0 = unknown
	Instrument     model.InstrumentType
	Progressive    bool
}

// CalculateTotalCost computes the full breakdown for one prospective fill.
func (m *Model) CalculateTotalCost(q Quote) Components {
	notional := q.Price.Mul(decimal.NewFromInt(q.Quantity))
	return Components{
		Commission:   m.Commission(notional, q.Progressive),
		Tax:          m.Tax(notional, q.Side, q.Instrument),
		Slippage:     m.Slippage(q.Price, q.Quantity, q.TradeTime, q.DailyAvgVolume),
		Spread:       m.SpreadCost(notional, q.TradeTime),
		MarketImpact: m.MarketImpact(notional, q.Quantity, q.DailyAvgVolume),
		OtherFees:    m.otherFees(notional, q.Instrument),
	}
}

// Market session boundaries, KRX hours: open 09:00, close 15:30.
// The first 30 minutes and the last 15 minutes trade at elevated cost.
func classifyTime(t time.Time) timePeriod {
	hour, minute := t.Hour(), t.Minute()
	switch {
	case hour == 9 && minute < 30:
		return periodMarketOpen
	case hour == 15 && minute >= 15:
		return periodMarketClose
	case (hour >= 9 && hour < 15) || (hour == 15 && minute < 15):
		return periodNormal
	default:
		return periodAfterHours
	}
}

func timeMultiplier(t time.Time) decimal.Decimal {
	switch classifyTime(t) {
	case periodMarketOpen:
		return decimal.RequireFromString("1.2")
	case periodMarketClose:
		return decimal.RequireFromString("1.1")
	case periodAfterHours:
		return decimal.RequireFromString("2.0")
	default:
		return decimal.NewFromInt(1)
	}
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
