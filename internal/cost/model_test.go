package cost

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-backtest/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newModel(t *testing.T, p Params) *Model {
	t.Helper()
	m, err := NewModel(p)
	require.NoError(t, err)
	return m
}

// unclamped builds a model without the min/max commission clamp so that the
// raw rate maths is observable.
func unclamped(t *testing.T) *Model {
	p := DefaultParams()
	p.MinCommission = decimal.Zero
	p.MaxCommission = decimal.Zero
	return newModel(t, p)
}

func TestNewModelValidation(t *testing.T) {
	p := DefaultParams()
	p.CommissionRate = d("-0.001")
	_, err := NewModel(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.Tiers = []CommissionTier{
		{Limit: decimal.NewFromInt(1000), Rate: d("0.002")},
		{Limit: decimal.NewFromInt(500), Rate: d("0.001")},
		{Rate: d("0.0005")},
	}
	_, err = NewModel(p)
	assert.Error(t, err, "tier limits must be strictly increasing")

	p = DefaultParams()
	p.Tiers = []CommissionTier{
		{Limit: decimal.NewFromInt(1000), Rate: d("0.002")},
		{Limit: decimal.NewFromInt(2000), Rate: d("0.001")},
	}
	_, err = NewModel(p)
	assert.Error(t, err, "final tier must be unbounded")
}

func TestFlatCommissionClamped(t *testing.T) {
	m := newModel(t, DefaultParams())

	// 0.15% of 100,000 = 150, below the 1,000 floor.
	assert.True(t, m.Commission(d("100000"), false).Equal(d("1000")))

	// 0.15% of 7,000,000 = 10,500, inside the clamp.
	assert.True(t, m.Commission(d("7000000"), false).Equal(d("10500")))

	// 0.15% of 100,000,000 = 150,000, above the 100,000 cap.
	assert.True(t, m.Commission(d("100000000"), false).Equal(d("100000")))
}

func TestProgressiveCommissionIsContinuousAtTierBoundaries(t *testing.T) {
	m := unclamped(t)

	boundaries := []struct {
		limit    decimal.Decimal
		nextRate decimal.Decimal
	}{
		{decimal.NewFromInt(1_000_000), d("0.0015")},
		{decimal.NewFromInt(10_000_000), d("0.001")},
		{decimal.NewFromInt(100_000_000), d("0.0005")},
	}
	step := decimal.NewFromInt(1000)
	for _, b := range boundaries {
		at := m.Commission(b.limit, true)
		after := m.Commission(b.limit.Add(step), true)

		// Marginal rates: the notional above the boundary is charged at the
		// next tier's rate only. No jump as notional crosses the boundary.
		diff := after.Sub(at)
		assert.True(t, diff.Equal(b.nextRate.Mul(step)), "boundary %s: diff %s", b.limit, diff)
		assert.False(t, after.LessThan(at), "boundary %s: commission decreased", b.limit)
	}
}

func TestProgressiveCommissionLadder(t *testing.T) {
	m := unclamped(t)

	// 5,000,000 = 1M @0.2% + 4M @0.15% = 2000 + 6000.
	assert.True(t, m.Commission(d("5000000"), true).Equal(d("8000")))

	// 150,000,000 = 1M@0.2% + 9M@0.15% + 90M@0.1% + 50M@0.05%
	//             = 2000 + 13500 + 90000 + 25000 = 130,500.
	assert.True(t, m.Commission(d("150000000"), true).Equal(d("130500")))
}

func TestTaxBuyIsFreeAndSellIsInstrumentSpecific(t *testing.T) {
	m := newModel(t, DefaultParams())
	notional := d("7000000")

	assert.True(t, m.Tax(notional, model.SideBuy, model.InstrumentStock).IsZero())
	assert.True(t, m.Tax(notional, model.SideSell, model.InstrumentStock).Equal(notional.Mul(d("0.003"))))
	assert.True(t, m.Tax(notional, model.SideSell, model.InstrumentETF).Equal(notional.Mul(d("0.0008"))))
	assert.True(t, m.Tax(notional, model.SideSell, model.InstrumentREIT).Equal(notional.Mul(d("0.0035"))))
	assert.True(t, m.Tax(notional, model.SideSell, model.InstrumentBond).IsZero())
	assert.True(t, m.Tax(notional, model.SideSell, model.InstrumentDerivative).IsZero())

	// Unknown instruments fall back to the flat tax rate.
	assert.True(t, m.Tax(notional, model.SideSell, "").Equal(notional.Mul(d("0.003"))))
}

func TestSlippageBucketsAndTimeOfDay(t *testing.T) {
	m := newModel(t, DefaultParams())
	price := d("70000")

	// qty 100 -> medium bucket, no time adjustment: 70000 * 0.001 * 100.
	base := m.Slippage(price, 100, time.Time{}, 0)
	assert.True(t, base.Equal(d("7000")), "base = %s", base)

	open := time.Date(2023, 6, 15, 9, 10, 0, 0, time.UTC)
	closeT := time.Date(2023, 6, 15, 15, 20, 0, 0, time.UTC)
	regular := time.Date(2023, 6, 15, 11, 0, 0, 0, time.UTC)
	after := time.Date(2023, 6, 15, 18, 0, 0, 0, time.UTC)

	assert.True(t, m.Slippage(price, 100, open, 0).Equal(base.Mul(d("1.2"))))
	assert.True(t, m.Slippage(price, 100, closeT, 0).Equal(base.Mul(d("1.1"))))
	assert.True(t, m.Slippage(price, 100, regular, 0).Equal(base))
	assert.True(t, m.Slippage(price, 100, after, 0).Equal(base.Mul(d("2"))))
}

func TestSlippageParticipationBuckets(t *testing.T) {
	m := newModel(t, DefaultParams())

	// With volume data the bucket follows quantity/volume, not absolute size.
	assert.Equal(t, model.TradeSizeSmall, m.TradeSizeOf(1000, 100000))  // 1%
	assert.Equal(t, model.TradeSizeMedium, m.TradeSizeOf(5000, 100000)) // 5%
	assert.Equal(t, model.TradeSizeLarge, m.TradeSizeOf(10000, 100000)) // 10%
	assert.Equal(t, model.TradeSizeHuge, m.TradeSizeOf(20000, 100000))  // 20%

	// Without volume data absolute thresholds apply.
	assert.Equal(t, model.TradeSizeSmall, m.TradeSizeOf(99, 0))
	assert.Equal(t, model.TradeSizeMedium, m.TradeSizeOf(999, 0))
	assert.Equal(t, model.TradeSizeLarge, m.TradeSizeOf(9999, 0))
	assert.Equal(t, model.TradeSizeHuge, m.TradeSizeOf(10000, 0))
}

func TestMarketConditionScalesCosts(t *testing.T) {
	base := newModel(t, DefaultParams())
	price, notional := d("70000"), d("7000000")

	sideways := base.Slippage(price, 100, time.Time{}, 0)
	assert.True(t, base.WithCondition(model.MarketBull).Slippage(price, 100, time.Time{}, 0).Equal(sideways.Mul(d("0.8"))))
	assert.True(t, base.WithCondition(model.MarketBear).Slippage(price, 100, time.Time{}, 0).Equal(sideways.Mul(d("1.2"))))
	assert.True(t, base.WithCondition(model.MarketVolatile).Slippage(price, 100, time.Time{}, 0).Equal(sideways.Mul(d("1.5"))))

	spread := base.SpreadCost(notional, time.Time{})
	assert.True(t, spread.Equal(d("3500")), "normal spread is half of 0.1%% of notional")
	assert.True(t, base.WithCondition(model.MarketVolatile).SpreadCost(notional, time.Time{}).Equal(spread.Mul(d("1.5"))))
}

func TestMarketImpactPiecewise(t *testing.T) {
	m := newModel(t, DefaultParams())
	notional := d("1000000")

	// ratio 0.5% -> flat 0.01% coefficient.
	assert.True(t, m.MarketImpact(notional, 500, 100000).Equal(d("100")))
	// ratio 4% -> 0.04 * 0.01 = 0.0004.
	assert.True(t, m.MarketImpact(notional, 4000, 100000).Equal(d("400")))
	// ratio 8% -> 0.08 * 0.02 = 0.0016.
	assert.True(t, m.MarketImpact(notional, 8000, 100000).Equal(d("1600")))
	// ratio 20% -> 0.2 * 0.05 = 0.01.
	assert.True(t, m.MarketImpact(notional, 20000, 100000).Equal(d("10000")))

	// No volume data: size-bucket fallback (qty 500 -> medium 0.05%).
	assert.True(t, m.MarketImpact(notional, 500, 0).Equal(d("500")))
}

func TestCalculateTotalCostComponents(t *testing.T) {
	m := newModel(t, DefaultParams())

	costs := m.CalculateTotalCost(Quote{
		Price:      d("70000"),
		Quantity:   100,
		Side:       model.SideSell,
		Instrument: model.InstrumentStock,
	})

	assert.True(t, costs.Commission.Equal(d("10500")))
	assert.True(t, costs.Tax.Equal(d("21000")))
	assert.True(t, costs.Slippage.Equal(d("7000")))
	assert.True(t, costs.Spread.Equal(d("3500")))
	assert.True(t, costs.MarketImpact.Equal(d("3500")))
	assert.True(t, costs.OtherFees.Equal(d("140")))
	assert.True(t, costs.Total().Equal(d("45640")))
}

func TestCostsAreRoundedToTwoDigits(t *testing.T) {
	m := unclamped(t)

	// 0.15% of 333 = 0.4995 -> 0.50 half-up.
	assert.True(t, m.Commission(d("333"), false).Equal(d("0.5")))
	assert.True(t, m.Tax(d("333"), model.SideSell, model.InstrumentStock).Equal(d("1")))
}

func TestOptimizeExecutionPrefersCheaperBuckets(t *testing.T) {
	p := DefaultParams()
	p.MinCommission = decimal.Zero
	p.MaxCommission = decimal.Zero
	m := newModel(t, p)

	single := m.CalculateTotalCost(Quote{Price: d("10000"), Quantity: 10000, Side: model.SideBuy}).Total()
	best := m.OptimizeExecution(10000, d("10000"), model.SideBuy, 4)

	// 10,000 shares sit in the huge bucket; two 5,000-share children drop to
	// the large bucket and cost strictly less in slippage and impact.
	require.Len(t, best.Quantities, 2)
	assert.Equal(t, int64(5000), best.Quantities[0])
	assert.True(t, best.TotalCost.LessThan(single))
}

func TestOptimizeExecutionOnlyExactDivisors(t *testing.T) {
	m := newModel(t, DefaultParams())

	// 7 is prime: no split is possible, the single order wins by default.
	best := m.OptimizeExecution(7, d("10000"), model.SideBuy, 5)
	assert.Equal(t, []int64{7}, best.Quantities)
}

func TestGetBreakdownSharesSumToOne(t *testing.T) {
	m := newModel(t, DefaultParams())
	b := m.GetBreakdown(Quote{Price: d("70000"), Quantity: 100, Side: model.SideSell, Instrument: model.InstrumentStock})

	require.NotEmpty(t, b.Components)
	sum := decimal.Zero
	for _, c := range b.Components {
		sum = sum.Add(c.Ratio)
	}
	assert.True(t, sum.Sub(decimal.NewFromInt(1)).Abs().LessThan(d("0.001")), "shares sum to ~1, got %s", sum)
	assert.Equal(t, model.TradeSizeMedium, b.TradeSize)
}
