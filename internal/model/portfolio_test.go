package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddPositionDeductsNotionalPlusCommission(t *testing.T) {
	p := NewPortfolio("TEST", d("10000000"))

	pos, err := p.AddPosition("005930", 100, d("70000"), d("105"), testTime)
	require.NoError(t, err)

	// 100 * 70000 + 105 = 7,000,105
	assert.True(t, p.Cash.Equal(d("2999895")), "cash = %s", p.Cash)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.True(t, pos.AveragePrice.Equal(d("70000")))
	require.Len(t, p.Transactions, 1)
	assert.Equal(t, SideBuy, p.Transactions[0].Side)
	assert.True(t, p.Transactions[0].Commission.Equal(d("105")))
}

func TestAddPositionInsufficientCash(t *testing.T) {
	p := NewPortfolio("TEST", d("1000"))

	_, err := p.AddPosition("005930", 100, d("70000"), d("105"), testTime)
	require.ErrorIs(t, err, ErrInsufficientCash)
	assert.True(t, p.Cash.Equal(d("1000")), "cash must be untouched on rejection")
	assert.Empty(t, p.Positions)
	assert.Empty(t, p.Transactions)
}

func TestClosePositionRealizedPnL(t *testing.T) {
	p := NewPortfolio("TEST", d("10000000"))
	_, err := p.AddPosition("005930", 100, d("70000"), d("105"), testTime)
	require.NoError(t, err)

	pnl, err := p.ClosePosition("005930", d("75000"), d("112.5"), d("225"), testTime.Add(time.Hour))
	require.NoError(t, err)

	// 100*(75000-70000) - 112.5 - 225 = 499,662.5
	assert.True(t, pnl.Equal(d("499662.5")), "pnl = %s", pnl)
	assert.NotContains(t, p.Positions, "005930", "fully closed position must be removed, not zeroed")

	require.Len(t, p.Transactions, 2)
	sell := p.Transactions[1]
	assert.Equal(t, SideSell, sell.Side)
	assert.True(t, sell.RealizedPnL.Equal(d("499662.5")))
}

func TestWeightedAverageCost(t *testing.T) {
	p := NewPortfolio("TEST", d("100000000"))

	_, err := p.AddPosition("005930", 100, d("70000"), decimal.Zero, testTime)
	require.NoError(t, err)
	pos, err := p.AddPosition("005930", 50, d("76000"), decimal.Zero, testTime)
	require.NoError(t, err)

	// (100*70000 + 50*76000) / 150 = 72000
	assert.Equal(t, int64(150), pos.Quantity)
	assert.True(t, pos.AveragePrice.Equal(d("72000")), "avg = %s", pos.AveragePrice)

	// Reductions never change average cost.
	_, err = p.ReducePosition("005930", 50, d("80000"), decimal.Zero, decimal.Zero, testTime)
	require.NoError(t, err)
	assert.True(t, pos.AveragePrice.Equal(d("72000")))
	assert.Equal(t, int64(100), pos.Quantity)
}

func TestZeroCostRoundTripLeavesCashUnchanged(t *testing.T) {
	p := NewPortfolio("TEST", d("10000000"))

	_, err := p.AddPosition("035720", 40, d("51300"), decimal.Zero, testTime)
	require.NoError(t, err)
	_, err = p.ClosePosition("035720", d("51300"), decimal.Zero, decimal.Zero, testTime)
	require.NoError(t, err)

	assert.True(t, p.Cash.Equal(d("10000000")), "cash = %s", p.Cash)
}

func TestReducePositionInsufficientQuantity(t *testing.T) {
	p := NewPortfolio("TEST", d("10000000"))
	_, err := p.AddPosition("005930", 10, d("70000"), decimal.Zero, testTime)
	require.NoError(t, err)

	_, err = p.ReducePosition("005930", 11, d("70000"), decimal.Zero, decimal.Zero, testTime)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)

	_, err = p.ClosePosition("000000", d("1"), decimal.Zero, decimal.Zero, testTime)
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestValuateSkipsUnpricedSymbols(t *testing.T) {
	p := NewPortfolio("TEST", d("10000000"))
	_, err := p.AddPosition("005930", 10, d("70000"), decimal.Zero, testTime)
	require.NoError(t, err)
	_, err = p.AddPosition("035720", 10, d("50000"), decimal.Zero, testTime)
	require.NoError(t, err)

	v := p.Valuate(map[string]decimal.Decimal{"005930": d("71000")})

	assert.True(t, v.MarketValue.Equal(d("710000")))
	assert.True(t, v.UnrealizedPnL.Equal(d("10000")))
	assert.NotContains(t, v.Positions, "035720")
	assert.True(t, v.TotalValue.Equal(p.Cash.Add(d("710000"))))
}
