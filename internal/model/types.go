package model

import (
	"fmt"
	"strings"
)

// Side is the direction of a fill or signal.
// Keep these values stable; they are intended for CSV/JSON output.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid side: %q", s)
	}
}

// InstrumentType selects instrument-specific rates in the cost model.
type InstrumentType string

const (
	InstrumentStock      InstrumentType = "stock"
	InstrumentETF        InstrumentType = "etf"
	InstrumentREIT       InstrumentType = "reit"
	InstrumentBond       InstrumentType = "bond"
	InstrumentDerivative InstrumentType = "derivative"
)

// MarketCondition scales slippage, spread and market-impact costs.
type MarketCondition string

const (
	MarketBull     MarketCondition = "bull"
	MarketBear     MarketCondition = "bear"
	MarketSideways MarketCondition = "sideways"
	MarketVolatile MarketCondition = "volatile"
)

// TradeSize buckets an order by absolute quantity or participation ratio.
type TradeSize string

const (
	TradeSizeSmall  TradeSize = "small"
	TradeSizeMedium TradeSize = "medium"
	TradeSizeLarge  TradeSize = "large"
	TradeSizeHuge   TradeSize = "huge"
)
