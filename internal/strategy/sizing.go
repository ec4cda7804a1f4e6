package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// buyQuantity sizes an entry: the given fraction of current cash divided by
// price, floored to whole shares.
func buyQuantity(run *Context, price decimal.Decimal, fraction float64) int64 {
	if run == nil || run.Portfolio == nil || !price.IsPositive() || fraction <= 0 {
		return 0
	}
	budget := run.Portfolio.Cash.Mul(decimal.NewFromFloat(fraction))
	return budget.Div(price).IntPart()
}

// heldQuantity reports the open quantity for a symbol, zero when flat.
func heldQuantity(run *Context, symbol string) int64 {
	if run == nil || run.Portfolio == nil {
		return 0
	}
	if pos, ok := run.Portfolio.Positions[symbol]; ok {
		return pos.Quantity
	}
	return 0
}

func validateUniverse(symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("at least one symbol required")
	}
	for _, s := range symbols {
		if s == "" {
			return fmt.Errorf("empty symbol in universe")
		}
	}
	return nil
}
