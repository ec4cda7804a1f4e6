package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"stock-backtest/internal/model"
)

// WriteTransactionsCSV writes the fill ledger to path, one row per fill.
func WriteTransactionsCSV(path string, txs []model.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"executed_at",
		"symbol",
		"side",
		"quantity",
		"price",
		"amount",
		"commission",
		"tax",
		"realized_pnl",
		"net_amount",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, tx := range txs {
		row := []string{
			tx.ExecutedAt.Format(time.RFC3339),
			tx.Symbol,
			string(tx.Side),
			strconv.FormatInt(tx.Quantity, 10),
			tx.Price.String(),
			tx.Amount().String(),
			tx.Commission.String(),
			tx.Tax.String(),
			tx.RealizedPnL.String(),
			tx.NetAmount().String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
