package reporting

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/ducminhle1904/capital-guard/internal/reconcile"
)

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct{}

func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

// WriteReconciliationCSV writes one row per discrepant symbol
func (r *DefaultCSVReporter) WriteReconciliationCSV(result reconcile.Result, path string) error {
	if err := EnsureDirectoryExists(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"Pass_ID",
		"Symbol",
		"Local_Qty",
		"Exchange_Qty",
		"Trade_Qty",
		"Local_Amount",
		"Exchange_Amount",
		"Trade_Amount",
		"Qty_Flag",
		"Amount_Flag",
		"Malformed",
	}); err != nil {
		return err
	}

	for _, symbol := range reconcile.SortedSymbols(result.Discrepancies) {
		d := result.Discrepancies[symbol]
		if err := w.Write([]string{
			result.PassID,
			symbol,
			strconv.FormatFloat(d.LocalQuantity, 'f', -1, 64),
			strconv.FormatFloat(d.ExchangeQuantity, 'f', -1, 64),
			strconv.FormatFloat(d.TradeQuantity, 'f', -1, 64),
			strconv.FormatFloat(d.LocalAmount, 'f', 2, 64),
			strconv.FormatFloat(d.ExchangeAmount, 'f', 2, 64),
			strconv.FormatFloat(d.TradeAmount, 'f', 2, 64),
			strconv.FormatBool(d.HasQuantityDiscrepancy),
			strconv.FormatBool(d.HasAmountDiscrepancy),
			strings.Join(d.Malformed, ";"),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
