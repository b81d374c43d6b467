package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

func discrepantResult() reconcile.Result {
	return reconcile.Result{
		PassID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		StartedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:      42 * time.Millisecond,
		LocalCount:    2,
		ExchangeCount: 2,
		TradeCount:    2,
		Discrepancies: map[string]reconcile.Discrepancy{
			"ETHUSDT": {
				Symbol:               "ETHUSDT",
				LocalQuantity:        2,
				ExchangeQuantity:     2,
				TradeQuantity:        2,
				LocalAmount:          6000,
				ExchangeAmount:       6200,
				TradeAmount:          6000,
				HasAmountDiscrepancy: true,
			},
			"BTCUSDT": {
				Symbol:                 "BTCUSDT",
				LocalQuantity:          100,
				ExchangeQuantity:       100,
				TradeQuantity:          110,
				HasQuantityDiscrepancy: true,
			},
		},
		HasDiscrepancies: true,
		ProviderFailures: []reconcile.ProviderFailure{{Source: "exchange", Error: "timeout"}},
	}
}

func TestReportPath(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)
	assert.Equal(t,
		filepath.Join("reports", "reconciliation_20240301T123005Z_0f8fad5b.xlsx"),
		ReportPath("reports", "0f8fad5b-d9cb", at, "xlsx"))
	assert.Equal(t,
		filepath.Join("r", "reconciliation_20240301T123005Z_pass.json"),
		ReportPath("r", "", at, "json"))
}

func TestPrintReconciliation(t *testing.T) {
	var buf bytes.Buffer
	NewDefaultConsoleReporter(&buf).PrintReconciliation(discrepantResult())

	out := buf.String()
	assert.Contains(t, out, "RECONCILIATION 0f8fad5b")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "QTY")
	assert.Contains(t, out, "AMT")
	assert.Contains(t, out, "provider exchange failed: timeout")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("BTCUSDT")), bytes.Index(buf.Bytes(), []byte("ETHUSDT")))
}

func TestPrintBalancesAndBreaker(t *testing.T) {
	var buf bytes.Buffer
	r := NewDefaultConsoleReporter(&buf)

	r.PrintBalances(map[string]map[string]balance.Summary{
		"bybit": {"USDT": {
			Available:   decimal.NewFromInt(1000),
			Total:       decimal.NewFromInt(1200),
			Frozen:      decimal.NewFromInt(300),
			FrozenCount: 2,
		}},
	})
	assert.Contains(t, buf.String(), "1200.00")
	assert.Contains(t, buf.String(), "700.00")

	buf.Reset()
	cb := safety.NewCircuitBreaker("trading")
	cb.Trip("MANUAL_HALT", "maintenance")
	r.PrintBreaker(cb.Status())
	assert.Contains(t, buf.String(), "BROKEN")
	assert.Contains(t, buf.String(), "maintenance")
}

func TestWriteReconciliationXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.xlsx")
	require.NoError(t, NewDefaultExcelReporter().WriteReconciliationXLSX(discrepantResult(), path))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.Equal(t, []string{"Discrepancies", "Summary"}, fx.GetSheetList())

	rows, err := fx.GetRows("Discrepancies")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Symbol", rows[0][0])
	assert.Equal(t, "BTCUSDT", rows[1][0])
	assert.Equal(t, "ETHUSDT", rows[2][0])

	passID, err := fx.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, discrepantResult().PassID, passID)
}

func TestWriteReconciliationCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, NewDefaultCSVReporter().WriteReconciliationCSV(discrepantResult(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"0f8fad5b-d9cb-469f-a165-70867728950e", "BTCUSDT", "100", "100", "110"}, records[1][:5])
	assert.Equal(t, "true", records[1][8])
}

func TestHandleResult(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	r := NewDefaultReporter(ReportingConfig{
		OutputDirectory: dir,
		ExcelEnabled:    true,
		JSONEnabled:     true,
	}, &buf, nil)

	t.Run("clean pass is skipped", func(t *testing.T) {
		assert.Empty(t, r.HandleResult(reconcile.Result{PassID: "clean", StartedAt: time.Now()}))
		assert.Zero(t, buf.Len())
	})

	t.Run("discrepant pass is written", func(t *testing.T) {
		written := r.HandleResult(discrepantResult())
		require.Len(t, written, 2)
		for _, path := range written {
			assert.FileExists(t, path)
		}

		data, err := os.ReadFile(written[1])
		require.NoError(t, err)
		var decoded reconcile.Result
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Len(t, decoded.Discrepancies, 2)
		assert.NotZero(t, buf.Len())
	})
}
