package reporting

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/capital-guard/internal/reconcile"
)

const (
	discrepancySheet = "Discrepancies"
	summarySheet     = "Summary"
)

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteReconciliationXLSX writes a workbook with Discrepancies and Summary sheets
func (r *DefaultExcelReporter) WriteReconciliationXLSX(result reconcile.Result, path string) error {
	if err := EnsureDirectoryExists(path); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), discrepancySheet)
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return err
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.WriteDiscrepancySheet(fx, discrepancySheet, result, styles); err != nil {
		return err
	}
	if err := r.WriteSummarySheet(fx, summarySheet, result, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}

	// Header style - Dark slate background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.NumberStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: stringPtr("#,##0.000000"),
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       border,
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	// Flagged cells - light red fill
	styles.FlaggedStyle, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "9C0006"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.SummaryStyle, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"F2F2F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.TitleStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Color: "2F4F4F"},
	})
	if err != nil {
		return styles, err
	}

	return styles, nil
}

// WriteDiscrepancySheet writes one row per discrepant symbol
func (r *DefaultExcelReporter) WriteDiscrepancySheet(fx *excelize.File, sheet string, result reconcile.Result, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 14) // Symbol
	fx.SetColWidth(sheet, "B", "G", 16) // Quantities and amounts
	fx.SetColWidth(sheet, "H", "I", 10) // Flags
	fx.SetColWidth(sheet, "J", "J", 20) // Malformed

	headers := []string{
		"Symbol",
		"Local Qty", "Exchange Qty", "Trade Qty",
		"Local Amount", "Exchange Amount", "Trade Amount",
		"Qty", "Amount", "Malformed",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	row := 2
	for _, symbol := range reconcile.SortedSymbols(result.Discrepancies) {
		d := result.Discrepancies[symbol]
		values := []interface{}{
			symbol,
			d.LocalQuantity, d.ExchangeQuantity, d.TradeQuantity,
			d.LocalAmount, d.ExchangeAmount, d.TradeAmount,
			flag(d.HasQuantityDiscrepancy), flag(d.HasAmountDiscrepancy),
			strings.Join(d.Malformed, ", "),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
			style := styles.BaseStyle
			switch {
			case i >= 1 && i <= 6:
				style = styles.NumberStyle
			case i == 7 && d.HasQuantityDiscrepancy, i == 8 && d.HasAmountDiscrepancy, i == 9 && len(d.Malformed) > 0:
				style = styles.FlaggedStyle
			}
			fx.SetCellStyle(sheet, cell, cell, style)
		}
		row++
	}

	return fx.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// WriteSummarySheet writes the pass metadata and provider failures
func (r *DefaultExcelReporter) WriteSummarySheet(fx *excelize.File, sheet string, result reconcile.Result, styles ExcelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "B", "B", 60)

	fx.SetCellValue(sheet, "A1", "RECONCILIATION PASS")
	fx.SetCellStyle(sheet, "A1", "A1", styles.TitleStyle)

	rows := [][2]interface{}{
		{"Pass ID", result.PassID},
		{"Started At (UTC)", result.StartedAt.UTC().Format("2006-01-02 15:04:05")},
		{"Duration", result.Duration.String()},
		{"Local Positions", result.LocalCount},
		{"Exchange Positions", result.ExchangeCount},
		{"Trade Positions", result.TradeCount},
		{"Discrepant Symbols", result.DiscrepancyCount()},
		{"Provider Failures", len(result.ProviderFailures)},
	}

	row := 3
	for _, kv := range rows {
		label := fmt.Sprintf("A%d", row)
		value := fmt.Sprintf("B%d", row)
		fx.SetCellValue(sheet, label, kv[0])
		fx.SetCellStyle(sheet, label, label, styles.SummaryStyle)
		if err := fx.SetCellValue(sheet, value, kv[1]); err != nil {
			return err
		}
		fx.SetCellStyle(sheet, value, value, styles.BaseStyle)
		row++
	}

	if len(result.ProviderFailures) == 0 {
		return nil
	}

	row++
	for i, h := range []string{"Source", "Error"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}
	for _, failure := range result.ProviderFailures {
		row++
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", row), failure.Source)
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", row), failure.Error)
		fx.SetCellStyle(sheet, fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), styles.FlaggedStyle)
	}
	return nil
}

func flag(set bool) string {
	if set {
		return "YES"
	}
	return ""
}

func stringPtr(s string) *string {
	return &s
}
