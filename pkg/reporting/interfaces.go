package reporting

import (
	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// Package reporting renders reconciliation results, balance summaries and
// breaker state for operators.

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	PrintReconciliation(result reconcile.Result)
	PrintBalances(summary map[string]map[string]balance.Summary)
	PrintBreaker(status safety.BreakerStatus)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteReconciliationCSV(result reconcile.Result, path string) error
	WriteReconciliationXLSX(result reconcile.Result, path string) error
	WriteJSON(v interface{}, path string) error
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle  int
	NumberStyle  int
	BaseStyle    int
	FlaggedStyle int
	SummaryStyle int
	TitleStyle   int
}

// ExcelFormatter defines interface for Excel-specific formatting
type ExcelFormatter interface {
	WriteDiscrepancySheet(fx *excelize.File, sheet string, result reconcile.Result, styles ExcelStyles) error
	WriteSummarySheet(fx *excelize.File, sheet string, result reconcile.Result, styles ExcelStyles) error
}

// ReportingConfig holds configuration for reporting
type ReportingConfig struct {
	OutputDirectory string
	ExcelEnabled    bool
	CSVEnabled      bool
	JSONEnabled     bool
	// CleanPasses also writes files for passes without discrepancies
	CleanPasses bool
}
