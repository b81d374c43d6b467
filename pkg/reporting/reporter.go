package reporting

import (
	"io"

	"go.uber.org/zap"

	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// DefaultReporter combines console and file output
type DefaultReporter struct {
	config  ReportingConfig
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
	logger  *zap.Logger
}

// NewDefaultReporter creates a reporter printing to out and writing files
// under config.OutputDirectory
func NewDefaultReporter(config ReportingConfig, out io.Writer, logger *zap.Logger) *DefaultReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultReporter{
		config:  config,
		console: NewDefaultConsoleReporter(out),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
		logger:  logger.Named("reporting"),
	}
}

// Console output methods
func (r *DefaultReporter) PrintReconciliation(result reconcile.Result) {
	r.console.PrintReconciliation(result)
}

func (r *DefaultReporter) PrintBalances(summary map[string]map[string]balance.Summary) {
	r.console.PrintBalances(summary)
}

func (r *DefaultReporter) PrintBreaker(status safety.BreakerStatus) {
	r.console.PrintBreaker(status)
}

// File output methods
func (r *DefaultReporter) WriteReconciliationCSV(result reconcile.Result, path string) error {
	return r.csv.WriteReconciliationCSV(result, path)
}

func (r *DefaultReporter) WriteReconciliationXLSX(result reconcile.Result, path string) error {
	return r.excel.WriteReconciliationXLSX(result, path)
}

func (r *DefaultReporter) WriteJSON(v interface{}, path string) error {
	return WriteJSON(v, path)
}

// HandleResult is a reconciliation result listener. Discrepant passes (and
// clean ones when CleanPasses is set) are printed and written to every
// enabled format. It returns the paths written.
func (r *DefaultReporter) HandleResult(result reconcile.Result) []string {
	if !result.HasDiscrepancies && len(result.ProviderFailures) == 0 && !r.config.CleanPasses {
		return nil
	}

	r.PrintReconciliation(result)

	if r.config.OutputDirectory == "" {
		return nil
	}

	var written []string
	write := func(ext string, fn func(path string) error) {
		path := ReportPath(r.config.OutputDirectory, result.PassID, result.StartedAt, ext)
		if err := fn(path); err != nil {
			r.logger.Error("failed to write reconciliation report",
				zap.String("path", path),
				zap.Error(err))
			return
		}
		written = append(written, path)
	}

	if r.config.ExcelEnabled {
		write("xlsx", func(path string) error { return r.WriteReconciliationXLSX(result, path) })
	}
	if r.config.CSVEnabled {
		write("csv", func(path string) error { return r.WriteReconciliationCSV(result, path) })
	}
	if r.config.JSONEnabled {
		write("json", func(path string) error { return r.WriteJSON(result, path) })
	}

	if len(written) > 0 {
		r.logger.Info("reconciliation report written",
			zap.String("pass_id", result.PassID),
			zap.Strings("files", written))
	}
	return written
}
