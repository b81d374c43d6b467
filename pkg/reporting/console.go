package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/capital-guard/internal/balance"
	"github.com/ducminhle1904/capital-guard/internal/reconcile"
	"github.com/ducminhle1904/capital-guard/internal/safety"
)

// DefaultConsoleReporter renders tables to an io.Writer
type DefaultConsoleReporter struct {
	out io.Writer
}

// NewDefaultConsoleReporter writes to out, or stdout when out is nil
func NewDefaultConsoleReporter(out io.Writer) *DefaultConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &DefaultConsoleReporter{out: out}
}

func (r *DefaultConsoleReporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// PrintReconciliation prints one row per discrepant symbol followed by the pass summary
func (r *DefaultConsoleReporter) PrintReconciliation(result reconcile.Result) {
	t := r.newTable(fmt.Sprintf("RECONCILIATION %s", shortID(result.PassID)))
	t.AppendHeader(table.Row{"Symbol", "Local Qty", "Exchange Qty", "Trade Qty", "Local Amt", "Exchange Amt", "Trade Amt", "Flags"})

	for _, symbol := range reconcile.SortedSymbols(result.Discrepancies) {
		d := result.Discrepancies[symbol]
		t.AppendRow(table.Row{
			symbol,
			formatQty(d.LocalQuantity), formatQty(d.ExchangeQuantity), formatQty(d.TradeQuantity),
			formatAmount(d.LocalAmount), formatAmount(d.ExchangeAmount), formatAmount(d.TradeAmount),
			discrepancyFlags(d),
		})
	}
	if len(result.Discrepancies) == 0 {
		t.AppendRow(table.Row{"-", "", "", "", "", "", "", "in sync"})
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d symbols", result.DiscrepancyCount()),
		fmt.Sprintf("local %d", result.LocalCount),
		fmt.Sprintf("exchange %d", result.ExchangeCount),
		fmt.Sprintf("trade %d", result.TradeCount),
		"", "", "",
		result.Duration.Round(time.Millisecond).String(),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()

	for _, failure := range result.ProviderFailures {
		fmt.Fprintf(r.out, "provider %s failed: %s\n", failure.Source, failure.Error)
	}
}

// PrintBalances prints one row per exchange and currency
func (r *DefaultConsoleReporter) PrintBalances(summary map[string]map[string]balance.Summary) {
	t := r.newTable("BALANCES")
	t.AppendHeader(table.Row{"Exchange", "Currency", "Total", "Available", "Frozen", "Free", "Orders"})

	exchanges := make([]string, 0, len(summary))
	for ex := range summary {
		exchanges = append(exchanges, ex)
	}
	sort.Strings(exchanges)

	for _, ex := range exchanges {
		currencies := make([]string, 0, len(summary[ex]))
		for cur := range summary[ex] {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)
		for _, cur := range currencies {
			s := summary[ex][cur]
			t.AppendRow(table.Row{
				ex, cur,
				s.Total.StringFixed(2), s.Available.StringFixed(2),
				s.Frozen.StringFixed(2), s.Free().StringFixed(2),
				s.FrozenCount,
			})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
}

// PrintBreaker prints the breaker state
func (r *DefaultConsoleReporter) PrintBreaker(status safety.BreakerStatus) {
	t := r.newTable("TRADING BREAKER")
	t.AppendRows([]table.Row{
		{"State", status.StateName},
		{"Trips", status.Trips},
	})
	if status.Code != "" {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Code", status.Code},
			{"Reason", status.Reason},
			{"Tripped At", formatTime(status.TrippedAt)},
		})
	}
	if status.RecoveredBy != "" {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Recovered By", status.RecoveredBy},
			{"Recovered At", formatTime(status.RecoveredAt)},
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 14, WidthMax: 14, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()
}

func discrepancyFlags(d reconcile.Discrepancy) string {
	var flags []string
	if d.HasQuantityDiscrepancy {
		flags = append(flags, "QTY")
	}
	if d.HasAmountDiscrepancy {
		flags = append(flags, "AMT")
	}
	if len(d.Malformed) > 0 {
		flags = append(flags, "MALFORMED("+strings.Join(d.Malformed, ",")+")")
	}
	return strings.Join(flags, " ")
}

func formatQty(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
