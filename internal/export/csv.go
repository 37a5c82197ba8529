// Package export renders an analytics.Result as downloadable CSV tables and
// a PDF report. Renderers only lay out figures already in the Result.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"spendscope/internal/services/analytics"
)

// CSV report kinds
const (
	ReportMonthly    = "monthly"
	ReportCategories = "categories"
	ReportMerchants  = "merchants"
	ReportDaily      = "daily"
)

// ErrUnknownReport is returned for an unsupported report kind
var ErrUnknownReport = errors.New("unknown report")

// Reports lists the CSV report kinds
var Reports = []string{ReportMonthly, ReportCategories, ReportMerchants, ReportDaily}

// WriteCSV writes one table of r as CSV
func WriteCSV(w io.Writer, r *analytics.Result, kind string) error {
	var rows [][]string

	switch kind {
	case ReportMonthly:
		rows = append(rows, []string{"Month", "Income", "Expenses", "Net", "Savings Rate %"})
		for _, m := range r.MonthlySeries {
			rows = append(rows, []string{
				m.Month.String(),
				m.Income.StringFixed(2),
				m.Expenses.StringFixed(2),
				m.Net.StringFixed(2),
				fmt.Sprintf("%.1f", m.SavingsRate),
			})
		}
	case ReportCategories:
		rows = append(rows, []string{"Category", "Amount", "Count", "Percentage"})
		for _, c := range r.CategoryBreakdown {
			rows = append(rows, []string{c.Category, c.Amount.StringFixed(2), strconv.Itoa(c.Count), fmt.Sprintf("%.1f", c.Percentage)})
		}
	case ReportMerchants:
		rows = append(rows, []string{"Merchant", "Amount", "Count", "Percentage", "First Visit", "Last Visit"})
		for _, m := range r.MerchantBreakdown {
			first, last := "", ""
			if m.FirstVisit != nil {
				first = m.FirstVisit.String()
			}
			if m.LastVisit != nil {
				last = m.LastVisit.String()
			}
			rows = append(rows, []string{m.Merchant, m.Amount.StringFixed(2), strconv.Itoa(m.Count), fmt.Sprintf("%.1f", m.Percentage), first, last})
		}
	case ReportDaily:
		rows = append(rows, []string{"Date", "Amount", "MA7", "MA30"})
		for _, d := range r.DailySeries {
			rows = append(rows, []string{d.Date.String(), d.Amount.StringFixed(2), fmt.Sprintf("%.2f", d.MA7), fmt.Sprintf("%.2f", d.MA30)})
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReport, kind)
	}

	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Filename names an export after its kind and the result's date range
func Filename(r *analytics.Result, kind, ext string) string {
	if r.StartDate == nil || r.EndDate == nil {
		return fmt.Sprintf("%s.%s", kind, ext)
	}
	return fmt.Sprintf("%s_%s_to_%s.%s", kind, r.StartDate, r.EndDate, ext)
}
