package export

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"spendscope/internal/services/analytics"
)

const (
	pageWidth  = 190.0 // A4 minus margins, mm
	rowHeight  = 7.0
	maxPDFRows = 15
)

// PDFOptions controls the report header
type PDFOptions struct {
	Title string
	// Generated is printed in the footer; zero means now
	Generated time.Time
}

// WritePDF renders a one-report summary of r: headline figures, then the
// category, merchant and monthly tables
func WritePDF(w io.Writer, r *analytics.Result, opts PDFOptions) error {
	if opts.Title == "" {
		opts.Title = "Spending report"
	}
	if opts.Generated.IsZero() {
		opts.Generated = time.Now()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(opts.Title, true)
	pdf.SetCreator("spendscope", true)
	pdf.SetCreationDate(opts.Generated)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated %s - page %d", opts.Generated.Format("2006-01-02 15:04"), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(pageWidth, 10, tr(opts.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if r.StartDate != nil && r.EndDate != nil {
		pdf.CellFormat(pageWidth, 6, fmt.Sprintf("%s to %s", r.StartDate, r.EndDate), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	writeTable(pdf, tr, "Summary", []string{"Figure", "Value"}, []float64{95, 95}, [][]string{
		{"Total income", r.TotalIncome.StringFixed(2)},
		{"Total expenses", r.TotalExpenses.StringFixed(2)},
		{"Net cashflow", r.NetCashflow.StringFixed(2)},
		{"Savings rate", fmt.Sprintf("%.1f%%", r.SavingsRate())},
		{"Transactions", fmt.Sprintf("%d (%d expenses, %d income)", r.TransactionCount, r.ExpenseCount, r.IncomeCount)},
		{"Average expense", r.AvgExpense.StringFixed(2)},
		{"30-day forecast", fmt.Sprintf("%.2f (confidence %.0f%%)", r.Forecast.Forecast30Day, r.Forecast.Confidence*100)},
		{"Volatility", fmt.Sprintf("%.1f%%", r.Volatility)},
	})

	var cats [][]string
	for i, c := range r.CategoryBreakdown {
		if i == maxPDFRows {
			break
		}
		cats = append(cats, []string{c.Category, c.Amount.StringFixed(2), fmt.Sprintf("%d", c.Count), fmt.Sprintf("%.1f%%", c.Percentage)})
	}
	writeTable(pdf, tr, "Spending by category", []string{"Category", "Amount", "Count", "Share"}, []float64{85, 45, 25, 35}, cats)

	var merchants [][]string
	for i, m := range r.MerchantBreakdown {
		if i == maxPDFRows {
			break
		}
		merchants = append(merchants, []string{m.Merchant, m.Amount.StringFixed(2), fmt.Sprintf("%d", m.Count), fmt.Sprintf("%.1f%%", m.Percentage)})
	}
	writeTable(pdf, tr, "Top merchants", []string{"Merchant", "Amount", "Count", "Share"}, []float64{85, 45, 25, 35}, merchants)

	var months [][]string
	for _, m := range r.MonthlySeries {
		months = append(months, []string{m.Month.String(), m.Income.StringFixed(2), m.Expenses.StringFixed(2), m.Net.StringFixed(2)})
	}
	writeTable(pdf, tr, "Monthly cashflow", []string{"Month", "Income", "Expenses", "Net"}, []float64{40, 50, 50, 50}, months)

	if len(r.Warnings) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(pageWidth, 8, "Data notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, warn := range r.Warnings {
			pdf.MultiCell(pageWidth, 5, tr("- "+warn.Message), "", "L", false)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, title string, header []string, widths []float64, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(pageWidth, 8, tr(title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(99, 102, 241) // #6366f1
	pdf.SetTextColor(255, 255, 255)
	for i, h := range header {
		pdf.CellFormat(widths[i], rowHeight, tr(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range rows {
		for i, cell := range row {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], rowHeight, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}
