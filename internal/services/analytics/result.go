// Package analytics turns a list of transactions into the figures every
// dashboard surface shows. Filtering, aggregation and forecasting live here
// together so the dashboard, chart, drilldown and export paths cannot drift
// apart. Everything in the package is pure and safe for concurrent use.
package analytics

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spendscope/internal/models"
)

// Result is the display-ready aggregate of one transaction set. It is rebuilt
// from scratch whenever the input or the filter changes.
type Result struct {
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	NetCashflow      decimal.Decimal `json:"net_cashflow"`
	TransactionCount int             `json:"transaction_count"`
	ExpenseCount     int             `json:"expense_count"`
	IncomeCount      int             `json:"income_count"`
	AvgExpense       decimal.Decimal `json:"avg_expense"`
	AvgIncome        decimal.Decimal `json:"avg_income"`

	CategoryBreakdown []CategoryTotal `json:"category_breakdown"`
	MerchantBreakdown []MerchantTotal `json:"merchant_breakdown"`
	DailySeries       []DailyPoint    `json:"daily_series"`
	MonthlySeries     []MonthlyPoint  `json:"monthly_series"`
	WeeklyPattern     []WeekdayTotal  `json:"weekly_pattern"`

	Forecast   Forecast `json:"forecast"`
	Volatility float64  `json:"volatility"`

	// StartDate and EndDate bound the valid dates seen in the input
	StartDate *models.Day `json:"start_date,omitempty"`
	EndDate   *models.Day `json:"end_date,omitempty"`

	// BreakdownSource is "local" or, after Reconcile, "backend"
	BreakdownSource string   `json:"breakdown_source"`
	Insights        []string `json:"insights,omitempty"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// CategoryTotal is the expense spend of one category
type CategoryTotal struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// MerchantTotal is the expense spend at one merchant with its visit bounds.
// Visits are nil when none of the merchant's transactions had a valid date.
type MerchantTotal struct {
	Merchant   string          `json:"merchant"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
	FirstVisit *models.Day     `json:"first_visit,omitempty"`
	LastVisit  *models.Day     `json:"last_visit,omitempty"`
}

// DailyPoint is one day of expense spend with trailing moving averages
type DailyPoint struct {
	Date   models.Day      `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	MA7    float64         `json:"ma7"`
	MA30   float64         `json:"ma30"`
}

// MonthlyPoint is one month of income and expenses
type MonthlyPoint struct {
	Month    models.Month    `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`

	// SavingsRate is Net as a percentage of Income, 0 without income
	SavingsRate float64 `json:"savings_rate"`
}

// WeekdayTotal is the expense spend on one weekday (0=Sunday)
type WeekdayTotal struct {
	Weekday int             `json:"weekday"`
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	Count   int             `json:"count"`
}

// Forecast is a flat extrapolation of recent daily spend. It is a heuristic,
// not a prediction.
type Forecast struct {
	RecentTrendPerDay   float64 `json:"recent_trend_per_day"`
	HistoricalAvgPerDay float64 `json:"historical_avg_per_day"`
	TrendChangePercent  float64 `json:"trend_change_percent"`
	Forecast30Day       float64 `json:"forecast_30_day"`
	Confidence          float64 `json:"confidence"`
	SampleSize          int     `json:"sample_size"`
}

// Warning codes
const (
	WarnInvalidDate    = "invalid_date"
	WarnInvalidAmount  = "invalid_amount"
	WarnSignConflict   = "sign_type_conflict"
	WarnBackendDrift   = "backend_drift"
	WarnBackendFailed  = "backend_unavailable"
	WarnTruncated      = "truncated"
	WarnFilterFallback = "filter_fallback"
)

// Warning reports records that were degraded rather than dropped
type Warning struct {
	Code    string `json:"code"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

func newWarning(code string, count int, format string, args ...interface{}) Warning {
	return Warning{Code: code, Count: count, Message: fmt.Sprintf(format, args...)}
}

// AddWarning appends a warning to the result
func (r *Result) AddWarning(code string, count int, message string) {
	r.Warnings = append(r.Warnings, Warning{Code: code, Count: count, Message: message})
}

// HasWarning reports whether a warning with code is present
func (r *Result) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the result was built from no transactions
func (r *Result) IsEmpty() bool {
	return r.TransactionCount == 0
}

// SavingsRate returns net cashflow as a percentage of income, 0 without income
func (r *Result) SavingsRate() float64 {
	return savingsRate(r.NetCashflow, r.TotalIncome)
}

func savingsRate(net, income decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	rate, _ := net.Div(income).Mul(hundred).Float64()
	return rate
}

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var hundred = decimal.NewFromInt(100)
