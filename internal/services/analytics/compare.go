package analytics

import (
	"math"

	"spendscope/internal/models"
)

// Comparison kinds
const (
	ComparePrevious = "previous"
	CompareYear     = "year"
)

// Comparison holds period-over-period changes for the headline figures
type Comparison struct {
	Kind              string     `json:"kind"`
	PreviousStart     models.Day `json:"previous_start"`
	PreviousEnd       models.Day `json:"previous_end"`
	HasData           bool       `json:"has_data"`
	Previous          *Result    `json:"previous,omitempty"`
	IncomeChange      float64    `json:"income_change"`
	ExpensesChange    float64    `json:"expenses_change"`
	NetChange         float64    `json:"net_change"`
	SavingsRateChange float64    `json:"savings_rate_change"`
}

// PreviousPeriod returns the window to compare [start, end] against. "previous"
// is the window of equal length ending the day before start; "year" is the
// same window one year earlier.
func PreviousPeriod(start, end models.Day, kind string) (models.Day, models.Day, bool) {
	if start.IsZero() || end.IsZero() {
		return models.Day{}, models.Day{}, false
	}
	s, e := start.Time(), end.Time()

	switch kind {
	case ComparePrevious:
		compEnd := s.AddDate(0, 0, -1)
		compStart := compEnd.Add(-e.Sub(s))
		return models.DayOf(compStart), models.DayOf(compEnd), true
	case CompareYear:
		return models.DayOf(s.AddDate(-1, 0, 0)), models.DayOf(e.AddDate(-1, 0, 0)), true
	default:
		return models.Day{}, models.Day{}, false
	}
}

// Compare computes the change from previous to current. A nil or empty
// previous result yields HasData == false.
func Compare(current, previous *Result) *Comparison {
	if current == nil || previous == nil || previous.IsEmpty() {
		return &Comparison{HasData: false}
	}

	return &Comparison{
		HasData:           true,
		Previous:          previous,
		IncomeChange:      PercentChange(current.TotalIncome.InexactFloat64(), previous.TotalIncome.InexactFloat64()),
		ExpensesChange:    PercentChange(current.TotalExpenses.InexactFloat64(), previous.TotalExpenses.InexactFloat64()),
		NetChange:         PercentChange(current.NetCashflow.InexactFloat64(), previous.NetCashflow.InexactFloat64()),
		SavingsRateChange: current.SavingsRate() - previous.SavingsRate(),
	}
}

// PercentChange calculates the percentage change between two values
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return ((current - previous) / math.Abs(previous)) * 100
}
