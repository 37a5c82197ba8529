package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendscope/internal/models"
)

func TestPreviousPeriod(t *testing.T) {
	tests := []struct {
		name       string
		start, end models.Day
		kind       string
		wantStart  models.Day
		wantEnd    models.Day
		ok         bool
	}{
		{"previous month", day(2024, 2, 1), day(2024, 2, 29), ComparePrevious, day(2024, 1, 3), day(2024, 1, 31), true},
		{"previous single day", day(2024, 3, 10), day(2024, 3, 10), ComparePrevious, day(2024, 3, 9), day(2024, 3, 9), true},
		{"year", day(2024, 1, 1), day(2024, 3, 31), CompareYear, day(2023, 1, 1), day(2023, 3, 31), true},
		{"unknown kind", day(2024, 1, 1), day(2024, 1, 31), "quarter", models.Day{}, models.Day{}, false},
		{"open range", models.Day{}, day(2024, 1, 31), ComparePrevious, models.Day{}, models.Day{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e, ok := PreviousPeriod(tt.start, tt.end, tt.kind)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantStart, s)
			assert.Equal(t, tt.wantEnd, e)
		})
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		current, previous, expected float64
	}{
		{150, 100, 50},
		{50, 100, -50},
		{0, 0, 0},
		{10, 0, 100},
		{-50, -100, 50},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, PercentChange(tt.current, tt.previous), 1e-9)
	}
}

func TestCompare(t *testing.T) {
	current := Aggregate(mixedTransactions())

	prevIncome := txn("800", "2023-12-03", "")
	previous := Aggregate([]models.Transaction{txn("-100", "2023-12-01", "food"), prevIncome})

	c := Compare(current, previous)
	require.True(t, c.HasData)
	assert.Same(t, previous, c.Previous)
	assert.InDelta(t, 25.0, c.IncomeChange, 1e-9)
	assert.InDelta(t, -20.0, c.ExpensesChange, 1e-9)
	assert.InDelta(t, 31.428571428, c.NetChange, 1e-6)
	assert.InDelta(t, 92.0-87.5, c.SavingsRateChange, 1e-9)
}

func TestCompareWithoutPreviousData(t *testing.T) {
	current := Aggregate(mixedTransactions())
	assert.False(t, Compare(current, Aggregate(nil)).HasData)
	assert.False(t, Compare(current, nil).HasData)
}

func TestPreviousPeriodLengthMatches(t *testing.T) {
	start, end := day(2024, 5, 1), day(2024, 5, 14)
	ps, pe, ok := PreviousPeriod(start, end, ComparePrevious)
	require.True(t, ok)

	span := end.Time().Sub(start.Time())
	assert.Equal(t, span, pe.Time().Sub(ps.Time()))
	assert.Equal(t, start.Time().Add(-24*time.Hour), pe.Time())
}
