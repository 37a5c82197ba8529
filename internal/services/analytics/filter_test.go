package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendscope/internal/models"
)

func day(y int, m time.Month, d int) models.Day {
	return models.Day{Year: y, Month: m, Day: d}
}

func sampleTransactions() []models.Transaction {
	a := txn("-5", "2024-01-01", "Food")
	a.Merchant, a.Description = "Cafe Luna", "latte"
	b := txn("-120", "2024-01-15", "rent")
	c := txn("-45.50", "2024-02-01", "")
	c.Description = "Hardware store"
	d := txn("2000", "2024-02-01", "salary")
	e := txn("-9", "not a date", "food")
	return []models.Transaction{a, b, c, d, e}
}

func TestFilterNoOpCriteria(t *testing.T) {
	txns := sampleTransactions()
	out := Filter(txns, Criteria{})
	assert.Equal(t, txns, out)

	assert.Equal(t, Aggregate(txns), Aggregate(Filter(txns, Criteria{})))
}

func TestFilterAmountSentinel(t *testing.T) {
	txns := sampleTransactions()
	zero := Criteria{MinAmount: decimal.Zero, MaxAmount: decimal.Zero}

	assert.True(t, zero.IsZero())
	assert.Equal(t, Filter(txns, Criteria{}), Filter(txns, zero))
	assert.Equal(t, Aggregate(Filter(txns, Criteria{})), Aggregate(Filter(txns, zero)))
}

func TestFilterAmountRange(t *testing.T) {
	txns := sampleTransactions()

	tests := []struct {
		name     string
		min, max string
		expected int
	}{
		{"min only", "10", "0", 3},
		{"max only", "0", "50", 3},
		{"both", "10", "100", 1},
		{"abs value compared", "1000", "0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Criteria{MinAmount: decimal.RequireFromString(tt.min), MaxAmount: decimal.RequireFromString(tt.max)}
			assert.Len(t, Filter(txns, c), tt.expected)
		})
	}
}

func TestFilterDateRange(t *testing.T) {
	txns := sampleTransactions()

	t.Run("inclusive bounds", func(t *testing.T) {
		out := Filter(txns, Criteria{Start: day(2024, 1, 15), End: day(2024, 2, 1)})
		require.Len(t, out, 3)
		for _, tx := range out {
			assert.True(t, tx.Date.Valid())
		}
	})

	t.Run("single bound is a no-op", func(t *testing.T) {
		assert.Len(t, Filter(txns, Criteria{Start: day(2024, 2, 1)}), len(txns))
		assert.Len(t, Filter(txns, Criteria{End: day(2023, 1, 1)}), len(txns))
	})

	t.Run("timestamps compare by calendar day", func(t *testing.T) {
		late := txn("-1", "2024-01-31T23:59:59Z", "x")
		out := Filter([]models.Transaction{late}, Criteria{Start: day(2024, 1, 31), End: day(2024, 1, 31)})
		assert.Len(t, out, 1)
	})

	t.Run("empty window", func(t *testing.T) {
		assert.Empty(t, Filter(txns, Criteria{Start: day(2030, 1, 1), End: day(2030, 12, 31)}))
	})
}

func TestFilterCategories(t *testing.T) {
	txns := sampleTransactions()

	out := Filter(txns, Criteria{Categories: []string{"FOOD"}})
	require.Len(t, out, 2)

	out = Filter(txns, Criteria{Categories: []string{"uncategorized", "Rent"}})
	require.Len(t, out, 2)

	// blank entries are ignored
	assert.True(t, Criteria{Categories: []string{"", "  "}}.IsZero())
}

func TestFilterSearch(t *testing.T) {
	txns := sampleTransactions()

	out := Filter(txns, Criteria{Search: "luna"})
	require.Len(t, out, 1)
	assert.Equal(t, "Cafe Luna", out[0].Merchant)

	out = Filter(txns, Criteria{Search: "HARDWARE"})
	require.Len(t, out, 1)
}

func TestFilterCombined(t *testing.T) {
	txns := sampleTransactions()
	c := Criteria{
		Start:      day(2024, 1, 1),
		End:        day(2024, 1, 31),
		MinAmount:  decimal.NewFromInt(1),
		Categories: []string{"food", "rent"},
	}
	out := Filter(txns, c)
	require.Len(t, out, 2)

	r := Aggregate(out)
	assertDecimal(t, "125", r.TotalExpenses)
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	txns := sampleTransactions()
	before := append([]models.Transaction(nil), txns...)

	out := Filter(txns, Criteria{Categories: []string{"rent"}})
	require.Len(t, out, 1)
	out[0].Category = "changed"

	assert.Equal(t, before, txns)
}

func TestDateBounds(t *testing.T) {
	first, last, ok := DateBounds(sampleTransactions())
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 1), first)
	assert.Equal(t, day(2024, 2, 1), last)

	_, _, ok = DateBounds([]models.Transaction{txn("-1", "bad", "")})
	assert.False(t, ok)
}
