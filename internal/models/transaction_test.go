package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExpense(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		txType   TransactionType
		expected bool
	}{
		{"negative untagged", "-50", "", true},
		{"positive untagged", "50", "", false},
		{"positive tagged expense", "50", Expense, true},
		{"positive tagged expense mixed case", "50", "Expense ", true},
		{"negative tagged income", "-20", Income, true},
		{"positive tagged income", "1000", Income, false},
		{"zero untagged", "0", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := Transaction{Amount: MustAmount(tt.amount), TransactionType: tt.txType}
			assert.Equal(t, tt.expected, txn.IsExpense())
		})
	}
}

func TestSignConflict(t *testing.T) {
	tests := []struct {
		name     string
		amount   Amount
		txType   TransactionType
		expected bool
	}{
		{"positive expense", MustAmount("10"), Expense, true},
		{"negative income", MustAmount("-10"), Income, true},
		{"negative expense", MustAmount("-10"), Expense, false},
		{"untagged", MustAmount("10"), "", false},
		{"invalid amount", Amount{Invalid: true}, Expense, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := Transaction{Amount: tt.amount, TransactionType: tt.txType}
			assert.Equal(t, tt.expected, txn.SignConflict())
		})
	}
}

func TestNormalizedLabels(t *testing.T) {
	txn := Transaction{Category: "  ", Merchant: ""}
	assert.Equal(t, DefaultCategory, txn.NormalizedCategory())
	assert.Equal(t, DefaultMerchant, txn.NormalizedMerchant())

	txn = Transaction{Category: " Food ", Merchant: "Cafe"}
	assert.Equal(t, "Food", txn.NormalizedCategory())
	assert.Equal(t, "Cafe", txn.NormalizedMerchant())
}

func TestLabelKeys(t *testing.T) {
	tests := []struct {
		category, merchant string
		catKey, merchKey   string
	}{
		{"CAFÉ", " Boulangerie ÉTOILE", "café", "boulangerie étoile"},
		{"  ", "", "uncategorized", "unknown"},
		{"Food", "Grocer", "food", "grocer"},
	}
	for _, tt := range tests {
		txn := Transaction{Category: tt.category, Merchant: tt.merchant}
		if got := txn.CategoryKey(); got != tt.catKey {
			t.Errorf("CategoryKey(%q) = %q, want %q", tt.category, got, tt.catKey)
		}
		if got := txn.MerchantKey(); got != tt.merchKey {
			t.Errorf("MerchantKey(%q) = %q, want %q", tt.merchant, got, tt.merchKey)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		invalid  bool
	}{
		{"100.00", "100", false},
		{"-42.5", "-42.5", false},
		{"$1,234.56", "1234.56", false},
		{"(100.00)", "-100", false},
		{"", "0", true},
		{"abc", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			a := ParseAmount(tt.input)
			assert.Equal(t, tt.invalid, a.Invalid)
			if !tt.invalid {
				assert.True(t, a.Equal(MustAmount(tt.expected).Decimal), "got %s", a.String())
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		day   Day
		valid bool
	}{
		{"2024-01-05", Day{2024, time.January, 5}, true},
		{"2024-01-05T23:30:00Z", Day{2024, time.January, 5}, true},
		{"01/05/2024", Day{2024, time.January, 5}, true},
		{"Jan 5, 2024", Day{2024, time.January, 5}, true},
		{"not a date", Day{}, false},
		{"", Day{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d := ParseDate(tt.input)
			assert.Equal(t, tt.valid, d.Valid())
			day, ok := d.CalendarDay()
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.day, day)
		})
	}
}

func TestTransactionJSONToleratesBadFields(t *testing.T) {
	payload := `[
		{"id":"1","amount":-50,"date":"2024-01-01","category":"food"},
		{"id":"2","amount":"12.30","date":"garbage","transaction_type":"expense"},
		{"id":"3","amount":"n/a","date":"2024-01-03"}
	]`

	var txns []Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &txns))
	require.Len(t, txns, 3)

	assert.True(t, txns[0].Amount.Equal(MustAmount("-50").Decimal))
	assert.True(t, txns[0].Date.Valid())

	assert.False(t, txns[1].Date.Valid())
	assert.Equal(t, "garbage", txns[1].Date.Raw)
	assert.True(t, txns[1].IsExpense())

	assert.True(t, txns[2].Amount.Invalid)
}

func TestTransactionJSONRoundTripKeepsDay(t *testing.T) {
	txn := Transaction{ID: "a", Amount: MustAmount("-5.25"), Date: ParseDate("2024-03-09")}
	data, err := json.Marshal(txn)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date":"2024-03-09"`)
	assert.Contains(t, string(data), `"amount":"-5.25"`)
}

func TestComputeHashStable(t *testing.T) {
	a := Transaction{Date: ParseDate("2024-01-01"), Description: "Coffee ", Amount: MustAmount("-3.5")}
	b := Transaction{Date: ParseDate("01/01/2024"), Description: "coffee", Amount: MustAmount("-3.50")}
	assert.Equal(t, a.ComputeHash(), b.ComputeHash())
}

func TestDayOrdering(t *testing.T) {
	a := Day{2024, time.January, 31}
	b := Day{2024, time.February, 1}
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.Equal(t, time.Wednesday, a.Weekday())
	assert.Equal(t, "2024-01", a.MonthOf().String())
}
