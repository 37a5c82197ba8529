package dataloader

import (
	"errors"
	"strings"
	"testing"

	"spendscope/internal/models"
)

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Date variations
		{"Date", "Date"},
		{"DATE", "Date"},
		{"Transaction Date", "Date"},
		{"Posted Date", "Date"},
		{"\ufeffDate", "Date"},

		// Description variations
		{"description", "Description"},
		{"Memo", "Description"},
		{"Details", "Description"},
		{"Narrative", "Description"},

		// Merchant variations
		{"Merchant", "Merchant"},
		{"Payee", "Merchant"},
		{"Merchant Name", "Merchant"},

		// Amount variations
		{"Amount", "Amount"},
		{"Value", "Amount"},
		{"Transaction Amount", "Amount"},

		// Category and type
		{"Category", "Category"},
		{"Type", "Type"},
		{"transaction_type", "Type"},

		// Debit / credit
		{"Withdrawal", "Debit"},
		{"Money Out", "Debit"},
		{"Deposit", "Credit"},
		{"Money In", "Credit"},

		{"id", "ID"},

		// Unknown columns pass through unchanged
		{"Balance", "Balance"},
		{" Account ", "Account"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := normalizeColumnName(tt.input)
			if result != tt.expected {
				t.Errorf("normalizeColumnName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestBuildColumnIndexFirstMatchWins(t *testing.T) {
	result := buildColumnIndex([]string{"Date", "Transaction Date", "Amount"})
	if result["Date"] != 0 {
		t.Errorf("result[Date] = %d, want 0", result["Date"])
	}
	if result["Amount"] != 2 {
		t.Errorf("result[Amount] = %d, want 2", result["Amount"])
	}
}

func TestParseDebitCredit(t *testing.T) {
	tests := []struct {
		name     string
		debit    string
		credit   string
		expected string
		invalid  bool
	}{
		{"credit only", "", "100.00", "100", false},
		{"debit only", "50.00", "", "-50", false},
		{"debit with currency symbol", "$75.50", "", "-75.5", false},
		{"credit with currency symbol", "", "$25.00", "25", false},
		{"debit already negative", "-50.00", "", "-50", false},
		{"zero debit", "0.00", "", "0", false},
		{"both empty", "", "", "", true},
		{"garbage", "n/a", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseDebitCredit(tt.debit, tt.credit)
			if result.Invalid != tt.invalid {
				t.Fatalf("parseDebitCredit() invalid = %v, want %v", result.Invalid, tt.invalid)
			}
			if !tt.invalid && !result.Equal(models.MustAmount(tt.expected).Decimal) {
				t.Errorf("parseDebitCredit() = %s, want %s", result.String(), tt.expected)
			}
		})
	}
}

func TestDecodeCSVWithFlexibleColumns(t *testing.T) {
	tests := []struct {
		name           string
		csvContent     string
		expectedCount  int
		expectedAmount string // amount of first transaction
		expectError    bool
		errorContains  string
	}{
		{
			name: "standard format",
			csvContent: `Date,Description,Amount,Category
2024-01-15,Grocery Store,-50.00,Groceries
2024-01-16,Paycheck,3000.00,Income`,
			expectedCount:  2,
			expectedAmount: "-50",
		},
		{
			name: "bank format with Transaction Date and Memo",
			csvContent: `Transaction Date,Memo,Value
2024-01-15,Grocery Store,-50.00
2024-01-16,Paycheck,3000.00`,
			expectedCount:  2,
			expectedAmount: "-50",
		},
		{
			name: "debit credit format",
			csvContent: `Posted Date,Details,Debit,Credit
2024-01-15,Grocery Store,50.00,
2024-01-16,Paycheck,,3000.00`,
			expectedCount:  2,
			expectedAmount: "-50",
		},
		{
			name: "no description column",
			csvContent: `Date,Merchant,Amount
2024-01-15,Corner Shop,-12.00`,
			expectedCount:  1,
			expectedAmount: "-12",
		},
		{
			name: "blank lines ignored",
			csvContent: `date,amount
2024-01-15,-5

2024-01-16,-6
`,
			expectedCount:  2,
			expectedAmount: "-5",
		},
		{
			name: "missing date column",
			csvContent: `Description,Amount
Grocery Store,-50.00`,
			expectError:   true,
			errorContains: "Date",
		},
		{
			name: "missing amount and debit/credit",
			csvContent: `Date,Description
2024-01-15,Grocery Store`,
			expectError:   true,
			errorContains: "Amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transactions, _, err := DecodeCSV(strings.NewReader(tt.csvContent))

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorContains)
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errorContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(transactions) != tt.expectedCount {
				t.Fatalf("got %d transactions, want %d", len(transactions), tt.expectedCount)
			}
			if !transactions[0].Amount.Equal(models.MustAmount(tt.expectedAmount).Decimal) {
				t.Errorf("first transaction amount = %s, want %s", transactions[0].Amount.String(), tt.expectedAmount)
			}
		})
	}
}

func TestDecodeCSVKeepsBadRows(t *testing.T) {
	content := `id,date,merchant,category,type,amount
a1,2024-01-15,Shop,Food,Expense,12.50
a2,someday,Shop,Food,,-3
a3,2024-01-17,Shop,Food,,oops`

	transactions, stats, err := DecodeCSV(strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transactions) != 3 {
		t.Fatalf("got %d transactions, want 3", len(transactions))
	}
	if stats.Rows != 3 || stats.InvalidDate != 1 {
		t.Errorf("stats = %+v, want 3 rows and 1 invalid date", stats)
	}

	first := transactions[0]
	if first.ID != "a1" || first.Merchant != "Shop" || first.TransactionType != models.Expense {
		t.Errorf("unexpected first transaction: %+v", first)
	}
	if !first.IsExpense() {
		t.Error("positive amount tagged expense should be an expense")
	}
	if transactions[1].Date.Valid() {
		t.Error("second row should keep an invalid date")
	}
	if !transactions[2].Amount.Invalid {
		t.Error("third row should keep an invalid amount")
	}
}

func TestDecodeAssignsDeterministicIDs(t *testing.T) {
	content := "date,description,amount\n2024-01-15,Coffee,-4\n"

	first, _, err := DecodeCSV(strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _, _ := DecodeCSV(strings.NewReader(content))

	if first[0].ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if first[0].ID != second[0].ID {
		t.Errorf("ids differ across decodes: %s vs %s", first[0].ID, second[0].ID)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		count   int
	}{
		{"array", `[{"id":"1","amount":-5,"date":"2024-01-01"},{"amount":"10","date":"2024-01-02"}]`, 2},
		{"items envelope", `{"items":[{"id":"1","amount":-5,"date":"2024-01-01"}],"total_count":1}`, 1},
		{"transactions envelope", `{"transactions":[{"amount":-5,"date":"2024-01-01","transaction_type":"EXPENSE"}]}`, 1},
		{"empty", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transactions, stats, err := DecodeJSON([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(transactions) != tt.count || stats.Rows != tt.count {
				t.Fatalf("got %d transactions (%d rows), want %d", len(transactions), stats.Rows, tt.count)
			}
			for _, txn := range transactions {
				if txn.ID == "" {
					t.Error("every transaction should have an id")
				}
			}
		})
	}

	transactions, _, _ := DecodeJSON([]byte(`{"transactions":[{"amount":5,"date":"2024-01-01","transaction_type":"EXPENSE"}]}`))
	if transactions[0].TransactionType != models.Expense {
		t.Errorf("transaction type = %q, want normalized %q", transactions[0].TransactionType, models.Expense)
	}

	if _, _, err := DecodeJSON([]byte(`{"items": 3}`)); err == nil {
		t.Error("expected error for malformed envelope")
	}
}

func TestDecodeDispatch(t *testing.T) {
	if txns, _, err := Decode("export.CSV", []byte("date,amount\n2024-01-01,-1\n")); err != nil || len(txns) != 1 {
		t.Errorf("csv by extension: %d txns, err %v", len(txns), err)
	}
	if txns, _, err := Decode("blob", []byte(` [{"amount":-1,"date":"2024-01-01"}]`)); err != nil || len(txns) != 1 {
		t.Errorf("json by content: %d txns, err %v", len(txns), err)
	}
	if _, _, err := Decode("notes.txt", []byte("hello")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
