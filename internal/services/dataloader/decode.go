package dataloader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendscope/internal/models"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor JSON
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrMalformed is returned when a CSV or JSON file cannot be decoded
var ErrMalformed = errors.New("malformed transaction file")

// idNamespace seeds deterministic ids for rows that arrive without one, so
// re-reading the same file yields the same ids
var idNamespace = uuid.MustParse("6f1c7f0e-4a8e-4f4b-9a43-5d1f0c2b7e61")

// columnMappings maps common bank export column names (lowercased) to our
// standard names
var columnMappings = map[string][]string{
	"ID": {
		"id", "transaction id", "transaction_id",
	},
	"Date": {
		"date", "transaction date", "posted date", "post date",
		"trans date", "posting date",
	},
	"Description": {
		"description", "memo", "details", "transaction description", "narrative",
	},
	"Merchant": {
		"merchant", "merchant name", "payee", "name",
	},
	"Amount": {
		"amount", "value", "transaction amount", "sum",
	},
	"Category": {
		"category", "category name",
	},
	"Type": {
		"type", "transaction type", "transaction_type",
	},
	"Debit": {
		"debit", "withdrawal", "withdrawals", "money out", "expense",
	},
	"Credit": {
		"credit", "deposit", "deposits", "money in", "income",
	},
}

// DecodeStats describes one decoded file
type DecodeStats struct {
	Rows        int `json:"rows"`
	SkippedRows int `json:"skipped_rows"`
	InvalidDate int `json:"invalid_date"`
}

// Decode picks a decoder from the file extension, falling back to sniffing
// the first non-space byte. Decoder failures wrap ErrMalformed.
func Decode(filename string, data []byte) ([]models.Transaction, DecodeStats, error) {
	var (
		txns  []models.Transaction
		stats DecodeStats
		err   error
	)

	trimmed := bytes.TrimSpace(data)
	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".csv":
		txns, stats, err = DecodeCSV(bytes.NewReader(data))
	case ext == ".json":
		txns, stats, err = DecodeJSON(data)
	case len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{'):
		txns, stats, err = DecodeJSON(data)
	case bytes.IndexByte(trimmed, ',') >= 0:
		txns, stats, err = DecodeCSV(bytes.NewReader(data))
	default:
		return nil, DecodeStats{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return txns, stats, nil
}

// normalizeColumnName maps a bank export column name to our standard name
func normalizeColumnName(col string) string {
	col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	lower := strings.ToLower(col)
	for standard, variants := range columnMappings {
		for _, variant := range variants {
			if lower == variant {
				return standard
			}
		}
	}
	return col // Return original if no mapping found
}

// buildColumnIndex creates a normalized column index from CSV headers
func buildColumnIndex(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		normalized := normalizeColumnName(col)
		// first match wins
		if _, exists := colIndex[normalized]; !exists {
			colIndex[normalized] = i
		}
	}
	return colIndex
}

// DecodeCSV reads a bank-export style CSV. Rows whose date or amount does not
// parse are kept with an invalid field; only rows the CSV reader rejects are
// skipped.
func DecodeCSV(r io.Reader) ([]models.Transaction, DecodeStats, error) {
	var stats DecodeStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	colIndex := buildColumnIndex(header)

	_, hasAmount := colIndex["Amount"]
	_, hasDebit := colIndex["Debit"]
	_, hasCredit := colIndex["Credit"]
	useDebitCredit := !hasAmount && (hasDebit || hasCredit)

	if _, ok := colIndex["Date"]; !ok {
		return nil, stats, fmt.Errorf("missing required column: Date (tried: %v)", columnMappings["Date"])
	}
	if !hasAmount && !useDebitCredit {
		return nil, stats, fmt.Errorf("missing required column: Amount or Debit/Credit (tried: %v)", columnMappings["Amount"])
	}

	field := func(record []string, name string) string {
		if idx, ok := colIndex[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	var transactions []models.Transaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.SkippedRows++
			continue
		}
		if isBlank(record) {
			continue
		}
		stats.Rows++

		t := models.Transaction{
			ID:              field(record, "ID"),
			Date:            models.ParseDate(field(record, "Date")),
			Description:     field(record, "Description"),
			Merchant:        field(record, "Merchant"),
			Category:        field(record, "Category"),
			TransactionType: models.TransactionType(field(record, "Type")).Normalized(),
		}
		if useDebitCredit {
			t.Amount = parseDebitCredit(field(record, "Debit"), field(record, "Credit"))
		} else {
			t.Amount = models.ParseAmount(field(record, "Amount"))
		}
		if !t.Date.Valid() {
			stats.InvalidDate++
		}

		transactions = append(transactions, t)
	}

	assignIDs(transactions)
	return transactions, stats, nil
}

// parseDebitCredit combines Debit and Credit columns into a single amount.
// Credits are positive (income), debits negative (expenses).
func parseDebitCredit(debit, credit string) models.Amount {
	amount := decimal.Zero
	seen := false

	if credit != "" {
		if c := models.ParseAmount(credit); !c.Invalid {
			seen = true
			if !c.IsZero() {
				amount = c.Abs()
			}
		}
	}
	if debit != "" {
		if d := models.ParseAmount(debit); !d.Invalid {
			seen = true
			if !d.IsZero() {
				amount = d.Abs().Neg()
			}
		}
	}

	if !seen {
		return models.Amount{Invalid: true}
	}
	return models.NewAmount(amount)
}

// DecodeJSON accepts a bare array of transactions or an object wrapping one
// under "items" or "transactions"
func DecodeJSON(data []byte) ([]models.Transaction, DecodeStats, error) {
	var stats DecodeStats
	var transactions []models.Transaction

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Items        []models.Transaction `json:"items"`
			Transactions []models.Transaction `json:"transactions"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, stats, fmt.Errorf("decode json: %w", err)
		}
		transactions = envelope.Items
		if len(transactions) == 0 {
			transactions = envelope.Transactions
		}
	} else if err := json.Unmarshal(trimmed, &transactions); err != nil {
		return nil, stats, fmt.Errorf("decode json: %w", err)
	}

	for i := range transactions {
		transactions[i].TransactionType = transactions[i].TransactionType.Normalized()
		if !transactions[i].Date.Valid() {
			stats.InvalidDate++
		}
	}
	stats.Rows = len(transactions)

	assignIDs(transactions)
	return transactions, stats, nil
}

// assignIDs gives every row without an id one derived from its content
func assignIDs(transactions []models.Transaction) {
	for i := range transactions {
		if transactions[i].ID == "" {
			transactions[i].ID = uuid.NewSHA1(idNamespace, []byte(transactions[i].ComputeHash())).String()
		}
	}
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
