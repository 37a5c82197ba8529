package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// TransactionType is the optional producer tag on a transaction
type TransactionType string

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// Normalized lowercases and trims the tag so "Expense " and "expense" compare equal
func (tt TransactionType) Normalized() TransactionType {
	return TransactionType(strings.ToLower(strings.TrimSpace(string(tt))))
}

const (
	// DefaultCategory labels transactions without a category
	DefaultCategory = "Uncategorized"
	// DefaultMerchant labels transactions without a merchant
	DefaultMerchant = "Unknown"
)

// Transaction is a single financial event as read from a transaction source.
// Producers disagree on sign conventions: some send negative amounts for
// expenses, others send a positive amount plus TransactionType.
type Transaction struct {
	ID              string          `json:"id"`
	Amount          Amount          `json:"amount"`
	Date            Date            `json:"date"`
	Category        string          `json:"category,omitempty"`
	Merchant        string          `json:"merchant,omitempty"`
	TransactionType TransactionType `json:"transaction_type,omitempty"`
	Description     string          `json:"description,omitempty"`
}

// IsExpense is the one expense predicate used everywhere: a negative amount
// or an explicit "expense" tag. Everything else is income.
func (t *Transaction) IsExpense() bool {
	return t.Amount.IsNegative() || t.TransactionType.Normalized() == Expense
}

// SignConflict reports a sign that contradicts the tag (positive expense or
// negative income). IsExpense still decides; this only flags data quality.
func (t *Transaction) SignConflict() bool {
	if t.Amount.Invalid {
		return false
	}
	switch t.TransactionType.Normalized() {
	case Expense:
		return t.Amount.IsPositive()
	case Income:
		return t.Amount.IsNegative()
	}
	return false
}

// NormalizedCategory returns the category label, defaulting to "Uncategorized"
func (t *Transaction) NormalizedCategory() string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return DefaultCategory
}

// NormalizedMerchant returns the merchant label, defaulting to "Unknown"
func (t *Transaction) NormalizedMerchant() string {
	if m := strings.TrimSpace(t.Merchant); m != "" {
		return m
	}
	return DefaultMerchant
}

// CategoryKey is the category compared case-insensitively. Every category
// match and grouping goes through it.
func (t *Transaction) CategoryKey() string {
	return LabelKey(t.NormalizedCategory())
}

// MerchantKey is the merchant compared case-insensitively
func (t *Transaction) MerchantKey() string {
	return LabelKey(t.NormalizedMerchant())
}

// LabelKey folds a label for comparison: trimmed and lowercased with Unicode
// rules, so "CAFÉ " and "café" share a key
func LabelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// ComputeHash generates a stable fingerprint for duplicate detection
func (t *Transaction) ComputeHash() string {
	date := t.Date.Raw
	if day, ok := t.Date.CalendarDay(); ok {
		date = day.String()
	}
	desc := strings.ToLower(strings.TrimSpace(t.Description))
	merchant := strings.ToLower(strings.TrimSpace(t.Merchant))
	amount := t.Amount.StringFixed(2)

	input := fmt.Sprintf("%s|%s|%s|%s", date, desc, merchant, amount)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:8])
}
