package analytics

import (
	"strings"

	"github.com/shopspring/decimal"

	"spendscope/internal/models"
)

// Criteria selects a subset of transactions. Zero values mean "no constraint":
// the date range applies only when both Start and End are set, and a zero
// MinAmount or MaxAmount leaves that side of the amount range open.
type Criteria struct {
	Start      models.Day      `json:"start,omitempty"`
	End        models.Day      `json:"end,omitempty"`
	MinAmount  decimal.Decimal `json:"min_amount"`
	MaxAmount  decimal.Decimal `json:"max_amount"`
	Categories []string        `json:"categories,omitempty"`
	Search     string          `json:"search,omitempty"`
}

// HasDateRange reports whether the date predicate is active
func (c Criteria) HasDateRange() bool {
	return !c.Start.IsZero() && !c.End.IsZero()
}

// IsZero reports whether c keeps every transaction
func (c Criteria) IsZero() bool {
	return !c.HasDateRange() &&
		!c.MinAmount.IsPositive() &&
		!c.MaxAmount.IsPositive() &&
		len(c.categorySet()) == 0 &&
		strings.TrimSpace(c.Search) == ""
}

func (c Criteria) categorySet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		cat = models.LabelKey(cat)
		if cat != "" {
			set[cat] = struct{}{}
		}
	}
	return set
}

// Filter returns the transactions matching c in their original order. The
// input slice is never modified.
func Filter(txns []models.Transaction, c Criteria) []models.Transaction {
	out := make([]models.Transaction, 0, len(txns))
	if c.IsZero() {
		return append(out, txns...)
	}

	cats := c.categorySet()
	search := strings.ToLower(strings.TrimSpace(c.Search))
	dated := c.HasDateRange()

	for _, t := range txns {
		if dated {
			day, ok := t.Date.CalendarDay()
			if !ok || day.Before(c.Start) || day.After(c.End) {
				continue
			}
		}

		mag := t.Amount.Magnitude()
		if c.MinAmount.IsPositive() && mag.LessThan(c.MinAmount) {
			continue
		}
		if c.MaxAmount.IsPositive() && mag.GreaterThan(c.MaxAmount) {
			continue
		}

		if len(cats) > 0 {
			if _, ok := cats[t.CategoryKey()]; !ok {
				continue
			}
		}

		if search != "" &&
			!strings.Contains(strings.ToLower(t.Description), search) &&
			!strings.Contains(strings.ToLower(t.Merchant), search) {
			continue
		}

		out = append(out, t)
	}
	return out
}

// DateBounds returns the earliest and latest valid calendar day in txns
func DateBounds(txns []models.Transaction) (first, last models.Day, ok bool) {
	for _, t := range txns {
		day, valid := t.Date.CalendarDay()
		if !valid {
			continue
		}
		if !ok || day.Before(first) {
			first = day
		}
		if !ok || day.After(last) {
			last = day
		}
		ok = true
	}
	return first, last, ok
}
