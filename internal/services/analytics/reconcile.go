package analytics

import (
	"strings"

	"github.com/shopspring/decimal"

	"spendscope/internal/models"
)

// driftTolerance is the largest backend/local expense gap not worth reporting
var driftTolerance = decimal.RequireFromString("0.01")

// CategoryPattern is a backend pre-aggregated category total
type CategoryPattern struct {
	Category string        `json:"category"`
	Amount   models.Amount `json:"amount"`
	Count    int           `json:"count"`
}

// MerchantPattern is a backend pre-aggregated merchant total
type MerchantPattern struct {
	Merchant string        `json:"merchant"`
	Amount   models.Amount `json:"amount"`
	Count    int           `json:"count"`
}

// SpendingPatterns is what the backend analytics service returns. It has no
// day-level data, so it can only replace breakdowns, never time series.
type SpendingPatterns struct {
	Categories []CategoryPattern `json:"categories"`
	Merchants  []MerchantPattern `json:"merchants"`
	Insights   []string          `json:"insights,omitempty"`
}

// IsEmpty reports whether p carries nothing to merge
func (p *SpendingPatterns) IsEmpty() bool {
	return p == nil || (len(p.Categories) == 0 && len(p.Merchants) == 0 && len(p.Insights) == 0)
}

// Reconcile returns a copy of local with breakdowns taken from the backend
// where it provides them. Totals, counts and series stay local. Merchant visit
// bounds come from local data because the backend does not report them.
func Reconcile(local *Result, p *SpendingPatterns) *Result {
	out := *local
	out.Warnings = append([]Warning(nil), local.Warnings...)
	if p.IsEmpty() {
		return &out
	}

	out.Insights = append(append([]string(nil), local.Insights...), p.Insights...)

	if len(p.Categories) > 0 {
		out.CategoryBreakdown, out.BreakdownSource = reconcileCategories(p.Categories), SourceBackend

		backendTotal := decimal.Zero
		for _, c := range out.CategoryBreakdown {
			backendTotal = backendTotal.Add(c.Amount)
		}
		if backendTotal.Sub(local.TotalExpenses).Abs().GreaterThan(driftTolerance) {
			out.Warnings = append(out.Warnings, newWarning(WarnBackendDrift, 1,
				"backend category total %s differs from local expense total %s",
				backendTotal.StringFixed(2), local.TotalExpenses.StringFixed(2)))
		}
	}

	if len(p.Merchants) > 0 {
		out.MerchantBreakdown, out.BreakdownSource = reconcileMerchants(p.Merchants, local.MerchantBreakdown), SourceBackend
	}

	return &out
}

func reconcileCategories(patterns []CategoryPattern) []CategoryTotal {
	index := make(map[string]int)
	var items []CategoryTotal
	total := decimal.Zero

	for _, p := range patterns {
		if p.Amount.Invalid {
			continue
		}
		name := strings.TrimSpace(p.Category)
		if name == "" {
			name = models.DefaultCategory
		}
		mag := p.Amount.Abs()
		total = total.Add(mag)

		key := models.LabelKey(name)
		if i, ok := index[key]; ok {
			items[i].Amount = items[i].Amount.Add(mag)
			items[i].Count += p.Count
			continue
		}
		index[key] = len(items)
		items = append(items, CategoryTotal{Category: name, Amount: mag, Count: p.Count})
	}

	for i := range items {
		items[i].Percentage = percentOf(items[i].Amount, total)
	}
	if items == nil {
		items = []CategoryTotal{}
	}
	sortCategories(items)
	return items
}

func reconcileMerchants(patterns []MerchantPattern, local []MerchantTotal) []MerchantTotal {
	visits := make(map[string]MerchantTotal, len(local))
	for _, m := range local {
		visits[models.LabelKey(m.Merchant)] = m
	}

	index := make(map[string]int)
	var items []MerchantTotal
	total := decimal.Zero

	for _, p := range patterns {
		if p.Amount.Invalid {
			continue
		}
		name := strings.TrimSpace(p.Merchant)
		if name == "" {
			name = models.DefaultMerchant
		}
		mag := p.Amount.Abs()
		total = total.Add(mag)

		key := models.LabelKey(name)
		if i, ok := index[key]; ok {
			items[i].Amount = items[i].Amount.Add(mag)
			items[i].Count += p.Count
			continue
		}
		index[key] = len(items)
		m := MerchantTotal{Merchant: name, Amount: mag, Count: p.Count}
		if lm, ok := visits[key]; ok {
			m.FirstVisit, m.LastVisit = lm.FirstVisit, lm.LastVisit
		}
		items = append(items, m)
	}

	for i := range items {
		items[i].Percentage = percentOf(items[i].Amount, total)
	}
	if items == nil {
		items = []MerchantTotal{}
	}
	sortMerchants(items)
	return items
}
