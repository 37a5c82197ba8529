package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"spendscope/internal/models"
)

// Breakdown sources
const (
	SourceLocal   = "local"
	SourceBackend = "backend"
)

// Accumulators are keyed by the folded label and keep the first spelling seen
type categoryAcc struct {
	label  string
	amount decimal.Decimal
	count  int
}

type merchantAcc struct {
	label       string
	amount      decimal.Decimal
	count       int
	first, last *models.Day
}

func (m *merchantAcc) visit(day models.Day) {
	if m.first == nil || day.Before(*m.first) {
		d := day
		m.first = &d
	}
	if m.last == nil || day.After(*m.last) {
		d := day
		m.last = &d
	}
}

// Aggregate computes every derived figure for txns in one pass plus the
// second pass percentages need. Records with an invalid amount are only
// counted; records with an invalid date are totalled but left out of the time
// series. Both show up as warnings.
func Aggregate(txns []models.Transaction) *Result {
	r := &Result{
		CategoryBreakdown: []CategoryTotal{},
		MerchantBreakdown: []MerchantTotal{},
		DailySeries:       []DailyPoint{},
		MonthlySeries:     []MonthlyPoint{},
		WeeklyPattern:     []WeekdayTotal{},
		BreakdownSource:   SourceLocal,
	}

	categories := make(map[string]*categoryAcc)
	merchants := make(map[string]*merchantAcc)
	daily := make(map[models.Day]decimal.Decimal)
	monthly := make(map[models.Month]*MonthlyPoint)
	var weekly [7]WeekdayTotal
	var badAmounts, badDates, conflicts int

	for i := range txns {
		t := &txns[i]
		r.TransactionCount++

		if t.Amount.Invalid {
			badAmounts++
			continue
		}
		if t.SignConflict() {
			conflicts++
		}

		day, dated := t.Date.CalendarDay()
		if !dated {
			badDates++
		}

		var month *MonthlyPoint
		if dated {
			m := day.MonthOf()
			month = monthly[m]
			if month == nil {
				month = &MonthlyPoint{Month: m}
				monthly[m] = month
			}
		}

		if !t.IsExpense() {
			r.IncomeCount++
			r.TotalIncome = r.TotalIncome.Add(t.Amount.Decimal)
			if month != nil {
				month.Income = month.Income.Add(t.Amount.Decimal)
			}
			continue
		}

		mag := t.Amount.Abs()
		r.ExpenseCount++
		r.TotalExpenses = r.TotalExpenses.Add(mag)

		ca := categories[t.CategoryKey()]
		if ca == nil {
			ca = &categoryAcc{label: t.NormalizedCategory()}
			categories[t.CategoryKey()] = ca
		}
		ca.amount = ca.amount.Add(mag)
		ca.count++

		ma := merchants[t.MerchantKey()]
		if ma == nil {
			ma = &merchantAcc{label: t.NormalizedMerchant()}
			merchants[t.MerchantKey()] = ma
		}
		ma.amount = ma.amount.Add(mag)
		ma.count++

		if !dated {
			continue
		}
		ma.visit(day)
		daily[day] = daily[day].Add(mag)
		month.Expenses = month.Expenses.Add(mag)
		w := &weekly[day.Weekday()]
		w.Amount = w.Amount.Add(mag)
		w.Count++
	}

	r.NetCashflow = r.TotalIncome.Sub(r.TotalExpenses)
	r.AvgExpense = average(r.TotalExpenses, r.ExpenseCount)
	r.AvgIncome = average(r.TotalIncome, r.IncomeCount)

	// Percentages need the final expense total
	for _, acc := range categories {
		r.CategoryBreakdown = append(r.CategoryBreakdown, CategoryTotal{
			Category:   acc.label,
			Amount:     acc.amount,
			Count:      acc.count,
			Percentage: percentOf(acc.amount, r.TotalExpenses),
		})
	}
	sortCategories(r.CategoryBreakdown)

	for _, acc := range merchants {
		r.MerchantBreakdown = append(r.MerchantBreakdown, MerchantTotal{
			Merchant:   acc.label,
			Amount:     acc.amount,
			Count:      acc.count,
			Percentage: percentOf(acc.amount, r.TotalExpenses),
			FirstVisit: acc.first,
			LastVisit:  acc.last,
		})
	}
	sortMerchants(r.MerchantBreakdown)

	r.DailySeries = buildDailySeries(daily)
	r.MonthlySeries = buildMonthlySeries(monthly)

	if r.TransactionCount > 0 {
		for i := range weekly {
			weekly[i].Weekday = i
			weekly[i].Name = weekdayNames[i]
		}
		r.WeeklyPattern = append(r.WeeklyPattern, weekly[:]...)
	}

	r.Forecast = EstimateForecast(r.DailySeries)
	r.Volatility = Volatility(r.DailySeries)

	if first, last, ok := DateBounds(txns); ok {
		r.StartDate, r.EndDate = &first, &last
	}

	if badAmounts > 0 {
		r.Warnings = append(r.Warnings, newWarning(WarnInvalidAmount, badAmounts,
			"%d records skipped due to invalid amount", badAmounts))
	}
	if badDates > 0 {
		r.Warnings = append(r.Warnings, newWarning(WarnInvalidDate, badDates,
			"%d records left out of time series due to invalid date", badDates))
	}
	if conflicts > 0 {
		r.Warnings = append(r.Warnings, newWarning(WarnSignConflict, conflicts,
			"%d records have an amount sign that disagrees with their transaction type", conflicts))
	}

	return r
}

func buildDailySeries(daily map[models.Day]decimal.Decimal) []DailyPoint {
	series := make([]DailyPoint, 0, len(daily))
	for day, amount := range daily {
		series = append(series, DailyPoint{Date: day, Amount: amount})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})

	amounts := dailyAmounts(series)
	for i := range series {
		series[i].MA7 = trailingMean(amounts, i, 7)
		series[i].MA30 = trailingMean(amounts, i, 30)
	}
	return series
}

func buildMonthlySeries(monthly map[models.Month]*MonthlyPoint) []MonthlyPoint {
	series := make([]MonthlyPoint, 0, len(monthly))
	for _, m := range monthly {
		m.Net = m.Income.Sub(m.Expenses)
		m.SavingsRate = savingsRate(m.Net, m.Income)
		series = append(series, *m)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Month.Before(series[j].Month)
	})
	return series
}

// trailingMean averages values[i-window+1..i], shrinking the window at the
// start of the series instead of padding with zeros.
func trailingMean(values []float64, i, window int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	return mean(values[start : i+1])
}

func sortCategories(items []CategoryTotal) {
	sort.Slice(items, func(i, j int) bool {
		if c := items[i].Amount.Cmp(items[j].Amount); c != 0 {
			return c > 0
		}
		return items[i].Category < items[j].Category
	})
}

func sortMerchants(items []MerchantTotal) {
	sort.Slice(items, func(i, j int) bool {
		if c := items[i].Amount.Cmp(items[j].Amount); c != 0 {
			return c > 0
		}
		return items[i].Merchant < items[j].Merchant
	})
}

func average(total decimal.Decimal, count int) decimal.Decimal {
	if count < 1 {
		count = 1
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}

// percentOf returns part/total*100, or 0 when total is not positive
func percentOf(part, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	pct, _ := part.Div(total).Mul(hundred).Float64()
	return pct
}
