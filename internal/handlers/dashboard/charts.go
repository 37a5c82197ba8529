package dashboard

import (
	"github.com/shopspring/decimal"

	"spendscope/internal/models"
	"spendscope/internal/services/analytics"
)

// Chart payloads are Plotly {data, layout} documents. Every figure comes from
// the aggregate; nothing here revisits transactions.

type chartBuilder func(*analytics.Result) map[string]interface{}

var chartBuilders = map[string]chartBuilder{
	"monthly":    buildMonthlyChartData,
	"category":   buildCategoryChartData,
	"cashflow":   buildCashflowChartData,
	"merchants":  buildMerchantsChartData,
	"weekly":     buildWeeklyPatternChartData,
	"daily":      buildDailyChartData,
	"cumulative": buildCumulativeChartData,
	"forecast":   buildForecastChartData,
}

const (
	topCategories = 10
	topMerchants  = 10
	forecastDays  = 30
)

func buildMonthlyChartData(r *analytics.Result) map[string]interface{} {
	months := make([]string, 0, len(r.MonthlySeries))
	incomeValues := make([]float64, 0, len(r.MonthlySeries))
	expenseValues := make([]float64, 0, len(r.MonthlySeries))
	for _, m := range r.MonthlySeries {
		months = append(months, m.Month.String())
		incomeValues = append(incomeValues, toFloat(m.Income))
		expenseValues = append(expenseValues, toFloat(m.Expenses))
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type": "bar",
				"name": "Income",
				"x":    months,
				"y":    incomeValues,
				"marker": map[string]string{
					"color": "#22c55e",
				},
			},
			{
				"type": "bar",
				"name": "Expenses",
				"x":    months,
				"y":    expenseValues,
				"marker": map[string]string{
					"color": "#ef4444",
				},
			},
		},
		"layout": map[string]interface{}{
			"barmode": "group",
		},
	}
}

// buildCategoryChartData keeps the top categories and folds the rest into
// "Other". The breakdown is already sorted by amount.
func buildCategoryChartData(r *analytics.Result) map[string]interface{} {
	labels := []string{}
	values := []float64{}
	other := decimal.Zero
	for i, c := range r.CategoryBreakdown {
		if i >= topCategories {
			other = other.Add(c.Amount)
			continue
		}
		labels = append(labels, c.Category)
		values = append(values, toFloat(c.Amount))
	}
	if other.IsPositive() {
		labels = append(labels, "Other")
		values = append(values, toFloat(other))
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type":   "pie",
				"labels": labels,
				"values": values,
				"hole":   0.4,
			},
		},
	}
}

// buildCashflowChartData plots monthly net cashflow
func buildCashflowChartData(r *analytics.Result) map[string]interface{} {
	months := make([]string, 0, len(r.MonthlySeries))
	net := make([]float64, 0, len(r.MonthlySeries))
	for _, m := range r.MonthlySeries {
		months = append(months, m.Month.String())
		net = append(net, toFloat(m.Net))
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type":      "scatter",
				"mode":      "lines",
				"name":      "Net Cashflow",
				"x":         months,
				"y":         net,
				"line":      map[string]string{"color": "#6366f1"},
				"fill":      "tozeroy",
				"fillcolor": "rgba(99, 102, 241, 0.1)",
			},
		},
	}
}

func buildMerchantsChartData(r *analytics.Result) map[string]interface{} {
	n := len(r.MerchantBreakdown)
	if n > topMerchants {
		n = topMerchants
	}

	// Reverse so the largest bar renders on top
	merchants := make([]string, n)
	values := make([]float64, n)
	for i, m := range r.MerchantBreakdown[:n] {
		merchants[n-1-i] = m.Merchant
		values[n-1-i] = toFloat(m.Amount)
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type":        "bar",
				"orientation": "h",
				"x":           values,
				"y":           merchants,
				"marker": map[string]string{
					"color": "#8b5cf6",
				},
			},
		},
	}
}

// buildWeeklyPatternChartData shows average spend per weekday occurrence
func buildWeeklyPatternChartData(r *analytics.Result) map[string]interface{} {
	days := make([]string, 0, len(r.WeeklyPattern))
	avgs := make([]float64, 0, len(r.WeeklyPattern))
	colors := make([]string, 0, len(r.WeeklyPattern))
	for _, wd := range r.WeeklyPattern {
		days = append(days, wd.Name)
		avg := 0.0
		if wd.Count > 0 {
			avg = toFloat(wd.Amount) / float64(wd.Count)
		}
		avgs = append(avgs, avg)
		// weekends muted
		if wd.Weekday == 0 || wd.Weekday == 6 {
			colors = append(colors, "#94a3b8")
		} else {
			colors = append(colors, "#3b82f6")
		}
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type": "bar",
				"x":    days,
				"y":    avgs,
				"marker": map[string]interface{}{
					"color": colors,
				},
			},
		},
		"layout": map[string]interface{}{
			"yaxis": map[string]string{"title": "Avg Spending ($)"},
		},
	}
}

// buildDailyChartData plots daily spend with its 7 and 30 day moving averages
func buildDailyChartData(r *analytics.Result) map[string]interface{} {
	dates := make([]string, 0, len(r.DailySeries))
	amounts := make([]float64, 0, len(r.DailySeries))
	ma7 := make([]float64, 0, len(r.DailySeries))
	ma30 := make([]float64, 0, len(r.DailySeries))
	for _, p := range r.DailySeries {
		dates = append(dates, p.Date.String())
		amounts = append(amounts, toFloat(p.Amount))
		ma7 = append(ma7, p.MA7)
		ma30 = append(ma30, p.MA30)
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type":   "bar",
				"name":   "Daily",
				"x":      dates,
				"y":      amounts,
				"marker": map[string]string{"color": "#cbd5e1"},
			},
			{
				"type": "scatter",
				"mode": "lines",
				"name": "7-day avg",
				"x":    dates,
				"y":    ma7,
				"line": map[string]string{"color": "#3b82f6"},
			},
			{
				"type": "scatter",
				"mode": "lines",
				"name": "30-day avg",
				"x":    dates,
				"y":    ma30,
				"line": map[string]string{"color": "#f59e0b"},
			},
		},
		"layout": map[string]interface{}{
			"yaxis": map[string]string{"title": "Spending ($)"},
		},
	}
}

// buildCumulativeChartData plots running spend over the daily series
func buildCumulativeChartData(r *analytics.Result) map[string]interface{} {
	dates := make([]string, 0, len(r.DailySeries))
	cumulative := make([]float64, 0, len(r.DailySeries))
	running := decimal.Zero
	for _, p := range r.DailySeries {
		running = running.Add(p.Amount)
		dates = append(dates, p.Date.String())
		cumulative = append(cumulative, toFloat(running))
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type":      "scatter",
				"mode":      "lines",
				"name":      "Cumulative Spending",
				"x":         dates,
				"y":         cumulative,
				"line":      map[string]string{"color": "#ef4444"},
				"fill":      "tozeroy",
				"fillcolor": "rgba(239, 68, 68, 0.1)",
			},
		},
		"layout": map[string]interface{}{
			"yaxis": map[string]string{"title": "Cumulative ($)"},
		},
	}
}

// buildForecastChartData continues the daily series for 30 days at the
// recent trend. The projection is flat.
func buildForecastChartData(r *analytics.Result) map[string]interface{} {
	histDates := make([]string, 0, len(r.DailySeries))
	histValues := make([]float64, 0, len(r.DailySeries))
	for _, p := range r.DailySeries {
		histDates = append(histDates, p.Date.String())
		histValues = append(histValues, toFloat(p.Amount))
	}

	futureDates := []string{}
	futureValues := []float64{}
	if n := len(r.DailySeries); n > 0 {
		last := r.DailySeries[n-1].Date.Time()
		for i := 1; i <= forecastDays; i++ {
			futureDates = append(futureDates, models.DayOf(last.AddDate(0, 0, i)).String())
			futureValues = append(futureValues, r.Forecast.RecentTrendPerDay)
		}
	}

	return map[string]interface{}{
		"data": []map[string]interface{}{
			{
				"type": "scatter",
				"mode": "lines",
				"name": "Actual",
				"x":    histDates,
				"y":    histValues,
				"line": map[string]string{"color": "#6366f1"},
			},
			{
				"type": "scatter",
				"mode": "lines",
				"name": "Forecast",
				"x":    futureDates,
				"y":    futureValues,
				"line": map[string]string{"color": "#6366f1", "dash": "dash"},
			},
		},
		"layout": map[string]interface{}{
			"yaxis": map[string]string{"title": "Spending ($)"},
			"annotations": []map[string]interface{}{
				{
					"text":      "30-day forecast",
					"showarrow": false,
					"xref":      "paper",
					"yref":      "paper",
					"x":         1,
					"y":         1,
				},
			},
		},
		"forecast": r.Forecast,
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
