package analytics

import "math"

const (
	recentWindow   = 30
	forecastDays   = 30
	minConfidence  = 0.40
	maxConfidence  = 0.95
	confidenceDays = 90
)

// EstimateForecast extrapolates the last 30 days of spend flat over the next
// 30 days. Confidence grows linearly with the number of days observed and is
// clamped to [0.40, 0.95].
func EstimateForecast(daily []DailyPoint) Forecast {
	n := len(daily)
	f := Forecast{SampleSize: n, Confidence: Confidence(n)}
	if n == 0 {
		return f
	}

	amounts := dailyAmounts(daily)
	recentStart := n - recentWindow
	if recentStart < 0 {
		recentStart = 0
	}

	f.HistoricalAvgPerDay = mean(amounts)
	f.RecentTrendPerDay = mean(amounts[recentStart:])
	if f.HistoricalAvgPerDay != 0 {
		f.TrendChangePercent = (f.RecentTrendPerDay - f.HistoricalAvgPerDay) / f.HistoricalAvgPerDay * 100
	}
	f.Forecast30Day = f.RecentTrendPerDay * forecastDays
	return f
}

// Confidence maps a sample size to a heuristic score. It is non-decreasing in
// n and always within [0.40, 0.95]; no samples gives the minimum.
func Confidence(n int) float64 {
	if n <= 0 {
		return minConfidence
	}
	c := 0.50 + float64(n)/confidenceDays*0.45
	return math.Max(minConfidence, math.Min(maxConfidence, c))
}

// Volatility is the population standard deviation of daily spend as a
// percentage of the mean. It is 0 for an empty series or a zero mean.
func Volatility(daily []DailyPoint) float64 {
	if len(daily) == 0 {
		return 0
	}
	amounts := dailyAmounts(daily)
	m := mean(amounts)
	if m == 0 {
		return 0
	}

	var sumSq float64
	for _, v := range amounts {
		d := v - m
		sumSq += d * d
	}
	stdDev := math.Sqrt(sumSq / float64(len(amounts)))
	return stdDev / m * 100
}

func dailyAmounts(daily []DailyPoint) []float64 {
	out := make([]float64, len(daily))
	for i, p := range daily {
		out[i] = p.Amount.InexactFloat64()
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
