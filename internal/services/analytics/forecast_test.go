package analytics

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"spendscope/internal/models"
)

func series(amounts ...float64) []DailyPoint {
	out := make([]DailyPoint, len(amounts))
	start := day(2024, 1, 1).Time()
	for i, a := range amounts {
		out[i] = DailyPoint{Date: models.DayOf(start.AddDate(0, 0, i)), Amount: decimal.NewFromFloat(a)}
	}
	return out
}

func TestEstimateForecastEmpty(t *testing.T) {
	f := EstimateForecast(nil)
	assert.Equal(t, 0, f.SampleSize)
	assert.Equal(t, 0.0, f.HistoricalAvgPerDay)
	assert.Equal(t, 0.0, f.RecentTrendPerDay)
	assert.Equal(t, 0.0, f.TrendChangePercent)
	assert.Equal(t, 0.0, f.Forecast30Day)
	assert.Equal(t, minConfidence, f.Confidence)
}

func TestEstimateForecastShortSeries(t *testing.T) {
	f := EstimateForecast(series(10, 20, 30))
	assert.InDelta(t, 20.0, f.HistoricalAvgPerDay, 1e-9)
	assert.InDelta(t, 20.0, f.RecentTrendPerDay, 1e-9)
	assert.InDelta(t, 0.0, f.TrendChangePercent, 1e-9)
	assert.InDelta(t, 600.0, f.Forecast30Day, 1e-9)
	assert.Equal(t, 3, f.SampleSize)
}

func TestEstimateForecastRecentWindow(t *testing.T) {
	amounts := make([]float64, 60)
	for i := range amounts {
		if i < 30 {
			amounts[i] = 10
		} else {
			amounts[i] = 20
		}
	}
	f := EstimateForecast(series(amounts...))

	assert.InDelta(t, 15.0, f.HistoricalAvgPerDay, 1e-9)
	assert.InDelta(t, 20.0, f.RecentTrendPerDay, 1e-9)
	assert.InDelta(t, 100.0/3.0, f.TrendChangePercent, 1e-9)
	assert.InDelta(t, 600.0, f.Forecast30Day, 1e-9)
}

func TestEstimateForecastZeroHistoryGuard(t *testing.T) {
	f := EstimateForecast(series(0, 0, 0))
	assert.Equal(t, 0.0, f.TrendChangePercent)
	assert.False(t, math.IsNaN(f.TrendChangePercent))
	assert.False(t, math.IsInf(f.TrendChangePercent, 0))
}

func TestConfidenceMonotonicAndBounded(t *testing.T) {
	prev := Confidence(0)
	for n := 0; n <= 500; n++ {
		c := Confidence(n)
		assert.GreaterOrEqual(t, c, minConfidence)
		assert.LessOrEqual(t, c, maxConfidence)
		assert.GreaterOrEqual(t, c, prev, "confidence decreased at n=%d", n)
		prev = c
	}

	assert.InDelta(t, 0.505, Confidence(1), 1e-9)
	assert.InDelta(t, 0.725, Confidence(45), 1e-9)
	assert.InDelta(t, maxConfidence, Confidence(90), 1e-9)
	assert.Equal(t, maxConfidence, Confidence(10000))
}

func TestVolatility(t *testing.T) {
	tests := []struct {
		name     string
		amounts  []float64
		expected float64
	}{
		{"empty", nil, 0},
		{"zero mean", []float64{0, 0}, 0},
		{"constant", []float64{5, 5, 5}, 0},
		// mean 5, population std dev 2
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Volatility(series(tt.amounts...)), 1e-9)
		})
	}
}
