package market

import (
	"testing"

	"bullwatch/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTopBullish(t *testing.T) {
	in := []models.BullishScore{
		{Ticker: "A", Score: 0.2},
		{Ticker: "B", Score: 0.9},
		{Ticker: "C", Score: 0.5},
		{Ticker: "D", Score: 0.9},
	}
	top := TopBullish(in, 3)
	assert.Equal(t, []string{"B", "D", "C"}, []string{top[0].Ticker, top[1].Ticker, top[2].Ticker})
	assert.Equal(t, "A", in[0].Ticker, "input untouched")
	assert.Len(t, TopBullish(in, 0), 4)
}

func TestSortedTickers(t *testing.T) {
	in := []models.BullishScore{{Ticker: "MSFT"}, {Ticker: "AAPL"}, {Ticker: "MSFT"}, {Ticker: ""}}
	assert.Equal(t, []string{"AAPL", "MSFT"}, SortedTickers(in))
}

func TestSevenDayChange(t *testing.T) {
	cases := []struct {
		name string
		vals []float64
		want string
	}{
		{"empty", nil, "0"},
		{"too short falls back to last close", []float64{1, 2, 3}, "0"},
		{"eight rows", []float64{100, 0, 0, 0, 0, 0, 0, 112.5}, "12.5"},
		{"uses row eight from the end", []float64{1, 200, 5, 5, 5, 5, 5, 5, 150}, "-25"},
		{"zero base", []float64{0, 1, 1, 1, 1, 1, 1, 5}, "0"},
	}
	for _, tc := range cases {
		s := models.TickerSeries{Rows: closes(tc.vals...)}
		assert.Equal(t, tc.want, SevenDayChange(s).String(), tc.name)
	}
}

func TestTrendOf(t *testing.T) {
	flat := models.TickerSeries{Rows: closes(1, 2, 3)}
	assert.Equal(t, TrendFlat, TrendOf(flat))

	down := models.TickerSeries{Rows: closes(9, 9, 9, 9, 9, 9, 9, 9, 8)}
	assert.Equal(t, TrendDown, TrendOf(down))

	// Only the trailing window counts.
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = 5
	}
	vals[99] = 6
	assert.Equal(t, TrendUp, TrendOf(models.TickerSeries{Rows: closes(vals...)}))
	assert.Len(t, Closes(models.TickerSeries{Rows: closes(vals...)}, TrendWindow), TrendWindow)
}

func TestBandOf(t *testing.T) {
	assert.Equal(t, Bearish, BandOf(0))
	assert.Equal(t, Bearish, BandOf(0.4999))
	assert.Equal(t, Neutral, BandOf(0.5))
	assert.Equal(t, Neutral, BandOf(0.7499))
	assert.Equal(t, Bullish, BandOf(0.75))
	assert.Equal(t, Bullish, BandOf(1))
}

func TestJoinRecent(t *testing.T) {
	hist := models.TickerSeries{Rows: closes(1, 2, 3)}
	ind := models.TickerSeries{Rows: []models.SeriesRow{
		{Key: hist.Rows[2].Key, Fields: map[string]float64{"bullish_score": 0.6}},
	}}

	got := JoinRecent(hist, ind, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, "2025-01-02", got[0].Date)
	assert.Nil(t, got[0].Indicators)
	assert.Equal(t, 0.6, got[1].Indicators["bullish_score"])
	assert.Equal(t, 3.0, got[1].History["close"])
}

func TestLatestIndicators(t *testing.T) {
	assert.Empty(t, LatestIndicators(models.TickerSeries{}))

	s := models.TickerSeries{Rows: []models.SeriesRow{
		{Fields: map[string]float64{"RSI14_norm": 0.1}},
		{Fields: map[string]float64{"RSI14_norm": 0.3, "bullish_score": 0.7, "other": 9}},
	}}
	got := LatestIndicators(s)
	assert.Equal(t, map[string]float64{"RSI14_norm": 0.3, "bullish_score": 0.7}, got)
}
