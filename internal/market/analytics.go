package market

import (
	"sort"

	"bullwatch/internal/models"

	"github.com/shopspring/decimal"
)

// Trend is the direction of the last close against the close seven periods earlier.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Band buckets a bullish score.
type Band string

const (
	Bearish Band = "bearish"
	Neutral Band = "neutral"
	Bullish Band = "bullish"
)

// TrendWindow is how many trailing closes the trend sparkline uses.
const TrendWindow = 60

// lookback is "seven periods ago": the row 8 from the end.
const lookback = 7

// IndicatorFields are the normalised indicators shown on the ticker page, in display order.
var IndicatorFields = []string{
	"RSI14_norm",
	"EMA50_dist_norm",
	"ROC_10_norm",
	"ATR_pct_norm",
	models.FieldBullishScore,
}

// TopBullish returns the n highest scores, highest first. n <= 0 returns all.
// The input is not modified.
func TopBullish(scores []models.BullishScore, n int) []models.BullishScore {
	out := make([]models.BullishScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SortedTickers lists the distinct tickers alphabetically.
func SortedTickers(scores []models.BullishScore) []string {
	seen := make(map[string]struct{}, len(scores))
	out := make([]string, 0, len(scores))
	for _, s := range scores {
		if _, dup := seen[s.Ticker]; dup || s.Ticker == "" {
			continue
		}
		seen[s.Ticker] = struct{}{}
		out = append(out, s.Ticker)
	}
	sort.Strings(out)
	return out
}

// SevenDayChange is the percentage change of the last close against the
// close seven rows earlier, rounded to 2 places. With fewer rows, or a zero
// base, it is zero.
func SevenDayChange(s models.TickerSeries) decimal.Decimal {
	n := len(s.Rows)
	if n == 0 {
		return decimal.Zero
	}
	last := decimal.NewFromFloat(s.Rows[n-1].Close())
	base := last
	if n > lookback {
		if c := s.Rows[n-1-lookback].Close(); c != 0 {
			base = decimal.NewFromFloat(c)
		}
	}
	if base.IsZero() {
		return decimal.Zero
	}
	return last.Sub(base).Div(base).Mul(decimal.NewFromInt(100)).Round(2)
}

// Closes returns the trailing window closes, oldest first.
func Closes(s models.TickerSeries, window int) []float64 {
	rows := s.Tail(window)
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Close()
	}
	return out
}

// TrendOf compares the last close in the trailing window with the close seven
// periods before it. Fewer than eight closes is flat.
func TrendOf(s models.TickerSeries) Trend {
	closes := Closes(s, TrendWindow)
	if len(closes) <= lookback {
		return TrendFlat
	}
	last, prev := closes[len(closes)-1], closes[len(closes)-1-lookback]
	switch {
	case last > prev:
		return TrendUp
	case last < prev:
		return TrendDown
	}
	return TrendFlat
}

// BandOf buckets a score: [0, 0.5) bearish, [0.5, 0.75) neutral, [0.75, 1] bullish.
func BandOf(score float64) Band {
	switch {
	case score >= 0.75:
		return Bullish
	case score >= 0.5:
		return Neutral
	}
	return Bearish
}

// JoinedRow is a history row with its matching indicator row, if any.
type JoinedRow struct {
	Key        string             `json:"key"`
	Date       string             `json:"date"`
	History    map[string]float64 `json:"history"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// JoinRecent pairs the last n history rows with indicator rows on the row key.
func JoinRecent(hist, ind models.TickerSeries, n int) []JoinedRow {
	byKey := make(map[string]models.SeriesRow, len(ind.Rows))
	for _, r := range ind.Rows {
		byKey[r.Key] = r
	}

	rows := hist.Tail(n)
	out := make([]JoinedRow, 0, len(rows))
	for _, r := range rows {
		jr := JoinedRow{Key: r.Key, Date: r.Key, History: r.Fields}
		if !r.Time.IsZero() {
			jr.Date = r.Time.Format("2006-01-02")
		}
		if m, ok := byKey[r.Key]; ok {
			jr.Indicators = m.Fields
		}
		out = append(out, jr)
	}
	return out
}

// LatestIndicators returns the newest value of each of IndicatorFields.
// Fields absent from the last row are omitted.
func LatestIndicators(s models.TickerSeries) map[string]float64 {
	out := make(map[string]float64, len(IndicatorFields))
	last, ok := s.Last()
	if !ok {
		return out
	}
	for _, f := range IndicatorFields {
		if v, ok := last.Value(f); ok {
			out[f] = v
		}
	}
	return out
}
