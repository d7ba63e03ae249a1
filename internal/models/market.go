package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeriesKind names which per-ticker series a TickerSeries holds.
type SeriesKind string

const (
	History    SeriesKind = "history"    // OHLCV rows
	Indicators SeriesKind = "indicators" // Normalised indicator rows incl. bullish_score
)

// Well-known series fields.
const (
	FieldOpen         = "open"
	FieldHigh         = "high"
	FieldLow          = "low"
	FieldClose        = "close"
	FieldVolume       = "volume"
	FieldBullishScore = "bullish_score"
)

// SeriesRow is one time-stamped row of a series.
// Key is the row's timestamp (or date, when the backend has no timestamp) exactly
// as the backend sent it; it is what history and indicator rows are joined on.
type SeriesRow struct {
	Key    string             `json:"key"`
	Time   time.Time          `json:"time"`
	Fields map[string]float64 `json:"fields"`
}

// Value returns a numeric field. Null or missing fields report ok=false.
func (r SeriesRow) Value(name string) (float64, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Close is shorthand for Value("close") with a zero default.
func (r SeriesRow) Close() float64 {
	return r.Fields[FieldClose]
}

// TickerSeries is a whole series for one (ticker, kind) key.
// It is immutable once fetched; a refetch replaces it entirely.
type TickerSeries struct {
	Ticker    string      `json:"ticker"`
	Kind      SeriesKind  `json:"kind"`
	Rows      []SeriesRow `json:"rows"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Empty reports whether the series has no rows.
func (s TickerSeries) Empty() bool {
	return len(s.Rows) == 0
}

// Last returns the newest row.
func (s TickerSeries) Last() (SeriesRow, bool) {
	if len(s.Rows) == 0 {
		return SeriesRow{}, false
	}
	return s.Rows[len(s.Rows)-1], true
}

// Tail returns at most the last n rows.
func (s TickerSeries) Tail(n int) []SeriesRow {
	if n <= 0 || len(s.Rows) <= n {
		return s.Rows
	}
	return s.Rows[len(s.Rows)-n:]
}

// BullishScore is one entry of today's ranked list.
type BullishScore struct {
	Ticker    string  `json:"ticker"`
	Score     float64 `json:"bullish_score"` // Backend-computed, in [0,1]
	Timestamp string  `json:"timestamp,omitempty"`
}

// LivePriceObservation is the latest known price of a ticker.
// A later observation for the same ticker supersedes it; no history is kept.
type LivePriceObservation struct {
	Ticker     string          `json:"ticker"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}
