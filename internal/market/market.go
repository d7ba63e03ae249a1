// Package market fetches per-ticker series and bullish scores from the
// backend and derives the small analytics the views show.
package market

import (
	"context"
	"fmt"

	"bullwatch/internal/models"
)

// PriceSource yields the latest price of one ticker.
// The gateway (backend /wallet/live_price) and the Alpaca sources implement it,
// so the live ticker can be pointed at either without changing the code that
// *uses* the price.
type PriceSource interface {
	LivePrice(ctx context.Context, ticker string) (models.LivePriceObservation, error)
}

// Backend is the subset of the gateway the cache reads from.
type Backend interface {
	TodayBullish(ctx context.Context) ([]models.BullishScore, error)
	TickerHistory(ctx context.Context, ticker string) ([]models.SeriesRow, error)
	TickerIndicators(ctx context.Context, ticker string) ([]models.SeriesRow, error)
	AllTickers(ctx context.Context) ([]string, error)
}

// FetchError is a network or HTTP failure while loading market data.
// Empty or malformed payloads never produce one; they load as empty data.
type FetchError struct {
	Ticker string            // empty for list endpoints
	Kind   models.SeriesKind // empty for list endpoints
	What   string            // "history", "indicators", "today_bullish", "tickers"
	Err    error
}

func (e *FetchError) Error() string {
	if e.Ticker != "" {
		return fmt.Sprintf("fetch %s for %s: %v", e.What, e.Ticker, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.What, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
