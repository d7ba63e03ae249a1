// Package alpaca provides live price sources backed by Alpaca market data,
// as alternatives to the dashboard backend's /wallet/live_price.
package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/market"
	"bullwatch/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// latestTrader is the slice of *marketdata.Client this package uses.
type latestTrader interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// Source polls the latest trade over REST.
type Source struct {
	md latestTrader
}

// Ensure Source implements the interface
var _ market.PriceSource = (*Source)(nil)

// NewSource returns a REST source using the given credentials.
func NewSource(keyID, secretKey string) *Source {
	return &Source{
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    keyID,
			APISecret: secretKey,
		}),
	}
}

// LivePrice returns the last trade price for ticker.
// The SDK call is not context-aware; a cancelled ctx only discards the result.
func (s *Source) LivePrice(ctx context.Context, ticker string) (models.LivePriceObservation, error) {
	const op = "alpaca_latest_trade"
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return models.LivePriceObservation{}, apierr.Invalid(op, "ticker is required")
	}

	type result struct {
		trade *marketdata.Trade
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := s.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
		ch <- result{t, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return models.LivePriceObservation{}, apierr.Network(op, ctx.Err())
	case r = <-ch:
	}

	if r.err != nil {
		return models.LivePriceObservation{}, apierr.Network(op, r.err)
	}
	if r.trade == nil {
		return models.LivePriceObservation{}, apierr.Decode(op, fmt.Errorf("no trade found for %s", symbol))
	}

	observed := r.trade.Timestamp
	if observed.IsZero() {
		observed = time.Now()
	}
	return models.LivePriceObservation{
		Ticker:     symbol,
		Price:      decimal.NewFromFloat(r.trade.Price),
		ObservedAt: observed,
	}, nil
}
