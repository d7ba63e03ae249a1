package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/logger"
	"bullwatch/internal/market"
	"bullwatch/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/shopspring/decimal"
)

// ErrNoTrade means the stream is subscribed but no trade has arrived yet.
var ErrNoTrade = errors.New("no trade received yet")

// tradeStream is the slice of *stream.StocksClient this package uses.
type tradeStream interface {
	Connect(ctx context.Context) error
	SubscribeToTrades(handler func(stream.Trade), symbols ...string) error
	UnsubscribeFromTrades(symbols ...string) error
}

// StreamSource keeps the latest trade of the tracked symbol from Alpaca's
// websocket feed. The live ticker still polls it on its own cadence; a poll
// just reads the newest pushed trade.
type StreamSource struct {
	client tradeStream

	ctx    context.Context
	cancel context.CancelFunc

	connMu    sync.Mutex
	connected bool

	switchMu sync.Mutex // held while the subscription moves

	mu      sync.Mutex
	current string // subscribed symbol
	latest  map[string]models.LivePriceObservation
}

var _ market.PriceSource = (*StreamSource)(nil)

// NewStreamSource creates a stream source on the IEX feed (free/paper).
func NewStreamSource(keyID, secretKey string) *StreamSource {
	return newStreamSource(stream.NewStocksClient(
		marketdata.IEX,
		stream.WithCredentials(keyID, secretKey),
		stream.WithReconnectSettings(10, 500*time.Millisecond),
	))
}

func newStreamSource(c tradeStream) *StreamSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamSource{
		client: c,
		ctx:    ctx,
		cancel: cancel,
		latest: make(map[string]models.LivePriceObservation),
	}
}

// connect dials once; a failed dial is retried on the next poll.
func (s *StreamSource) connect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connected {
		return nil
	}
	logger.Infof("Connecting to Alpaca stream...")
	if err := s.client.Connect(s.ctx); err != nil {
		return err
	}
	s.connected = true
	return nil
}

func (s *StreamSource) onTrade(t stream.Trade) {
	obs := models.LivePriceObservation{
		Ticker:     t.Symbol,
		Price:      decimal.NewFromFloat(t.Price),
		ObservedAt: t.Timestamp,
	}
	s.mu.Lock()
	if prev, ok := s.latest[t.Symbol]; !ok || !obs.ObservedAt.Before(prev.ObservedAt) {
		s.latest[t.Symbol] = obs
	}
	s.mu.Unlock()
}

// LivePrice switches the subscription to ticker if needed and returns the
// newest trade seen for it.
func (s *StreamSource) LivePrice(ctx context.Context, ticker string) (models.LivePriceObservation, error) {
	const op = "alpaca_stream"
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return models.LivePriceObservation{}, apierr.Invalid(op, "ticker is required")
	}
	if err := ctx.Err(); err != nil {
		return models.LivePriceObservation{}, apierr.Network(op, err)
	}

	if err := s.connect(); err != nil {
		return models.LivePriceObservation{}, apierr.Network(op, err)
	}

	if err := s.follow(symbol); err != nil {
		return models.LivePriceObservation{}, apierr.Network(op, err)
	}

	s.mu.Lock()
	obs, ok := s.latest[symbol]
	s.mu.Unlock()
	if !ok {
		return models.LivePriceObservation{}, apierr.New(apierr.NetworkError, op, "", fmt.Errorf("%s: %w", symbol, ErrNoTrade))
	}
	return obs, nil
}

// follow moves the trade subscription to symbol. switchMu makes the
// read of current and the unsubscribe/subscribe pair one step.
func (s *StreamSource) follow(symbol string) error {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev == symbol {
		return nil
	}

	if prev != "" {
		if err := s.client.UnsubscribeFromTrades(prev); err != nil {
			logger.Warnf("alpaca stream: unsubscribe %s: %v", prev, err)
		}
	}
	if err := s.client.SubscribeToTrades(s.onTrade, symbol); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = symbol
	if prev != "" {
		delete(s.latest, prev)
	}
	s.mu.Unlock()
	return nil
}

// Close ends the stream connection.
func (s *StreamSource) Close() error {
	s.cancel()
	return nil
}
