// Package ticker tracks the live price of the one symbol the trade form has
// selected, on its own cadence independent of the wallet.
package ticker

import (
	"context"
	"strings"
	"sync"
	"time"

	"bullwatch/internal/logger"
	"bullwatch/internal/market"
	"bullwatch/internal/models"
	"bullwatch/internal/poller"
	"bullwatch/internal/query"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 5 * time.Second

// Expirer is told about every failure so a rejected token logs the user out.
type Expirer interface {
	Expire(err error) bool
}

// View is the ticker state handed to the trade form.
type View struct {
	Ticker      string                       `json:"ticker"`
	Observation *models.LivePriceObservation `json:"observation"`
	Loading     bool                         `json:"loading"`
	Err         error                        `json:"-"`
}

// Ticker polls one symbol at a time. Every Select starts a new generation;
// completions from an older generation are dropped on arrival.
type Ticker struct {
	src      market.PriceSource
	session  Expirer
	interval time.Duration

	selMu sync.Mutex // serializes re-arming
	task  poller.Task

	mu       sync.Mutex
	gen      uint64
	symbol   string
	obs      *models.LivePriceObservation
	inflight int
	err      error

	subs query.Subscribers[View]
}

// New creates an idle ticker. session may be nil.
func New(src market.PriceSource, session Expirer, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{
		src:      src,
		session:  session,
		interval: interval,
	}
}

// Select switches the tracked symbol. The previous symbol's polling is
// cancelled and its price cleared, one fetch for the new symbol runs now,
// and a recurring poll is armed. ctx bounds the immediate fetch only;
// the recurring poll runs until Stop or the next Select.
// An empty ticker stops tracking.
func (t *Ticker) Select(ctx context.Context, ticker string) error {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	t.selMu.Lock()
	t.task.Stop()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.symbol = symbol
	t.obs = nil
	t.err = nil
	t.inflight = 0
	t.mu.Unlock()

	if symbol == "" {
		t.selMu.Unlock()
		t.notify()
		return nil
	}

	t.task.Start(context.WithoutCancel(ctx), t.interval, func(ctx context.Context) {
		if err := t.fetch(ctx, gen, symbol); err != nil {
			logger.Debugf("ticker: %s poll failed: %v", symbol, err)
		}
	})
	t.selMu.Unlock()

	logger.Debugf("ticker: tracking %s every %s", symbol, t.interval)
	return t.fetch(ctx, gen, symbol)
}

// Stop cancels polling. The last observation stays readable.
// Safe to call repeatedly and before any Select.
func (t *Ticker) Stop() {
	t.selMu.Lock()
	defer t.selMu.Unlock()
	t.task.Stop()

	// Anything still in flight is now obsolete.
	t.mu.Lock()
	t.gen++
	t.inflight = 0
	t.mu.Unlock()
	t.notify()
}

// fetch runs one LivePrice call for generation gen.
func (t *Ticker) fetch(ctx context.Context, gen uint64, symbol string) error {
	if !t.begin(gen) {
		return nil
	}
	t.notify()

	obs, err := t.src.LivePrice(ctx, symbol)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		logger.Debugf("ticker: dropping %s result, selection moved on", symbol)
		return nil
	}
	t.inflight--
	if err != nil {
		t.err = err
	} else {
		if obs.Ticker == "" {
			obs.Ticker = symbol
		}
		t.obs = &obs
		t.err = nil
	}
	t.mu.Unlock()

	if err != nil && t.session != nil {
		t.session.Expire(err)
	}
	t.notify()
	return err
}

func (t *Ticker) begin(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	t.inflight++
	return true
}

// View returns the current state.
func (t *Ticker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := View{Ticker: t.symbol, Loading: t.inflight > 0, Err: t.err}
	if t.obs != nil {
		o := *t.obs
		v.Observation = &o
	}
	return v
}

// Running reports whether a symbol is being polled.
func (t *Ticker) Running() bool {
	return t.task.Running()
}

// Subscribe calls fn with the current view and after every change.
// Deliveries are serialized and read the view at delivery time, so a
// subscriber never ends on a superseded symbol.
func (t *Ticker) Subscribe(fn func(View)) (cancel func()) {
	return t.subs.Add(fn, t.View)
}

func (t *Ticker) notify() {
	t.subs.Notify(t.View)
}
