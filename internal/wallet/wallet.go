// Package wallet keeps a local view of the backend wallet in step with the
// ledger under timed polling and user trades.
//
// Snapshots are only ever replaced whole, never merged. Every fetch that
// completes is applied in completion order, so when a timer refresh and a
// trade's reconciling refresh overlap, whichever response arrives last is
// what the view shows. The synchronizer never computes balances itself.
package wallet

import (
	"context"
	"sync"
	"time"

	"bullwatch/internal/apierr"
	"bullwatch/internal/logger"
	"bullwatch/internal/models"
	"bullwatch/internal/poller"
	"bullwatch/internal/query"

	"github.com/shopspring/decimal"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 60 * time.Second

// Status is the synchronizer state.
type Status string

const (
	Uninitialized Status = "uninitialized"
	Loading       Status = "loading"
	Ready         Status = "ready"
	Refreshing    Status = "refreshing"
	Error         Status = "error"
)

// Backend is the subset of the gateway the synchronizer calls.
type Backend interface {
	WalletValue(ctx context.Context) (models.WalletSnapshot, error)
	PostTrade(ctx context.Context, side models.Side, ticker string, qty decimal.Decimal) (models.TradeConfirmation, error)
}

// Expirer is told about every failure so a rejected token logs the user out.
type Expirer interface {
	Expire(err error) bool
}

// View is what a consumer renders: {data, loading, error}.
type View struct {
	Status    Status                 `json:"status"`
	Snapshot  *models.WalletSnapshot `json:"snapshot"` // last good snapshot; nil until the first success
	Err       error                  `json:"-"`
	UpdatedAt time.Time              `json:"updated_at"` // when the last good snapshot was applied
	Stale     time.Duration          `json:"stale_ns"`   // age of Snapshot at the time of the read
}

// Loading reports whether a fetch is in flight.
func (v View) Loading() bool {
	return v.Status == Loading || v.Status == Refreshing
}

// Synchronizer owns the current wallet snapshot.
type Synchronizer struct {
	backend  Backend
	session  Expirer
	interval time.Duration
	now      func() time.Time

	runMu sync.Mutex // orders arming against Stop
	task  poller.Task

	mu       sync.Mutex
	started  bool
	stops    uint64 // Stop calls so far
	status   Status
	snap     models.WalletSnapshot
	hasSnap  bool
	err      error
	inflight int
	seq      uint64 // completions applied so far

	subs query.Subscribers[View]
}

// New creates an idle synchronizer. session may be nil.
func New(backend Backend, session Expirer, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Synchronizer{
		backend:  backend,
		session:  session,
		interval: interval,
		now:      time.Now,
		status:   Uninitialized,
	}
}

// Start performs the initial load and arms the recurring refresh.
// The timer is armed even when the first load fails so the view heals on
// its own. Calling Start on a running synchronizer is a no-op.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	stops := s.stops
	s.mu.Unlock()

	err := s.fetch(ctx)

	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.mu.Lock()
	stopped := s.stops != stops
	s.mu.Unlock()
	if stopped {
		// Stop ran during the first load.
		return err
	}

	s.task.Start(ctx, s.interval, func(ctx context.Context) {
		if err := s.Refresh(ctx); err != nil {
			logger.Debugf("wallet: scheduled refresh failed: %v", err)
		}
	})
	logger.Infof("wallet: polling every %s", s.interval)
	return err
}

// Refresh re-fetches the wallet. On failure the last good snapshot stays
// visible and the status becomes Error. Refreshes may overlap.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.fetch(ctx)
}

// Trade validates req locally, submits it, and then always re-fetches the
// wallet so the view shows the backend's post-trade state. A trade error is
// returned even though the reconciling refresh still runs.
func (s *Synchronizer) Trade(ctx context.Context, req models.TradeRequest) (models.TradeConfirmation, error) {
	if reason := req.Validate(); reason != "" {
		return models.TradeConfirmation{}, apierr.Invalid("trade", reason)
	}

	conf, err := s.backend.PostTrade(ctx, req.Side, req.Ticker, req.Quantity)
	if err != nil {
		logger.Warnf("wallet: %s %s %s failed: %v", req.Side, req.Quantity, req.Ticker, err)
		s.expire(err)
	} else {
		logger.Infof("wallet: %s %s %s accepted", req.Side, req.Quantity, req.Ticker)
	}

	// The trade may have applied server-side even when the response failed.
	if rerr := s.fetch(ctx); rerr != nil {
		logger.Debugf("wallet: reconciling refresh failed: %v", rerr)
	}

	if err != nil {
		return models.TradeConfirmation{}, err
	}
	return conf, nil
}

// Stop cancels the recurring refresh. Safe to call repeatedly and from any
// state, but not from a subscriber or expiry hook running on the poll goroutine.
func (s *Synchronizer) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.task.Stop()
	s.mu.Lock()
	s.stops++
	s.started = false
	s.mu.Unlock()
}

// fetch runs one WalletValue and applies its outcome in completion order.
func (s *Synchronizer) fetch(ctx context.Context) error {
	s.mu.Lock()
	s.inflight++
	switch s.status {
	case Uninitialized:
		s.status = Loading
	case Ready, Error:
		s.status = Refreshing
	}
	s.mu.Unlock()
	s.notify()

	snap, err := s.backend.WalletValue(ctx)

	s.mu.Lock()
	s.inflight--
	s.seq++
	if err == nil {
		snap = snap.Clone()
		snap.Seq = s.seq
		if snap.FetchedAt.IsZero() {
			snap.FetchedAt = s.now()
		}
		s.snap = snap
		s.hasSnap = true
		s.err = nil
	} else {
		s.err = err
	}

	switch {
	case s.inflight > 0 && s.status == Loading && !s.hasSnap:
		// still loading
	case s.inflight > 0:
		s.status = Refreshing
	case err == nil:
		s.status = Ready
	default:
		s.status = Error
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warnf("wallet: refresh failed, keeping last snapshot: %v", err)
		s.expire(err)
	} else if !snap.Consistent() {
		logger.Warnf("wallet: backend total %s != cash %s + holdings %s; showing backend total",
			snap.TotalValue, snap.Cash, snap.HoldingsValue())
	}

	s.notify()
	return err
}

func (s *Synchronizer) expire(err error) {
	if s.session != nil {
		s.session.Expire(err)
	}
}

// View returns the current state. The snapshot is a private copy.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Synchronizer) viewLocked() View {
	v := View{Status: s.status, Err: s.err}
	if s.hasSnap {
		c := s.snap.Clone()
		v.Snapshot = &c
		v.UpdatedAt = c.FetchedAt
		v.Stale = c.Age(s.now())
	}
	return v
}

// Snapshot returns the last good snapshot, if any.
func (s *Synchronizer) Snapshot() (models.WalletSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSnap {
		return models.WalletSnapshot{}, false
	}
	return s.snap.Clone(), true
}

// Subscribe calls fn with the current view and after every change.
// Deliveries are serialized, so the last view a subscriber receives is the
// synchronizer's latest.
func (s *Synchronizer) Subscribe(fn func(View)) (cancel func()) {
	return s.subs.Add(fn, s.View)
}

func (s *Synchronizer) notify() {
	s.subs.Notify(s.View)
}
