// Package query provides a fetchable resource with {data, loading, error}
// state that views can read or subscribe to.
package query

import (
	"context"
	"sync"
	"time"
)

// State is what a view renders: the last good data, whether a load is in
// flight, and the error of the most recent completed load.
type State[T any] struct {
	Data      T
	HasData   bool
	Loading   bool
	Err       error
	UpdatedAt time.Time // completion time of the last successful load
}

// Fetcher loads the resource.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Resource wraps a Fetcher with observable state.
// Overlapping loads are allowed; the last one to complete determines State.
type Resource[T any] struct {
	fetch Fetcher[T]

	mu       sync.Mutex
	state    State[T]
	inflight int

	subs Subscribers[State[T]]
}

// New creates an idle resource. Nothing is fetched until Load.
func New[T any](fetch Fetcher[T]) *Resource[T] {
	return &Resource[T]{fetch: fetch}
}

// Load fetches and records the outcome. On failure the previous data is kept.
func (r *Resource[T]) Load(ctx context.Context) (T, error) {
	r.mu.Lock()
	r.inflight++
	r.state.Loading = true
	r.mu.Unlock()
	r.notify()

	data, err := r.fetch(ctx)

	r.mu.Lock()
	r.inflight--
	r.state.Loading = r.inflight > 0
	if err != nil {
		r.state.Err = err
	} else {
		r.state.Data = data
		r.state.HasData = true
		r.state.Err = nil
		r.state.UpdatedAt = time.Now()
	}
	r.mu.Unlock()
	r.notify()

	return data, err
}

// State returns a copy of the current state.
func (r *Resource[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe calls fn with the current state and after every change.
// The returned function unsubscribes.
func (r *Resource[T]) Subscribe(fn func(State[T])) (cancel func()) {
	return r.subs.Add(fn, r.State)
}

func (r *Resource[T]) notify() {
	r.subs.Notify(r.State)
}
