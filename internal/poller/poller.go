// Package poller runs a function on a fixed period until stopped.
package poller

import (
	"context"
	"sync"
	"time"
)

// Task is a cancellable repeating task owned by the component that starts it.
// The zero value is ready to use.
type Task struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start arms the task: fn runs every interval until Stop is called or ctx ends.
// It does not run fn immediately. Starting a running task restarts it.
func (t *Task) Start(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A tick that raced with Stop must not run.
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
}

// Stop cancels the task and waits for an in-progress fn to return.
// It is safe to call any number of times, from any state, including on a
// task that was never started. It must not be called from inside fn.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the task is armed.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
