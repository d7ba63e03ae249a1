package query

import "sync"

// Subscribers fans state changes out to callbacks. Deliveries are
// serialized and each one reads the state while holding the delivery lock,
// so a slow callback can never leave another with an older state than the
// latest delivered one. The zero value is ready to use.
//
// Callbacks must not call Add or Notify on the same Subscribers.
type Subscribers[T any] struct {
	deliver sync.Mutex

	mu   sync.Mutex
	fns  map[int]func(T)
	next int
}

// Add registers fn and calls it once with current(). The returned function
// unsubscribes and may be called from inside fn.
func (s *Subscribers[T]) Add(fn func(T), current func() T) (cancel func()) {
	s.deliver.Lock()
	s.mu.Lock()
	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	s.mu.Unlock()

	fn(current())
	s.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// Notify calls every callback with current().
func (s *Subscribers[T]) Notify(current func() T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	v := current()
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len reports how many callbacks are registered.
func (s *Subscribers[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
