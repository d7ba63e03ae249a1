package query

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribers_SlowCallbackEndsOnLatest(t *testing.T) {
	var mu sync.Mutex
	value := 0
	current := func() int { mu.Lock(); defer mu.Unlock(); return value }
	set := func(v int) { mu.Lock(); value = v; mu.Unlock() }

	var subs Subscribers[int]
	entered, release := make(chan struct{}), make(chan struct{})
	var lastMu sync.Mutex
	var last []int
	subs.Add(func(v int) {
		if v == 1 {
			close(entered)
			<-release
		}
		lastMu.Lock()
		last = append(last, v)
		lastMu.Unlock()
	}, current)

	// 1. The first change is stuck in a slow callback.
	set(1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); subs.Notify(current) }()
	<-entered

	// 2. A newer change arrives meanwhile.
	set(2)
	wg.Add(1)
	go func() { defer wg.Done(); subs.Notify(current) }()

	close(release)
	wg.Wait()

	lastMu.Lock()
	defer lastMu.Unlock()
	require.NotEmpty(t, last)
	assert.Equal(t, 2, last[len(last)-1])
}

func TestSubscribers_CancelInsideCallback(t *testing.T) {
	var subs Subscribers[string]
	calls := 0
	var cancel func()
	cancel = subs.Add(func(string) {
		calls++
		if cancel != nil {
			cancel()
		}
	}, func() string { return "x" })
	assert.Equal(t, 1, subs.Len())

	subs.Notify(func() string { return "y" })
	subs.Notify(func() string { return "z" })
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, subs.Len())
}
