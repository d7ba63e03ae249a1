package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = time.Millisecond
)

func TestResource_LoadingThenData(t *testing.T) {
	release := make(chan struct{})
	r := New(func(ctx context.Context) ([]string, error) {
		<-release
		return []string{"AAPL"}, nil
	})

	st := r.State()
	assert.False(t, st.Loading)
	assert.False(t, st.HasData)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Load(context.Background())
	}()

	require.Eventually(t, func() bool { return r.State().Loading }, timeout, tick)
	close(release)
	<-done

	st = r.State()
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
	assert.Equal(t, []string{"AAPL"}, st.Data)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestResource_ErrorKeepsLastData(t *testing.T) {
	fail := false
	r := New(func(ctx context.Context) (int, error) {
		if fail {
			return 0, errors.New("boom")
		}
		return 42, nil
	})

	_, err := r.Load(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = r.Load(context.Background())
	require.Error(t, err)

	st := r.State()
	assert.Equal(t, 42, st.Data)
	assert.True(t, st.HasData)
	assert.EqualError(t, st.Err, "boom")
}

func TestResource_LastCompletionWins(t *testing.T) {
	gates := map[int]chan struct{}{1: make(chan struct{}), 2: make(chan struct{})}
	var mu sync.Mutex
	n := 0
	r := New(func(ctx context.Context) (int, error) {
		mu.Lock()
		n++
		id := n
		mu.Unlock()
		<-gates[id]
		return id, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); r.Load(context.Background()) }()
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return n == 1 }, timeout, tick)
	wg.Add(1)
	go func() { defer wg.Done(); r.Load(context.Background()) }()
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return n == 2 }, timeout, tick)

	// Second-issued completes first, first-issued completes last.
	close(gates[2])
	require.Eventually(t, func() bool { return r.State().Data == 2 }, timeout, tick)
	assert.True(t, r.State().Loading, "first load still in flight")
	close(gates[1])
	wg.Wait()

	assert.Equal(t, 1, r.State().Data)
	assert.False(t, r.State().Loading)
}

func TestResource_Subscribe(t *testing.T) {
	r := New(func(ctx context.Context) (string, error) { return "ok", nil })

	var mu sync.Mutex
	var seen []State[string]
	cancel := r.Subscribe(func(s State[string]) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_, _ = r.Load(context.Background())
	cancel()
	cancel()
	_, _ = r.Load(context.Background())

	mu.Lock()
	defer mu.Unlock()
	// initial + loading + loaded; nothing after cancel
	require.Len(t, seen, 3)
	assert.False(t, seen[0].Loading)
	assert.True(t, seen[1].Loading)
	assert.Equal(t, "ok", seen[2].Data)
}
