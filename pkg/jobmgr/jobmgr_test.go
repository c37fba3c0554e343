package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) report(name string, state State, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(state)+":"+name)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestStartAsyncRejectsDuplicateName(t *testing.T) {
	m := NewManager(context.Background(), nil)
	release := make(chan struct{})
	require.NoError(t, m.StartAsync("a", func(ctx context.Context) error {
		<-release
		return nil
	}))

	err := m.StartAsync("a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRunning)
	assert.True(t, m.Running("a"))

	close(release)
	require.Eventually(t, func() bool { return !m.Running("a") }, time.Second, 5*time.Millisecond)
}

func TestStopCancelsJob(t *testing.T) {
	rec := &recorder{}
	m := NewManager(context.Background(), rec.report)
	require.NoError(t, m.StartAsync("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	require.NoError(t, m.Stop("loop"))
	assert.ErrorIs(t, m.Stop("loop"), ErrNotRunning)
	require.NoError(t, m.StopAll(context.Background()))
	assert.Equal(t, []string{"running:loop", "error:loop"}, rec.snapshot())
}

func TestParentCancellationStopsEverything(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	m := NewManager(parent, nil)
	for _, name := range []string{"b", "a"} {
		require.NoError(t, m.StartAsync(name, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
	}
	assert.Equal(t, []string{"a", "b"}, m.List())
	assert.Equal(t, "Running jobs: a, b", m.Status())

	cancel()
	require.Eventually(t, func() bool { return len(m.List()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "No jobs are running.", m.Status())

	err := m.StartAsync("late", func(context.Context) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStopAllWaits(t *testing.T) {
	m := NewManager(context.Background(), nil)
	finished := make(chan struct{})
	require.NoError(t, m.StartAsync("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		close(finished)
		return nil
	}))

	require.NoError(t, m.StopAll(context.Background()))
	select {
	case <-finished:
	default:
		t.Fatal("StopAll returned before the job finished")
	}
}
