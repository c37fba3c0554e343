// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking of what is running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, jobmgr.LogReporter(log))
//
//	err := jm.StartAsync("refresh:123", func(ctx context.Context) error {
//	    // work until ctx is cancelled
//	    return nil
//	})
//
//	// later...
//	_ = jm.Stop("refresh:123")
//
// Every job derives its context from the manager's parent, so cancelling the
// parent (or calling StopAll) stops all of them. No retries, no persistence.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrRunning is returned by StartAsync when the name is taken.
var ErrRunning = errors.New("job is already running")

// ErrNotRunning is returned by Stop for unknown names.
var ErrNotRunning = errors.New("job is not running")

// State is a lifecycle step reported for a job.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// StatusReporter receives lifecycle events for jobs. err is set only for
// StateError.
type StatusReporter func(name string, state State, err error)

// LogReporter reports job lifecycle through a zerolog logger. Cancellation
// is not treated as an error.
func LogReporter(log zerolog.Logger) StatusReporter {
	return func(name string, state State, err error) {
		switch {
		case state == StateError && !errors.Is(err, context.Canceled):
			log.Warn().Str("job", name).Err(err).Msg("job failed")
		case state == StateRunning:
			log.Debug().Str("job", name).Msg("job started")
		default:
			log.Debug().Str("job", name).Msg("job finished")
		}
	}
}

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	parent   context.Context
	reporter StatusReporter

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewManager creates a Manager whose jobs are children of parent.
// The reporter may be nil.
func NewManager(parent context.Context, reporter StatusReporter) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	return &Manager{
		parent:   parent,
		reporter: reporter,
		jobs:     make(map[string]*job),
	}
}

// StartAsync runs a job in its own goroutine and returns immediately.
// Jobs are removed automatically after completion.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("start %q: %w", name, ErrRunning)
	}
	if err := m.parent.Err(); err != nil {
		return fmt.Errorf("start %q: %w", name, err)
	}

	ctx, cancel := context.WithCancel(m.parent)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()

		m.report(name, StateRunning, nil)
		if err := runner(ctx); err != nil {
			m.report(name, StateError, err)
		} else {
			m.report(name, StateDone, nil)
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job by name. It does not wait for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("stop %q: %w", name, ErrNotRunning)
	}
	j.cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels every job and waits for them to return or for ctx to end.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a job with name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(name string, state State, err error) {
	if m.reporter != nil {
		m.reporter(name, state, err)
	}
}
