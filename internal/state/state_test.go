package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newState() (*State, *clock) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	return NewWithClock(c.Now), c
}

func TestSkullCooldown(t *testing.T) {
	s, c := newState()

	assert.False(t, s.TakeSkull("c1"), "off by default")
	require.True(t, s.ToggleSkull("c1"))
	assert.True(t, s.SkullActive("c1"))

	assert.True(t, s.TakeSkull("c1"))
	assert.False(t, s.TakeSkull("c1"), "cooling down")
	assert.False(t, s.TakeSkull("c2"), "other channel stays off")

	c.Add(SkullCooldown)
	assert.True(t, s.TakeSkull("c1"))

	assert.False(t, s.ToggleSkull("c1"))
	assert.False(t, s.SkullActive("c1"))
	assert.False(t, s.TakeSkull("c1"))
}

func TestSharedIsTakenOnce(t *testing.T) {
	s, _ := newState()
	s.SetShared("g1", SharedMessage{ChannelID: "c1", MessageID: "m1"})
	s.SetShared("g1", SharedMessage{ChannelID: "c1", MessageID: "m2"})

	m, ok := s.TakeShared("g1")
	require.True(t, ok)
	assert.Equal(t, "m2", m.MessageID)

	_, ok = s.TakeShared("g1")
	assert.False(t, ok)
}

func TestDraftExpiry(t *testing.T) {
	s, c := newState()
	events := []string{"messageDelete"}
	s.OpenDraft("g1", "u1", "c1", events)
	events[0] = "mutated"

	d, ok := s.UpdateDraft("g1", "u1", func(d *Draft) { d.ChannelID = "c2" })
	require.True(t, ok)
	assert.Equal(t, "c2", d.ChannelID)
	assert.Equal(t, []string{"messageDelete"}, d.Events)

	_, ok = s.UpdateDraft("g1", "u2", nil)
	assert.False(t, ok, "drafts are per user")

	c.Add(DraftTTL)
	_, ok = s.UpdateDraft("g1", "u1", nil)
	assert.False(t, ok)
}

func TestCloseDraft(t *testing.T) {
	s, _ := newState()
	s.OpenDraft("g1", "u1", "", nil)

	_, ok := s.CloseDraft("g1", "u1")
	assert.True(t, ok)
	_, ok = s.CloseDraft("g1", "u1")
	assert.False(t, ok)
}
