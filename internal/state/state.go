// Package state holds the process-local runtime maps: skullfy channels and
// their cooldowns, the last shared message per guild, and log-config drafts.
// Nothing here is persisted; a restart resets it.
package state

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SkullCooldown is the minimum gap between skull reactions in one channel.
const SkullCooldown = 2 * time.Second

// DraftTTL is how long an interactive log-config session stays open.
const DraftTTL = 2 * time.Minute

// SharedMessage identifies the message posted by /share.
type SharedMessage struct {
	ChannelID string
	MessageID string
}

// Draft is an uncommitted log-config selection.
type Draft struct {
	ChannelID string
	Events    []string
	Expires   time.Time
}

type State struct {
	mu      sync.Mutex
	skull   map[string]*rate.Limiter // channel ID -> cooldown
	shared  map[string]SharedMessage // guild ID -> last share
	drafts  map[string]Draft         // guild ID + user ID
	now     func() time.Time
	cooling time.Duration
}

func New() *State {
	return NewWithClock(time.Now)
}

// NewWithClock is New with an injected clock.
func NewWithClock(now func() time.Time) *State {
	return &State{
		skull:   make(map[string]*rate.Limiter),
		shared:  make(map[string]SharedMessage),
		drafts:  make(map[string]Draft),
		now:     now,
		cooling: SkullCooldown,
	}
}

// ToggleSkull flips skullfy for channelID and reports whether it is now on.
func (s *State) ToggleSkull(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, on := s.skull[channelID]; on {
		delete(s.skull, channelID)
		return false
	}
	s.skull[channelID] = rate.NewLimiter(rate.Every(s.cooling), 1)
	return true
}

// SkullActive reports whether skullfy is on in channelID.
func (s *State) SkullActive(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, on := s.skull[channelID]
	return on
}

// TakeSkull reports whether a reaction may be added in channelID now. It is
// false when skullfy is off or the channel is cooling down.
func (s *State) TakeSkull(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, on := s.skull[channelID]
	if !on {
		return false
	}
	return lim.AllowN(s.now(), 1)
}

func (s *State) SetShared(guildID string, m SharedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared[guildID] = m
}

// TakeShared returns and forgets the last shared message of guildID.
func (s *State) TakeShared(guildID string) (SharedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.shared[guildID]
	delete(s.shared, guildID)
	return m, ok
}

func draftKey(guildID, userID string) string { return guildID + ":" + userID }

// OpenDraft starts or restarts a draft for userID in guildID.
func (s *State) OpenDraft(guildID, userID, channelID string, events []string) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Draft{
		ChannelID: channelID,
		Events:    append([]string(nil), events...),
		Expires:   s.now().Add(DraftTTL),
	}
	s.drafts[draftKey(guildID, userID)] = d
	return d
}

// UpdateDraft applies fn to a live draft. Expired drafts are dropped and
// reported as missing.
func (s *State) UpdateDraft(guildID, userID string, fn func(*Draft)) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := draftKey(guildID, userID)
	d, ok := s.drafts[key]
	if !ok {
		return Draft{}, false
	}
	if !s.now().Before(d.Expires) {
		delete(s.drafts, key)
		return Draft{}, false
	}
	if fn != nil {
		fn(&d)
		s.drafts[key] = d
	}
	return d, true
}

// CloseDraft removes the draft and returns it if it was still live.
func (s *State) CloseDraft(guildID, userID string) (Draft, bool) {
	d, ok := s.UpdateDraft(guildID, userID, nil)
	s.mu.Lock()
	delete(s.drafts, draftKey(guildID, userID))
	s.mu.Unlock()
	return d, ok
}
