// Package music plays YouTube tracks into voice channels with a per-guild
// queue.
package music

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrAlreadyPlaying = errors.New("already playing")
)

const resolveTimeout = 30 * time.Second

type Track struct {
	ID       string
	Title    string
	Duration time.Duration
	// Playlist is the title of the playlist the track came from.
	Playlist string
}

func (t Track) URL() string { return "https://www.youtube.com/watch?v=" + t.ID }

// Source finds tracks and their playable stream.
type Source interface {
	Resolve(ctx context.Context, query string) ([]Track, error)
	StreamURL(ctx context.Context, t Track) (string, error)
}

// Audio is the voice output shared with the other voice commands.
type Audio interface {
	Join(ctx context.Context, guildID, channelID string) error
	Play(guildID, input string, onDone func(error)) error
	Stop(guildID string) bool
	Busy(guildID string) bool
}

// Player is one guild's queue. The audio manager owns the actual stream.
type Player struct {
	guildID string
	src     Source
	audio   Audio
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	queue   []Track
	current *Track
	started time.Time
	// gen changes on Stop so a finishing stream from before the stop does
	// not advance the queue.
	gen int
}

// Start plays tracks[0] in channelID and queues the rest. It refuses while
// anything is playing in the guild.
func (p *Player) Start(ctx context.Context, channelID string, tracks []Track) error {
	if len(tracks) == 0 {
		return ErrNothingPlaying
	}
	p.mu.Lock()
	busy := p.current != nil
	p.mu.Unlock()
	if busy || p.audio.Busy(p.guildID) {
		return ErrAlreadyPlaying
	}

	if err := p.audio.Join(ctx, p.guildID, channelID); err != nil {
		return err
	}

	p.mu.Lock()
	p.queue = slices.Clone(tracks)
	gen := p.gen
	p.mu.Unlock()
	return p.advance(ctx, gen)
}

// advance plays the next queued track, skipping tracks that fail to start.
func (p *Player) advance(ctx context.Context, gen int) error {
	var lastErr error
	for {
		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			return nil
		}
		if len(p.queue) == 0 {
			p.current = nil
			p.mu.Unlock()
			return lastErr
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.current = &next
		p.started = p.now()
		p.mu.Unlock()

		if err := p.play(ctx, next, gen); err != nil {
			p.log.Warn().Err(err).Str("track", next.Title).Msg("skipping track")
			lastErr = err
			continue
		}
		p.log.Info().Str("track", next.Title).Int("queued", len(p.Queue())).Msg("now playing")
		return nil
	}
}

func (p *Player) play(ctx context.Context, t Track, gen int) error {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()
	link, err := p.src.StreamURL(ctx, t)
	if err != nil {
		return err
	}
	return p.audio.Play(p.guildID, link, func(err error) {
		if err != nil {
			p.log.Warn().Err(err).Str("track", t.Title).Msg("track ended with error")
		}
		_ = p.advance(context.Background(), gen)
	})
}

// Skip ends the current track; the next queued one starts on its own.
func (p *Player) Skip() error {
	if p.Current() == nil {
		return ErrNothingPlaying
	}
	p.audio.Stop(p.guildID)
	return nil
}

// Stop ends playback and clears the queue.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	p.gen++
	p.queue = nil
	p.current = nil
	p.mu.Unlock()

	p.audio.Stop(p.guildID)
	return nil
}

// Current returns the playing track, or nil.
func (p *Player) Current() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	t := *p.current
	return &t
}

// Elapsed is how long the current track has been playing.
func (p *Player) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0
	}
	return p.now().Sub(p.started)
}

func (p *Player) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Queue returns a copy of the upcoming tracks.
func (p *Player) Queue() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.queue)
}

// Players hands out one Player per guild.
type Players struct {
	src   Source
	audio Audio
	log   zerolog.Logger
	now   func() time.Time

	mu      sync.Mutex
	players map[string]*Player
}

func NewPlayers(src Source, audio Audio, log zerolog.Logger) *Players {
	return &Players{
		src:     src,
		audio:   audio,
		log:     log.With().Str("component", "music").Logger(),
		now:     time.Now,
		players: make(map[string]*Player),
	}
}

func (ps *Players) Get(guildID string) *Player {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.players[guildID]
	if !ok {
		p = &Player{
			guildID: guildID,
			src:     ps.src,
			audio:   ps.audio,
			log:     ps.log.With().Str("guild", guildID).Logger(),
			now:     ps.now,
		}
		ps.players[guildID] = p
	}
	return p
}

// FormatDuration renders d as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ProgressBar draws elapsed/total as a bar of length cells.
func ProgressBar(elapsed, total time.Duration, length int) string {
	pos := 0
	if total > 0 {
		pos = int(float64(length-1) * float64(min(elapsed, total)) / float64(total))
	}
	bar := make([]rune, length)
	for i := range bar {
		bar[i] = '▬'
	}
	bar[pos] = '🔘'
	return fmt.Sprintf("%s %s / %s", string(bar), FormatDuration(elapsed), FormatDuration(total))
}
