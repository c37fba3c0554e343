package audio

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrBusy         = errors.New("audio is already playing")
	ErrNotConnected = errors.New("not connected to a voice channel")
)

// Conn is a joined voice channel.
type Conn interface {
	ChannelID() string
	Send() chan<- []byte
	Close()
}

// Dialer joins a voice channel.
type Dialer func(ctx context.Context, guildID, channelID string) (Conn, error)

type Options struct {
	Dial       Dialer
	Decoder    Decoder
	NewEncoder func() (Encoder, error)
	Logger     zerolog.Logger
}

type guildAudio struct {
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager holds at most one voice connection and one playback per guild.
type Manager struct {
	dial       Dialer
	decoder    Decoder
	newEncoder func() (Encoder, error)
	log        zerolog.Logger

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	guilds map[string]*guildAudio
}

func NewManager(opts Options) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		dial:       opts.Dial,
		decoder:    opts.Decoder,
		newEncoder: opts.NewEncoder,
		log:        opts.Logger.With().Str("component", "audio").Logger(),
		base:       base,
		stop:       stop,
		guilds:     make(map[string]*guildAudio),
	}
}

// Join connects to channelID, moving away from any other channel in the
// guild. Joining the current channel is a no-op.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) error {
	m.mu.Lock()
	g := m.guilds[guildID]
	if g != nil && g.conn.ChannelID() == channelID {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if g != nil {
		m.Leave(guildID)
	}
	conn, err := m.dial(ctx, guildID, channelID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old := m.guilds[guildID]; old != nil {
		// lost a race with another join
		conn.Close()
		return nil
	}
	m.guilds[guildID] = &guildAudio{conn: conn}
	m.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("joined voice channel")
	return nil
}

// Leave stops playback and disconnects. It reports whether the bot was
// connected.
func (m *Manager) Leave(guildID string) bool {
	m.Stop(guildID)

	m.mu.Lock()
	g := m.guilds[guildID]
	delete(m.guilds, guildID)
	m.mu.Unlock()

	if g == nil {
		return false
	}
	g.conn.Close()
	m.log.Info().Str("guild", guildID).Msg("left voice channel")
	return true
}

// ChannelID returns the joined channel, or "".
func (m *Manager) ChannelID(guildID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.guilds[guildID]; g != nil {
		return g.conn.ChannelID()
	}
	return ""
}

func (m *Manager) Connected(guildID string) bool {
	return m.ChannelID(guildID) != ""
}

func (m *Manager) Busy(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.guilds[guildID]
	return g != nil && g.done != nil
}

// Play decodes input into the guild's voice connection in the background.
// onDone, when set, runs after playback ends with the stream error, which is
// nil when the input finished or playback was stopped.
func (m *Manager) Play(guildID, input string, onDone func(error)) error {
	m.mu.Lock()
	g := m.guilds[guildID]
	switch {
	case g == nil:
		m.mu.Unlock()
		return ErrNotConnected
	case g.done != nil:
		m.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(m.base)
	done := make(chan struct{})
	g.cancel, g.done = cancel, done
	conn := g.conn
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		if g.done == done {
			g.cancel, g.done = nil, nil
		}
		m.mu.Unlock()
		cancel()
		close(done)
	}

	enc, err := m.newEncoder()
	if err != nil {
		release()
		return err
	}
	pcm, err := m.decoder.Decode(ctx, input)
	if err != nil {
		release()
		return err
	}

	go func() {
		err := Stream(ctx, pcm, enc, conn.Send())
		_ = pcm.Close()
		if err != nil {
			m.log.Warn().Err(err).Str("guild", guildID).Msg("playback ended with error")
		}
		release()
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

// Stop ends the current playback and waits for it to wind down. It reports
// whether anything was playing.
func (m *Manager) Stop(guildID string) bool {
	m.mu.Lock()
	g := m.guilds[guildID]
	if g == nil || g.done == nil {
		m.mu.Unlock()
		return false
	}
	cancel, done := g.cancel, g.done
	m.mu.Unlock()

	cancel()
	<-done
	return true
}

// Close leaves every voice channel.
func (m *Manager) Close() {
	m.stop()
	m.mu.Lock()
	ids := make([]string, 0, len(m.guilds))
	for id := range m.guilds {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Leave(id)
	}
}
