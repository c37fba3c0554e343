package voice

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/command/commandtest"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAudio struct {
	mu      sync.Mutex
	channel string
	busy    bool
	stopped int
	played  []string
	onDone  func(error)
	joinErr error
	playErr error
}

func (a *fakeAudio) Join(_ context.Context, _, channelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.joinErr != nil {
		return a.joinErr
	}
	a.channel = channelID
	return nil
}

func (a *fakeAudio) Leave(string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := a.channel != ""
	a.channel = ""
	return was
}

func (a *fakeAudio) Connected(string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channel != ""
}

func (a *fakeAudio) Busy(string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

func (a *fakeAudio) Stop(string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	was := a.busy
	a.busy = false
	return was
}

func (a *fakeAudio) Play(_, input string, onDone func(error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.playErr != nil {
		return a.playErr
	}
	a.played = append(a.played, input)
	a.onDone, a.busy = onDone, true
	return nil
}

type muteCall struct {
	guild, user string
	mute        bool
}

type fakeSession struct {
	mutes []muteCall
	err   error
}

func (s *fakeSession) GuildMemberMute(guildID, userID string, mute bool, _ ...discordgo.RequestOption) error {
	s.mutes = append(s.mutes, muteCall{guildID, userID, mute})
	return s.err
}

func newCommand(audio *fakeAudio, sess *fakeSession, userChannel string) *vcCommand {
	return &vcCommand{
		audio:       audio,
		session:     sess,
		userChannel: func(string, string) string { return userChannel },
		botID:       func() string { return "bot" },
		tts:         "https://tts.test/speak",
	}
}

func run(t *testing.T, c *vcCommand, sub string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *commandtest.Recorder {
	t.Helper()
	inv, rec := commandtest.Slash("g1", commandtest.Member("u1", 0), "vc", commandtest.Sub(sub, opts...))
	require.NoError(t, c.Run(context.Background(), inv))
	return rec
}

func withAttachment(inv *cmd.Invocation, a *discordgo.MessageAttachment) {
	dc := inv.Data.(*command.Context)
	data := dc.Interaction.Data.(discordgo.ApplicationCommandInteractionData)
	data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
		Attachments: map[string]*discordgo.MessageAttachment{a.ID: a},
	}
	dc.Interaction.Data = data
}

func TestJoinAndLeave(t *testing.T) {
	audio := &fakeAudio{}

	rec := run(t, newCommand(audio, &fakeSession{}, ""), "join")
	assert.Equal(t, "Join a VC first!", rec.Last().Response.Content)
	assert.True(t, rec.Last().Response.Ephemeral)

	rec = run(t, newCommand(audio, &fakeSession{}, "v7"), "join")
	assert.Equal(t, "🔊 Joined <#v7>", rec.Last().Response.Content)
	assert.Equal(t, "v7", audio.channel)

	rec = run(t, newCommand(audio, &fakeSession{}, "v7"), "leave")
	assert.Equal(t, "👋 Left the VC", rec.Last().Response.Content)
	rec = run(t, newCommand(audio, &fakeSession{}, "v7"), "leave")
	assert.Equal(t, msgNotInVC, rec.Last().Response.Content)
}

func TestJoinFailure(t *testing.T) {
	rec := run(t, newCommand(&fakeAudio{joinErr: errors.New("timeout")}, &fakeSession{}, "v7"), "join")
	assert.Equal(t, "❌ Could not join your voice channel.", rec.Last().Response.Content)
}

func TestMuteUnmute(t *testing.T) {
	sess := &fakeSession{}
	rec := run(t, newCommand(&fakeAudio{}, sess, ""), "mute")
	assert.Equal(t, "I must be in a VC.", rec.Last().Response.Content)
	assert.Empty(t, sess.mutes)

	audio := &fakeAudio{channel: "v1", busy: true}
	c := newCommand(audio, sess, "")
	rec = run(t, c, "mute")
	assert.Equal(t, "🤐 Muted and stopped audio.", rec.Last().Response.Content)
	assert.Equal(t, 1, audio.stopped)

	rec = run(t, c, "unmute")
	assert.Equal(t, "🔊 Unmuted", rec.Last().Response.Content)
	assert.Equal(t, 1, audio.stopped)
	assert.Equal(t, []muteCall{{"g1", "bot", true}, {"g1", "bot", false}}, sess.mutes)

	sess.err = errors.New("missing permissions")
	rec = run(t, c, "mute")
	assert.Equal(t, "Error changing mute.", rec.Last().Response.Content)
}

func TestPlayGuards(t *testing.T) {
	rec := run(t, newCommand(&fakeAudio{channel: "v1", busy: true}, &fakeSession{}, ""), "play")
	assert.Equal(t, msgBusy, rec.Last().Response.Content)

	rec = run(t, newCommand(&fakeAudio{}, &fakeSession{}, ""), "tts", commandtest.Opt("text", "hi"))
	assert.Equal(t, msgJoinFirst, rec.Last().Response.Content)

	opt := &discordgo.ApplicationCommandInteractionDataOption{Name: "audio", Type: discordgo.ApplicationCommandOptionAttachment, Value: "a1"}
	inv, rec := commandtest.Slash("g1", commandtest.Member("u1", 0), "vc", commandtest.Sub("play", opt))
	withAttachment(inv, &discordgo.MessageAttachment{ID: "a1", Filename: "notes.txt", ContentType: "text/plain"})
	require.NoError(t, newCommand(&fakeAudio{channel: "v1"}, &fakeSession{}, "").Run(context.Background(), inv))
	assert.Equal(t, "Not an audio file.", rec.Last().Response.Content)
}

func TestPlayAttachment(t *testing.T) {
	audio := &fakeAudio{channel: "v1"}
	opt := &discordgo.ApplicationCommandInteractionDataOption{Name: "audio", Type: discordgo.ApplicationCommandOptionAttachment, Value: "a1"}
	inv, rec := commandtest.Slash("g1", commandtest.Member("u1", 0), "vc", commandtest.Sub("play", opt))
	withAttachment(inv, &discordgo.MessageAttachment{ID: "a1", Filename: "song.mp3", ContentType: "audio/mpeg", URL: "https://cdn.test/song.mp3"})

	require.NoError(t, newCommand(audio, &fakeSession{}, "").Run(context.Background(), inv))
	assert.Equal(t, []string{"https://cdn.test/song.mp3"}, audio.played)
	assert.Equal(t, "▶️ Playing song.mp3", rec.Last().Response.Content)
	assert.Equal(t, "defer", rec.Calls()[0].Op)

	audio.onDone(nil)
	assert.Equal(t, "followup", rec.Last().Op)
	assert.Equal(t, "✅ Finished playing.", rec.Last().Response.Content)
}

func TestSpeak(t *testing.T) {
	audio := &fakeAudio{channel: "v1"}
	c := newCommand(audio, &fakeSession{}, "")
	rec := run(t, c, "tts", commandtest.Opt("text", "hello there"))
	require.Len(t, audio.played, 1)

	u, err := url.Parse(audio.played[0])
	require.NoError(t, err)
	assert.Equal(t, "tts.test", u.Host)
	assert.Equal(t, "hello there", u.Query().Get("q"))
	assert.Equal(t, "en-US", u.Query().Get("tl"))
	assert.Equal(t, "tw-ob", u.Query().Get("client"))
	assert.Equal(t, `🔊 Speaking: "hello there"`, rec.Last().Response.Content)

	audio.onDone(errors.New("decode failed"))
	assert.Equal(t, "❌ Failed to speak text.", rec.Last().Response.Content)
}

func TestSpeakFailure(t *testing.T) {
	rec := run(t, newCommand(&fakeAudio{channel: "v1", playErr: errors.New("ffmpeg missing")}, &fakeSession{}, ""), "tts", commandtest.Opt("text", "hi"))
	assert.Equal(t, "❌ Failed to speak text.", rec.Last().Response.Content)
}
