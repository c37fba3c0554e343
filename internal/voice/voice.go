// Package voice implements /vc: joining and leaving voice channels,
// server-muting the bot, playing uploaded audio and speaking text.
package voice

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

const (
	ttsEndpoint = "https://translate.google.com/translate_tts"
	ttsLang     = "en-US"
	// MaxTTSLength is the longest text the TTS endpoint accepts in one
	// request.
	MaxTTSLength = 200
)

const (
	msgNotInVC   = "Not in a VC."
	msgJoinFirst = "Have me join a VC first."
	msgBusy      = "❌ Audio is already playing. Please wait or stop it first."
)

type Audio interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(guildID string) bool
	Connected(guildID string) bool
	Busy(guildID string) bool
	Stop(guildID string) bool
	Play(guildID, input string, onDone func(error)) error
}

type Session interface {
	GuildMemberMute(guildID, userID string, mute bool, options ...discordgo.RequestOption) error
}

type Options struct {
	Audio       Audio
	Session     Session
	UserChannel func(guildID, userID string) string
	BotUserID   func() string
	Logger      zerolog.Logger
	// TTSEndpoint overrides the speech endpoint.
	TTSEndpoint string
}

type vcCommand struct {
	audio       Audio
	session     Session
	userChannel func(guildID, userID string) string
	botID       func() string
	log         zerolog.Logger
	tts         string
}

func Modules(opts Options) []cmd.Module {
	if opts.TTSEndpoint == "" {
		opts.TTSEndpoint = ttsEndpoint
	}
	if opts.BotUserID == nil {
		opts.BotUserID = func() string { return "" }
	}
	c := &vcCommand{
		audio:       opts.Audio,
		session:     opts.Session,
		userChannel: opts.UserChannel,
		botID:       opts.BotUserID,
		log:         opts.Logger.With().Str("component", "voice").Logger(),
		tts:         opts.TTSEndpoint,
	}
	return []cmd.Module{cmd.Slash("voice/vc", cmd.Apply(c, command.WithGuildOnly(), command.WithCommandLog()))}
}

func (c *vcCommand) Name() string        { return "vc" }
func (c *vcCommand) Description() string { return "Voice channel utilities" }

func (c *vcCommand) SlashDefinition() *discordgo.ApplicationCommand {
	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts}
	}
	return &discordgo.ApplicationCommand{Options: []*discordgo.ApplicationCommandOption{
		sub("join", "Bot joins your current VC"),
		sub("leave", "Bot leaves the VC"),
		sub("mute", "Server-mute the bot in VC and stop audio"),
		sub("unmute", "Server-unmute the bot in VC"),
		sub("play", "Play an uploaded audio file in VC", &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionAttachment, Name: "audio", Description: "Upload an MP3/OGG file", Required: true,
		}),
		sub("tts", "Convert text to speech", &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "The message to speak", Required: true, MaxLength: MaxTTSLength,
		}),
	}}
}

func (c *vcCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	guildID := dc.GuildID

	switch sub := dc.Subcommand(); sub {
	case "join":
		channelID := ""
		if c.userChannel != nil {
			channelID = c.userChannel(guildID, dc.UserID())
		}
		if channelID == "" {
			return dc.Reply.Respond(command.Text("Join a VC first!"))
		}
		if err := c.audio.Join(ctx, guildID, channelID); err != nil {
			dc.Log.Error().Err(err).Str("channel", channelID).Msg("voice join failed")
			return dc.Reply.Respond(command.Text("❌ Could not join your voice channel."))
		}
		return dc.Reply.Respond(command.Text(fmt.Sprintf("🔊 Joined <#%s>", channelID)))

	case "leave":
		if !c.audio.Leave(guildID) {
			return dc.Reply.Respond(command.Text(msgNotInVC))
		}
		return dc.Reply.Respond(command.Text("👋 Left the VC"))

	case "mute", "unmute":
		if !c.audio.Connected(guildID) {
			return dc.Reply.Respond(command.Text("I must be in a VC."))
		}
		mute := sub == "mute"
		if err := c.session.GuildMemberMute(guildID, c.botID(), mute, discordgo.WithContext(ctx)); err != nil {
			dc.Log.Warn().Err(err).Bool("mute", mute).Msg("mute change failed")
			return dc.Reply.Respond(command.Text("Error changing mute."))
		}
		if !mute {
			return dc.Reply.Respond(command.Text("🔊 Unmuted"))
		}
		c.audio.Stop(guildID)
		return dc.Reply.Respond(command.Text("🤐 Muted and stopped audio."))

	case "play":
		if !c.ready(dc) {
			return nil
		}
		a := dc.AttachmentOption("audio")
		if a == nil || !strings.HasPrefix(a.ContentType, "audio/") {
			return dc.Reply.Respond(command.Text("Not an audio file."))
		}
		return c.play(dc, a.URL, "▶️ Playing "+a.Filename, "✅ Finished playing.", "❌ Failed to play.")

	case "tts":
		if !c.ready(dc) {
			return nil
		}
		text := strings.TrimSpace(dc.StringOption("text"))
		if text == "" || utf8.RuneCountInString(text) > MaxTTSLength {
			return dc.Reply.Respond(command.Text(fmt.Sprintf("❌ Text must be 1 to %d characters.", MaxTTSLength)))
		}
		return c.play(dc, SpeechURL(c.tts, text), fmt.Sprintf("🔊 Speaking: %q", text), "✅ Finished speaking.", "❌ Failed to speak text.")
	}
	return dc.Reply.Respond(command.Text("❌ Unknown voice subcommand."))
}

// ready checks the shared preconditions of play and tts and replies when
// they fail.
func (c *vcCommand) ready(dc *command.Context) bool {
	switch {
	case c.audio.Busy(dc.GuildID):
		_ = dc.Reply.Respond(command.Text(msgBusy))
	case !c.audio.Connected(dc.GuildID):
		_ = dc.Reply.Respond(command.Text(msgJoinFirst))
	default:
		return true
	}
	return false
}

func (c *vcCommand) play(dc *command.Context, input, started, finished, failed string) error {
	if err := dc.Reply.Defer(true); err != nil {
		return err
	}
	log := dc.Log
	reply := dc.Reply
	err := c.audio.Play(dc.GuildID, input, func(err error) {
		text := finished
		if err != nil {
			text = failed
		}
		if _, ferr := reply.Followup(command.Text(text)); ferr != nil {
			log.Warn().Err(ferr).Msg("failed to send playback followup")
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("voice playback failed")
		_, err = reply.Followup(command.Text(failed))
		return err
	}
	_, err = reply.Followup(command.Text(started))
	return err
}

// SpeechURL builds the Google Translate TTS request for text.
func SpeechURL(endpoint, text string) string {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", ttsLang)
	q.Set("total", "1")
	q.Set("idx", "0")
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(text)))
	q.Set("client", "tw-ob")
	q.Set("prev", "input")
	q.Set("ttsspeed", "1")
	return endpoint + "?" + q.Encode()
}
