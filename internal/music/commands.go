package music

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
)

const queuePreview = 10

const (
	msgNothingPlaying = "❌ Nothing is playing right now."
	msgJoinFirst      = "❌ Join a voice channel first."
	msgBusy           = "❌ I am already playing something. Please wait for the current track to finish or use `/music skip`."
)

// UserChannel reports the voice channel a member is in, or "".
type UserChannel func(guildID, userID string) string

func Modules(players *Players, userChannel UserChannel) []cmd.Module {
	return []cmd.Module{
		cmd.Slash("music/music", cmd.Apply(&musicCommand{players: players, userChannel: userChannel},
			command.WithGuildOnly(),
			command.WithCommandLog(),
		)),
	}
}

type musicCommand struct {
	players     *Players
	userChannel UserChannel
}

func (c *musicCommand) Name() string        { return "music" }
func (c *musicCommand) Description() string { return "Music commands: play, skip, stop, queue, nowplaying" }

func (c *musicCommand) SlashDefinition() *discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak)
	return &discordgo.ApplicationCommand{
		DefaultMemberPermissions: &perm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "play",
				Description: "Play a song or playlist",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Song name or URL",
					Required:    true,
				}},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "skip", Description: "Skip the current track"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "stop", Description: "Stop playback and clear the queue"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "queue", Description: "Show the upcoming tracks"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "nowplaying", Description: "Show the currently playing track"},
		},
	}
}

func (c *musicCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	p := c.players.Get(dc.GuildID)

	switch dc.Subcommand() {
	case "play":
		return c.play(ctx, dc, p)
	case "skip":
		if err := p.Skip(); err != nil {
			return dc.Reply.Respond(command.Response{Content: msgNothingPlaying})
		}
		return dc.Reply.Respond(command.Response{Content: "⏭️ Skipped current track."})
	case "stop":
		if err := p.Stop(); err != nil {
			return dc.Reply.Respond(command.Response{Content: msgNothingPlaying})
		}
		return dc.Reply.Respond(command.Response{Content: "⏹️ Stopped playback and cleared the queue."})
	case "queue":
		return dc.Reply.Respond(command.Response{Content: queueText(p)})
	case "nowplaying":
		t := p.Current()
		if t == nil {
			return dc.Reply.Respond(command.Response{Content: msgNothingPlaying})
		}
		return dc.Reply.Respond(command.Response{Content: fmt.Sprintf("🎵 Now Playing: **%s** (%s)\n%s",
			t.Title, FormatDuration(t.Duration), ProgressBar(p.Elapsed(), t.Duration, 20))})
	}
	return dc.Reply.Respond(command.Text("❌ Unknown music subcommand."))
}

func (c *musicCommand) play(ctx context.Context, dc *command.Context, p *Player) error {
	channelID := ""
	if c.userChannel != nil {
		channelID = c.userChannel(dc.GuildID, dc.UserID())
	}
	if channelID == "" {
		return dc.Reply.Respond(command.Text(msgJoinFirst))
	}
	if p.Current() != nil || p.audio.Busy(dc.GuildID) {
		return dc.Reply.Respond(command.Text(msgBusy))
	}
	if err := dc.Reply.Defer(false); err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	tracks, err := p.src.Resolve(rctx, dc.StringOption("query"))
	cancel()
	if err != nil {
		dc.Log.Warn().Err(err).Msg("track lookup failed")
		_, err = dc.Reply.Edit(command.Response{Content: "❌ Could not find anything to play: " + err.Error()})
		return err
	}

	if err := p.Start(ctx, channelID, tracks); err != nil {
		msg := "❌ Failed to start playback."
		if errors.Is(err, ErrAlreadyPlaying) {
			msg = msgBusy
		}
		dc.Log.Warn().Err(err).Msg("playback failed to start")
		_, err = dc.Reply.Edit(command.Response{Content: msg})
		return err
	}

	title := tracks[0].Title
	if tracks[0].Playlist != "" {
		title = tracks[0].Playlist + " (playlist)"
	}
	_, err = dc.Reply.Edit(command.Response{Content: fmt.Sprintf("▶️ Queued **%s**", title)})
	return err
}

func queueText(p *Player) string {
	t := p.Current()
	if t == nil {
		return msgNothingPlaying
	}
	upcoming := p.Queue()

	var b strings.Builder
	fmt.Fprintf(&b, "🎶 Now Playing: **%s** (%s), started %s\n\n", t.Title, FormatDuration(t.Duration), humanize.Time(p.StartedAt()))
	b.WriteString("🗒️ Up Next:\n")
	if len(upcoming) == 0 {
		b.WriteString("No more tracks in queue.")
	}
	for i, u := range upcoming {
		if i == queuePreview {
			fmt.Fprintf(&b, "…and %s more.", humanize.Comma(int64(len(upcoming)-queuePreview)))
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, u.Title, FormatDuration(u.Duration))
	}
	return strings.TrimRight(b.String(), "\n")
}
