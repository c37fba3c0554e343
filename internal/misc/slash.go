package misc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/state"
	"github.com/keshon/warden/pkg/cmd"
)

// maxShareBytes is the upload limit for bots without boosted guilds.
const maxShareBytes = 25 << 20

const (
	colorPing = 0x00BFFF
	colorInfo = 0x309279
)

var errTooLarge = errors.New("attachment exceeds upload limit")

type pingCommand struct{ p *Plugin }

func (c *pingCommand) Name() string        { return "ping" }
func (c *pingCommand) Description() string { return "Check bot latency and host ping" }

func (c *pingCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

func (c *pingCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if err := dc.Reply.Defer(false); err != nil {
		return err
	}

	gateway := c.p.session.HeartbeatLatency()
	api := "Unavailable"
	start := time.Now()
	if _, err := c.p.session.User("@me", discordgo.WithContext(ctx)); err == nil {
		api = fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	} else {
		dc.Log.Warn().Err(err).Msg("rest round-trip failed")
	}

	embed := &discordgo.MessageEmbed{
		Title: "Pong!",
		Color: colorPing,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bot Latency", Value: fmt.Sprintf("%dms", gateway.Milliseconds()), Inline: true},
			{Name: "Discord API", Value: api, Inline: true},
			{Name: "Uptime", Value: strings.TrimSpace(humanize.RelTime(c.p.started, c.p.now(), "", "")), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Latency check complete"},
		Timestamp: c.p.now().Format(time.RFC3339),
	}
	_, err = dc.Reply.Edit(command.Response{Embeds: []*discordgo.MessageEmbed{embed}})
	return err
}

type infoCommand struct{}

func (c *infoCommand) Name() string        { return "info" }
func (c *infoCommand) Description() string { return "Displays information about the server and bot." }

func (c *infoCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

const infoText = `**# Information**
This will contain all of the necessary things to be on this server
and will show how to use all of the bot features through videos,
text, embed, etc. Right below are all of the links and info
that you'll need for your bot and our server!`

func (c *infoCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	embed := &discordgo.MessageEmbed{
		Description: infoText,
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Community Tutorials", Value: "[**Welcome Message**](https://youtu.be/dr_neNVZgWU)", Inline: true},
			{Name: "Variables", Value: "`{server}`\n`{mention}`\n`{member}`", Inline: true},
		},
	}
	return dc.Reply.Respond(command.Response{Embeds: []*discordgo.MessageEmbed{embed}, Ephemeral: true})
}

type sayCommand struct{ p *Plugin }

func (c *sayCommand) Name() string        { return "say" }
func (c *sayCommand) Description() string { return "Make the bot say a message anonymously" }

func (c *sayCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Options: []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "message",
		Description: "What should the bot say?",
		Required:    true,
		MaxLength:   2000,
	}}}
}

func (c *sayCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if err := dc.Reply.Defer(true); err != nil {
		return err
	}
	_, err = c.p.session.ChannelMessageSendComplex(dc.ChannelID, &discordgo.MessageSend{
		Content: dc.StringOption("message"),
		// users only; @everyone and role pings stay inert
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		dc.Log.Warn().Err(err).Msg("say failed")
		_, err = dc.Reply.Edit(command.Text("❌ Failed to say the message. Try again later."))
		return err
	}
	_, err = dc.Reply.Edit(command.Text("✅ Message sent."))
	return err
}

type shareCommand struct{ p *Plugin }

func (c *shareCommand) Name() string        { return "share" }
func (c *shareCommand) Description() string { return "Post an uploaded video file in chat" }

func (c *shareCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Options: []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionAttachment,
		Name:        "video",
		Description: "Upload an MP4/MKV file",
		Required:    true,
	}}}
}

func (c *shareCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if err := dc.Reply.Defer(true); err != nil {
		return err
	}

	a := dc.AttachmentOption("video")
	if a == nil || !strings.HasPrefix(a.ContentType, "video/") {
		_, err = dc.Reply.Edit(command.Text("❌ That isn’t a video."))
		return err
	}

	body, err := c.p.download(ctx, a.URL)
	if err == nil {
		defer body.Close()
		var msg *discordgo.Message
		msg, err = c.p.session.ChannelMessageSendComplex(dc.ChannelID, &discordgo.MessageSend{
			Content: "📺 Here’s your video:",
			Files:   []*discordgo.File{{Name: a.Filename, ContentType: a.ContentType, Reader: body}},
		}, discordgo.WithContext(ctx))
		if err == nil {
			c.p.state.SetShared(dc.GuildID, state.SharedMessage{ChannelID: msg.ChannelID, MessageID: msg.ID})
			_, err = dc.Reply.Edit(command.Text("✅ Video shared!"))
			return err
		}
	}
	dc.Log.Warn().Err(err).Str("file", a.Filename).Msg("failed to share video")
	_, err = dc.Reply.Edit(command.Text("❌ Failed to share your video. Try again?"))
	return err
}

// download opens the attachment at link for re-upload.
func (p *Plugin) download(ctx context.Context, link string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("attachment download: status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxShareBytes {
		resp.Body.Close()
		return nil, errTooLarge
	}
	return resp.Body, nil
}

type unshareCommand struct{ p *Plugin }

func (c *unshareCommand) Name() string        { return "unshare" }
func (c *unshareCommand) Description() string { return "Remove the last shared video from chat" }

func (c *unshareCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

func (c *unshareCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	shared, ok := c.p.state.TakeShared(dc.GuildID)
	if !ok {
		return dc.Reply.Respond(command.Text("❌ No video to remove."))
	}
	err = c.p.session.ChannelMessageDelete(shared.ChannelID, shared.MessageID, discordgo.WithContext(ctx))
	if err == nil {
		return dc.Reply.Respond(command.Text("🗑️ Video removed."))
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownChannel {
		return dc.Reply.Respond(command.Text("⚠️ Channel no longer exists."))
	}
	dc.Log.Warn().Err(err).Msg("failed to remove shared video")
	return dc.Reply.Respond(command.Text("❌ Could not remove the video."))
}
