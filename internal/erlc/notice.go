package erlc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/poller"
	"github.com/keshon/warden/internal/prc"
	"github.com/keshon/warden/internal/template"
	"github.com/keshon/warden/pkg/cmd"
)

// noticeCommand posts the SSU or boost notice.
type noticeCommand struct {
	p    *Plugin
	kind string
}

func (c *noticeCommand) Name() string { return c.kind }

func (c *noticeCommand) Description() string {
	if c.kind == KindSSU {
		return "Launch Server Startup (SSU) notification"
	}
	return "Launch Server Boost notification"
}

func (c *noticeCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

func (c *noticeCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	s, ok, err := c.p.precheck(dc, c.kind, true)
	if !ok || err != nil {
		return err
	}
	if err := dc.Reply.Defer(false); err != nil {
		return err
	}

	server, err := c.p.api.Server(ctx, s.APIKey)
	if err != nil {
		dc.Log.Warn().Err(err).Str("kind", c.kind).Msg("erlc status fetch failed")
		_, err = dc.Reply.Edit(command.Response{Content: msgFetchFailed})
		return err
	}

	e, _ := s.EmbedsConfig.Get(c.kind)
	roles := s.SSURoles
	if c.kind == KindBoost {
		roles = s.BoostRoles
	}

	msg, viaWebhook, err := c.p.deliver(dc, *e, template.Context{Server: server}, Pings(roles))
	if err != nil {
		dc.Log.Error().Err(err).Str("kind", c.kind).Msg("failed to deliver notice")
		_, ferr := dc.Reply.Followup(command.Text(fmt.Sprintf("❌ Failed to send %s notification.", noticeName(c.kind))))
		return ferr
	}
	if !viaWebhook {
		c.p.startRefresher(dc.GuildID, s.APIKey, *e, msg, Pings(roles))
	}
	return nil
}

func noticeName(kind string) string {
	if kind == KindSSU {
		return "SSU"
	}
	return "Boost"
}

// statusCommand shows live server status and players.
type statusCommand struct{ p *Plugin }

func (c *statusCommand) Name() string { return "erlc-status" }
func (c *statusCommand) Description() string {
	return "Get current ERLC server status and player information"
}

func (c *statusCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

func (c *statusCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	// status is informational: no allow-list check
	s, ok, err := c.p.precheck(dc, KindStatus, false)
	if !ok || err != nil {
		return err
	}
	if err := dc.Reply.Defer(false); err != nil {
		return err
	}

	server, players, err := c.p.api.Snapshot(ctx, s.APIKey)
	if err != nil {
		dc.Log.Warn().Err(err).Msg("erlc status fetch failed")
		_, err = dc.Reply.Edit(command.Response{Content: msgFetchFailed})
		return err
	}

	if _, _, err := c.p.deliver(dc, s.EmbedsConfig.Status, template.Context{Server: server, Players: players}, Pings(nil)); err != nil {
		dc.Log.Error().Err(err).Msg("failed to deliver status")
		_, ferr := dc.Reply.Followup(command.Text("❌ Failed to send status information."))
		return ferr
	}
	return nil
}

// deliver sends a rendered embed through its webhook when one is set and
// works, and otherwise by editing the deferred reply.
func (p *Plugin) deliver(dc *command.Context, e Embed, tc template.Context, content string) (*discordgo.Message, bool, error) {
	embed, rows := Render(e, tc, p.now())

	if e.Webhook != "" {
		msg, err := p.sink.Send(e.Webhook, content, embed)
		if err == nil {
			_, _ = dc.Reply.Edit(command.Response{Content: msgSentWebhook})
			return msg, true, nil
		}
		dc.Log.Warn().Err(err).Msg("webhook delivery failed, falling back to channel")
	}

	msg, err := dc.Reply.Edit(command.Response{
		Content:    content,
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: rows,
	})
	if err != nil {
		return nil, false, err
	}
	if msg != nil && msg.ChannelID == "" {
		msg.ChannelID = dc.ChannelID
	}
	return msg, false, nil
}

// startRefresher keeps msg up to date until the poller gives up.
func (p *Plugin) startRefresher(guildID, key string, e Embed, msg *discordgo.Message, content string) {
	if msg == nil || msg.ID == "" || p.jobs == nil {
		return
	}
	name := "erlc-refresh:" + guildID + ":" + msg.ID
	err := p.jobs.StartAsync(name, func(ctx context.Context) error {
		if p.gauge != nil {
			p.gauge.Inc()
			defer p.gauge.Dec()
		}
		return poller.Run(ctx, p.poll, func(ctx context.Context) error {
			return p.refresh(ctx, key, e, msg, content)
		})
	})
	if err != nil {
		p.log.Warn().Err(err).Str("job", name).Msg("could not start refresher")
	}
}

func (p *Plugin) refresh(ctx context.Context, key string, e Embed, msg *discordgo.Message, content string) error {
	server, err := p.api.Server(ctx, key)
	if err != nil {
		return fmt.Errorf("refresh status: %w", err)
	}
	embed, _ := Render(e, template.Context{Server: server}, p.now())
	embeds := []*discordgo.MessageEmbed{embed}
	_, err = p.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      msg.ID,
		Channel: msg.ChannelID,
		Content: &content,
		Embeds:  &embeds,
	})
	if err != nil {
		return fmt.Errorf("edit notice %s: %w", msg.ID, err)
	}
	return nil
}

// serverCommand runs an in-game command.
type serverCommand struct{ p *Plugin }

func (c *serverCommand) Name() string        { return "command" }
func (c *serverCommand) Description() string { return "Execute ERLC server commands" }

func (c *serverCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "cmd",
			Description: "The command to execute (e.g., :h Hello everyone!)",
			Required:    true,
			MaxLength:   100,
		}},
	}
}

func (c *serverCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	s, ok, err := c.p.precheck(dc, "command", true)
	if !ok || err != nil {
		return err
	}

	line := dc.StringOption("cmd")
	if !strings.HasPrefix(line, ":") {
		return dc.Reply.Respond(command.Text(msgBadPrefix))
	}
	if err := dc.Reply.Defer(true); err != nil {
		return err
	}

	runErr := c.p.api.Command(ctx, s.APIKey, line)
	if runErr != nil {
		dc.Log.Warn().Err(runErr).Msg("erlc command failed")
	}
	_, err = dc.Reply.Edit(command.Response{Embeds: []*discordgo.MessageEmbed{
		commandResult(line, runErr, dc.UserTag(), c.p.now().Format(time.RFC3339)),
	}})
	return err
}

func commandResult(line string, runErr error, by, timestamp string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:     "🖥️ Server Command Execution",
		Timestamp: timestamp,
		Footer:    &discordgo.MessageEmbedFooter{Text: "Executed by " + by},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Command", Value: "`" + line + "`"},
		},
	}
	if runErr == nil {
		e.Color = 0x00FF00
		e.Description = "✅ Command executed successfully!"
		return e
	}

	e.Color = 0xFF0000
	e.Description = "❌ Command execution failed"
	status := prc.StatusOf(runErr)
	reason := runErr.Error()
	if status != 0 {
		reason = fmt.Sprintf("HTTP %d", status)
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Error", Value: reason})

	switch status {
	case http.StatusUnauthorized:
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Possible Solution",
			Value: "Check your API key configuration with `/erlc-config`",
		})
	case http.StatusBadRequest:
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Possible Solution",
			Value: "Check your command syntax. Commands should start with `:` followed by the command.",
		})
	}
	return e
}
