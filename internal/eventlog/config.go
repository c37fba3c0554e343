package eventlog

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/state"
	"github.com/keshon/warden/pkg/cmd"
)

const (
	idChannel = "select_channel"
	idEvents  = "select_events"
	idConfirm = "confirm_config"
	idCancel  = "cancel_config"

	colorGrey = 0x95A5A6
)

const (
	msgPanel     = "Configure your logging settings below:"
	msgUpdated   = "✅ Logging settings updated."
	msgCancelled = "Configuration cancelled."
	msgTimedOut  = "Timed out, no changes made."
)

type configCommand struct{ p *Plugin }

func (c *configCommand) Name() string        { return "log-config" }
func (c *configCommand) Description() string { return "Configure where and what to log" }

func (c *configCommand) ComponentPrefixes() []string {
	return []string{idChannel, idEvents, idConfirm, idCancel}
}

func (c *configCommand) SlashDefinition() *discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionManageServer)
	return &discordgo.ApplicationCommand{
		DefaultMemberPermissions: &perm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "show", Description: "Show current log channel and enabled events"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "interactive", Description: "Interactively configure log channel & events"},
		},
	}
}

func (c *configCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if dc.GuildID == "" {
		return dc.Reply.Respond(command.Text("❌ This command can only be used in a server."))
	}
	if !dc.HasPermission(discordgo.PermissionManageServer) {
		return dc.Reply.Respond(command.Text(command.MsgForbidden))
	}

	s, err := c.p.store.Get(dc.GuildID)
	if err != nil {
		return err
	}
	switch dc.Subcommand() {
	case "show":
		return dc.Reply.Respond(command.Response{Ephemeral: true, Embeds: []*discordgo.MessageEmbed{showEmbed(s, c.p.now().Format(time.RFC3339))}})
	case "interactive":
		d := c.p.state.OpenDraft(dc.GuildID, dc.UserID(), s.ChannelID, s.EnabledEvents)
		return dc.Reply.Respond(command.Response{
			Ephemeral:  true,
			Content:    msgPanel,
			Components: panel(d.ChannelID, d.Events),
		})
	}
	return dc.Reply.Respond(command.Text("❌ Unknown subcommand."))
}

func showEmbed(s Settings, timestamp string) *discordgo.MessageEmbed {
	channel := "*none*"
	if s.ChannelID != "" {
		channel = "<#" + s.ChannelID + ">"
	}
	events := strings.Join(s.EnabledEvents, ", ")
	if events == "" {
		events = "*none*"
	}
	return &discordgo.MessageEmbed{
		Title:     "🔍 Logging Configuration",
		Color:     colorGrey,
		Timestamp: timestamp,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel", Value: channel, Inline: true},
			{Name: "Events", Value: events, Inline: true},
		},
	}
}

func panel(channelID string, selected []string) []discordgo.MessageComponent {
	zero := 0
	channelMenu := discordgo.SelectMenu{
		MenuType:     discordgo.ChannelSelectMenu,
		CustomID:     idChannel,
		Placeholder:  "Select log channel (or leave empty)",
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
		MinValues:    &zero,
		MaxValues:    1,
	}
	if channelID != "" {
		channelMenu.DefaultValues = []discordgo.SelectMenuDefaultValue{{ID: channelID, Type: discordgo.SelectMenuDefaultValueChannel}}
	}

	options := make([]discordgo.SelectMenuOption, len(EventKeys))
	for i, key := range EventKeys {
		options[i] = discordgo.SelectMenuOption{Label: key, Value: key, Default: slices.Contains(selected, key)}
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{channelMenu}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    idEvents,
				Placeholder: "Select events to log",
				MinValues:   &zero,
				MaxValues:   len(EventKeys),
				Options:     options,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: idConfirm, Label: "Confirm", Style: discordgo.SuccessButton},
			discordgo.Button{CustomID: idCancel, Label: "Cancel", Style: discordgo.DangerButton},
		}},
	}
}

// closed replaces the panel with a final line and no components.
func closed(text string) command.Response {
	return command.Response{Content: text, Components: []discordgo.MessageComponent{}}
}

// Component drives the interactive panel. Each user edits their own draft;
// an expired or missing draft closes the panel.
func (c *configCommand) Component(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if !dc.HasPermission(discordgo.PermissionManageServer) {
		return dc.Reply.Respond(command.Text(command.MsgForbidden))
	}
	p := c.p
	guildID, userID := dc.GuildID, dc.UserID()

	switch dc.CustomID() {
	case idChannel:
		channelID := ""
		if v := dc.Values(); len(v) > 0 {
			channelID = v[0]
		}
		if _, ok := p.state.UpdateDraft(guildID, userID, func(d *state.Draft) { d.ChannelID = channelID }); !ok {
			return dc.Reply.Update(closed(msgTimedOut))
		}
		return dc.Reply.DeferUpdate()

	case idEvents:
		values := dc.Values()
		if _, ok := p.state.UpdateDraft(guildID, userID, func(d *state.Draft) { d.Events = append([]string(nil), values...) }); !ok {
			return dc.Reply.Update(closed(msgTimedOut))
		}
		return dc.Reply.DeferUpdate()

	case idCancel:
		if _, ok := p.state.CloseDraft(guildID, userID); !ok {
			return dc.Reply.Update(closed(msgTimedOut))
		}
		return dc.Reply.Update(closed(msgCancelled))

	case idConfirm:
		d, ok := p.state.CloseDraft(guildID, userID)
		if !ok {
			return dc.Reply.Update(closed(msgTimedOut))
		}
		if _, err := p.store.Update(guildID, func(s *Settings) error {
			s.ChannelID = d.ChannelID
			s.Apply(d.Events)
			return nil
		}); err != nil {
			return err
		}
		dc.Log.Info().Str("guild", guildID).Str("channel", d.ChannelID).Strs("events", d.Events).Msg("log settings updated")
		return dc.Reply.Update(closed(msgUpdated))
	}
	return dc.Reply.Respond(command.Text("❌ Unknown logging control."))
}
