package erlc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/prc"
	"github.com/keshon/warden/internal/template"
	"github.com/keshon/warden/internal/webhook"
	"github.com/keshon/warden/pkg/cmd"
)

// Custom IDs of the configuration UI.
const (
	idMain        = "erlc_config_main"
	idEmbedMenu   = "erlc_embed_config"
	idToggle      = "erlc_command_toggle"
	idSSURoles    = "erlc_ssu_roles"
	idBoostRoles  = "erlc_boost_roles"
	idPermissions = "erlc_command_permissions"
	idAPIModal    = "erlc_api_config"

	prefixForm    = "erlc_form_"
	prefixJSON    = "erlc_json_"
	prefixPreview = "erlc_preview_"
	prefixWebhook = "erlc_webhook_"
	prefixEmbed   = "erlc_embed_"
)

const variablesHelp = "`{server-name}` - Server name\n`{current-players}` - Current player count\n" +
	"`{max-players}` - Maximum players\n`{join-key}` - Server join key\n`{owner-id}` - Server owner ID\n" +
	"`{team-balance}` - Team balance status\n`{verification}` - Verification status\n" +
	"`{utilization}` - Server utilization percentage\n`{player-count}` - Number of online players\n" +
	"`{player-list}` - List of online players\n`{co-owners}` - List of co-owners"

const (
	colorOK    = 0x00FF00
	colorError = 0xFF0000
)

type configCommand struct{ p *Plugin }

func (c *configCommand) Name() string                { return "erlc-config" }
func (c *configCommand) Description() string         { return "Configure ERLC Plugin settings" }
func (c *configCommand) ComponentPrefixes() []string { return []string{"erlc_"} }

func (c *configCommand) SlashDefinition() *discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionManageServer)
	return &discordgo.ApplicationCommand{DefaultMemberPermissions: &perm}
}

func (c *configCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	return dc.Reply.Respond(command.Response{
		Ephemeral: true,
		Embeds: []*discordgo.MessageEmbed{{
			Title: "Configure ERLC Plugin",
			Description: "Below there are dropdown that allow you to configurate\nmany things. Go to our documents for more info about \nthis plugin.\n\n" +
				"ERLC API: ✅ \nEmbeds: ✅ \nCommands: ✅",
			Color: DefaultColor,
		}},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    idMain,
				Placeholder: "Select configuration option",
				Options: []discordgo.SelectMenuOption{
					{Label: "ERLC API", Description: "Configure API key and server settings", Value: "api", Emoji: &discordgo.ComponentEmoji{Name: "🔑"}},
					{Label: "Embeds", Description: "Configure SSU, Boost, and Status embed messages", Value: "embeds", Emoji: &discordgo.ComponentEmoji{Name: "💬"}},
					{Label: "Commands", Description: "Enable/disable commands and permissions", Value: "commands", Emoji: &discordgo.ComponentEmoji{Name: "⚙️"}},
				},
			},
		}}},
	})
}

// Component handles every erlc_ select menu, button and modal.
func (c *configCommand) Component(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if !dc.HasPermission(discordgo.PermissionManageServer) {
		return dc.Reply.Respond(command.Text(command.MsgForbidden))
	}

	if err := c.component(ctx, dc); err != nil {
		dc.Log.Error().Err(err).Str("custom_id", dc.CustomID()).Msg("erlc config interaction failed")
		if dc.Reply.Acknowledged() {
			_, err = dc.Reply.Followup(command.Text(msgConfigError))
			return err
		}
		return dc.Reply.Respond(command.Text(msgConfigError))
	}
	return nil
}

func (c *configCommand) component(ctx context.Context, dc *command.Context) error {
	id := dc.CustomID()
	p := c.p

	if dc.IsModal() {
		switch {
		case id == idAPIModal:
			return p.submitAPIKey(ctx, dc)
		case strings.HasPrefix(id, prefixEmbed):
			return p.submitForm(dc, strings.TrimPrefix(id, prefixEmbed))
		case strings.HasPrefix(id, prefixJSON):
			return p.submitJSON(dc, strings.TrimPrefix(id, prefixJSON))
		case strings.HasPrefix(id, prefixWebhook):
			return p.submitWebhook(dc, strings.TrimPrefix(id, prefixWebhook))
		}
		return fmt.Errorf("unknown modal %q", id)
	}

	values := dc.Values()
	switch id {
	case idMain:
		if len(values) == 0 {
			return nil
		}
		switch values[0] {
		case "api":
			return p.showAPIModal(dc)
		case "embeds":
			return p.showEmbedsMenu(dc)
		case "commands":
			return p.showCommandsMenu(dc)
		}
		return nil
	case idEmbedMenu:
		if len(values) == 0 {
			return nil
		}
		return p.showEmbedType(dc, values[0])
	case idToggle:
		return p.toggleCommands(dc, values)
	case idSSURoles, idBoostRoles, idPermissions:
		return p.setRoles(dc, id, values)
	}

	switch {
	case strings.HasPrefix(id, prefixForm):
		return p.showForm(dc, strings.TrimPrefix(id, prefixForm))
	case strings.HasPrefix(id, prefixJSON):
		return p.showJSON(dc, strings.TrimPrefix(id, prefixJSON))
	case strings.HasPrefix(id, prefixPreview):
		return p.preview(ctx, dc, strings.TrimPrefix(id, prefixPreview))
	case strings.HasPrefix(id, prefixWebhook):
		return p.showWebhookModal(dc, strings.TrimPrefix(id, prefixWebhook))
	}
	return fmt.Errorf("unknown component %q", id)
}

func resultEmbed(title, description string, color int) []*discordgo.MessageEmbed {
	return []*discordgo.MessageEmbed{{Title: title, Description: description, Color: color}}
}

func roleSelect(id, placeholder string) discordgo.ActionsRow {
	zero := 0
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.SelectMenu{
			MenuType:    discordgo.RoleSelectMenu,
			CustomID:    id,
			Placeholder: placeholder,
			MinValues:   &zero,
			MaxValues:   10,
		},
	}}
}

// --- API key ---

func (p *Plugin) showAPIModal(dc *command.Context) error {
	s, err := p.store.Get(dc.GuildID)
	if err != nil {
		return err
	}
	return dc.Reply.Modal(idAPIModal, "ERLC API Configuration", discordgo.TextInput{
		CustomID:    "api_key",
		Label:       "ERLC API Key",
		Style:       discordgo.TextInputShort,
		Placeholder: "Enter your ERLC API key",
		Value:       s.APIKey,
		MinLength:   1,
	})
}

func (p *Plugin) submitAPIKey(ctx context.Context, dc *command.Context) error {
	key := dc.ModalValue("api_key")
	if err := p.validateKey(ctx, key); err != nil {
		dc.Log.Info().Err(err).Msg("erlc api key rejected")
		return dc.Reply.Respond(command.Response{
			Ephemeral: true,
			Embeds:    resultEmbed("❌ API Configuration Error", "Invalid API key provided. Please check your key and try again.", colorError),
		})
	}

	if _, err := p.store.Update(dc.GuildID, func(s *Settings) error {
		s.APIKey = key
		return nil
	}); err != nil {
		return err
	}
	return dc.Reply.Respond(command.Response{
		Ephemeral: true,
		Embeds:    resultEmbed("✅ API Configuration", "API key has been successfully configured and validated!", colorOK),
		Components: []discordgo.MessageComponent{
			roleSelect(idSSURoles, "Select SSU notification roles"),
			roleSelect(idBoostRoles, "Select Boost notification roles"),
		},
	})
}

// validateKey accepts a key the server endpoint answers with 2xx.
func (p *Plugin) validateKey(ctx context.Context, key string) error {
	if key == "" {
		return prc.ErrNoKey
	}
	_, err := p.api.Server(ctx, key)
	return err
}

func (p *Plugin) setRoles(dc *command.Context, id string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	label := "SSU notification roles"
	if _, err := p.store.Update(dc.GuildID, func(s *Settings) error {
		switch id {
		case idSSURoles:
			s.SSURoles = roles
		case idBoostRoles:
			s.BoostRoles = roles
			label = "Boost notification roles"
		case idPermissions:
			s.CommandPermissions = roles
			label = "Command permissions"
		}
		return nil
	}); err != nil {
		return err
	}
	return dc.Reply.Respond(command.Text(fmt.Sprintf("✅ %s updated! Selected %d role(s).", label, len(roles))))
}

// --- embeds ---

func (p *Plugin) showEmbedsMenu(dc *command.Context) error {
	return dc.Reply.Update(command.Response{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🎨 Embed Configuration",
			Description: "Configure your SSU, Boost, and Status embed messages with custom variables!",
			Color:       DefaultColor,
			Fields:      []*discordgo.MessageEmbedField{{Name: "📋 Available Variables", Value: variablesHelp}},
		}},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    idEmbedMenu,
				Placeholder: "Select embed to configure",
				Options: []discordgo.SelectMenuOption{
					{Label: "SSU Embed", Description: "Configure Server Startup embed", Value: KindSSU, Emoji: &discordgo.ComponentEmoji{Name: "🚨"}},
					{Label: "Boost Embed", Description: "Configure Server Boost embed", Value: KindBoost, Emoji: &discordgo.ComponentEmoji{Name: "⚡"}},
					{Label: "Status Embed", Description: "Configure Status embed", Value: KindStatus, Emoji: &discordgo.ComponentEmoji{Name: "📊"}},
				},
			},
		}}},
	})
}

func (p *Plugin) showEmbedType(dc *command.Context, kind string) error {
	if _, err := (&Embeds{}).Get(kind); err != nil {
		return err
	}
	button := func(prefix, label, emoji string, style discordgo.ButtonStyle) discordgo.Button {
		return discordgo.Button{CustomID: prefix + kind, Label: label, Style: style, Emoji: &discordgo.ComponentEmoji{Name: emoji}}
	}
	return dc.Reply.Update(command.Response{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       strings.ToUpper(kind) + " Embed Configuration",
			Description: "Configure your embed using the options below.",
			Color:       DefaultColor,
			Fields:      []*discordgo.MessageEmbedField{{Name: "📋 Available Variables", Value: variablesHelp}},
		}},
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			button(prefixForm, "Form Editor", "📝", discordgo.PrimaryButton),
			button(prefixJSON, "JSON Editor", "🔧", discordgo.SecondaryButton),
			button(prefixPreview, "Preview Embed", "👁️", discordgo.SuccessButton),
			button(prefixWebhook, "Webhook Settings", "🔗", discordgo.DangerButton),
		}}},
	})
}

func (p *Plugin) embedFor(guildID, kind string) (Settings, Embed, error) {
	s, err := p.store.Get(guildID)
	if err != nil {
		return s, Embed{}, err
	}
	e, err := s.EmbedsConfig.Get(kind)
	if err != nil {
		return s, Embed{}, err
	}
	return s, *e, nil
}

func (p *Plugin) showForm(dc *command.Context, kind string) error {
	_, e, err := p.embedFor(dc.GuildID, kind)
	if err != nil {
		return err
	}
	color := "36FFDD"
	if e.Color != 0 {
		color = fmt.Sprintf("%06x", e.Color)
	}
	return dc.Reply.Modal(prefixEmbed+kind, strings.ToUpper(kind)+" Form Editor",
		discordgo.TextInput{CustomID: "title", Label: "Embed Title", Style: discordgo.TextInputShort, Value: e.Title, MinLength: 1},
		discordgo.TextInput{CustomID: "description", Label: "Embed Description", Style: discordgo.TextInputParagraph, Value: e.Description, MinLength: 1},
		discordgo.TextInput{CustomID: "color", Label: "Embed Color (hex code without #)", Style: discordgo.TextInputShort, Value: color},
		discordgo.TextInput{CustomID: "footer", Label: "Footer Text", Style: discordgo.TextInputShort, Value: e.Footer},
		discordgo.TextInput{CustomID: "image", Label: "Image URL (optional)", Style: discordgo.TextInputShort, Value: e.Image},
	)
}

// ParseColor reads a hex color with or without '#'. Anything unparsable
// yields DefaultColor.
func ParseColor(hex string) int {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return DefaultColor
	}
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil || v < 0 || v > 0xFFFFFF {
		return DefaultColor
	}
	return int(v)
}

func (p *Plugin) submitForm(dc *command.Context, kind string) error {
	title := dc.ModalValue("title")
	description := dc.ModalValue("description")
	colorHex := dc.ModalValue("color")
	if colorHex == "" {
		colorHex = "36FFDD"
	}
	footer := dc.ModalValue("footer")
	image := dc.ModalValue("image")

	if _, err := p.store.Update(dc.GuildID, func(s *Settings) error {
		e, err := s.EmbedsConfig.Get(kind)
		if err != nil {
			return err
		}
		e.Title = title
		e.Description = description
		e.Color = ParseColor(colorHex)
		e.Footer = footer
		e.Image = image
		return nil
	}); err != nil {
		return err
	}

	imageState := "None"
	if image != "" {
		imageState = "Set"
	}
	embeds := resultEmbed("✅ Embed Configuration Updated", strings.ToUpper(kind)+" embed has been successfully configured!", colorOK)
	embeds[0].Fields = []*discordgo.MessageEmbedField{{
		Name: "🎨 Preview",
		Value: fmt.Sprintf("**Title:** %s\n**Color:** #%s\n**Footer:** %s\n**Image:** %s",
			title, strings.ToUpper(strings.TrimPrefix(colorHex, "#")), orDefault(footer, "None"), imageState),
	}}
	return dc.Reply.Respond(command.Response{Ephemeral: true, Embeds: embeds})
}

func (p *Plugin) showJSON(dc *command.Context, kind string) error {
	_, e, err := p.embedFor(dc.GuildID, kind)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return dc.Reply.Modal(prefixJSON+kind, strings.ToUpper(kind)+" JSON Editor", discordgo.TextInput{
		CustomID:  "json_data",
		Label:     "Embed JSON Configuration",
		Style:     discordgo.TextInputParagraph,
		Value:     string(raw),
		MinLength: 1,
	})
}

func (p *Plugin) submitJSON(dc *command.Context, kind string) error {
	raw := dc.ModalValue("json_data")
	_, err := p.store.Update(dc.GuildID, func(s *Settings) error {
		e, err := s.EmbedsConfig.Get(kind)
		if err != nil {
			return err
		}
		return e.Merge(raw)
	})
	if err != nil {
		dc.Log.Info().Err(err).Str("kind", kind).Msg("rejected embed json")
		return dc.Reply.Respond(command.Response{
			Ephemeral: true,
			Embeds:    resultEmbed("❌ JSON Error", "Invalid JSON provided. Please check your syntax and try again.", colorError),
		})
	}
	return dc.Reply.Respond(command.Response{
		Ephemeral: true,
		Embeds:    resultEmbed("✅ JSON Configuration Updated", strings.ToUpper(kind)+" embed has been successfully configured via JSON!", colorOK),
	})
}

func (p *Plugin) preview(ctx context.Context, dc *command.Context, kind string) error {
	s, e, err := p.embedFor(dc.GuildID, kind)
	if err != nil {
		return err
	}
	if s.APIKey == "" {
		return dc.Reply.Respond(command.Text("❌ API key is not configured. Please configure it first to preview the embed."))
	}
	if err := dc.Reply.Defer(true); err != nil {
		return err
	}

	server, players, err := p.api.Snapshot(ctx, s.APIKey)
	if err != nil {
		dc.Log.Warn().Err(err).Msg("erlc preview fetch failed")
		_, err = dc.Reply.Edit(command.Response{Content: msgFetchFailed})
		return err
	}
	embed, _ := Render(e, template.Context{Server: server, Players: players}, p.now())
	_, err = dc.Reply.Edit(command.Response{
		Content: "**Preview of " + strings.ToUpper(kind) + " Embed:**",
		Embeds:  []*discordgo.MessageEmbed{embed},
	})
	return err
}

func (p *Plugin) showWebhookModal(dc *command.Context, kind string) error {
	_, e, err := p.embedFor(dc.GuildID, kind)
	if err != nil {
		return err
	}
	return dc.Reply.Modal(prefixWebhook+kind, strings.ToUpper(kind)+" Webhook Configuration", discordgo.TextInput{
		CustomID:    "webhook_url",
		Label:       "Webhook URL",
		Style:       discordgo.TextInputShort,
		Placeholder: "https://discord.com/api/webhooks/...",
		Value:       e.Webhook,
	})
}

func (p *Plugin) submitWebhook(dc *command.Context, kind string) error {
	url := dc.ModalValue("webhook_url")
	if url != "" && !webhook.Valid(url) {
		return dc.Reply.Respond(command.Response{
			Ephemeral: true,
			Embeds:    resultEmbed("❌ Webhook Error", "That is not a Discord webhook URL.", colorError),
		})
	}
	if _, err := p.store.Update(dc.GuildID, func(s *Settings) error {
		e, err := s.EmbedsConfig.Get(kind)
		if err != nil {
			return err
		}
		e.Webhook = url
		return nil
	}); err != nil {
		return err
	}

	state := "removed"
	if url != "" {
		state = "configured"
	}
	return dc.Reply.Respond(command.Response{
		Ephemeral: true,
		Embeds:    resultEmbed("✅ Webhook Configuration Updated", strings.ToUpper(kind)+" webhook has been "+state+"!", colorOK),
	})
}

// --- commands ---

func onOff(v bool) string {
	if v {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}

func commandStatus(c Commands) string {
	return fmt.Sprintf("SSU Command: %s\nBoost Command: %s\nServer Command: %s\nStatus Command: %s",
		onOff(c.SSU), onOff(c.Boost), onOff(c.Command), onOff(c.Status))
}

func (p *Plugin) showCommandsMenu(dc *command.Context) error {
	s, err := p.store.Get(dc.GuildID)
	if err != nil {
		return err
	}
	zero := 0
	return dc.Reply.Update(command.Response{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "⚙️ Commands Configuration",
			Description: "Enable/disable ERLC commands and set permissions",
			Color:       DefaultColor,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "📝 Available Commands", Value: "`/ssu` - Launch SSU embed with pings\n`/boost` - Launch boost embed with pings\n`/command` - Execute ERLC server commands\n`/erlc-status` - Get server status information"},
				{Name: "🔧 Current Status", Value: commandStatus(s.Commands)},
			},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    idToggle,
					Placeholder: "Select commands to enable/disable",
					MinValues:   &zero,
					MaxValues:   4,
					Options: []discordgo.SelectMenuOption{
						{Label: "SSU Command", Description: "Toggle /ssu command", Value: KindSSU, Emoji: &discordgo.ComponentEmoji{Name: "🚨"}},
						{Label: "Boost Command", Description: "Toggle /boost command", Value: KindBoost, Emoji: &discordgo.ComponentEmoji{Name: "⚡"}},
						{Label: "Server Command", Description: "Toggle /command command", Value: "command", Emoji: &discordgo.ComponentEmoji{Name: "🖥️"}},
						{Label: "Status Command", Description: "Toggle /erlc-status command", Value: KindStatus, Emoji: &discordgo.ComponentEmoji{Name: "📊"}},
					},
				},
			}},
			roleSelect(idPermissions, "Select roles that can use ERLC commands"),
		},
	})
}

func (p *Plugin) toggleCommands(dc *command.Context, selected []string) error {
	s, err := p.store.Update(dc.GuildID, func(s *Settings) error {
		s.Commands.SetCommands(selected)
		return nil
	})
	if err != nil {
		return err
	}
	embeds := resultEmbed("✅ Commands Updated", "Command status has been updated!", colorOK)
	embeds[0].Fields = []*discordgo.MessageEmbedField{{Name: "🔧 New Status", Value: commandStatus(s.Commands)}}
	return dc.Reply.Respond(command.Response{Ephemeral: true, Embeds: embeds})
}
