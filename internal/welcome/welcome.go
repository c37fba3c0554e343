// Package welcome greets new members with a configurable message and
// optionally gives them a role.
package welcome

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/internal/template"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

const defaultLinkLabel = "Click Here"

const idMemberCount = "disabled_member_count"

// Settings is stored flat, keyed by guild ID. Empty fields are unset.
type Settings struct {
	Message          string `json:"message,omitempty"`
	ChannelID        string `json:"channelId,omitempty"`
	RoleID           string `json:"roleId,omitempty"`
	LinkURL          string `json:"linkUrl,omitempty"`
	ButtonLabel      string `json:"buttonLabel,omitempty"`
	MemberCountLabel string `json:"memberCountLabel,omitempty"`
}

func DefaultSettings() Settings { return Settings{} }

// Ready reports whether there is something to send and somewhere to send it.
func (s Settings) Ready() bool {
	return s.Message != "" && s.ChannelID != ""
}

type Session interface {
	ChannelMessageSendComplex(channelID string, m *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildWithCounts(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

type Options struct {
	Store   *storage.Store[Settings]
	Session Session
	Logger  zerolog.Logger
	// Guild reads a guild from the gateway cache; nil always goes to REST.
	Guild func(guildID string) (*discordgo.Guild, error)
}

type Plugin struct {
	store   *storage.Store[Settings]
	session Session
	log     zerolog.Logger
	cached  func(string) (*discordgo.Guild, error)
}

func New(opts Options) *Plugin {
	return &Plugin{
		store:   opts.Store,
		session: opts.Session,
		log:     opts.Logger.With().Str("component", "welcome").Logger(),
		cached:  opts.Guild,
	}
}

func (p *Plugin) Modules() []cmd.Module {
	return []cmd.Module{
		cmd.Slash("welcome/config", cmd.Apply(&configCommand{p: p}, command.WithGuildOnly(), command.WithCommandLog())),
		cmd.Slash("welcome/testwelcome", cmd.Apply(&testCommand{p: p},
			command.WithPermission(discordgo.PermissionManageServer),
			command.WithGuildOnly(),
			command.WithCommandLog(),
		)),
	}
}

type guildInfo struct {
	name    string
	members int
}

func (p *Plugin) guild(ctx context.Context, guildID string) guildInfo {
	if p.cached != nil {
		if g, err := p.cached(guildID); err == nil && g.MemberCount > 0 {
			return guildInfo{name: g.Name, members: g.MemberCount}
		}
	}
	g, err := p.session.GuildWithCounts(guildID, discordgo.WithContext(ctx))
	if err != nil {
		p.log.Warn().Err(err).Str("guild", guildID).Msg("failed to fetch guild")
		return guildInfo{}
	}
	return guildInfo{name: g.Name, members: g.ApproximateMemberCount}
}

// message renders the welcome text and its buttons for the user mentioned.
func message(s Settings, g guildInfo, mention string) *discordgo.MessageSend {
	vars := template.Welcome(g.name, g.members, mention)
	msg := &discordgo.MessageSend{
		Content:         template.Expand(s.Message, vars),
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
	}
	if s.LinkURL != "" {
		label := strings.TrimSpace(s.ButtonLabel)
		if label == "" {
			label = defaultLinkLabel
		}
		msg.Components = append(msg.Components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: label, Style: discordgo.LinkButton, URL: s.LinkURL},
		}})
	}
	if s.MemberCountLabel != "" {
		msg.Components = append(msg.Components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: idMemberCount,
				Label:    template.Expand(s.MemberCountLabel, vars),
				Style:    discordgo.SecondaryButton,
				Disabled: true,
			},
		}})
	}
	return msg
}

// OnGuildMemberAdd greets the member and assigns the configured role. A
// failed greeting does not prevent the role assignment.
func (p *Plugin) OnGuildMemberAdd(ctx context.Context, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil {
		return
	}
	s, ok := p.store.Lookup(e.GuildID)
	if !ok || !s.Ready() {
		return
	}
	log := p.log.With().Str("guild", e.GuildID).Str("user", e.User.ID).Logger()

	msg := message(s, p.guild(ctx, e.GuildID), e.User.Mention())
	if _, err := p.session.ChannelMessageSendComplex(s.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		log.Error().Err(err).Str("channel", s.ChannelID).Msg("failed to send welcome message")
	}

	if s.RoleID == "" {
		return
	}
	if err := p.session.GuildMemberRoleAdd(e.GuildID, e.User.ID, s.RoleID, discordgo.WithContext(ctx)); err != nil {
		log.Error().Err(err).Str("role", s.RoleID).Msg("failed to add welcome role")
		return
	}
	log.Debug().Str("role", s.RoleID).Msg("welcome role added")
}

type testCommand struct{ p *Plugin }

func (c *testCommand) Name() string        { return "testwelcome" }
func (c *testCommand) Description() string { return "Send a test welcome message." }

func (c *testCommand) SlashDefinition() *discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionManageServer)
	return &discordgo.ApplicationCommand{DefaultMemberPermissions: &perm}
}

func (c *testCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	s, ok := c.p.store.Lookup(dc.GuildID)
	if !ok || !s.Ready() {
		return dc.Reply.Respond(command.Text("Welcome message not configured. Use `/config` to set it up."))
	}

	msg := message(s, c.p.guild(ctx, dc.GuildID), fmt.Sprintf("<@%s>", dc.UserID()))
	if _, err := c.p.session.ChannelMessageSendComplex(s.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		dc.Log.Error().Err(err).Str("channel", s.ChannelID).Msg("failed to send test welcome message")
		return dc.Reply.Respond(command.Text("❌ Could not send the test message. Check my permissions and try again."))
	}
	return dc.Reply.Respond(command.Text("✅ Test welcome message sent!"))
}
