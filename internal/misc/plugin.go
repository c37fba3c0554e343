// Package misc holds the small utility commands: latency, info, say and
// video sharing for everyone, plus the owner-only prefix commands.
package misc

import (
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/state"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

// Session is what the misc commands need from Discord.
type Session interface {
	HeartbeatLatency() time.Duration
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

type Options struct {
	Session Session
	State   *state.State
	Logger  zerolog.Logger
	// Prefix is the text command prefix, used in usage hints.
	Prefix string
	// Allowed reports whether a user is in ALLOWED_USERS.
	Allowed   func(userID string) bool
	BotUserID func() string
	// AppID returns the application ID for command deletion.
	AppID func() string
	// HTTP downloads shared videos.
	HTTP    *http.Client
	Started time.Time
	Now     func() time.Time
}

// Plugin owns the misc commands and the skullfy message listener.
type Plugin struct {
	session Session
	state   *state.State
	log     zerolog.Logger
	prefix  string
	allowed func(string) bool
	botID   func() string
	appID   func() string
	http    *http.Client
	started time.Time
	now     func() time.Time
}

func New(opts Options) *Plugin {
	if opts.State == nil {
		opts.State = state.New()
	}
	if opts.Allowed == nil {
		opts.Allowed = func(string) bool { return false }
	}
	if opts.BotUserID == nil {
		opts.BotUserID = func() string { return "" }
	}
	if opts.AppID == nil {
		opts.AppID = opts.BotUserID
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = opts.Now()
	}
	return &Plugin{
		session: opts.Session,
		state:   opts.State,
		log:     opts.Logger.With().Str("component", "misc").Logger(),
		prefix:  opts.Prefix,
		allowed: opts.Allowed,
		botID:   opts.BotUserID,
		appID:   opts.AppID,
		http:    opts.HTTP,
		started: opts.Started,
		now:     opts.Now,
	}
}

func (p *Plugin) Modules() []cmd.Module {
	logged := command.WithCommandLog()
	owner := command.WithAllowedUsers(p.allowed)
	return []cmd.Module{
		cmd.Slash("misc/ping", cmd.Apply(&pingCommand{p: p}, logged)),
		cmd.Slash("misc/info", &infoCommand{}),
		cmd.Slash("misc/say", cmd.Apply(&sayCommand{p: p}, command.WithGuildOnly(), logged)),
		cmd.Slash("misc/share", cmd.Apply(&shareCommand{p: p}, command.WithGuildOnly(), logged)),
		cmd.Slash("misc/unshare", cmd.Apply(&unshareCommand{p: p}, command.WithGuildOnly(), logged)),

		cmd.Prefix("misc/skullfy", cmd.Apply(&skullfyCommand{p: p}, logged)),
		cmd.Prefix("misc/terminate", cmd.Apply(&terminateCommand{p: p}, logged)),
		cmd.Prefix("misc/status", cmd.Apply(&statusCommand{p: p}, owner, logged)),
		cmd.Prefix("misc/dictatorship", cmd.Apply(&dictatorshipCommand{p: p}, owner, logged)),
		cmd.Prefix("misc/deletecommand", cmd.Apply(&deleteCommand{p: p}, logged)),
	}
}

// deleteTrigger removes the prefix message that invoked a command.
func (p *Plugin) deleteTrigger(dc *command.Context) {
	if dc.Message == nil {
		return
	}
	if err := p.session.ChannelMessageDelete(dc.ChannelID, dc.Message.ID); err != nil {
		dc.Log.Debug().Err(err).Msg("could not delete command message")
	}
}
