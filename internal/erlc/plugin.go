// Package erlc integrates an ER:LC private server: startup and boost
// notices, server commands, status, the configuration UI and the auto-boost
// ticker.
package erlc

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/poller"
	"github.com/keshon/warden/internal/prc"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/internal/webhook"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/keshon/warden/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// API is the ERLC HTTP API.
type API interface {
	Server(ctx context.Context, key string) (*prc.Server, error)
	Players(ctx context.Context, key string) ([]prc.Player, error)
	Command(ctx context.Context, key, command string) error
	Snapshot(ctx context.Context, key string) (*prc.Server, []prc.Player, error)
}

// Session is the part of the Discord client the plugin uses outside of
// interaction replies.
type Session interface {
	webhook.Executor
	ChannelMessageSendComplex(channelID string, m *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Gauge tracks active refreshers; prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type Options struct {
	Store   *storage.Store[Settings]
	API     API
	Session Session
	Jobs    *jobmgr.Manager
	Logger  zerolog.Logger

	// BotUserID returns the bot's own user ID once the session is ready.
	BotUserID func() string
	// Poll controls the notice refresher.
	Poll poller.Options
	// AutoBoostInterval is the auto-boost period; zero disables it.
	AutoBoostInterval time.Duration
	Refreshers        Gauge
	Now               func() time.Time
}

type Plugin struct {
	store    *storage.Store[Settings]
	api      API
	session  Session
	sink     *webhook.Sink
	jobs     *jobmgr.Manager
	log      zerolog.Logger
	botID    func() string
	poll     poller.Options
	interval time.Duration
	gauge    Gauge
	now      func() time.Time
}

func New(opts Options) *Plugin {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BotUserID == nil {
		opts.BotUserID = func() string { return "" }
	}
	return &Plugin{
		store:    opts.Store,
		api:      opts.API,
		session:  opts.Session,
		sink:     webhook.NewSink(opts.Session),
		jobs:     opts.Jobs,
		log:      opts.Logger,
		botID:    opts.BotUserID,
		poll:     opts.Poll,
		interval: opts.AutoBoostInterval,
		gauge:    opts.Refreshers,
		now:      opts.Now,
	}
}

// Modules returns the ERLC slash commands and the auto-boost initializer.
func (p *Plugin) Modules() []cmd.Module {
	common := []cmd.Middleware{command.WithGuildOnly(), command.WithCommandLog()}
	return []cmd.Module{
		cmd.Slash("erlc/boost", cmd.Apply(&noticeCommand{p: p, kind: KindBoost}, common...)),
		cmd.Slash("erlc/command", cmd.Apply(&serverCommand{p: p}, common...)),
		cmd.Slash("erlc/config", cmd.Apply(&configCommand{p: p},
			command.WithPermission(discordgo.PermissionManageServer),
			command.WithGuildOnly(),
			command.WithCommandLog(),
		)),
		cmd.Slash("erlc/ssu", cmd.Apply(&noticeCommand{p: p, kind: KindSSU}, common...)),
		cmd.Slash("erlc/status", cmd.Apply(&statusCommand{p: p}, common...)),
		cmd.Initializer("erlc/zz-autoboost", "erlc-autoboost", p.StartAutoBoost),
	}
}

// User-facing texts.
const (
	msgNotConfigured = "❌ ERLC plugin is not configured. Please use `/erlc-config` first."
	msgFetchFailed   = "❌ Failed to fetch server status. Please check your API key configuration."
	msgBadPrefix     = "❌ Server commands must start with `:` (e.g., `:h Hello everyone!`)"
	msgConfigError   = "❌ An error occurred while processing your request."
	msgSentWebhook   = "✅ Notification sent through the configured webhook."
)

var disabledText = map[string]string{
	KindSSU:    "❌ SSU command is disabled.",
	KindBoost:  "❌ Boost command is disabled.",
	"command":  "❌ Server command execution is disabled.",
	KindStatus: "❌ Status command is disabled.",
}

func enabled(c Commands, name string) bool {
	switch name {
	case KindSSU:
		return c.SSU
	case KindBoost:
		return c.Boost
	case "command":
		return c.Command
	case KindStatus:
		return c.Status
	}
	return false
}

// allowed reports whether the member may run ERLC commands: Manage Server,
// or a role in the allow-list, or an empty allow-list.
func allowed(dc *command.Context, roles []string) bool {
	return dc.HasPermission(discordgo.PermissionManageServer) || len(roles) == 0 || dc.HasAnyRole(roles)
}

// precheck enforces, in order, a configured key, the command's enabled
// flag and, when checkRoles is set, the allow-list. A false return means a
// reply was already sent.
func (p *Plugin) precheck(dc *command.Context, name string, checkRoles bool) (Settings, bool, error) {
	s, err := p.store.Get(dc.GuildID)
	if err != nil {
		return s, false, err
	}
	switch {
	case s.APIKey == "":
		return s, false, dc.Reply.Respond(command.Text(msgNotConfigured))
	case !enabled(s.Commands, name):
		return s, false, dc.Reply.Respond(command.Text(disabledText[name]))
	case checkRoles && !allowed(dc, s.CommandPermissions):
		return s, false, dc.Reply.Respond(command.Text(command.MsgForbidden))
	}
	return s, true, nil
}
