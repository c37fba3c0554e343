package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

// Event listeners. A value passed to Bot.Listen may implement any subset.
type (
	MessageCreateListener interface {
		OnMessageCreate(ctx context.Context, m *discordgo.MessageCreate)
	}
	MessageUpdateListener interface {
		OnMessageUpdate(ctx context.Context, m *discordgo.MessageUpdate)
	}
	MessageDeleteListener interface {
		OnMessageDelete(ctx context.Context, m *discordgo.MessageDelete)
	}
	MessageDeleteBulkListener interface {
		OnMessageDeleteBulk(ctx context.Context, m *discordgo.MessageDeleteBulk)
	}
	MemberAddListener interface {
		OnGuildMemberAdd(ctx context.Context, m *discordgo.GuildMemberAdd)
	}
	MemberUpdateListener interface {
		OnGuildMemberUpdate(ctx context.Context, m *discordgo.GuildMemberUpdate)
	}
	ChannelCreateListener interface {
		OnChannelCreate(ctx context.Context, c *discordgo.ChannelCreate)
	}
	ChannelDeleteListener interface {
		OnChannelDelete(ctx context.Context, c *discordgo.ChannelDelete)
	}
	ChannelUpdateListener interface {
		OnChannelUpdate(ctx context.Context, c *discordgo.ChannelUpdate)
	}
	GuildCreateListener interface {
		OnGuildCreate(ctx context.Context, g *discordgo.GuildCreate)
	}
)

// Intents the bot identifies with. Message content and members are
// privileged and must be enabled for the application.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsMessageContent

// Bot owns the gateway session and fans events out to the router and the
// registered listeners.
type Bot struct {
	dg     *discordgo.Session
	reg    *cmd.Registry
	router *Router
	log    zerolog.Logger

	listeners []any
	readyOnce sync.Once
}

type BotOptions struct {
	Token    string
	Prefix   string
	Logger   zerolog.Logger
	Observer Observer
}

// NewBot creates the session without connecting, so that feature packages
// can be handed the session before Run.
func NewBot(reg *cmd.Registry, opts BotOptions) (*Bot, error) {
	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	// message cache backs the before/after views of edit and delete logs
	dg.State.MaxMessageCount = 200

	return &Bot{
		dg:  dg,
		reg: reg,
		log: opts.Logger,
		router: NewRouter(reg, dg, RouterOptions{
			Prefix:   opts.Prefix,
			Logger:   opts.Logger,
			Observer: opts.Observer,
		}),
	}, nil
}

// Session exposes the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session { return b.dg }

// Listen adds event listeners. Call before Run.
func (b *Bot) Listen(ls ...any) {
	b.listeners = append(b.listeners, ls...)
}

// Run opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) { b.onReady(ctx, s, r) })
	b.dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) { b.router.Interaction(ctx, i) })
	b.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.router.Message(ctx, m)
		for _, l := range b.listeners {
			if h, ok := l.(MessageCreateListener); ok {
				b.router.Safe("messageCreate", func() { h.OnMessageCreate(ctx, m) })
			}
		}
	})
	b.addListenerHandlers(ctx)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing gateway")
	return nil
}

func (b *Bot) addListenerHandlers(ctx context.Context) {
	for _, l := range b.listeners {
		if h, ok := l.(MessageUpdateListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageUpdate) {
				b.router.Safe("messageUpdate", func() { h.OnMessageUpdate(ctx, e) })
			})
		}
		if h, ok := l.(MessageDeleteListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageDelete) {
				b.router.Safe("messageDelete", func() { h.OnMessageDelete(ctx, e) })
			})
		}
		if h, ok := l.(MessageDeleteBulkListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageDeleteBulk) {
				b.router.Safe("messageDeleteBulk", func() { h.OnMessageDeleteBulk(ctx, e) })
			})
		}
		if h, ok := l.(MemberAddListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
				b.router.Safe("guildMemberAdd", func() { h.OnGuildMemberAdd(ctx, e) })
			})
		}
		if h, ok := l.(MemberUpdateListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
				b.router.Safe("guildMemberUpdate", func() { h.OnGuildMemberUpdate(ctx, e) })
			})
		}
		if h, ok := l.(ChannelCreateListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelCreate) {
				b.router.Safe("channelCreate", func() { h.OnChannelCreate(ctx, e) })
			})
		}
		if h, ok := l.(ChannelDeleteListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) {
				b.router.Safe("channelDelete", func() { h.OnChannelDelete(ctx, e) })
			})
		}
		if h, ok := l.(ChannelUpdateListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
				b.router.Safe("channelUpdate", func() { h.OnChannelUpdate(ctx, e) })
			})
		}
		if h, ok := l.(GuildCreateListener); ok {
			b.dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
				b.router.Safe("guildCreate", func() { h.OnGuildCreate(ctx, e) })
			})
		}
	}
}

// onReady publishes the slash set and runs initializers. Reconnects that
// produce a new Ready do not repeat this.
func (b *Bot) onReady(ctx context.Context, s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("discord session ready")

	b.readyOnce.Do(func() {
		publishLogged(s, r.User.ID, b.reg, b.log)

		for _, m := range b.reg.Initializers() {
			b.router.Safe("initializer", func() {
				if err := m.Init(ctx); err != nil {
					b.log.Error().Err(err).Str("initializer", m.Name()).Msg("initializer failed")
				}
			})
		}
	})
}
