package discord

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

// Outcome labels used for metrics.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeNotFound = "not_found"
)

// Observer receives one call per dispatched event.
type Observer interface {
	ObserveCommand(name, kind, outcome string, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCommand(string, string, string, time.Duration) {}

// Router turns gateway events into command invocations. Handler errors and
// panics stop at the router: they are logged and turned into one
// best-effort reply, and the router keeps serving later events.
type Router struct {
	reg    *cmd.Registry
	api    API
	prefix string
	log    zerolog.Logger
	obs    Observer
}

type RouterOptions struct {
	Prefix   string
	Logger   zerolog.Logger
	Observer Observer
}

func NewRouter(reg *cmd.Registry, api API, opts RouterOptions) *Router {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Router{
		reg:    reg,
		api:    api,
		prefix: opts.Prefix,
		log:    opts.Logger,
		obs:    opts.Observer,
	}
}

// Interaction dispatches a slash command, component or modal submission.
func (r *Router) Interaction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}

	var (
		target cmd.Command
		name   string
		kind   string
		run    func(context.Context, *cmd.Invocation) error
	)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name, kind = i.ApplicationCommandData().Name, "slash"
		c, ok := r.reg.Resolve(cmd.KindSlash, name)
		if !ok {
			r.log.Warn().Str("command", name).Msg("unknown slash command")
			r.obs.ObserveCommand(name, kind, OutcomeNotFound, 0)
			return
		}
		target, run = c, c.Run

	case discordgo.InteractionMessageComponent, discordgo.InteractionModalSubmit:
		kind = "component"
		if i.Type == discordgo.InteractionModalSubmit {
			name, kind = i.ModalSubmitData().CustomID, "modal"
		} else {
			name = i.MessageComponentData().CustomID
		}
		c, ok := r.reg.ResolveComponent(name)
		if !ok {
			// components owned by event listeners (welcome buttons and the
			// like) or posted by other bots land here
			r.log.Debug().Str("custom_id", name).Msg("no handler for component")
			return
		}
		h, ok := cmd.Root(c).(command.ComponentHandler)
		if !ok {
			r.log.Warn().Str("command", c.Name()).Str("custom_id", name).Msg("command does not handle components")
			return
		}
		target, run = c, h.Component

	default:
		return
	}

	dc := &command.Context{
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		Member:      i.Member,
		User:        interactionUser(i),
		Interaction: i,
		Reply:       newInteractionResponder(r.api, i.Interaction),
	}
	dc.Log = r.log.With().Str("guild", dc.GuildID).Str("user", dc.UserID()).Logger()

	r.dispatch(ctx, target.Name(), kind, dc, &cmd.Invocation{Data: dc}, run)
}

// Message dispatches a prefix command. Bot authors and messages without the
// prefix or with an unknown keyword are ignored.
func (r *Router) Message(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	keyword, args, ok := ParsePrefix(r.prefix, m.Content)
	if !ok {
		return
	}
	c, found := r.reg.Resolve(cmd.KindPrefix, keyword)
	if !found {
		return
	}

	dc := &command.Context{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		User:      m.Author,
		Member:    m.Member,
		Message:   m,
		Reply:     newMessageResponder(r.api, m.Message),
	}
	dc.Log = r.log.With().Str("guild", dc.GuildID).Str("user", dc.UserID()).Logger()

	r.dispatch(ctx, c.Name(), "prefix", dc, &cmd.Invocation{Args: args, Data: dc}, c.Run)
}

// ParsePrefix splits content into a lower-cased keyword and its arguments
// when it starts with prefix.
func ParsePrefix(prefix, content string) (keyword string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Safe runs an event listener with panic containment.
func (r *Router) Safe(event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("event", event).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("event listener panicked")
		}
	}()
	fn()
}

func (r *Router) dispatch(ctx context.Context, name, kind string, dc *command.Context, inv *cmd.Invocation, run func(context.Context, *cmd.Invocation) error) {
	start := time.Now()
	outcome := OutcomeOK

	defer func() {
		rec := recover()
		if rec != nil {
			outcome = OutcomePanic
			dc.Log.Error().
				Str("command", name).
				Str("kind", kind).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("command panicked")
			r.recoverReply(dc)
		}
		r.obs.ObserveCommand(name, kind, outcome, time.Since(start))
	}()

	if err := run(ctx, inv); err != nil {
		outcome = OutcomeError
		dc.Log.Error().Err(err).Str("command", name).Str("kind", kind).Msg("command failed")
		r.recoverReply(dc)
	}
}

// recoverReply picks one of two paths: reply when the response slot is
// free, follow up when it is consumed. Prefix commands always get a reply
// to the originating message.
func (r *Router) recoverReply(dc *command.Context) {
	var err error
	switch {
	case dc.Message != nil:
		_, err = dc.Reply.Followup(command.Response{Content: command.MsgPrefixErr})
	case dc.Reply.Acknowledged():
		_, err = dc.Reply.Followup(command.Text(command.MsgError))
	default:
		err = dc.Reply.Respond(command.Text(command.MsgError))
		if errors.Is(err, ErrAcknowledged) {
			_, err = dc.Reply.Followup(command.Text(command.MsgError))
		}
	}
	if err != nil {
		dc.Log.Warn().Err(err).Msg("failed to deliver error reply")
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
