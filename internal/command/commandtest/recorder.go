// Package commandtest provides a recording Responder and context builders
// for handler tests.
package commandtest

import (
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

// Call is one recorded responder operation.
type Call struct {
	Op       string // respond, defer, defer-update, edit, followup, update, modal
	Response command.Response
	ModalID  string
	Inputs   []discordgo.TextInput
}

// Recorder is an in-memory Responder. It enforces the single response slot
// the way the platform does.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	acked bool

	// Err, when set, is returned from every operation.
	Err error
	// Message is returned from Edit and Followup.
	Message *discordgo.Message
}

func (r *Recorder) record(c Call, consumes bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if consumes {
		if r.acked {
			return errAlreadyAcked
		}
		r.acked = true
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) Respond(resp command.Response) error {
	return r.record(Call{Op: "respond", Response: resp}, true)
}

func (r *Recorder) Defer(ephemeral bool) error {
	return r.record(Call{Op: "defer", Response: command.Response{Ephemeral: ephemeral}}, true)
}

func (r *Recorder) DeferUpdate() error {
	return r.record(Call{Op: "defer-update"}, true)
}

func (r *Recorder) Edit(resp command.Response) (*discordgo.Message, error) {
	if err := r.record(Call{Op: "edit", Response: resp}, false); err != nil {
		return nil, err
	}
	return r.msg(), nil
}

func (r *Recorder) Followup(resp command.Response) (*discordgo.Message, error) {
	if err := r.record(Call{Op: "followup", Response: resp}, false); err != nil {
		return nil, err
	}
	return r.msg(), nil
}

func (r *Recorder) Update(resp command.Response) error {
	return r.record(Call{Op: "update", Response: resp}, true)
}

func (r *Recorder) Modal(customID, title string, inputs ...discordgo.TextInput) error {
	return r.record(Call{Op: "modal", ModalID: customID, Response: command.Response{Content: title}, Inputs: inputs}, true)
}

func (r *Recorder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

// Calls returns a copy of the recorded operations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the last recorded call, or a zero Call.
func (r *Recorder) Last() Call {
	calls := r.Calls()
	if len(calls) == 0 {
		return Call{}
	}
	return calls[len(calls)-1]
}

// Visible returns the calls that produce a user-visible message.
func (r *Recorder) Visible() []Call {
	var out []Call
	for _, c := range r.Calls() {
		switch c.Op {
		case "respond", "edit", "followup", "update", "modal":
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) msg() *discordgo.Message {
	if r.Message != nil {
		return r.Message
	}
	return &discordgo.Message{ID: "m1", ChannelID: "c1"}
}

var errAlreadyAcked = errors.New("interaction has already been acknowledged")

// Opt builds a slash option.
func Opt(name string, value any) *discordgo.ApplicationCommandInteractionDataOption {
	o := &discordgo.ApplicationCommandInteractionDataOption{Name: name, Value: value}
	switch value.(type) {
	case string:
		o.Type = discordgo.ApplicationCommandOptionString
	case bool:
		o.Type = discordgo.ApplicationCommandOptionBoolean
	case float64:
		o.Type = discordgo.ApplicationCommandOptionNumber
	}
	return o
}

// Sub wraps options into a subcommand option.
func Sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:    name,
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: opts,
	}
}

// Member builds a guild member with permissions and roles.
func Member(userID string, perms int64, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		User:        &discordgo.User{ID: userID, Username: "user" + userID},
		Permissions: perms,
		Roles:       roles,
	}
}

// Slash builds an invocation for a slash command.
func Slash(guildID string, m *discordgo.Member, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) (*cmd.Invocation, *Recorder) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   guildID,
		ChannelID: "c1",
		Member:    m,
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
	return build(i, m)
}

// Component builds an invocation for a button or select menu.
func Component(guildID string, m *discordgo.Member, customID string, ct discordgo.ComponentType, values ...string) (*cmd.Invocation, *Recorder) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i2",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   guildID,
		ChannelID: "c1",
		Member:    m,
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: ct, Values: values},
	}}
	return build(i, m)
}

// Modal builds an invocation for a modal submission; fields maps input IDs
// to values.
func Modal(guildID string, m *discordgo.Member, customID string, fields map[string]string) (*cmd.Invocation, *Recorder) {
	rows := make([]discordgo.MessageComponent, 0, len(fields))
	for id, v := range fields {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i3",
		Type:      discordgo.InteractionModalSubmit,
		GuildID:   guildID,
		ChannelID: "c1",
		Member:    m,
		Data:      discordgo.ModalSubmitInteractionData{CustomID: customID, Components: rows},
	}}
	return build(i, m)
}

// Prefix builds an invocation for a prefix command.
func Prefix(guildID, userID string, args ...string) (*cmd.Invocation, *Recorder) {
	rec := &Recorder{}
	u := &discordgo.User{ID: userID, Username: "user" + userID}
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "msg1", GuildID: guildID, ChannelID: "c1", Author: u,
	}}
	dc := &command.Context{
		GuildID:   guildID,
		ChannelID: "c1",
		User:      u,
		Message:   m,
		Reply:     rec,
		Log:       zerolog.Nop(),
	}
	return &cmd.Invocation{Args: args, Data: dc}, rec
}

func build(i *discordgo.InteractionCreate, m *discordgo.Member) (*cmd.Invocation, *Recorder) {
	rec := &Recorder{}
	var u *discordgo.User
	if m != nil {
		u = m.User
	}
	dc := &command.Context{
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		User:        u,
		Member:      m,
		Interaction: i,
		Reply:       rec,
		Log:         zerolog.Nop(),
	}
	return &cmd.Invocation{Data: dc}, rec
}
