package command

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// ErrUnsupported is returned by responders for operations their transport
// cannot perform (a modal in reply to a text message, for example).
var ErrUnsupported = errors.New("response kind not supported here")

// Response is a transport neutral message payload.
type Response struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Files      []*discordgo.File
	Ephemeral  bool
	// Mentions restricts pings; nil keeps the platform default.
	Mentions *discordgo.MessageAllowedMentions
}

// Text is a shorthand for a plain ephemeral message.
func Text(content string) Response {
	return Response{Content: content, Ephemeral: true}
}

// Responder answers one invocation. An interaction has a single response
// slot: Respond, Defer, DeferUpdate, Update and Modal consume it, after which
// only Edit and Followup are valid.
type Responder interface {
	Respond(r Response) error
	Defer(ephemeral bool) error
	DeferUpdate() error
	// Edit replaces the deferred or initial response and returns the
	// resulting message.
	Edit(r Response) (*discordgo.Message, error)
	Followup(r Response) (*discordgo.Message, error)
	// Update rewrites the message a component is attached to.
	Update(r Response) error
	Modal(customID, title string, inputs ...discordgo.TextInput) error
	// Acknowledged reports whether the response slot is consumed.
	Acknowledged() bool
}

// Send answers with r whether or not the slot is consumed: it edits the
// deferred reply when acknowledged and responds otherwise.
func Send(rs Responder, r Response) error {
	if rs.Acknowledged() {
		_, err := rs.Edit(r)
		return err
	}
	return rs.Respond(r)
}
