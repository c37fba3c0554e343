// Package command holds the Discord side of the command core: the context a
// handler receives, the responder it answers through, and the provider
// interfaces the transport inspects when publishing and routing.
package command

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

// ErrNoContext means an invocation did not come from the Discord adapter.
var ErrNoContext = errors.New("invocation carries no discord context")

// Context is what the Discord adapter puts into cmd.Invocation.Data.
type Context struct {
	GuildID   string
	ChannelID string
	User      *discordgo.User
	Member    *discordgo.Member

	// Interaction is set for slash commands, components and modals.
	Interaction *discordgo.InteractionCreate
	// Message is set for prefix commands.
	Message *discordgo.MessageCreate

	Reply Responder
	Log   zerolog.Logger
}

// From extracts the Discord context from an invocation.
func From(inv *cmd.Invocation) (*Context, error) {
	if inv == nil {
		return nil, ErrNoContext
	}
	c, ok := inv.Data.(*Context)
	if !ok || c == nil {
		return nil, ErrNoContext
	}
	return c, nil
}

// UserID returns the invoking user's ID, or "".
func (c *Context) UserID() string {
	if c.User != nil {
		return c.User.ID
	}
	return ""
}

// UserTag returns a display tag for footers and logs.
func (c *Context) UserTag() string {
	if c.User == nil {
		return "unknown"
	}
	if c.User.Discriminator != "" && c.User.Discriminator != "0" {
		return c.User.Username + "#" + c.User.Discriminator
	}
	return c.User.Username
}

// HasPermission reports whether the member's resolved permissions include p.
func (c *Context) HasPermission(p int64) bool {
	if c.Member == nil {
		return false
	}
	return c.Member.Permissions&p == p || c.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// HasAnyRole reports whether the member holds one of roles.
func (c *Context) HasAnyRole(roles []string) bool {
	if c.Member == nil {
		return false
	}
	for _, have := range c.Member.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// --- interaction data helpers ---

func (c *Context) isType(t discordgo.InteractionType) bool {
	return c.Interaction != nil && c.Interaction.Type == t
}

// IsCommand reports whether the context is a slash command invocation.
func (c *Context) IsCommand() bool { return c.isType(discordgo.InteractionApplicationCommand) }

// IsComponent reports whether the context is a button or select menu.
func (c *Context) IsComponent() bool { return c.isType(discordgo.InteractionMessageComponent) }

// IsModal reports whether the context is a modal submission.
func (c *Context) IsModal() bool { return c.isType(discordgo.InteractionModalSubmit) }

// Options returns the top level slash options, or those of the selected
// subcommand when there is one.
func (c *Context) Options() []*discordgo.ApplicationCommandInteractionDataOption {
	if !c.IsCommand() {
		return nil
	}
	opts := c.Interaction.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}

// Subcommand returns the selected subcommand name, or "".
func (c *Context) Subcommand() string {
	if !c.IsCommand() {
		return ""
	}
	opts := c.Interaction.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name
	}
	return ""
}

func (c *Context) option(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range c.Options() {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// StringOption returns a string option or "".
func (c *Context) StringOption(name string) string {
	if o := c.option(name); o != nil && o.Type == discordgo.ApplicationCommandOptionString {
		return o.StringValue()
	}
	return ""
}

// AttachmentOption resolves an attachment option.
func (c *Context) AttachmentOption(name string) *discordgo.MessageAttachment {
	o := c.option(name)
	if o == nil || o.Type != discordgo.ApplicationCommandOptionAttachment {
		return nil
	}
	id, _ := o.Value.(string)
	data := c.Interaction.ApplicationCommandData()
	if data.Resolved == nil {
		return nil
	}
	return data.Resolved.Attachments[id]
}

// CustomID returns the component or modal custom ID.
func (c *Context) CustomID() string {
	switch {
	case c.IsComponent():
		return c.Interaction.MessageComponentData().CustomID
	case c.IsModal():
		return c.Interaction.ModalSubmitData().CustomID
	}
	return ""
}

// Values returns the selected values of a select menu.
func (c *Context) Values() []string {
	if !c.IsComponent() {
		return nil
	}
	return c.Interaction.MessageComponentData().Values
}

// ModalValue returns the value of a text input in a modal submission.
func (c *Context) ModalValue(id string) string {
	if !c.IsModal() {
		return ""
	}
	for _, row := range c.Interaction.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if in, ok := comp.(*discordgo.TextInput); ok && in.CustomID == id {
				return strings.TrimSpace(in.Value)
			}
		}
	}
	return ""
}
