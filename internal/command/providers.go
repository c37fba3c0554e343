package command

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/pkg/cmd"
)

// SlashProvider describes how a command is published as a slash command.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// ComponentHandler handles buttons, select menus and modals whose custom ID
// starts with one of the command's ComponentPrefixes.
type ComponentHandler interface {
	cmd.ComponentRouter
	Component(ctx context.Context, inv *cmd.Invocation) error
}

// Definition returns the slash definition of c, walking through middleware.
func Definition(c cmd.Command) *discordgo.ApplicationCommand {
	sp, ok := cmd.Root(c).(SlashProvider)
	if !ok {
		return nil
	}
	def := sp.SlashDefinition()
	if def == nil {
		return nil
	}
	if def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}
	if def.Name == "" {
		def.Name = c.Name()
	}
	if def.Description == "" {
		def.Description = c.Description()
	}
	return def
}

// Definitions collects the slash definitions of cmds in order.
func Definitions(cmds []cmd.Command) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		if def := Definition(c); def != nil {
			out = append(out, def)
		}
	}
	return out
}
