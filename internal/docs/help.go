package docs

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
)

const (
	helpColor     = 0x5865F2
	maxFieldValue = 1024
)

type helpCommand struct {
	reg    *cmd.Registry
	prefix string
}

// Help lists the registry's commands at run time, so it sees every module
// loaded after it as well.
func Help(reg *cmd.Registry, prefix string) cmd.Module {
	return cmd.Slash("misc/help", cmd.Apply(&helpCommand{reg: reg, prefix: prefix}, command.WithCommandLog()))
}

func (c *helpCommand) Name() string        { return "help" }
func (c *helpCommand) Description() string { return "Get a list of available commands" }

func (c *helpCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

func (c *helpCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	embed := &discordgo.MessageEmbed{Title: "Commands", Color: helpColor}
	for _, s := range Sections(c.reg) {
		var b strings.Builder
		for _, e := range s.Slash {
			fmt.Fprintf(&b, "`/%s` %s\n", e.Name, e.Description)
		}
		for _, e := range s.Prefix {
			fmt.Fprintf(&b, "`%s%s` %s\n", c.prefix, e.Name, e.Description)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  s.Title,
			Value: clip(b.String(), maxFieldValue),
		})
	}
	return dc.Reply.Respond(command.Response{Embeds: []*discordgo.MessageEmbed{embed}, Ephemeral: true})
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n-1], "\n")
	if cut < 0 {
		cut = n - 1
	}
	return s[:cut] + "…"
}
