package ai

import (
	"bytes"
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
)

const (
	askSystemPrompt = "You’re a helpful assistant that gives concise answers."
	askMaxTokens    = 100
	temperature     = 0.7
)

// Imager renders a prompt into PNG bytes.
type Imager interface {
	Configured() bool
	Imagine(ctx context.Context, prompt string) ([]byte, error)
}

// Modules returns /aiask, /aiprompt and /imagine.
func Modules(p Provider, img Imager) []cmd.Module {
	return []cmd.Module{
		cmd.Slash("ai/aiask", cmd.Apply(&askCommand{provider: p}, command.WithCommandLog())),
		cmd.Slash("ai/aiprompt", cmd.Apply(&promptCommand{provider: p}, command.WithCommandLog())),
		cmd.Slash("ai/imagine", cmd.Apply(&imagineCommand{imager: img, now: time.Now}, command.WithCommandLog())),
	}
}

func stringOption(name, description string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Options: []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    true,
	}}}
}

// complete defers publicly, asks the provider and edits the answer in.
func complete(ctx context.Context, dc *command.Context, p Provider, req Request, failure string) error {
	if err := dc.Reply.Defer(false); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	answer, err := p.Generate(ctx, req)
	if err != nil {
		dc.Log.Error().Err(err).Str("provider", p.Name()).Msg("completion failed")
		_, err = dc.Reply.Edit(command.Response{Content: failure})
		return err
	}
	_, err = dc.Reply.Edit(command.Response{Content: answer})
	return err
}

type askCommand struct{ provider Provider }

func (c *askCommand) Name() string        { return "aiask" }
func (c *askCommand) Description() string { return "Ask the AI a question and get a concise answer" }

func (c *askCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return stringOption("question", "Your question for the AI")
}

func (c *askCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	return complete(ctx, dc, c.provider, Request{
		Messages: []Message{
			{Role: RoleSystem, Content: askSystemPrompt},
			{Role: RoleUser, Content: dc.StringOption("question")},
		},
		MaxTokens:   askMaxTokens,
		Temperature: temperature,
	}, "❌ Sorry, I couldn’t process that right now.")
}

type promptCommand struct{ provider Provider }

func (c *promptCommand) Name() string        { return "aiprompt" }
func (c *promptCommand) Description() string { return "Ask the AI anything." }

func (c *promptCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return stringOption("prompt", "Your question or prompt")
}

func (c *promptCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	return complete(ctx, dc, c.provider, Request{
		Messages:    []Message{{Role: RoleUser, Content: dc.StringOption("prompt")}},
		Temperature: temperature,
	}, "❌ Failed to get a response from the AI.")
}

type imagineCommand struct {
	imager Imager
	now    func() time.Time
}

func (c *imagineCommand) Name() string        { return "imagine" }
func (c *imagineCommand) Description() string { return "Generate an AI image" }

func (c *imagineCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return stringOption("prompt", "Describe the image you want")
}

func (c *imagineCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := command.From(inv)
	if err != nil {
		return err
	}
	if c.imager == nil || !c.imager.Configured() {
		return dc.Reply.Respond(command.Text("❌ Image generation is not configured."))
	}
	prompt := dc.StringOption("prompt")
	if err := dc.Reply.Defer(false); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ImageTimeout)
	defer cancel()
	png, err := c.imager.Imagine(ctx, prompt)
	if err != nil {
		dc.Log.Error().Err(err).Msg("image generation failed")
		_, err = dc.Reply.Edit(command.Response{Content: "❌ Failed to generate an image. Please try again later."})
		return err
	}

	_, err = dc.Reply.Edit(command.Response{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🖼️ AI Image",
			Description: "Prompt: " + prompt,
			Image:       &discordgo.MessageEmbedImage{URL: "attachment://image.png"},
			Timestamp:   c.now().Format(time.RFC3339),
		}},
		Files: []*discordgo.File{{Name: "image.png", ContentType: "image/png", Reader: bytes.NewReader(png)}},
	})
	return err
}
