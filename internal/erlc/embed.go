package erlc

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/keshon/warden/internal/template"
)

const buttonsPerRow = 5

// Render builds the message embed and button rows for e.
func Render(e Embed, tc template.Context, now time.Time) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	vars := template.Vars(tc)
	expand := func(s string) string { return template.Expand(s, vars) }

	color := e.Color
	if color == 0 {
		color = DefaultColor
	}
	out := &discordgo.MessageEmbed{
		Title:       orDefault(expand(e.Title), "Server Status"),
		Description: orDefault(expand(e.Description), "No description provided."),
		Color:       color,
		Timestamp:   now.Format(time.RFC3339),
	}
	if footer := strings.TrimSpace(expand(e.Footer)); footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	if e.Image != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.Image}
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   expand(f.Name),
			Value:  expand(f.Value),
			Inline: f.Inline,
		})
	}

	buttons := make([]discordgo.MessageComponent, 0, len(e.Buttons))
	for _, b := range e.Buttons {
		buttons = append(buttons, renderButton(b, expand))
	}
	return out, Rows(buttons)
}

func renderButton(b Button, expand func(string) string) discordgo.Button {
	label := expand(orDefault(b.Label, "Button"))
	if b.Action == "link" && b.Value != "" {
		return discordgo.Button{
			Label: label,
			Style: discordgo.LinkButton,
			URL:   expand(b.Value),
		}
	}
	return discordgo.Button{
		Label:    label,
		Style:    buttonStyle(b.Style),
		CustomID: ButtonID(label),
	}
}

// ButtonID builds a unique custom ID for a non-link button.
func ButtonID(label string) string {
	safe := strings.ToLower(strings.Join(strings.Fields(label), "_"))
	return "btn_" + safe + "_" + uuid.NewString()
}

// buttonStyle maps a configured style name. Link style requires a URL, so
// without a link action it falls back to secondary.
func buttonStyle(name string) discordgo.ButtonStyle {
	switch strings.ToLower(name) {
	case "primary":
		return discordgo.PrimaryButton
	case "success":
		return discordgo.SuccessButton
	case "danger":
		return discordgo.DangerButton
	default:
		return discordgo.SecondaryButton
	}
}

// Rows chunks components into action rows of at most five.
func Rows(components []discordgo.MessageComponent) []discordgo.MessageComponent {
	if len(components) == 0 {
		return nil
	}
	rows := make([]discordgo.MessageComponent, 0, (len(components)+buttonsPerRow-1)/buttonsPerRow)
	for i := 0; i < len(components); i += buttonsPerRow {
		end := min(i+buttonsPerRow, len(components))
		rows = append(rows, discordgo.ActionsRow{Components: components[i:end]})
	}
	return rows
}

// Pings mentions each role, or everyone when there are none.
func Pings(roles []string) string {
	if len(roles) == 0 {
		return "@everyone"
	}
	mentions := make([]string, len(roles))
	for i, id := range roles {
		mentions[i] = "<@&" + id + ">"
	}
	return strings.Join(mentions, " ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
