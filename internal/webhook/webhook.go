// Package webhook delivers messages through Discord webhook URLs.
package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// ErrInvalidURL is returned for URLs that are not Discord webhook URLs.
var ErrInvalidURL = errors.New("invalid webhook url")

// Executor is the REST call used to post through a webhook.
type Executor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Parse extracts the webhook ID and token from a URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func Parse(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
}

// Valid reports whether raw parses as a webhook URL.
func Valid(raw string) bool {
	_, _, err := Parse(raw)
	return err == nil
}

// Sink posts to webhook URLs.
type Sink struct {
	api Executor
}

func NewSink(api Executor) *Sink {
	return &Sink{api: api}
}

// Send posts content and embeds to the webhook at rawURL and waits for the
// created message.
func (s *Sink) Send(rawURL, content string, embeds ...*discordgo.MessageEmbed) (*discordgo.Message, error) {
	id, token, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	msg, err := s.api.WebhookExecute(id, token, true, &discordgo.WebhookParams{
		Content: content,
		Embeds:  embeds,
	})
	if err != nil {
		return nil, fmt.Errorf("execute webhook %s: %w", id, err)
	}
	return msg, nil
}
