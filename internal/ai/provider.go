// Package ai answers prompts through a chat completion provider and
// generates images through Stability AI.
package ai

import (
	"context"
	"errors"
	"time"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// RequestTimeout bounds one chat completion.
const RequestTimeout = 60 * time.Second

var ErrEmptyReply = errors.New("ai: empty reply")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

type ProviderOptions struct {
	OpenAIKey   string
	OpenAIModel string
	// BaseURL overrides the endpoint of whichever provider is chosen.
	BaseURL string
}

// NewProvider returns OpenAI when a key is configured, otherwise the keyless
// Pollinations endpoint.
func NewProvider(opts ProviderOptions) Provider {
	if opts.OpenAIKey != "" {
		return NewOpenAIProvider(opts.OpenAIKey, opts.OpenAIModel, opts.BaseURL)
	}
	return NewPollinationsProvider(opts.BaseURL)
}
