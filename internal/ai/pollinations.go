package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

const (
	pollinationsURL = "https://text.pollinations.ai/openai"
	maxChatResponse = 256 << 10
)

// PollinationsProvider talks to the keyless OpenAI-compatible endpoint.
type PollinationsProvider struct {
	url    string
	client *http.Client
}

func NewPollinationsProvider(url string) *PollinationsProvider {
	if url == "" {
		url = pollinationsURL
	}
	return &PollinationsProvider{url: url, client: &http.Client{Timeout: RequestTimeout}}
}

func (p *PollinationsProvider) Name() string { return "pollinations" }

type pollinationsRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Private     bool      `json:"private"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (p *PollinationsProvider) Generate(ctx context.Context, r Request) (string, error) {
	body, err := json.Marshal(pollinationsRequest{
		Model:       "openai",
		Messages:    r.Messages,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Private:     true,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pollinations: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChatResponse))
	if err != nil {
		return "", fmt.Errorf("pollinations: read body: %w", err)
	}
	if err := statusError("pollinations", resp.StatusCode, data); err != nil {
		return "", err
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/html" {
		return "", fmt.Errorf("pollinations: got an html page instead of json")
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("pollinations: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyReply
	}
	reply := cleanReply(out.Choices[0].Message.Content)
	if !usable(reply) {
		return "", fmt.Errorf("pollinations: %w", ErrUnusableReply)
	}
	return reply, nil
}
