package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	stabilityURL     = "https://api.stability.ai"
	ImageTimeout     = 120 * time.Second
	engineTypeImage  = "PICTURE"
	generationSteps  = 30
	generationCFG    = 7
	smallImageSide   = 512
	xlImageSide      = 1024
	maxImageResponse = 32 << 20
)

var (
	ErrNoEngine = errors.New("stability: no picture engines available")
	ErrNoImage  = errors.New("stability: no image data returned")
)

// Stability generates images with the Stability AI v1 REST API.
type Stability struct {
	key     string
	baseURL string
	client  *http.Client
}

func NewStability(key, baseURL string) *Stability {
	if baseURL == "" {
		baseURL = stabilityURL
	}
	return &Stability{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: ImageTimeout},
	}
}

func (s *Stability) Configured() bool { return s != nil && s.key != "" }

type engine struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type generationRequest struct {
	Steps       int          `json:"steps"`
	CFGScale    float64      `json:"cfg_scale"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Samples     int          `json:"samples"`
	TextPrompts []textPrompt `json:"text_prompts"`
}

type generationResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

func (s *Stability) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageResponse))
	if err != nil {
		return err
	}
	if err := statusError("stability", resp.StatusCode, data); err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Engine returns the first picture engine.
func (s *Stability) Engine(ctx context.Context) (string, error) {
	var engines []engine
	if err := s.do(ctx, http.MethodGet, "/v1/engines/list", nil, &engines); err != nil {
		return "", err
	}
	for _, e := range engines {
		if e.Type == engineTypeImage {
			return e.ID, nil
		}
	}
	return "", ErrNoEngine
}

// Imagine renders prompt into a PNG. XL engines render at 1024x1024,
// others at 512x512.
func (s *Stability) Imagine(ctx context.Context, prompt string) ([]byte, error) {
	id, err := s.Engine(ctx)
	if err != nil {
		return nil, err
	}
	side := smallImageSide
	if strings.Contains(id, "xl") {
		side = xlImageSide
	}

	var out generationResponse
	err = s.do(ctx, http.MethodPost, "/v1/generation/"+id+"/text-to-image", generationRequest{
		Steps:       generationSteps,
		CFGScale:    generationCFG,
		Width:       side,
		Height:      side,
		Samples:     1,
		TextPrompts: []textPrompt{{Text: prompt, Weight: 1}},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Artifacts) == 0 || out.Artifacts[0].Base64 == "" {
		return nil, ErrNoImage
	}
	return base64.StdEncoding.DecodeString(out.Artifacts[0].Base64)
}
