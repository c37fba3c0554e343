// Package prc is a client for the Police Roleplay Community (ERLC) private
// server API. Every request is authenticated with the server key of the
// guild that issues it.
package prc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keshon/warden/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://api.policeroleplay.community/v1"
	DefaultTimeout = 10 * time.Second
)

// ErrNoKey is returned when a call is made without a server key.
var ErrNoKey = errors.New("missing server key")

type Server struct {
	Name           string  `json:"Name"`
	OwnerID        int64   `json:"OwnerId"`
	CoOwnerIDs     []int64 `json:"CoOwnerIds"`
	CurrentPlayers int     `json:"CurrentPlayers"`
	MaxPlayers     int     `json:"MaxPlayers"`
	JoinKey        string  `json:"JoinKey"`
	AccVerifiedReq string  `json:"AccVerifiedReq"`
	TeamBalance    bool    `json:"TeamBalance"`
}

type Player struct {
	// Player is "name:robloxID".
	Player     string `json:"Player"`
	Permission string `json:"Permission"`
	Callsign   string `json:"Callsign,omitempty"`
	Team       string `json:"Team,omitempty"`
}

// APIError is a non-2xx answer. Status is preserved so callers can give
// specific advice for 400 and 401.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("erlc %s: HTTP %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("erlc %s: HTTP %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *APIError) StatusCode() int { return e.Status }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// OnResponse, if set, observes every request outcome. status is 0 for
	// transport failures.
	OnResponse func(endpoint string, status int)
}

type Client struct {
	baseURL  string
	http     *http.Client
	limiters *ratelimit.Keyed
	observe  func(endpoint string, status int)
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	observe := opts.OnResponse
	if observe == nil {
		observe = func(string, int) {}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		limiters: ratelimit.NewKeyed(func() *ratelimit.AdaptiveLimiter {
			return ratelimit.NewAdaptiveLimiter(2, 0.5, 5, 0.5, 0.5)
		}),
		observe: observe,
	}
}

// Server fetches GET /server.
func (c *Client) Server(ctx context.Context, key string) (*Server, error) {
	var s Server
	if err := c.do(ctx, key, http.MethodGet, "/server", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Players fetches GET /server/players.
func (c *Client) Players(ctx context.Context, key string) ([]Player, error) {
	var ps []Player
	if err := c.do(ctx, key, http.MethodGet, "/server/players", nil, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Command runs an in-game command through POST /server/command. Both 200
// and 204 count as success.
func (c *Client) Command(ctx context.Context, key, command string) error {
	body := map[string]string{"command": command}
	return c.do(ctx, key, http.MethodPost, "/server/command", body, nil)
}

// Snapshot fetches the server and its players in parallel. A players
// failure is not fatal: the snapshot simply has no players.
func (c *Client) Snapshot(ctx context.Context, key string) (*Server, []Player, error) {
	var (
		server  *Server
		players []Player
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.Server(gctx, key)
		server = s
		return err
	})
	g.Go(func() error {
		ps, err := c.Players(gctx, key)
		if err == nil {
			players = ps
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return server, players, nil
}

func (c *Client) do(ctx context.Context, key, method, endpoint string, in, out any) error {
	if key == "" {
		return ErrNoKey
	}

	lim := c.limiters.Get(key)
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("server-key", key)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0)
		return fmt.Errorf("erlc %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(endpoint, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		lim.Observe(apiErr)
		return apiErr
	}
	lim.Observe(nil)

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
