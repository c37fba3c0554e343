package erlc

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/command/commandtest"
	"github.com/keshon/warden/internal/poller"
	"github.com/keshon/warden/internal/prc"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/internal/template"
	"github.com/keshon/warden/pkg/jobmgr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    int
	server   *prc.Server
	players  []prc.Player
	err      error
	cmdErr   error
	commands []string
}

func (f *fakeAPI) hit() (*prc.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.server, f.err
}

func (f *fakeAPI) Server(context.Context, string) (*prc.Server, error) { return f.hit() }

func (f *fakeAPI) Players(context.Context, string) ([]prc.Player, error) {
	_, err := f.hit()
	return f.players, err
}

func (f *fakeAPI) Command(_ context.Context, _ string, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.commands = append(f.commands, line)
	return f.cmdErr
}

func (f *fakeAPI) Snapshot(context.Context, string) (*prc.Server, []prc.Player, error) {
	s, err := f.hit()
	return s, f.players, err
}

func (f *fakeAPI) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAPI) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type sentMessage struct {
	channel string
	msg     *discordgo.MessageSend
}

type fakeSession struct {
	mu         sync.Mutex
	webhooks   []*discordgo.WebhookParams
	webhookErr error
	sends      []sentMessage
	edits      []*discordgo.MessageEdit
	channels   []*discordgo.Channel
	perms      map[string]int64
}

func (f *fakeSession) WebhookExecute(_, _ string, _ bool, p *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	f.webhooks = append(f.webhooks, p)
	return &discordgo.Message{ID: "wh"}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(ch string, m *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{ch, m})
	return &discordgo.Message{ID: "s1", ChannelID: ch}, nil
}

func (f *fakeSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID}, nil
}

func (f *fakeSession) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return f.channels, nil
}

func (f *fakeSession) UserChannelPermissions(_, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	return f.perms[channelID], nil
}

func (f *fakeSession) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

type counterGauge struct{ n atomic.Int64 }

func (g *counterGauge) Inc() { g.n.Add(1) }
func (g *counterGauge) Dec() { g.n.Add(-1) }

type harness struct {
	p       *Plugin
	api     *fakeAPI
	session *fakeSession
	store   *storage.Store[Settings]
	jobs    *jobmgr.Manager
	clock   *poller.FakeClock
	gauge   *counterGauge
}

func newHarness(t *testing.T, seed func(*Settings)) *harness {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "erlc.json"), storage.Options[Settings]{
		Layout:  storage.Wrapped,
		Default: DefaultSettings,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	if seed != nil {
		_, err := store.Update("g1", func(s *Settings) error {
			seed(s)
			return nil
		})
		require.NoError(t, err)
	}

	h := &harness{
		api: &fakeAPI{server: &prc.Server{
			Name: "River City", CurrentPlayers: 3, MaxPlayers: 40, JoinKey: "rcrp",
		}},
		session: &fakeSession{},
		store:   store,
		jobs:    jobmgr.NewManager(context.Background(), nil),
		clock:   poller.NewFakeClock(time.Unix(1_700_000_000, 0)),
		gauge:   &counterGauge{},
	}
	t.Cleanup(func() { _ = h.jobs.StopAll(context.Background()) })

	h.p = New(Options{
		Store:             store,
		API:               h.api,
		Session:           h.session,
		Jobs:              h.jobs,
		Logger:            zerolog.Nop(),
		BotUserID:         func() string { return "bot" },
		Poll:              poller.Options{Clock: h.clock},
		AutoBoostInterval: time.Minute,
		Refreshers:        h.gauge,
		Now:               h.clock.Now,
	})
	return h
}

func withKey(s *Settings) { s.APIKey = "key" }

func admin() *discordgo.Member {
	return commandtest.Member("u1", discordgo.PermissionManageServer)
}

func TestNoticePreconditions(t *testing.T) {
	tests := []struct {
		name   string
		seed   func(*Settings)
		member *discordgo.Member
		want   string
	}{
		{"not configured", nil, admin(), msgNotConfigured},
		{"disabled", func(s *Settings) {
			withKey(s)
			s.Commands.SSU = false
		}, admin(), "❌ SSU command is disabled."},
		{"forbidden by allow-list", func(s *Settings) {
			withKey(s)
			s.CommandPermissions = []string{"staff"}
		}, commandtest.Member("u2", 0, "guest"), command.MsgForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.seed)
			inv, rec := commandtest.Slash("g1", tt.member, "ssu")

			require.NoError(t, (&noticeCommand{p: h.p, kind: KindSSU}).Run(context.Background(), inv))

			require.Len(t, rec.Visible(), 1)
			assert.Equal(t, tt.want, rec.Last().Response.Content)
			assert.True(t, rec.Last().Response.Ephemeral)
			assert.Zero(t, h.api.Calls())
		})
	}
}

func TestNoticeAllowListAcceptsRoleOrManageServer(t *testing.T) {
	for _, m := range []*discordgo.Member{
		commandtest.Member("u2", 0, "staff"),
		admin(),
	} {
		h := newHarness(t, func(s *Settings) {
			withKey(s)
			s.CommandPermissions = []string{"staff"}
		})
		inv, rec := commandtest.Slash("g1", m, "boost")
		require.NoError(t, (&noticeCommand{p: h.p, kind: KindBoost}).Run(context.Background(), inv))
		assert.Equal(t, "defer", rec.Calls()[0].Op)
		assert.Equal(t, 1, h.api.Calls())
	}
}

func TestSSUPostsAndRefreshes(t *testing.T) {
	h := newHarness(t, func(s *Settings) {
		withKey(s)
		s.SSURoles = []string{"r1", "r2"}
	})
	inv, rec := commandtest.Slash("g1", admin(), "ssu")

	require.NoError(t, (&noticeCommand{p: h.p, kind: KindSSU}).Run(context.Background(), inv))

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "defer", calls[0].Op)
	assert.Equal(t, "edit", calls[1].Op)
	resp := calls[1].Response
	assert.Equal(t, "<@&r1> <@&r2>", resp.Content)
	require.Len(t, resp.Embeds, 1)
	assert.Equal(t, "Server Startup Required", resp.Embeds[0].Title)
	assert.Contains(t, resp.Embeds[0].Description, "**River City**")
	assert.Contains(t, resp.Embeds[0].Description, "3/40")
	require.Len(t, resp.Components, 1)

	job := "erlc-refresh:g1:m1"
	require.True(t, h.jobs.Running(job))
	require.Eventually(t, func() bool { return h.clock.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), h.gauge.n.Load())

	h.api.server = &prc.Server{Name: "River City", CurrentPlayers: 12, MaxPlayers: 40}
	h.clock.Advance(poller.DefaultInterval)
	require.Eventually(t, func() bool { return h.session.editCount() == 1 }, time.Second, time.Millisecond)

	edit := h.session.edits[0]
	assert.Equal(t, "m1", edit.ID)
	assert.Equal(t, "c1", edit.Channel)
	assert.Equal(t, "<@&r1> <@&r2>", *edit.Content)
	assert.Contains(t, (*edit.Embeds)[0].Description, "12/40")

	// a failed fetch ends the refresher
	require.Eventually(t, func() bool { return h.clock.Waiters() == 1 }, time.Second, time.Millisecond)
	h.api.fail(&prc.APIError{Endpoint: "/server", Status: http.StatusInternalServerError})
	h.clock.Advance(poller.DefaultInterval)
	require.Eventually(t, func() bool { return !h.jobs.Running(job) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.gauge.n.Load() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.session.editCount())
}

func TestNoticeFetchFailure(t *testing.T) {
	h := newHarness(t, withKey)
	h.api.err = &prc.APIError{Endpoint: "/server", Status: http.StatusUnauthorized}
	inv, rec := commandtest.Slash("g1", admin(), "ssu")

	require.NoError(t, (&noticeCommand{p: h.p, kind: KindSSU}).Run(context.Background(), inv))
	assert.Equal(t, msgFetchFailed, rec.Last().Response.Content)
	assert.Empty(t, h.jobs.List())
}

func TestNoticeViaWebhookSkipsRefresher(t *testing.T) {
	h := newHarness(t, func(s *Settings) {
		withKey(s)
		s.EmbedsConfig.Boost.Webhook = "https://discord.com/api/webhooks/1/tok"
	})
	inv, rec := commandtest.Slash("g1", admin(), "boost")

	require.NoError(t, (&noticeCommand{p: h.p, kind: KindBoost}).Run(context.Background(), inv))

	require.Len(t, h.session.webhooks, 1)
	assert.Equal(t, "@everyone", h.session.webhooks[0].Content)
	assert.Equal(t, "Server Boost Needed", h.session.webhooks[0].Embeds[0].Title)
	assert.Equal(t, msgSentWebhook, rec.Last().Response.Content)
	assert.Empty(t, h.jobs.List())
}

func TestNoticeWebhookFailureFallsBack(t *testing.T) {
	h := newHarness(t, func(s *Settings) {
		withKey(s)
		s.EmbedsConfig.SSU.Webhook = "https://discord.com/api/webhooks/1/tok"
	})
	h.session.webhookErr = errors.New("unknown webhook")
	inv, rec := commandtest.Slash("g1", admin(), "ssu")

	require.NoError(t, (&noticeCommand{p: h.p, kind: KindSSU}).Run(context.Background(), inv))

	assert.Equal(t, "@everyone", rec.Last().Response.Content)
	require.Len(t, rec.Last().Response.Embeds, 1)
	assert.True(t, h.jobs.Running("erlc-refresh:g1:m1"))
}

func TestStatusSkipsAllowListAndListsPlayers(t *testing.T) {
	h := newHarness(t, func(s *Settings) {
		withKey(s)
		s.CommandPermissions = []string{"staff"}
		s.EmbedsConfig.Status.Description = "{player-count} online\n{player-list}"
	})
	h.api.players = []prc.Player{{Player: "Ava:1", Permission: "Server Administrator", Team: "Police"}}
	inv, rec := commandtest.Slash("g1", commandtest.Member("u2", 0), "erlc-status")

	require.NoError(t, (&statusCommand{p: h.p}).Run(context.Background(), inv))

	resp := rec.Last().Response
	assert.Equal(t, "@everyone", resp.Content, "status pings everyone, never the notice roles")
	assert.Equal(t, "📊 River City - Server Status", resp.Embeds[0].Title)
	assert.Equal(t, "1 online\n**Ava** - Administrator (Police)", resp.Embeds[0].Description)
	assert.Empty(t, h.jobs.List())
}

func TestStatusDisabled(t *testing.T) {
	h := newHarness(t, func(s *Settings) {
		withKey(s)
		s.Commands.Status = false
	})
	inv, rec := commandtest.Slash("g1", admin(), "erlc-status")
	require.NoError(t, (&statusCommand{p: h.p}).Run(context.Background(), inv))
	assert.Equal(t, "❌ Status command is disabled.", rec.Last().Response.Content)
	assert.Zero(t, h.api.Calls())
}

func TestServerCommandRequiresColon(t *testing.T) {
	h := newHarness(t, withKey)
	inv, rec := commandtest.Slash("g1", admin(), "command", commandtest.Opt("cmd", "h hello"))

	require.NoError(t, (&serverCommand{p: h.p}).Run(context.Background(), inv))
	assert.Equal(t, msgBadPrefix, rec.Last().Response.Content)
	assert.Zero(t, h.api.Calls())
}

func TestServerCommandResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		color    int
		solution string
	}{
		{"ok", nil, 0x00FF00, ""},
		{"bad key", &prc.APIError{Endpoint: "/server/command", Status: http.StatusUnauthorized}, 0xFF0000, "/erlc-config"},
		{"bad syntax", &prc.APIError{Endpoint: "/server/command", Status: http.StatusBadRequest}, 0xFF0000, "should start with `:`"},
		{"network", errors.New("dial tcp: timeout"), 0xFF0000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withKey)
			h.api.cmdErr = tt.err
			inv, rec := commandtest.Slash("g1", admin(), "command", commandtest.Opt("cmd", ":h hello"))

			require.NoError(t, (&serverCommand{p: h.p}).Run(context.Background(), inv))

			calls := rec.Calls()
			require.Len(t, calls, 2)
			assert.True(t, calls[0].Response.Ephemeral, "deferred ephemerally")
			assert.Equal(t, []string{":h hello"}, h.api.commands)

			e := calls[1].Response.Embeds[0]
			assert.Equal(t, tt.color, e.Color)
			assert.Equal(t, "`:h hello`", e.Fields[0].Value)
			last := e.Fields[len(e.Fields)-1]
			if tt.solution != "" {
				assert.Equal(t, "Possible Solution", last.Name)
				assert.Contains(t, last.Value, tt.solution)
			} else {
				assert.NotEqual(t, "Possible Solution", last.Name)
			}
			if tt.err != nil {
				assert.Equal(t, "Error", e.Fields[1].Name)
			}
		})
	}
}

func TestRenderFallbacksAndButtons(t *testing.T) {
	e := Embed{Footer: "   "}
	for i := 0; i < 7; i++ {
		e.Buttons = append(e.Buttons, Button{Label: "Join Now", Style: "success"})
	}
	e.Buttons[0] = Button{Label: "Join", Action: "link", Value: "https://example.com/{join-key}"}

	out, rows := Render(e, template.Context{}, time.Unix(0, 0))

	assert.Equal(t, "Server Status", out.Title)
	assert.Equal(t, "No description provided.", out.Description)
	assert.Equal(t, DefaultColor, out.Color)
	assert.Nil(t, out.Footer)

	require.Len(t, rows, 2)
	first := rows[0].(discordgo.ActionsRow).Components
	second := rows[1].(discordgo.ActionsRow).Components
	assert.Len(t, first, 5)
	assert.Len(t, second, 2)

	link := first[0].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, link.Style)
	assert.Equal(t, "https://example.com/N/A", link.URL)

	b := first[1].(discordgo.Button)
	assert.Equal(t, discordgo.SuccessButton, b.Style)
	assert.True(t, strings.HasPrefix(b.CustomID, "btn_join_now_"))
	assert.NotEqual(t, b.CustomID, first[2].(discordgo.Button).CustomID)
}

func TestRowsLimit(t *testing.T) {
	faker := gofakeit.New(11)
	n := faker.IntRange(11, 25)
	buttons := make([]discordgo.MessageComponent, n)
	for i := range buttons {
		buttons[i] = discordgo.Button{Label: faker.Word()}
	}
	rows := Rows(buttons)
	assert.Len(t, rows, (n+4)/5)
	total := 0
	for _, r := range rows {
		c := r.(discordgo.ActionsRow).Components
		assert.LessOrEqual(t, len(c), 5)
		total += len(c)
	}
	assert.Equal(t, n, total)
	assert.Nil(t, Rows(nil))
}

func TestPings(t *testing.T) {
	assert.Equal(t, "@everyone", Pings(nil))
	assert.Equal(t, "<@&1>", Pings([]string{"1"}))
}
