package eventlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/command/commandtest"
	"github.com/keshon/warden/internal/state"
	"github.com/keshon/warden/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type post struct {
	channel string
	text    string
	embed   *discordgo.MessageEmbed
}

type fakeSession struct {
	mu       sync.Mutex
	posts    []post
	audit    *discordgo.GuildAuditLog
	auditErr error
	audits   []int
	perms    int64
	roles    []*discordgo.Role
}

func (f *fakeSession) ChannelMessageSend(ch, text string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{channel: ch, text: text})
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ChannelMessageSendEmbed(ch string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{channel: ch, embed: e})
	return &discordgo.Message{}, nil
}

func (f *fakeSession) GuildAuditLog(_, _, _ string, action, limit int, _ ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, action)
	if f.auditErr != nil {
		return nil, f.auditErr
	}
	if f.audit == nil {
		return &discordgo.GuildAuditLog{}, nil
	}
	return f.audit, nil
}

func (f *fakeSession) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func (f *fakeSession) UserChannelPermissions(string, string, ...discordgo.RequestOption) (int64, error) {
	return f.perms, nil
}

type fixture struct {
	p       *Plugin
	session *fakeSession
	store   *storage.Store[Settings]
	state   *state.State
	now     time.Time
}

func newFixture(t *testing.T, s *Settings) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "logging.json"), storage.Options[Settings]{
		Layout:  storage.Wrapped,
		Default: DefaultSettings,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	if s != nil {
		require.NoError(t, store.Set("g1", *s))
	}
	f := &fixture{
		session: &fakeSession{perms: discordgo.PermissionViewAuditLogs},
		store:   store,
		state:   state.New(),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.p = New(Options{
		Store:     store,
		Session:   f.session,
		State:     f.state,
		Logger:    zerolog.Nop(),
		BotUserID: func() string { return "bot" },
		Now:       func() time.Time { return f.now },
	})
	return f
}

func all() *Settings {
	return &Settings{ChannelID: "log", EnabledEvents: append([]string(nil), EventKeys...)}
}

func user(id, name string) *discordgo.User {
	return &discordgo.User{ID: id, Username: name, Discriminator: "0"}
}

func TestMessageDeleteWithExecutor(t *testing.T) {
	f := newFixture(t, all())
	f.session.audit = &discordgo.GuildAuditLog{
		Users: []*discordgo.User{user("mod", "moderator")},
		AuditLogEntries: []*discordgo.AuditLogEntry{
			{TargetID: "other", UserID: "x"},
			{TargetID: "a1", UserID: "mod"},
		},
	}

	f.p.OnMessageDelete(context.Background(), &discordgo.MessageDelete{
		Message:      &discordgo.Message{ID: "m1", GuildID: "g1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{ID: "m1", Content: "hello", Author: user("a1", "alice")},
	})

	require.Len(t, f.session.posts, 1)
	e := f.session.posts[0].embed
	assert.Equal(t, "log", f.session.posts[0].channel)
	assert.Equal(t, "Message Deleted", e.Title)
	assert.Equal(t, "A message by <@a1> was deleted in <#c1>", e.Description)
	assert.Equal(t, "hello", e.Fields[0].Value)
	assert.Equal(t, "alice (a1)", e.Fields[1].Value)
	assert.Equal(t, "moderator (mod)", e.Fields[2].Value)
	assert.Equal(t, "2025-03-01T12:00:00Z", e.Timestamp)
	assert.Equal(t, []int{int(discordgo.AuditLogActionMessageDelete)}, f.session.audits)
}

func TestMessageDeleteSelf(t *testing.T) {
	f := newFixture(t, all())
	f.p.OnMessageDelete(context.Background(), &discordgo.MessageDelete{
		Message:      &discordgo.Message{ID: "m1", GuildID: "g1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{ID: "m1", Author: user("a1", "alice")},
	})
	e := f.session.posts[0].embed
	assert.Equal(t, noContent, e.Fields[0].Value)
	assert.Equal(t, "alice (self)", e.Fields[2].Value)
}

func TestMessageEventsSkipBots(t *testing.T) {
	f := newFixture(t, all())
	bot := &discordgo.User{ID: "b", Username: "robot", Bot: true}

	f.p.OnMessageDelete(context.Background(), &discordgo.MessageDelete{
		Message:      &discordgo.Message{GuildID: "g1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{Author: bot, Content: "x"},
	})
	f.p.OnMessageUpdate(context.Background(), &discordgo.MessageUpdate{
		Message:      &discordgo.Message{GuildID: "g1", ChannelID: "c1", Author: bot, Content: "y"},
		BeforeUpdate: &discordgo.Message{Author: bot, Content: "x"},
	})
	assert.Empty(t, f.session.posts)
}

func TestMessageEdit(t *testing.T) {
	f := newFixture(t, all())
	alice := user("a1", "alice")

	f.p.OnMessageUpdate(context.Background(), &discordgo.MessageUpdate{
		Message:      &discordgo.Message{GuildID: "g1", ChannelID: "c1", Author: alice, Content: "same"},
		BeforeUpdate: &discordgo.Message{Author: alice, Content: "same"},
	})
	assert.Empty(t, f.session.posts, "unchanged content is not an edit")

	f.p.OnMessageUpdate(context.Background(), &discordgo.MessageUpdate{
		Message:      &discordgo.Message{GuildID: "g1", ChannelID: "c1", Author: alice, Content: "after"},
		BeforeUpdate: &discordgo.Message{Author: alice, Content: "before"},
	})
	require.Len(t, f.session.posts, 1)
	e := f.session.posts[0].embed
	assert.Equal(t, "Message Edited", e.Title)
	assert.Equal(t, "before", e.Fields[0].Value)
	assert.Equal(t, "after", e.Fields[1].Value)
	assert.Empty(t, f.session.audits, "edits need no audit lookup")
}

func TestDisabledEventPostsNothing(t *testing.T) {
	f := newFixture(t, &Settings{ChannelID: "log", EnabledEvents: []string{EventChannelCreate}})
	f.p.OnMessageDeleteBulk(context.Background(), &discordgo.MessageDeleteBulk{GuildID: "g1", ChannelID: "c1", Messages: []string{"1", "2"}})
	assert.Empty(t, f.session.posts)
	assert.Empty(t, f.session.audits)

	f.p.OnChannelCreate(context.Background(), &discordgo.ChannelCreate{Channel: &discordgo.Channel{ID: "new", GuildID: "g1", Name: "general"}})
	require.Len(t, f.session.posts, 1)
	assert.Equal(t, "<#new> was created", f.session.posts[0].embed.Description)
	assert.Equal(t, "Unknown", f.session.posts[0].embed.Fields[0].Value)
}

func TestUnseenGuildCopiesDocumentDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logging.json")
	doc := `{"default":{"channelId":"fallback","enabledEvents":["messageBulkDelete"]},"guilds":{}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	store, err := storage.Open(path, storage.Options[Settings]{Layout: storage.Wrapped, Default: DefaultSettings, Logger: zerolog.Nop()})
	require.NoError(t, err)

	session := &fakeSession{perms: discordgo.PermissionViewAuditLogs}
	p := New(Options{Store: store, Session: session, Logger: zerolog.Nop()})
	p.OnMessageDeleteBulk(context.Background(), &discordgo.MessageDeleteBulk{GuildID: "new-guild", ChannelID: "c1", Messages: []string{"1", "2", "3"}})

	require.Len(t, session.posts, 1)
	assert.Equal(t, "fallback", session.posts[0].channel)
	assert.Equal(t, "3 messages deleted in <#c1>", session.posts[0].embed.Description)
}

func TestAuditPermissionNotices(t *testing.T) {
	ch := &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "c9", GuildID: "g1", Name: "old"}}

	t.Run("missing permission", func(t *testing.T) {
		f := newFixture(t, all())
		f.session.perms = discordgo.PermissionSendMessages
		f.p.OnChannelDelete(context.Background(), ch)

		require.Len(t, f.session.posts, 2)
		assert.Equal(t, msgNeedAuditLog, f.session.posts[0].text)
		assert.Equal(t, "`old` was deleted", f.session.posts[1].embed.Description)
		assert.Empty(t, f.session.audits)
	})

	t.Run("denied by api", func(t *testing.T) {
		f := newFixture(t, all())
		f.session.auditErr = &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions}}
		f.p.OnChannelDelete(context.Background(), ch)
		assert.Equal(t, msgAuditDenied, f.session.posts[0].text)
	})

	t.Run("other failure", func(t *testing.T) {
		f := newFixture(t, all())
		f.session.auditErr = errors.New("boom")
		f.p.OnChannelDelete(context.Background(), ch)
		assert.Equal(t, msgAuditFailed, f.session.posts[0].text)
	})
}

func TestChannelUpdateDiffs(t *testing.T) {
	f := newFixture(t, all())
	ctx := context.Background()

	// first sighting only seeds the snapshot
	f.p.OnChannelUpdate(ctx, &discordgo.ChannelUpdate{Channel: &discordgo.Channel{ID: "c1", GuildID: "g1", Name: "a"}})
	assert.Empty(t, f.session.posts)

	f.p.OnGuildCreate(ctx, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g1", Channels: []*discordgo.Channel{
		{ID: "c2", GuildID: "g1", Name: "rules", Topic: "be nice"},
	}}})
	f.p.OnChannelUpdate(ctx, &discordgo.ChannelUpdate{Channel: &discordgo.Channel{ID: "c2", GuildID: "g1", Name: "rules", Topic: "be nice"}})
	assert.Empty(t, f.session.posts, "no name or topic change")

	f.p.OnChannelUpdate(ctx, &discordgo.ChannelUpdate{Channel: &discordgo.Channel{ID: "c2", GuildID: "g1", Name: "rules-2", Topic: ""}})
	require.Len(t, f.session.posts, 1)
	assert.Equal(t, "Name: `rules` → `rules-2`\nTopic: `be nice` → ``", f.session.posts[0].embed.Fields[0].Value)
}

func TestMemberUpdate(t *testing.T) {
	f := newFixture(t, all())
	f.session.roles = []*discordgo.Role{{ID: "r1", Name: "Staff"}, {ID: "r2", Name: "VIP"}}
	u := user("u1", "bob")

	f.p.OnGuildMemberUpdate(context.Background(), &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "g1", User: u, Nick: "Bobby", Roles: []string{"r1", "r3"}},
		BeforeUpdate: &discordgo.Member{GuildID: "g1", User: u, Roles: []string{"r2", "r3"}},
	})

	require.Len(t, f.session.posts, 2)
	nick := f.session.posts[0].embed
	assert.Equal(t, "Nickname Changed", nick.Title)
	assert.Equal(t, "bob", nick.Fields[0].Value)
	assert.Equal(t, "Bobby", nick.Fields[1].Value)

	roles := f.session.posts[1].embed
	assert.Equal(t, "Member Roles Updated", roles.Title)
	assert.Equal(t, "Staff", roles.Fields[0].Value)
	assert.Equal(t, "Roles Removed", roles.Fields[1].Name)
	assert.Equal(t, "VIP", roles.Fields[1].Value)
	assert.Equal(t, []int{int(discordgo.AuditLogActionMemberUpdate), int(discordgo.AuditLogActionMemberRoleUpdate)}, f.session.audits)
}

func TestSettingsApply(t *testing.T) {
	s := Settings{EnabledEvents: []string{EventChannelUpdate, EventMessageEdit, EventMessageDelete}}
	s.Apply([]string{EventNicknameChange, EventMessageDelete, "bogus", EventChannelUpdate})
	assert.Equal(t, []string{EventChannelUpdate, EventMessageDelete, EventNicknameChange}, s.EnabledEvents)
}

func TestLogConfigShow(t *testing.T) {
	f := newFixture(t, &Settings{ChannelID: "log", EnabledEvents: []string{EventMessageEdit, EventChannelCreate}})
	inv, rec := commandtest.Slash("g1", commandtest.Member("u1", discordgo.PermissionManageServer), "log-config", commandtest.Sub("show"))

	require.NoError(t, (&configCommand{p: f.p}).Run(context.Background(), inv))

	e := rec.Last().Response.Embeds[0]
	assert.True(t, rec.Last().Response.Ephemeral)
	assert.Equal(t, "<#log>", e.Fields[0].Value)
	assert.Equal(t, "messageEdit, channelCreate", e.Fields[1].Value)
}

func TestLogConfigRequiresManageServer(t *testing.T) {
	f := newFixture(t, nil)
	inv, rec := commandtest.Slash("g1", commandtest.Member("u1", 0), "log-config", commandtest.Sub("show"))
	require.NoError(t, (&configCommand{p: f.p}).Run(context.Background(), inv))
	assert.Equal(t, command.MsgForbidden, rec.Last().Response.Content)
}

func TestLogConfigInteractive(t *testing.T) {
	f := newFixture(t, &Settings{ChannelID: "old", EnabledEvents: []string{EventMessageEdit}})
	admin := commandtest.Member("u1", discordgo.PermissionManageServer)
	c := &configCommand{p: f.p}
	ctx := context.Background()

	inv, rec := commandtest.Slash("g1", admin, "log-config", commandtest.Sub("interactive"))
	require.NoError(t, c.Run(ctx, inv))
	require.Len(t, rec.Last().Response.Components, 3)

	inv, rec = commandtest.Component("g1", admin, idChannel, discordgo.ChannelSelectMenuComponent, "new")
	require.NoError(t, c.Component(ctx, inv))
	assert.Equal(t, "defer-update", rec.Last().Op)

	inv, _ = commandtest.Component("g1", admin, idEvents, discordgo.SelectMenuComponent, EventChannelDelete, EventMessageEdit)
	require.NoError(t, c.Component(ctx, inv))

	// nothing is saved before confirm
	s, err := f.store.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, "old", s.ChannelID)

	inv, rec = commandtest.Component("g1", admin, idConfirm, discordgo.ButtonComponent)
	require.NoError(t, c.Component(ctx, inv))
	assert.Equal(t, msgUpdated, rec.Last().Response.Content)
	assert.Empty(t, rec.Last().Response.Components)

	s, err = f.store.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, Settings{ChannelID: "new", EnabledEvents: []string{EventMessageEdit, EventChannelDelete}}, s)

	// the draft is gone after confirm
	inv, rec = commandtest.Component("g1", admin, idCancel, discordgo.ButtonComponent)
	require.NoError(t, c.Component(ctx, inv))
	assert.Equal(t, msgTimedOut, rec.Last().Response.Content)
}

func TestLogConfigCancelKeepsSettings(t *testing.T) {
	f := newFixture(t, &Settings{ChannelID: "old", EnabledEvents: []string{}})
	admin := commandtest.Member("u1", discordgo.PermissionManageServer)
	c := &configCommand{p: f.p}
	ctx := context.Background()

	inv, _ := commandtest.Slash("g1", admin, "log-config", commandtest.Sub("interactive"))
	require.NoError(t, c.Run(ctx, inv))
	inv, _ = commandtest.Component("g1", admin, idChannel, discordgo.ChannelSelectMenuComponent)
	require.NoError(t, c.Component(ctx, inv))
	inv, rec := commandtest.Component("g1", admin, idCancel, discordgo.ButtonComponent)
	require.NoError(t, c.Component(ctx, inv))

	assert.Equal(t, msgCancelled, rec.Last().Response.Content)
	s, err := f.store.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, "old", s.ChannelID)
}
