// Package eventlog posts guild activity (deleted and edited messages,
// channel changes, nickname and role changes) to a configured log channel.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/state"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

const auditLookupLimit = 6

const (
	msgNeedAuditLog = "❌ I need the **View Audit Logs** permission to fetch that information. Please grant me View Audit Logs and try again."
	msgAuditDenied  = "❌ I still cannot read the audit logs. Double‐check my permissions and try again."
	msgAuditFailed  = "❌ An unexpected error occurred while fetching the audit logs."
	noContent       = "*embed/attachment*"
	unknownExecutor = "Unknown"
)

// Session is what the event log needs from Discord.
type Session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildAuditLog(guildID, userID, beforeID string, actionType, limit int, options ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

type Options struct {
	Store     *storage.Store[Settings]
	Session   Session
	State     *state.State
	Logger    zerolog.Logger
	BotUserID func() string
	Now       func() time.Time
}

// Plugin is both the gateway listener and the /log-config command.
type Plugin struct {
	store   *storage.Store[Settings]
	session Session
	state   *state.State
	log     zerolog.Logger
	botID   func() string
	now     func() time.Time

	// channel snapshots for diffing updates; the gateway only sends the new
	// version
	mu       sync.Mutex
	channels map[string]channelSnapshot
}

type channelSnapshot struct {
	name  string
	topic string
}

func New(opts Options) *Plugin {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BotUserID == nil {
		opts.BotUserID = func() string { return "" }
	}
	if opts.State == nil {
		opts.State = state.New()
	}
	return &Plugin{
		store:    opts.Store,
		session:  opts.Session,
		state:    opts.State,
		log:      opts.Logger.With().Str("component", "eventlog").Logger(),
		botID:    opts.BotUserID,
		now:      opts.Now,
		channels: make(map[string]channelSnapshot),
	}
}

func (p *Plugin) Modules() []cmd.Module {
	return []cmd.Module{
		cmd.Slash("eventlog/log-config", cmd.Apply(&configCommand{p: p}, command.WithCommandLog())),
	}
}

// target returns the log channel when key is enabled for the guild.
func (p *Plugin) target(guildID, key string) (string, bool) {
	if guildID == "" {
		return "", false
	}
	s, err := p.store.Get(guildID)
	if err != nil {
		p.log.Warn().Err(err).Str("guild", guildID).Msg("failed to read log settings")
		return "", false
	}
	if s.ChannelID == "" || !s.Enabled(key) {
		return "", false
	}
	return s.ChannelID, true
}

func (p *Plugin) send(ctx context.Context, channelID string, e *discordgo.MessageEmbed) {
	e.Timestamp = p.now().Format(time.RFC3339)
	if _, err := p.session.ChannelMessageSendEmbed(channelID, e, discordgo.WithContext(ctx)); err != nil {
		p.log.Error().Err(err).Str("channel", channelID).Str("title", e.Title).Msg("failed to post log entry")
	}
}

func (p *Plugin) notice(ctx context.Context, channelID, text string) {
	if _, err := p.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		p.log.Error().Err(err).Str("channel", channelID).Msg("failed to post audit log notice")
	}
}

// executor looks up who performed action on targetID in the last few audit
// log entries. An empty targetID takes the newest entry. Permission problems
// are reported in the log channel.
func (p *Plugin) executor(ctx context.Context, guildID, logChannel string, action discordgo.AuditLogAction, targetID string) *discordgo.User {
	perms, err := p.session.UserChannelPermissions(p.botID(), logChannel, discordgo.WithContext(ctx))
	if err == nil && perms&discordgo.PermissionViewAuditLogs == 0 {
		p.notice(ctx, logChannel, msgNeedAuditLog)
		return nil
	}

	audit, err := p.session.GuildAuditLog(guildID, "", "", int(action), auditLookupLimit, discordgo.WithContext(ctx))
	if err != nil {
		p.log.Warn().Err(err).Str("guild", guildID).Msg("audit log fetch failed")
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Message != nil && rest.Message.Code == discordgo.ErrCodeMissingPermissions {
			p.notice(ctx, logChannel, msgAuditDenied)
		} else {
			p.notice(ctx, logChannel, msgAuditFailed)
		}
		return nil
	}

	for _, entry := range audit.AuditLogEntries {
		if targetID != "" && entry.TargetID != targetID {
			continue
		}
		for _, u := range audit.Users {
			if u.ID == entry.UserID {
				return u
			}
		}
		return nil
	}
	return nil
}

func describe(u *discordgo.User) string {
	return fmt.Sprintf("%s (%s)", u.String(), u.ID)
}

func executorText(u *discordgo.User) string {
	if u == nil {
		return unknownExecutor
	}
	return describe(u)
}

func orNoContent(s string) string {
	if s == "" {
		return noContent
	}
	return s
}

func (p *Plugin) OnMessageDelete(ctx context.Context, e *discordgo.MessageDelete) {
	msg := e.BeforeDelete
	if msg != nil && msg.Author != nil && msg.Author.Bot {
		return
	}
	logCh, ok := p.target(e.GuildID, EventMessageDelete)
	if !ok {
		return
	}

	embed := &discordgo.MessageEmbed{Title: "Message Deleted"}
	if msg == nil || msg.Author == nil {
		// not in the message cache: nothing is known about it
		embed.Description = fmt.Sprintf("A message was deleted in <#%s>", e.ChannelID)
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Content", Value: "*not cached*"},
			{Name: "Deleted by", Value: unknownExecutor, Inline: true},
		}
		p.send(ctx, logCh, embed)
		return
	}

	deletedBy := msg.Author.String() + " (self)"
	if ex := p.executor(ctx, e.GuildID, logCh, discordgo.AuditLogActionMessageDelete, msg.Author.ID); ex != nil {
		deletedBy = describe(ex)
	}
	embed.Description = fmt.Sprintf("A message by %s was deleted in <#%s>", msg.Author.Mention(), e.ChannelID)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Content", Value: orNoContent(msg.Content)},
		{Name: "Author", Value: describe(msg.Author), Inline: true},
		{Name: "Deleted by", Value: deletedBy, Inline: true},
	}
	p.send(ctx, logCh, embed)
}

func (p *Plugin) OnMessageDeleteBulk(ctx context.Context, e *discordgo.MessageDeleteBulk) {
	logCh, ok := p.target(e.GuildID, EventMessageBulkDelete)
	if !ok {
		return
	}
	ex := p.executor(ctx, e.GuildID, logCh, discordgo.AuditLogActionMessageBulkDelete, "")
	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Bulk Message Delete",
		Description: fmt.Sprintf("%d messages deleted in <#%s>", len(e.Messages), e.ChannelID),
		Fields:      []*discordgo.MessageEmbedField{{Name: "Deleted by", Value: executorText(ex)}},
	})
}

func (p *Plugin) OnMessageUpdate(ctx context.Context, e *discordgo.MessageUpdate) {
	before := e.BeforeUpdate
	// partial updates (embed unfurls) carry no author; uncached messages
	// have nothing to compare against
	if before == nil || before.Author == nil || e.Author == nil || before.Author.Bot {
		return
	}
	if before.Content == e.Content {
		return
	}
	logCh, ok := p.target(e.GuildID, EventMessageEdit)
	if !ok {
		return
	}
	author := before.Author
	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Message Edited",
		Description: fmt.Sprintf("A message by %s was edited in <#%s>", author.Mention(), e.ChannelID),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Before", Value: orNoContent(before.Content)},
			{Name: "After", Value: orNoContent(e.Content)},
			{Name: "Author", Value: describe(author), Inline: true},
		},
	})
}

func (p *Plugin) remember(c *discordgo.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[c.ID] = channelSnapshot{name: c.Name, topic: c.Topic}
}

// OnGuildCreate seeds the channel snapshots used to diff updates.
func (p *Plugin) OnGuildCreate(_ context.Context, g *discordgo.GuildCreate) {
	for _, c := range g.Channels {
		p.remember(c)
	}
}

func (p *Plugin) OnChannelCreate(ctx context.Context, e *discordgo.ChannelCreate) {
	if e.GuildID == "" {
		return
	}
	p.remember(e.Channel)
	logCh, ok := p.target(e.GuildID, EventChannelCreate)
	if !ok {
		return
	}
	ex := p.executor(ctx, e.GuildID, logCh, discordgo.AuditLogActionChannelCreate, e.ID)
	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Channel Created",
		Description: fmt.Sprintf("<#%s> was created", e.ID),
		Fields:      []*discordgo.MessageEmbedField{{Name: "Created by", Value: executorText(ex)}},
	})
}

func (p *Plugin) OnChannelDelete(ctx context.Context, e *discordgo.ChannelDelete) {
	if e.GuildID == "" {
		return
	}
	p.mu.Lock()
	delete(p.channels, e.ID)
	p.mu.Unlock()

	logCh, ok := p.target(e.GuildID, EventChannelDelete)
	if !ok {
		return
	}
	ex := p.executor(ctx, e.GuildID, logCh, discordgo.AuditLogActionChannelDelete, e.ID)
	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Channel Deleted",
		Description: fmt.Sprintf("`%s` was deleted", e.Name),
		Fields:      []*discordgo.MessageEmbedField{{Name: "Deleted by", Value: executorText(ex)}},
	})
}

func (p *Plugin) OnChannelUpdate(ctx context.Context, e *discordgo.ChannelUpdate) {
	if e.GuildID == "" {
		return
	}
	p.mu.Lock()
	before, known := p.channels[e.ID]
	p.channels[e.ID] = channelSnapshot{name: e.Name, topic: e.Topic}
	p.mu.Unlock()
	if !known {
		return
	}

	var changes []string
	if before.name != e.Name {
		changes = append(changes, fmt.Sprintf("Name: `%s` → `%s`", before.name, e.Name))
	}
	if before.topic != e.Topic {
		changes = append(changes, fmt.Sprintf("Topic: `%s` → `%s`", before.topic, e.Topic))
	}
	if len(changes) == 0 {
		return
	}
	logCh, ok := p.target(e.GuildID, EventChannelUpdate)
	if !ok {
		return
	}
	ex := p.executor(ctx, e.GuildID, logCh, discordgo.AuditLogActionChannelUpdate, e.ID)
	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Channel Updated",
		Description: fmt.Sprintf("<#%s>", e.ID),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Changes", Value: strings.Join(changes, "\n")},
			{Name: "Updated by", Value: executorText(ex)},
		},
	})
}

func (p *Plugin) OnGuildMemberUpdate(ctx context.Context, e *discordgo.GuildMemberUpdate) {
	before := e.BeforeUpdate
	if before == nil || e.Member == nil || e.User == nil {
		return
	}
	if before.Nick != e.Nick {
		p.nicknameChanged(ctx, before, e.Member)
	}
	p.rolesChanged(ctx, before, e.Member)
}

func (p *Plugin) nicknameChanged(ctx context.Context, before, after *discordgo.Member) {
	logCh, ok := p.target(after.GuildID, EventNicknameChange)
	if !ok {
		return
	}
	name := func(m *discordgo.Member) string {
		if m.Nick != "" {
			return m.Nick
		}
		return after.User.Username
	}
	ex := p.executor(ctx, after.GuildID, logCh, discordgo.AuditLogActionMemberUpdate, after.User.ID)
	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Nickname Changed",
		Description: after.User.Mention() + " had their nickname updated",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Before", Value: name(before)},
			{Name: "After", Value: name(after)},
			{Name: "Changed by", Value: executorText(ex)},
		},
	})
}

func (p *Plugin) rolesChanged(ctx context.Context, before, after *discordgo.Member) {
	added := missing(after.Roles, before.Roles)
	removed := missing(before.Roles, after.Roles)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	logCh, ok := p.target(after.GuildID, EventMemberRoleUpdate)
	if !ok {
		return
	}

	names := p.roleNames(ctx, after.GuildID)
	var fields []*discordgo.MessageEmbedField
	if len(added) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Roles Added", Value: joinRoles(added, names)})
	}
	if len(removed) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Roles Removed", Value: joinRoles(removed, names)})
	}
	ex := p.executor(ctx, after.GuildID, logCh, discordgo.AuditLogActionMemberRoleUpdate, after.User.ID)
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Changed by", Value: executorText(ex)})

	p.send(ctx, logCh, &discordgo.MessageEmbed{
		Title:       "Member Roles Updated",
		Description: after.User.Mention(),
		Fields:      fields,
	})
}

func (p *Plugin) roleNames(ctx context.Context, guildID string) map[string]string {
	roles, err := p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		p.log.Warn().Err(err).Str("guild", guildID).Msg("failed to list roles")
		return nil
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	return names
}

// missing returns the IDs in a that are not in b.
func missing(a, b []string) []string {
	seen := make(map[string]bool, len(b))
	for _, id := range b {
		seen[id] = true
	}
	var out []string
	for _, id := range a {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func joinRoles(ids []string, names map[string]string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if n, ok := names[id]; ok {
			out[i] = n
		} else {
			out[i] = "<@&" + id + ">"
		}
	}
	return strings.Join(out, ", ")
}
