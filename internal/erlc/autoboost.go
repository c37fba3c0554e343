package erlc

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/template"
)

const autoBoostJob = "erlc-autoboost"

// StartAutoBoost schedules the auto-boost check. It is the plugin's ready
// initializer.
func (p *Plugin) StartAutoBoost(context.Context) error {
	if p.interval <= 0 || p.jobs == nil {
		return nil
	}
	return p.jobs.StartAsync(autoBoostJob, func(ctx context.Context) error {
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				p.CheckAutoBoost(ctx)
			}
		}
	})
}

// CheckAutoBoost posts the boost notice in every guild whose boost embed is
// enabled with auto trigger and whose player count is under the threshold.
// Failures in one guild do not affect the others.
func (p *Plugin) CheckAutoBoost(ctx context.Context) {
	for _, guildID := range p.store.GuildIDs() {
		if ctx.Err() != nil {
			return
		}
		s, ok := p.store.Lookup(guildID)
		if !ok || s.APIKey == "" {
			continue
		}
		boost := s.EmbedsConfig.Boost
		if !boost.Enabled || !boost.AutoTrigger {
			continue
		}
		if err := p.autoBoost(ctx, guildID, s); err != nil {
			p.log.Warn().Err(err).Str("guild", guildID).Msg("auto boost failed")
		}
	}
}

func (p *Plugin) autoBoost(ctx context.Context, guildID string, s Settings) error {
	boost := s.EmbedsConfig.Boost
	server, err := p.api.Server(ctx, s.APIKey)
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	if server.CurrentPlayers >= boost.AutoTriggerThreshold {
		return nil
	}

	content := Pings(s.BoostRoles)
	embed, _ := Render(boost, template.Context{Server: server}, p.now())

	if boost.Webhook != "" {
		_, err := p.sink.Send(boost.Webhook, content, embed)
		if err == nil {
			p.log.Info().Str("guild", guildID).Msg("auto boost sent via webhook")
			return nil
		}
		p.log.Warn().Err(err).Str("guild", guildID).Msg("auto boost webhook failed, falling back to channel")
	}

	channelID, err := p.postableChannel(guildID)
	if err != nil {
		return err
	}
	if channelID == "" {
		return nil
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "⚡ Auto Triggered",
		Value:  fmt.Sprintf("Player count fell below %d", boost.AutoTriggerThreshold),
		Inline: true,
	})
	if _, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	p.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("auto boost sent")
	return nil
}

// postableChannel finds the first text channel where the bot can send
// messages with embeds.
func (p *Plugin) postableChannel(guildID string) (string, error) {
	channels, err := p.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}
	const need = discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks
	botID := p.botID()
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		perms, err := p.session.UserChannelPermissions(botID, ch.ID)
		if err != nil {
			continue
		}
		if perms&need == need {
			return ch.ID, nil
		}
	}
	return "", nil
}
