package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/rs/zerolog"
)

// CommandPublisher is the REST call used to publish slash commands.
type CommandPublisher interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Publish replaces the application's global slash commands with the ones in
// reg. It returns the number of commands published.
func Publish(api CommandPublisher, appID string, reg *cmd.Registry) (int, error) {
	defs := command.Definitions(reg.Commands(cmd.KindSlash))
	created, err := api.ApplicationCommandBulkOverwrite(appID, "", defs)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

// publishLogged is the ready-time variant: failures are logged and dropped.
func publishLogged(api CommandPublisher, appID string, reg *cmd.Registry, log zerolog.Logger) {
	n, err := Publish(api, appID, reg)
	if err != nil {
		log.Error().Err(err).Msg("failed to publish slash commands")
		return
	}
	log.Info().Int("count", n).Msg("slash commands published")
}
