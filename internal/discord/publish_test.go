package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	appID, guildID string
	got            []*discordgo.ApplicationCommand
	err            error
}

func (f *fakePublisher) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.appID, f.guildID, f.got = appID, guildID, cmds
	if f.err != nil {
		return nil, f.err
	}
	return cmds, nil
}

type slashOnly struct{ funcCommand }

func (s *slashOnly) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{}
}

func noop(context.Context, *cmd.Invocation) error { return nil }

func TestPublishBulkOverwritesGlobally(t *testing.T) {
	reg := cmd.NewRegistry()
	require.NoError(t, reg.Load(
		cmd.Slash("b", &slashOnly{funcCommand{name: "ssu", run: noop}}),
		cmd.Slash("a", &slashOnly{funcCommand{name: "boost", run: noop}}),
		cmd.Slash("c", &funcCommand{name: "hidden", run: noop}),
		cmd.Prefix("d", &funcCommand{name: "skullfy", run: noop}),
	))

	api := &fakePublisher{}
	n, err := Publish(api, "app", reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "app", api.appID)
	assert.Empty(t, api.guildID)
	require.Len(t, api.got, 2)
	assert.Equal(t, "boost", api.got[0].Name)
	assert.Equal(t, discordgo.ChatApplicationCommand, api.got[0].Type)
	assert.Equal(t, "ssu", api.got[1].Description)
}

func TestPublishReturnsError(t *testing.T) {
	api := &fakePublisher{err: errors.New("429")}
	_, err := Publish(api, "app", cmd.NewRegistry())
	assert.Error(t, err)
}
