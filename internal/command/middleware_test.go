package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/warden/internal/command"
	"github.com/keshon/warden/internal/command/commandtest"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCommand struct {
	runs int
	err  error
}

func (c *countingCommand) Name() string        { return "probe" }
func (c *countingCommand) Description() string { return "counts runs" }
func (c *countingCommand) Run(context.Context, *cmd.Invocation) error {
	c.runs++
	return c.err
}

func TestWithPermission(t *testing.T) {
	inner := &countingCommand{}
	wrapped := cmd.Apply(inner, command.WithPermission(discordgo.PermissionManageServer))

	inv, rec := commandtest.Slash("g1", commandtest.Member("u1", 0), "probe")
	require.NoError(t, wrapped.Run(context.Background(), inv))
	assert.Equal(t, 0, inner.runs)
	assert.Equal(t, command.MsgForbidden, rec.Last().Response.Content)
	assert.True(t, rec.Last().Response.Ephemeral)

	inv, _ = commandtest.Slash("g1", commandtest.Member("u1", discordgo.PermissionManageServer), "probe")
	require.NoError(t, wrapped.Run(context.Background(), inv))
	assert.Equal(t, 1, inner.runs)

	inv, _ = commandtest.Slash("g1", commandtest.Member("u1", discordgo.PermissionAdministrator), "probe")
	require.NoError(t, wrapped.Run(context.Background(), inv))
	assert.Equal(t, 2, inner.runs)
}

func TestWithAllowedUsers(t *testing.T) {
	inner := &countingCommand{}
	wrapped := cmd.Apply(inner, command.WithAllowedUsers(func(id string) bool { return id == "boss" }))

	inv, rec := commandtest.Prefix("g1", "nobody")
	require.NoError(t, wrapped.Run(context.Background(), inv))
	assert.Equal(t, 0, inner.runs)
	assert.Empty(t, rec.Calls())

	inv, _ = commandtest.Prefix("g1", "boss")
	require.NoError(t, wrapped.Run(context.Background(), inv))
	assert.Equal(t, 1, inner.runs)
}

func TestWithGuildOnly(t *testing.T) {
	inner := &countingCommand{}
	wrapped := cmd.Apply(inner, command.WithGuildOnly())

	inv, rec := commandtest.Slash("", commandtest.Member("u1", 0), "probe")
	require.NoError(t, wrapped.Run(context.Background(), inv))
	assert.Equal(t, 0, inner.runs)
	assert.Len(t, rec.Visible(), 1)
}

func TestWithCommandLogPassesErrorThrough(t *testing.T) {
	boom := errors.New("boom")
	inner := &countingCommand{err: boom}
	wrapped := cmd.Apply(inner, command.WithCommandLog())

	inv, _ := commandtest.Slash("g1", commandtest.Member("u1", 0), "probe")
	assert.ErrorIs(t, wrapped.Run(context.Background(), inv), boom)
	assert.Same(t, inner, cmd.Root(wrapped))
}

func TestMiddlewareRejectsForeignInvocation(t *testing.T) {
	wrapped := cmd.Apply(&countingCommand{}, command.WithGuildOnly())
	err := wrapped.Run(context.Background(), &cmd.Invocation{Data: "not a context"})
	assert.ErrorIs(t, err, command.ErrNoContext)
}

func TestContextHelpers(t *testing.T) {
	inv, _ := commandtest.Slash("g1", commandtest.Member("u1", 0, "r1"), "music",
		commandtest.Sub("play", commandtest.Opt("query", "lofi")))
	dc, err := command.From(inv)
	require.NoError(t, err)

	assert.Equal(t, "play", dc.Subcommand())
	assert.Equal(t, "lofi", dc.StringOption("query"))
	assert.Equal(t, "", dc.StringOption("missing"))
	assert.True(t, dc.HasAnyRole([]string{"r0", "r1"}))
	assert.False(t, dc.HasAnyRole(nil))

	inv, _ = commandtest.Modal("g1", commandtest.Member("u1", 0), "erlc_api_config", map[string]string{"api_key": "  k  "})
	dc, err = command.From(inv)
	require.NoError(t, err)
	assert.Equal(t, "erlc_api_config", dc.CustomID())
	assert.Equal(t, "k", dc.ModalValue("api_key"))
}
