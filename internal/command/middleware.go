package command

import (
	"context"
	"time"

	"github.com/keshon/warden/pkg/cmd"
)

// WithGuildOnly silently drops invocations outside a guild.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			dc, err := From(inv)
			if err != nil {
				return err
			}
			if dc.GuildID == "" {
				return dc.Reply.Respond(Text("❌ This command can only be used in a server."))
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithAllowedUsers lets only users accepted by allowed through. Others are
// ignored without a reply, the way privileged prefix commands behave.
func WithAllowedUsers(allowed func(userID string) bool) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			dc, err := From(inv)
			if err != nil {
				return err
			}
			if !allowed(dc.UserID()) {
				dc.Log.Debug().Str("command", c.Name()).Str("user", dc.UserID()).Msg("ignoring command from user not in ALLOWED_USERS")
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithPermission requires the member to hold perm.
func WithPermission(perm int64) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			dc, err := From(inv)
			if err != nil {
				return err
			}
			if !dc.HasPermission(perm) {
				return dc.Reply.Respond(Text(MsgForbidden))
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithCommandLog logs each execution with its duration.
func WithCommandLog() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			dc, err := From(inv)
			if err != nil {
				return err
			}
			start := time.Now()
			err = c.Run(ctx, inv)
			dc.Log.Info().
				Str("command", c.Name()).
				Str("guild", dc.GuildID).
				Str("channel", dc.ChannelID).
				Str("user", dc.UserID()).
				Dur("took", time.Since(start)).
				Bool("failed", err != nil).
				Msg("command executed")
			return err
		})
	}
}

// Common user-facing texts.
const (
	MsgForbidden = "❌ You do not have permission to use this command."
	MsgError     = "❌ There was an error running that command."
	MsgPrefixErr = "❌ There was an error executing that command."
)
