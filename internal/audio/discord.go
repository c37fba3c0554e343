package audio

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type voiceConn struct{ vc *discordgo.VoiceConnection }

func (c voiceConn) ChannelID() string    { return c.vc.ChannelID }
func (c voiceConn) Send() chan<- []byte { return c.vc.OpusSend }
func (c voiceConn) Close()              { c.vc.Disconnect() }

// DiscordDialer joins voice channels through s, deafened.
func DiscordDialer(s *discordgo.Session) Dialer {
	return func(_ context.Context, guildID, channelID string) (Conn, error) {
		vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
		if err != nil {
			return nil, fmt.Errorf("failed to join voice channel: %w", err)
		}
		return voiceConn{vc: vc}, nil
	}
}

// UserChannel returns the voice channel userID is in according to the
// gateway cache, or "".
func UserChannel(s *discordgo.Session) func(guildID, userID string) string {
	return func(guildID, userID string) string {
		vs, err := s.State.VoiceState(guildID, userID)
		if err != nil || vs == nil {
			return ""
		}
		return vs.ChannelID
	}
}
