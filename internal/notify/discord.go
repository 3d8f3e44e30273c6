package notify

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/talaqi/talaqi/internal/logger"
)

type Discord struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord prepares a REST-only session; no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	return &Discord{session: session, channelID: channelID}, nil
}

func (d *Discord) MatchPromoted(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := d.session.ChannelMessageSend(d.channelID, FormatMessage(e))
	if err != nil {
		logger.Error("discord send failed", "error", err, "channelID", d.channelID, "match_id", e.MatchID)
		return err
	}

	logger.Info("match notification sent", "channel", "discord", "match_id", e.MatchID)
	return nil
}
