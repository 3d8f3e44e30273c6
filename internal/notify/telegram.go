package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/talaqi/talaqi/internal/logger"
)

type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) MatchPromoted(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatMessage(e))
	if _, err := t.api.Send(msg); err != nil {
		logger.Error("telegram send failed", "error", err, "chatID", t.chatID, "match_id", e.MatchID)
		return err
	}

	logger.Info("match notification sent", "channel", "telegram", "match_id", e.MatchID)
	return nil
}
