// Package notify tells the messaging layer about newly promoted matches.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Event describes one promoted match.
type Event struct {
	MatchID      string
	LostItemID   string
	FoundItemID  string
	LostOwnerID  string
	FoundOwnerID string
	LostTitle    string
	FoundTitle   string
	Category     string
	Score        float64
}

type Notifier interface {
	MatchPromoted(ctx context.Context, e Event) error
}

type Config struct {
	TelegramToken    string
	TelegramChatID   int64
	DiscordToken     string
	DiscordChannelID string
}

// New builds a notifier for every configured channel. It returns nil when
// nothing is configured.
func New(cfg Config) (Notifier, error) {
	var notifiers Multi

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		t, err := NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		notifiers = append(notifiers, t)
	}

	if cfg.DiscordToken != "" && cfg.DiscordChannelID != "" {
		d, err := NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		notifiers = append(notifiers, d)
	}

	switch len(notifiers) {
	case 0:
		return nil, nil
	case 1:
		return notifiers[0], nil
	default:
		return notifiers, nil
	}
}

// Multi fans an event out to every notifier. One failing channel does not
// stop the others.
type Multi []Notifier

func (m Multi) MatchPromoted(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.MatchPromoted(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatMessage renders the text sent to chat channels.
func FormatMessage(e Event) string {
	var sb strings.Builder

	sb.WriteString("Possible match found")
	if e.Category != "" {
		fmt.Fprintf(&sb, " (%s)", e.Category)
	}
	fmt.Fprintf(&sb, "\nscore: %.0f%%\n", e.Score*100)
	fmt.Fprintf(&sb, "lost: %s [%s] owner %s\n", orDash(e.LostTitle), e.LostItemID, e.LostOwnerID)
	fmt.Fprintf(&sb, "found: %s [%s] owner %s\n", orDash(e.FoundTitle), e.FoundItemID, e.FoundOwnerID)
	fmt.Fprintf(&sb, "match: %s", e.MatchID)

	return sb.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
