package healthcheck

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// TelegramAlerter sends probe failures to a Telegram chat.
type TelegramAlerter struct {
	bot    *bot.Bot
	chatID string
}

func NewTelegramAlerter(token, chatID string) (*TelegramAlerter, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &TelegramAlerter{bot: b, chatID: chatID}, nil
}

func (t *TelegramAlerter) Alert(ctx context.Context, message string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	})
	return err
}
