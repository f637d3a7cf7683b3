package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/h1v3-io/pulse/pkg/protocol"
)

// TelegramConfig holds Telegram notifier configuration.
type TelegramConfig struct {
	Token    string // Bot token from @BotFather
	ChatID   int64  // Chat that receives alerts
	Endpoint string // Optional: API endpoint format, defaults to tgbotapi.APIEndpoint
}

// Telegram sends alerts through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authorizes the bot (one getMe call) and returns a notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram: chat_id is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Notify sends text as a plain message. The Bot API client has no context
// support, so ctx is only checked before sending.
func (t *Telegram) Notify(ctx context.Context, _ protocol.Event, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
