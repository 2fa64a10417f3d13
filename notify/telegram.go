package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Notifier pushes a short text to the restaurant's staff.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Sender is implemented by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts messages to one chat.
type TelegramNotifier struct {
	bot    Sender
	chatID int64
}

func NewTelegramNotifier(bot Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// DialTelegram authenticates token with the Bot API.
func DialTelegram(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "could not connect telegram bot")
	}
	return NewTelegramNotifier(api, chatID), nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrap(err, "could not send telegram message")
	}
	return nil
}
