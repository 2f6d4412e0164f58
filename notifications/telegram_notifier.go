package notifications

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/logger"
)

// Notifier delivers a text message to a chat.
type Notifier interface {
	Notify(chatID int64, text string) error
}

type Message struct {
	ChatID int64
	Text   string
}

type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramNotifier(bot *tgbotapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

func (n *TelegramNotifier) Notify(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message to %d: %w", chatID, err)
	}
	return nil
}

// Dispatch sends every message and returns how many were delivered.
// Failures are logged and never returned.
func Dispatch(n Notifier, msgs []Message) int {
	if n == nil {
		logger.Log.Debug("notifier not configured, skipping messages", zap.Int("count", len(msgs)))
		return 0
	}

	delivered := 0
	for _, m := range msgs {
		if err := n.Notify(m.ChatID, m.Text); err != nil {
			logger.Log.Warn("notification failed", zap.Int64("chat_id", m.ChatID), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
