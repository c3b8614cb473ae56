// Package telegram содержит webhook-обработчик и клиент отправки
// сообщений Telegram Bot API.
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender отправляет текстовое сообщение в чат Telegram.
type Sender interface {
	Send(chatID int64, text string) error
}

// BotSender реализует Sender поверх tgbotapi.BotAPI.
type BotSender struct {
	api *tgbotapi.BotAPI
}

// NewBotSender создаёт клиента Bot API по токену бота.
func NewBotSender(token string) (*BotSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return &BotSender{api: api}, nil
}

// Send отправляет сообщение в указанный чат.
func (s *BotSender) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// WebhookPath возвращает путь webhook, содержащий токен бота: посторонний
// не знает токена и не может слать поддельные обновления.
func WebhookPath(token string) string {
	return "/telegram/webhook/" + token
}
