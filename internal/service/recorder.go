// recorder.go записывает взаимодействия: входящее сообщение,
// сгенерированный ответ и начисление за сообщение.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/chatearn-system/internal/model"
)

// fallbackReply отправляется, если генератор ответов упал.
// Пользователь всё равно получает ответ и начисление.
const fallbackReply = "I apologize, but I encountered an issue processing your message. " +
	"However, I'm still here to help! Could you please rephrase your question?"

// RecordInteraction обрабатывает одно входящее сообщение: генерирует
// ответ, начисляет фиксированную ставку за сообщение и сохраняет запись
// взаимодействия.
//
// Пустое сообщение отклоняется до любых побочных эффектов. Если
// начисление не прошло — изменений нет, ошибка чистая. Если начисление
// прошло, а запись не сохранилась, возвращается ErrPartialRecord:
// деньги уже начислены, слепой повтор начислит их второй раз.
func (s *Service) RecordInteraction(ctx context.Context, accountID int64, message string, platform model.Platform) (*model.ChatEvent, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	reply := s.generateReply(trimmed)

	tx, err := s.Credit(ctx, accountID, s.rates.ChatRate, model.TxReasonChatCredit)
	if err != nil {
		return nil, err
	}

	ev := &model.ChatEvent{
		InteractionID: uuid.New(),
		AccountID:     accountID,
		Message:       trimmed,
		Reply:         reply,
		Platform:      platform,
		Earned:        tx.Amount,
	}

	saved, err := s.repo.InsertChatEvent(ctx, ev)
	if err != nil {
		// событие возвращается вместе с ошибкой: начисление и ответ
		// состоялись, вызывающая сторона может показать их пользователю
		return ev, fmt.Errorf("%w: %s", ErrPartialRecord, err)
	}

	return saved, nil
}

// generateReply вызывает генератор ответов, подменяя панику запасным
// ответом: сбой генератора не должен отменять начисление.
func (s *Service) generateReply(message string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			reply = fallbackReply
		}
	}()

	reply = s.responder.Generate(message)
	if strings.TrimSpace(reply) == "" {
		reply = fallbackReply
	}
	return reply
}
