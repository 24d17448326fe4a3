package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/expense_bot/internal/dispatcher"
	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/reply"
)

// ProcessUpdate обрабатывает одно обновление. Ошибки и паники не выходят наружу:
// пользователь получает общий ответ об ошибке.
func (b *Bot) ProcessUpdate(ctx context.Context, update tgbotapi.Update) {
	in, chat, ok := toInbound(update)
	if !ok {
		return
	}

	logger := b.logger.WithFields(
		logging.Field{Key: logging.FieldUpdateID, Value: update.UpdateID},
		logging.Field{Key: logging.FieldChatID, Value: chat},
	)

	if update.CallbackQuery != nil {
		// Убираем индикатор загрузки на кнопке
		if _, err := b.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			logger.WithError(err).Debug("Failed to answer callback")
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			b.metrics.Panics.Inc()
			logger.Error("Panic while handling update",
				logging.Field{Key: "panic", Value: fmt.Sprint(rec)},
				logging.Field{Key: "stack", Value: string(debug.Stack())})
			if err := b.send(chat, reply.InternalError()); err != nil {
				logger.WithError(err).Error("Failed to send error reply")
			}
		}
	}()

	r := b.handler.Handle(ctx, in)
	if err := b.send(chat, r); err != nil {
		logger.WithError(err).Error("Failed to send reply")
	}
}

// toInbound извлекает из обновления сообщение пользователя и чат для ответа
func toInbound(update tgbotapi.Update) (dispatcher.Inbound, int64, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return dispatcher.Inbound{}, 0, false
		}
		in := dispatcher.Inbound{Text: cb.Data}
		if cb.From != nil {
			in.UserID = cb.From.ID
		}
		return in, cb.Message.Chat.ID, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return dispatcher.Inbound{}, 0, false
	}

	in := dispatcher.Inbound{Text: msg.Text}
	if msg.From != nil {
		in.UserID = msg.From.ID
	}

	switch {
	case len(msg.Photo) > 0:
		in.Image = &dispatcher.ImageRef{FileID: largestPhoto(msg.Photo).FileID, MIMEType: "image/jpeg"}
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		in.Image = &dispatcher.ImageRef{FileID: msg.Document.FileID, MIMEType: msg.Document.MimeType}
	case msg.Text == "":
		// Стикеры, голосовые и прочее без текста
		return dispatcher.Inbound{}, 0, false
	}

	return in, msg.Chat.ID, true
}

func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

func chatID(update tgbotapi.Update) int64 {
	_, chat, _ := toInbound(update)
	return chat
}
