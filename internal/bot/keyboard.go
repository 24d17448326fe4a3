package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/expense_bot/internal/reply"
)

// Ограничения Telegram
const (
	maxCallbackData = 64
	buttonsPerRow   = 2
)

// replyMarkup строит клавиатуру из быстрых ответов. Обычно это inline-кнопки
// с подписью и текстом в callback data. Если текст не помещается в callback data,
// используется обычная одноразовая клавиатура с текстом на кнопках.
func replyMarkup(quick []reply.QuickReply) interface{} {
	if len(quick) == 0 {
		return nil
	}

	for _, q := range quick {
		if len(q.Text) > maxCallbackData {
			return replyKeyboard(quick)
		}
	}
	return inlineKeyboard(quick)
}

func inlineKeyboard(quick []reply.QuickReply) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(quick); start += buttonsPerRow {
		var row []tgbotapi.InlineKeyboardButton
		for _, q := range quick[start:min(start+buttonsPerRow, len(quick))] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(q.Label, q.Text))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func replyKeyboard(quick []reply.QuickReply) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for start := 0; start < len(quick); start += buttonsPerRow {
		var row []tgbotapi.KeyboardButton
		for _, q := range quick[start:min(start+buttonsPerRow, len(quick))] {
			row = append(row, tgbotapi.NewKeyboardButton(q.Text))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(row...))
	}

	kb := tgbotapi.NewOneTimeReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}
