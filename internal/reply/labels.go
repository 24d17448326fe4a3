package reply

import "github.com/ivanoskov/expense_bot/internal/model"

// Тексты команд, которые отправляют кнопки быстрых ответов
const (
	CmdHelp          = "Помощь"
	CmdRefresh       = "Обновить"
	CmdSummary       = "Итоги"
	CmdBreakdown     = "Структура"
	CmdDelete        = "Удалить"
	CmdModify        = "Изменить"
	CmdCancel        = "Отмена"
	CmdConfirmDelete = "Подтвердить удаление"
)

// Названия редактируемых полей
const (
	LabelCategory      = "Категория"
	LabelPaymentMethod = "Способ оплаты"
	LabelAmount        = "Сумма"
	LabelDescription   = "Описание"
)

// Ограничения списка вариантов
const (
	MaxOptions     = 12
	MaxLabelLength = 20
)

// FieldLabel название поля для пользователя
func FieldLabel(f model.Field) string {
	switch f {
	case model.FieldCategory:
		return LabelCategory
	case model.FieldPaymentMethod:
		return LabelPaymentMethod
	case model.FieldAmount:
		return LabelAmount
	case model.FieldDescription:
		return LabelDescription
	default:
		return ""
	}
}

// ParseField распознает название поля, выбранное пользователем
func ParseField(text string) (model.Field, bool) {
	switch text {
	case LabelCategory:
		return model.FieldCategory, true
	case LabelPaymentMethod:
		return model.FieldPaymentMethod, true
	case LabelAmount:
		return model.FieldAmount, true
	case LabelDescription:
		return model.FieldDescription, true
	default:
		return 0, false
	}
}

// plural выбирает форму слова для числа: 1 запись, 2 записи, 5 записей
func plural(n int, one, few, many string) string {
	n %= 100
	if n >= 11 && n <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	default:
		return many
	}
}

func records(n int) string {
	return plural(n, "запись", "записи", "записей")
}
