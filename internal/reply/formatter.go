// Package reply превращает результаты команд в ответные сообщения.
// Функции пакета не имеют побочных эффектов.
package reply

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"

	"github.com/ivanoskov/expense_bot/internal/extraction"
	"github.com/ivanoskov/expense_bot/internal/model"
	"github.com/ivanoskov/expense_bot/internal/service"
)

// QuickReply кнопка быстрого ответа: подпись и отправляемый текст
type QuickReply struct {
	Label string
	Text  string
}

// Reply исходящее сообщение
type Reply struct {
	Text         string
	QuickReplies []QuickReply
	// Image необязательный PNG с графиком
	Image     []byte
	ImageName string
}

const helpHint = "Отправьте «Помощь», чтобы посмотреть примеры."

// Formatter собирает ответы; валюта задается при создании
type Formatter struct {
	money *money.Formatter
}

// NewFormatter создает форматтер для валюты с кодом ISO 4217.
// Суммы хранятся в целых единицах валюты, поэтому дробная часть не выводится.
func NewFormatter(currencyCode string) *Formatter {
	c := money.GetCurrency(currencyCode)
	if c == nil {
		c = money.GetCurrency(money.RUB)
	}
	return &Formatter{
		money: money.NewFormatter(0, c.Decimal, c.Thousand, c.Grapheme, c.Template),
	}
}

// Amount форматирует сумму с символом валюты
func (f *Formatter) Amount(n int64) string {
	return f.money.Format(n)
}

// MainMenu шесть основных команд
func MainMenu() []QuickReply {
	return []QuickReply{
		{Label: "❓ " + CmdHelp, Text: CmdHelp},
		{Label: "📊 " + CmdSummary, Text: CmdSummary},
		{Label: "🔄 " + CmdRefresh, Text: CmdRefresh},
		{Label: "🗑 " + CmdDelete, Text: CmdDelete},
		{Label: "📋 " + CmdBreakdown, Text: CmdBreakdown},
		{Label: "✏️ " + CmdModify, Text: CmdModify},
	}
}

func cancelButton() QuickReply {
	return QuickReply{Label: "❌ " + CmdCancel, Text: CmdCancel}
}

func withMenu(text string) Reply {
	return Reply{Text: text, QuickReplies: MainMenu()}
}

func plain(text string) Reply {
	return Reply{Text: text}
}

func vocabularyLists(vocab model.Vocabulary) string {
	return fmt.Sprintf("📁 Категории:\n%s\n\n💳 Способы оплаты:\n%s",
		strings.Join(vocab.Categories, ", "),
		strings.Join(vocab.PaymentMethods, ", "))
}

// Help инструкция с текущим справочником
func (f *Formatter) Help(vocab model.Vocabulary) Reply {
	return withMenu(`📖 Как пользоваться

Напишите расход обычным сообщением:
• Обед 450
• Такси 700 картой
• Продукты 1,250 наличные
• 📷 Или пришлите фото чека

✏️ «` + CmdModify + `» исправляет последние записи
🗑 «` + CmdDelete + `» удаляет последние записи
📊 «` + CmdSummary + `» итоги за последние месяцы
📋 «` + CmdBreakdown + `» расходы по категориям за месяц

` + vocabularyLists(vocab) + `

🔄 «` + CmdRefresh + `» перечитывает справочник`)
}

// VocabularyRefreshed справочник перечитан
func (f *Formatter) VocabularyRefreshed(vocab model.Vocabulary) Reply {
	return withMenu("🔄 Справочник обновлен\n\n" + vocabularyLists(vocab))
}

// Registered подтверждение записи одного или нескольких расходов
func (f *Formatter) Registered(expenses []model.Expense) Reply {
	if len(expenses) == 1 {
		e := expenses[0]
		return withMenu(strings.Join([]string{
			"✅ Записано",
			"",
			"📝 " + e.Description,
			"💰 " + f.Amount(e.Amount),
			"📁 " + e.Category,
			"💳 " + e.PaymentMethod,
		}, "\n"))
	}

	lines := []string{fmt.Sprintf("✅ Записано %d %s", len(expenses), records(len(expenses))), ""}
	var total int64
	for _, e := range expenses {
		lines = append(lines, fmt.Sprintf("• %s: %s (%s)", e.Description, f.Amount(e.Amount), e.Category))
		total += e.Amount
	}
	lines = append(lines, "", "💰 Итого: "+f.Amount(total))
	return withMenu(strings.Join(lines, "\n"))
}

// Summary итоги по месяцам
func (f *Formatter) Summary(s *service.Summary) Reply {
	lines := []string{fmt.Sprintf("📊 Расходы за %d %s", len(s.Months), plural(len(s.Months), "месяц", "месяца", "месяцев")), ""}
	for _, m := range s.Months {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Label, f.Amount(m.Total)))
	}
	lines = append(lines, "", "💰 Всего: "+f.Amount(s.Total))
	return withMenu(strings.Join(lines, "\n"))
}

// Breakdown структура расходов месяца
func (f *Formatter) Breakdown(b *service.Breakdown) Reply {
	lines := []string{"📋 " + b.Period + " по категориям", ""}
	if len(b.Items) == 0 {
		lines = append(lines, "Расходов пока нет")
		return withMenu(strings.Join(lines, "\n"))
	}
	for _, item := range b.Items {
		lines = append(lines, fmt.Sprintf("%s: %s (%d%%)", item.Category, f.Amount(item.Amount), item.Percent))
	}
	lines = append(lines, "", "💰 Всего: "+f.Amount(b.Total))
	return withMenu(strings.Join(lines, "\n"))
}

// ConfirmDelete просит подтвердить удаление
func (f *Formatter) ConfirmDelete(expenses []model.Expense) Reply {
	title := "🗑 Удалить эту запись?"
	if len(expenses) > 1 {
		title = fmt.Sprintf("🗑 Удалить %d %s?", len(expenses), records(len(expenses)))
	}

	lines := []string{title, ""}
	for _, e := range expenses {
		lines = append(lines, fmt.Sprintf("• %s: %s (%s)", e.Description, f.Amount(e.Amount), e.Category))
	}
	lines = append(lines, "", "Нажмите кнопку ниже")

	return Reply{
		Text: strings.Join(lines, "\n"),
		QuickReplies: []QuickReply{
			{Label: "✅ " + CmdConfirmDelete, Text: CmdConfirmDelete},
			cancelButton(),
		},
	}
}

// Deleted записи архивированы
func (f *Formatter) Deleted(n int) Reply {
	if n == 1 {
		return withMenu("🗑 Последняя запись удалена")
	}
	return withMenu(fmt.Sprintf("🗑 Удалено %d %s", n, records(n)))
}

// ChooseField показывает записи и предлагает выбрать поле
func (f *Formatter) ChooseField(expenses []model.Expense) Reply {
	lines := []string{"✏️ Что исправить?", ""}
	for _, e := range expenses {
		lines = append(lines,
			fmt.Sprintf("• %s: %s", e.Description, f.Amount(e.Amount)),
			fmt.Sprintf("  📁 %s | 💳 %s", e.Category, e.PaymentMethod))
	}

	return Reply{
		Text: strings.Join(lines, "\n"),
		QuickReplies: []QuickReply{
			{Label: "📁 " + LabelCategory, Text: LabelCategory},
			{Label: "💳 " + LabelPaymentMethod, Text: LabelPaymentMethod},
			{Label: "💰 " + LabelAmount, Text: LabelAmount},
			{Label: "📝 " + LabelDescription, Text: LabelDescription},
			cancelButton(),
		},
	}
}

// AskValue запрашивает новое значение поля. Для категории и способа оплаты
// предлагаются варианты из справочника.
func (f *Formatter) AskValue(field model.Field, vocab model.Vocabulary) Reply {
	switch field {
	case model.FieldCategory:
		return Reply{Text: "Выберите новую категорию", QuickReplies: Options(vocab.Categories)}
	case model.FieldPaymentMethod:
		return Reply{Text: "Выберите новый способ оплаты", QuickReplies: Options(vocab.PaymentMethods)}
	default:
		return Reply{
			Text:         fmt.Sprintf("Введите новое значение поля «%s»", FieldLabel(field)),
			QuickReplies: []QuickReply{cancelButton()},
		}
	}
}

// Options до MaxOptions вариантов с подписями не длиннее MaxLabelLength символов и кнопка отмены
func Options(values []string) []QuickReply {
	out := make([]QuickReply, 0, MaxOptions+1)
	for _, v := range values {
		if v == "" {
			continue
		}
		if len(out) == MaxOptions {
			break
		}
		out = append(out, QuickReply{Label: truncate(v, MaxLabelLength), Text: v})
	}
	return append(out, cancelButton())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// InvalidChoice значение не из справочника; suggestion может быть пустым
func (f *Formatter) InvalidChoice(field model.Field, value string, allowed []string, suggestion string) Reply {
	missing := "такой категории нет в справочнике"
	if field == model.FieldPaymentMethod {
		missing = "такого способа оплаты нет в справочнике"
	}

	text := fmt.Sprintf("«%s» не подходит: %s.", value, missing)
	if suggestion != "" {
		text += fmt.Sprintf("\nВозможно, вы имели в виду «%s»?", suggestion)
	}
	text += "\n\nДоступно:\n" + strings.Join(allowed, ", ")

	return Reply{Text: text, QuickReplies: Options(allowed)}
}

// InvalidAmount сумма не распознана
func (f *Formatter) InvalidAmount() Reply {
	return Reply{
		Text:         "Сумма должна быть положительным целым числом, например 1500",
		QuickReplies: []QuickReply{cancelButton()},
	}
}

// EmptyDescription описание не может быть пустым
func (f *Formatter) EmptyDescription() Reply {
	return Reply{
		Text:         "Описание не может быть пустым, введите текст",
		QuickReplies: []QuickReply{cancelButton()},
	}
}

// Modified изменение применено
func (f *Formatter) Modified(field model.Field, value string, n int) Reply {
	if n > 1 {
		return withMenu(fmt.Sprintf("✏️ В %d %s поле «%s» теперь «%s»", n, plural(n, "записи", "записях", "записях"), FieldLabel(field), value))
	}
	return withMenu(fmt.Sprintf("✏️ Поле «%s» теперь «%s»", FieldLabel(field), value))
}

// Cancelled диалог прерван командой отмены
func (f *Formatter) Cancelled() Reply { return withMenu("Действие отменено") }

// DeleteCancelled удаление не подтверждено
func (f *Formatter) DeleteCancelled() Reply { return withMenu("Удаление отменено") }

// ModifyCancelled выбрано неизвестное поле
func (f *Formatter) ModifyCancelled() Reply { return withMenu("Изменение отменено") }

// NothingToDelete нет последних записей
func (f *Formatter) NothingToDelete() Reply { return withMenu("Удалять нечего: последних записей нет") }

// NothingToModify нет последних записей
func (f *Formatter) NothingToModify() Reply { return withMenu("Изменять нечего: последних записей нет") }

// UnknownUser команда требует идентификатор пользователя
func (f *Formatter) UnknownUser() Reply {
	return plain("Не удалось определить пользователя, команда недоступна")
}

// ExtractionFailed ошибка извлечения расхода с подсказкой
func (f *Formatter) ExtractionFailed(err error) Reply {
	var failed *extraction.FailedError
	switch {
	case errors.Is(err, extraction.ErrNoAmountFound):
		return plain("Не нашел сумму. Пример: Обед 450 картой\n\n" + helpHint)
	case errors.Is(err, extraction.ErrImageFetchFailed):
		return plain("📷 Не удалось загрузить изображение, попробуйте отправить его еще раз")
	case errors.Is(err, extraction.ErrImageUnsupported):
		return plain("📷 Распознавание чеков отключено, введите расход текстом\n\n" + helpHint)
	case errors.As(err, &failed):
		return plain(failed.Reason + "\n\n" + helpHint)
	default:
		return plain("Не удалось распознать расход\n\n" + helpHint)
	}
}

// UpstreamUnavailable хранилище недоступно
func (f *Formatter) UpstreamUnavailable() Reply {
	return plain("⚠️ Хранилище недоступно. Попробуйте позже или проверьте настройки.")
}

// OperationFailed ошибка конкретной операции
func (f *Formatter) OperationFailed(op string) Reply {
	return plain(fmt.Sprintf("⚠️ Не удалось %s. Попробуйте еще раз.", op))
}

// InternalError общий ответ на непредвиденную ошибку
func InternalError() Reply {
	return plain("⚠️ Что-то пошло не так. Попробуйте еще раз.")
}
