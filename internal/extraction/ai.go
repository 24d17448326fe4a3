package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/model"
)

// StrategyAI имя стратегии с языковой моделью
const StrategyAI = "ai"

// maxAmount наибольшая сумма, которая помещается в int64
var maxAmount = decimal.NewFromInt(math.MaxInt64)

// Backend транспорт к языковой модели. Оба метода возвращают сырой JSON ответа.
type Backend interface {
	CompleteText(ctx context.Context, systemPrompt, text string) ([]byte, error)
	CompleteVision(ctx context.Context, systemPrompt string, image []byte, mimeType string) ([]byte, error)
}

// AIExtractor извлекает расходы через модель и проверяет каждый кандидат
type AIExtractor struct {
	backend  Backend
	logger   logging.Logger
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

// NewAIExtractor создает стратегию поверх backend
func NewAIExtractor(backend Backend, loc *time.Location, logger logging.Logger) *AIExtractor {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &AIExtractor{
		backend:  backend,
		logger:   logger,
		validate: validator.New(),
		loc:      loc,
		now:      time.Now,
	}
}

func (a *AIExtractor) Name() string { return StrategyAI }

// ExtractText разбирает сообщение, в котором может быть несколько расходов
func (a *AIExtractor) ExtractText(ctx context.Context, text string, vocab model.Vocabulary) ([]model.Expense, error) {
	raw, err := a.backend.CompleteText(ctx, textPrompt(vocab), text)
	if err != nil {
		a.logger.WithError(err).Warn("AI text completion failed")
		return nil, &FailedError{Reason: "сервис распознавания недоступен"}
	}
	return a.parse(raw, vocab)
}

// ExtractImage разбирает фото чека
func (a *AIExtractor) ExtractImage(ctx context.Context, image []byte, mimeType string, vocab model.Vocabulary) ([]model.Expense, error) {
	raw, err := a.backend.CompleteVision(ctx, visionPrompt(vocab), image, mimeType)
	if err != nil {
		a.logger.WithError(err).Warn("AI vision completion failed")
		return nil, &FailedError{Reason: "не удалось проанализировать изображение"}
	}
	return a.parse(raw, vocab)
}

// aiEnvelope верхний уровень ответа модели
type aiEnvelope struct {
	Success  *bool             `json:"success" validate:"required"`
	Expenses []json.RawMessage `json:"expenses" validate:"max=50"`
	Error    string            `json:"error"`
}

// aiCandidate одна запись ответа; разбирается отдельно, чтобы плохая запись не портила весь ответ
type aiCandidate struct {
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category" validate:"max=200"`
	PaymentMethod string          `json:"paymentMethod" validate:"max=200"`
	Description   string          `json:"description" validate:"max=500"`
	Date          string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (a *AIExtractor) parse(raw []byte, vocab model.Vocabulary) ([]model.Expense, error) {
	body := cleanJSON(string(raw))

	var env aiEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		a.logger.Warn("AI returned malformed JSON", logging.Field{Key: logging.FieldReason, Value: err.Error()})
		return nil, &FailedError{Reason: "не удалось разобрать ответ модели"}
	}
	if err := a.validate.Struct(env); err != nil {
		a.logger.Warn("AI response failed validation", logging.Field{Key: logging.FieldReason, Value: err.Error()})
		return nil, &FailedError{Reason: "не удалось разобрать ответ модели"}
	}

	if !*env.Success {
		reason := strings.TrimSpace(env.Error)
		if reason == "" {
			reason = "не удалось распознать расход"
		}
		return nil, &FailedError{Reason: reason}
	}

	today := model.StartOfDay(a.now(), a.loc)
	expenses := make([]model.Expense, 0, len(env.Expenses))
	for i, item := range env.Expenses {
		expense, err := a.candidate(item, vocab, today)
		if err != nil {
			a.logger.Debug("Dropping AI candidate",
				logging.Field{Key: "index", Value: i},
				logging.Field{Key: logging.FieldReason, Value: err.Error()})
			continue
		}
		expenses = append(expenses, expense)
	}

	if len(expenses) == 0 {
		return nil, &FailedError{Reason: "не найдено ни одного корректного расхода"}
	}
	return expenses, nil
}

func (a *AIExtractor) candidate(item json.RawMessage, vocab model.Vocabulary, today time.Time) (model.Expense, error) {
	var c aiCandidate
	if err := json.Unmarshal(item, &c); err != nil {
		return model.Expense{}, err
	}
	if err := a.validate.Struct(c); err != nil {
		return model.Expense{}, err
	}

	amount := c.Amount.Round(0)
	if !amount.IsPositive() {
		return model.Expense{}, fmt.Errorf("non-positive amount %s", c.Amount)
	}
	if amount.GreaterThan(maxAmount) {
		return model.Expense{}, fmt.Errorf("amount %s is out of range", c.Amount)
	}

	category := vocab.SnapCategory(strings.TrimSpace(c.Category))
	description := strings.TrimSpace(c.Description)
	if description == "" {
		description = category
	}

	date := today
	if c.Date != "" {
		if d, err := time.ParseInLocation(model.DateLayout, c.Date, a.loc); err == nil {
			date = d
		}
	}

	return model.Expense{
		Amount:        amount.IntPart(),
		Category:      category,
		PaymentMethod: vocab.SnapPaymentMethod(strings.TrimSpace(c.PaymentMethod)),
		Description:   description,
		Date:          date,
	}, nil
}

// cleanJSON убирает markdown-обертку, которую модели иногда добавляют
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func vocabularySection(vocab model.Vocabulary) string {
	return fmt.Sprintf(`## Доступные категории
%s

## Доступные способы оплаты
%s`, strings.Join(vocab.Categories, ", "), strings.Join(vocab.PaymentMethods, ", "))
}

const outputFormat = `## Формат ответа
Верни строго JSON:
{
  "success": true,
  "expenses": [
    {
      "amount": число,
      "category": "категория из списка",
      "paymentMethod": "способ оплаты из списка",
      "description": "краткое описание",
      "date": "ГГГГ-ММ-ДД или пустая строка"
    }
  ]
}

Если извлечь расходы невозможно:
{
  "success": false,
  "error": "причина"
}`

func textPrompt(vocab model.Vocabulary) string {
	return `Ты помощник в приложении учета расходов. Извлеки из сообщения пользователя все расходы.
Если в сообщении несколько трат, верни их все.

` + vocabularySection(vocab) + `

## Правила
1. Сумма обязательна. Если суммы нет, верни ошибку.
2. Категорию выбирай только из списка. Если ничего не подходит, бери первую.
3. Способ оплаты выбирай только из списка. Если он не указан, бери первый.
4. Описание коротко передает суть траты.
5. Дату указывай, только если она явно названа в сообщении.

` + outputFormat
}

func visionPrompt(vocab model.Vocabulary) string {
	return `Ты помощник в приложении учета расходов. Извлеки расходы с фотографии чека.
Если в чеке много позиций, запиши итоговую сумму одним расходом.
Если на фото несколько чеков из разных магазинов или за разные дни, запиши каждый отдельно.

` + vocabularySection(vocab) + `

## Правила
1. Возьми итоговую сумму. Если итога нет, сложи позиции.
2. Категорию выбирай по магазину и покупкам, только из списка. Если ничего не подходит, бери первую.
3. Способ оплаты бери из чека, если он там указан, иначе первый из списка.
4. В описании укажи магазин или основную покупку.
5. Дату бери из чека. Если ее не видно, оставь пустой.
6. Если снимок нечеткий, сделай лучшую оценку по читаемой части.

` + outputFormat
}
