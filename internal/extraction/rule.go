package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ivanoskov/expense_bot/internal/model"
)

// StrategyRule имя детерминированной стратегии
const StrategyRule = "rule"

// amountPattern цифры с необязательными разделителями тысяч
var amountPattern = regexp.MustCompile(`\d[\d,]*`)

// RuleExtractor разбирает текст без обращения к внешним сервисам.
// Формат свободный: "Обед 800 наличные", "такси 1,200", "350 кофе".
type RuleExtractor struct {
	keywords *KeywordTable
	loc      *time.Location
	now      func() time.Time
}

// NewRuleExtractor создает стратегию; nil keywords означает встроенную таблицу
func NewRuleExtractor(keywords *KeywordTable, loc *time.Location) *RuleExtractor {
	if keywords == nil {
		keywords = DefaultKeywordTable()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RuleExtractor{keywords: keywords, loc: loc, now: time.Now}
}

func (r *RuleExtractor) Name() string { return StrategyRule }

// ExtractText возвращает ровно одну запись, если в тексте есть положительная сумма
func (r *RuleExtractor) ExtractText(_ context.Context, text string, vocab model.Vocabulary) ([]model.Expense, error) {
	text = strings.TrimSpace(text)

	amount, token, ok := findAmount(text)
	if !ok {
		return nil, ErrNoAmountFound
	}

	category, categoryVerbatim := detect(text, vocab.Categories, r.keywords.Category, vocab.HasCategory)
	payment, paymentVerbatim := detect(text, vocab.PaymentMethods, r.keywords.PaymentMethod, vocab.HasPaymentMethod)

	description := strings.Replace(text, token, " ", 1)
	if categoryVerbatim {
		description = strings.ReplaceAll(description, category, " ")
	}
	if paymentVerbatim {
		description = strings.ReplaceAll(description, payment, " ")
	}
	description = strings.Join(strings.Fields(description), " ")
	if description == "" {
		description = category
	}

	return []model.Expense{{
		Amount:        amount,
		Category:      category,
		PaymentMethod: payment,
		Description:   description,
		Date:          model.StartOfDay(r.now(), r.loc),
	}}, nil
}

// ExtractImage не поддерживается без модели
func (r *RuleExtractor) ExtractImage(context.Context, []byte, string, model.Vocabulary) ([]model.Expense, error) {
	return nil, ErrImageUnsupported
}

// findAmount ищет первый числовой токен с положительным значением
func findAmount(text string) (int64, string, bool) {
	for _, token := range amountPattern.FindAllString(text, -1) {
		n, err := strconv.ParseInt(strings.ReplaceAll(token, ",", ""), 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		return n, token, true
	}
	return 0, "", false
}

// detect выбирает значение словаря: точное вхождение названия, затем ключевые слова,
// затем первый элемент. Второй результат сообщает, что название найдено в тексте дословно.
func detect(text string, names []string, byKeyword func(string, func(string) bool) (string, bool), allowed func(string) bool) (string, bool) {
	for _, name := range names {
		if name != "" && strings.Contains(text, name) {
			return name, true
		}
	}
	if name, ok := byKeyword(text, allowed); ok {
		return name, false
	}
	if len(names) == 0 {
		return "", false
	}
	return names[0], false
}
