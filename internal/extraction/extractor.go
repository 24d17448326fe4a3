// Package extraction превращает текст или фото чека в записи о расходах.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/ivanoskov/expense_bot/internal/model"
)

// Ошибки извлечения
var (
	ErrNoAmountFound = errors.New("no amount found")
	// ErrImageFetchFailed не удалось получить изображение из мессенджера
	ErrImageFetchFailed = errors.New("image fetch failed")
	// ErrImageUnsupported стратегия не умеет разбирать изображения
	ErrImageUnsupported = errors.New("image extraction not supported")
)

// FailedError модель не смогла извлечь ни одного расхода
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

// Extractor стратегия извлечения. Все возвращаемые записи имеют категорию
// и способ оплаты из переданного словаря.
type Extractor interface {
	Name() string
	ExtractText(ctx context.Context, text string, vocab model.Vocabulary) ([]model.Expense, error)
	ExtractImage(ctx context.Context, image []byte, mimeType string, vocab model.Vocabulary) ([]model.Expense, error)
}
