// Package repository описывает доступ к хранилищу расходов и справочников.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ivanoskov/expense_bot/internal/model"
)

// ErrNotFound запись отсутствует или архивирована
var ErrNotFound = errors.New("expense not found")

// ExpenseRepository операции над расходами
type ExpenseRepository interface {
	// CreateExpense сохраняет расход и заполняет его ID
	CreateExpense(ctx context.Context, expense *model.Expense) error
	GetExpense(ctx context.Context, id string) (model.Expense, error)
	UpdateExpense(ctx context.Context, id string, update model.ExpenseUpdate) error
	// ArchiveExpense помечает запись удаленной; физически записи не удаляются
	ArchiveExpense(ctx context.Context, id string) error
	// QueryByDateRange возвращает все неархивные расходы в полуинтервале [start, end)
	QueryByDateRange(ctx context.Context, start, end time.Time) ([]model.Expense, error)
}

// VocabularySource источник справочника категорий и способов оплаты
type VocabularySource interface {
	FetchVocabulary(ctx context.Context) (model.Vocabulary, error)
}

// Repository полный набор операций хранилища
type Repository interface {
	ExpenseRepository
	VocabularySource
}
