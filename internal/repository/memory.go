package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ivanoskov/expense_bot/internal/model"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository хранилище в памяти для локального запуска и тестов
type MemoryRepository struct {
	mu       sync.RWMutex
	expenses map[string]model.Expense
	archived map[string]bool
	order    []string
	vocab    model.Vocabulary
}

// NewMemoryRepository создает хранилище с заданным справочником
func NewMemoryRepository(vocab model.Vocabulary) *MemoryRepository {
	return &MemoryRepository{
		expenses: make(map[string]model.Expense),
		archived: make(map[string]bool),
		vocab:    vocab,
	}
}

// SetVocabulary подменяет справочник, как если бы его изменили в хранилище
func (m *MemoryRepository) SetVocabulary(vocab model.Vocabulary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vocab = vocab
}

func (m *MemoryRepository) FetchVocabulary(ctx context.Context) (model.Vocabulary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.Vocabulary{
		Categories:     slices.Clone(m.vocab.Categories),
		PaymentMethods: slices.Clone(m.vocab.PaymentMethods),
	}, nil
}

func (m *MemoryRepository) CreateExpense(ctx context.Context, expense *model.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expense.GenerateID()
	m.expenses[expense.ID] = *expense
	m.order = append(m.order, expense.ID)
	return nil
}

func (m *MemoryRepository) GetExpense(ctx context.Context, id string) (model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok || m.archived[id] {
		return model.Expense{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryRepository) UpdateExpense(ctx context.Context, id string, update model.ExpenseUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.expenses[id]
	if !ok || m.archived[id] {
		return ErrNotFound
	}
	m.expenses[id] = update.Apply(e)
	return nil
}

func (m *MemoryRepository) ArchiveExpense(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.expenses[id]; !ok || m.archived[id] {
		return ErrNotFound
	}
	m.archived[id] = true
	return nil
}

// Delete удаляет запись полностью, имитируя правку хранилища в обход бота
func (m *MemoryRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expenses, id)
}

// IsArchived сообщает, что запись существует и помечена удаленной
func (m *MemoryRepository) IsArchived(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.expenses[id]
	return ok && m.archived[id]
}

func (m *MemoryRepository) QueryByDateRange(ctx context.Context, start, end time.Time) ([]model.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Expense
	for _, id := range m.order {
		e, ok := m.expenses[id]
		if !ok || m.archived[id] {
			continue
		}
		if !e.Date.Before(start) && e.Date.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}
