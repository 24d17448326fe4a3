// Package service реализует пакетные операции над расходами и отчеты.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/model"
	"github.com/ivanoskov/expense_bot/internal/repository"
)

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// MonthLabel возвращает "Март 2025"
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}

// ExpenseTracker предоставляет пакетные операции и отчеты поверх хранилища
type ExpenseTracker struct {
	repo   repository.ExpenseRepository
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time
}

// NewExpenseTracker создает новый экземпляр ExpenseTracker.
// loc задает границы "текущего месяца".
func NewExpenseTracker(repo repository.ExpenseRepository, loc *time.Location, logger logging.Logger) *ExpenseTracker {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ExpenseTracker{
		repo:   repo,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// BatchError запись пакета не удалась; предыдущие записи остались в хранилище
type BatchError struct {
	Written int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch stopped after %d records: %v", e.Written, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// RegisterBatch сохраняет расходы по одному в порядке следования и возвращает их ID.
// Первая ошибка прерывает пакет, уже записанные расходы не откатываются.
func (s *ExpenseTracker) RegisterBatch(ctx context.Context, expenses []model.Expense) ([]string, error) {
	ids := make([]string, 0, len(expenses))
	for i := range expenses {
		e := expenses[i]
		if err := s.repo.CreateExpense(ctx, &e); err != nil {
			return ids, &BatchError{Written: len(ids), Err: err}
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// LoadBatch загружает записи; отсутствующие пропускаются
func (s *ExpenseTracker) LoadBatch(ctx context.Context, ids []string) ([]model.Expense, error) {
	out := make([]model.Expense, 0, len(ids))
	for _, id := range ids {
		e, err := s.repo.GetExpense(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			s.logMissing("load", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load expense %s: %w", id, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ArchiveBatch архивирует записи и возвращает число архивированных; отсутствующие пропускаются
func (s *ExpenseTracker) ArchiveBatch(ctx context.Context, ids []string) (int, error) {
	done := 0
	for _, id := range ids {
		err := s.repo.ArchiveExpense(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			s.logMissing("archive", id)
			continue
		}
		if err != nil {
			return done, fmt.Errorf("failed to archive expense %s: %w", id, err)
		}
		done++
	}
	return done, nil
}

// UpdateBatch применяет изменение к каждой записи; отсутствующие пропускаются
func (s *ExpenseTracker) UpdateBatch(ctx context.Context, ids []string, update model.ExpenseUpdate) (int, error) {
	done := 0
	for _, id := range ids {
		err := s.repo.UpdateExpense(ctx, id, update)
		if errors.Is(err, repository.ErrNotFound) {
			s.logMissing("update", id)
			continue
		}
		if err != nil {
			return done, fmt.Errorf("failed to update expense %s: %w", id, err)
		}
		done++
	}
	return done, nil
}

func (s *ExpenseTracker) logMissing(op, id string) {
	s.logger.Warn("Expense missing, skipping",
		logging.Field{Key: logging.FieldOperation, Value: op},
		logging.Field{Key: logging.FieldExpenseID, Value: id})
}

// MonthTotal сумма расходов за календарный месяц
type MonthTotal struct {
	Start time.Time
	Label string
	Total int64
	Count int
}

// Summary итоги за несколько последних месяцев, от старого к новому
type Summary struct {
	Months []MonthTotal
	Total  int64
}

// MonthlyTotals считает итоги за последние months календарных месяцев, включая текущий
func (s *ExpenseTracker) MonthlyTotals(ctx context.Context, months int) (*Summary, error) {
	if months < 1 {
		months = 1
	}

	current := model.StartOfMonth(s.now(), s.loc)
	start := current.AddDate(0, -(months - 1), 0)
	end := current.AddDate(0, 1, 0)

	expenses, err := s.repo.QueryByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get expenses for summary: %w", err)
	}

	summary := &Summary{Months: make([]MonthTotal, months)}
	for i := range summary.Months {
		m := start.AddDate(0, i, 0)
		summary.Months[i] = MonthTotal{Start: m, Label: MonthLabel(m)}
	}

	for _, e := range expenses {
		m := model.StartOfMonth(e.Date, s.loc)
		i := monthIndex(start, m)
		if i < 0 || i >= months {
			continue
		}
		summary.Months[i].Total += e.Amount
		summary.Months[i].Count++
		summary.Total += e.Amount
	}

	return summary, nil
}

func monthIndex(start, m time.Time) int {
	return (m.Year()-start.Year())*12 + int(m.Month()) - int(start.Month())
}

// CategoryStat доля категории в расходах месяца
type CategoryStat struct {
	Category string
	Amount   int64
	Percent  int64
}

// Breakdown структура расходов текущего месяца
type Breakdown struct {
	Period string
	Items  []CategoryStat
	Total  int64
}

// CategoryBreakdown группирует расходы текущего месяца по категориям
func (s *ExpenseTracker) CategoryBreakdown(ctx context.Context) (*Breakdown, error) {
	start := model.StartOfMonth(s.now(), s.loc)

	expenses, err := s.repo.QueryByDateRange(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to get expenses for breakdown: %w", err)
	}

	return breakdown(MonthLabel(start), expenses), nil
}

func breakdown(period string, expenses []model.Expense) *Breakdown {
	totals := make(map[string]int64)
	var total int64
	for _, e := range expenses {
		totals[e.Category] += e.Amount
		total += e.Amount
	}

	items := make([]CategoryStat, 0, len(totals))
	for category, amount := range totals {
		items = append(items, CategoryStat{
			Category: category,
			Amount:   amount,
			Percent:  percent(amount, total),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Amount != items[j].Amount {
			return items[i].Amount > items[j].Amount
		}
		return items[i].Category < items[j].Category
	})

	return &Breakdown{Period: period, Items: items, Total: total}
}

// percent округляет долю до целого, половина вверх; 0 при нулевом итоге
func percent(part, total int64) int64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(0).
		IntPart()
}
