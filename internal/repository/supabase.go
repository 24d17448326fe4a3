package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/model"
)

// SupabaseConfig таблицы и параметры выборки
type SupabaseConfig struct {
	URL                 string
	Key                 string
	ExpensesTable       string
	CategoriesTable     string
	PaymentMethodsTable string
	PageSize            int
	Location            *time.Location
}

var _ Repository = (*SupabaseRepository)(nil)

// SupabaseRepository хранилище поверх PostgREST API Supabase
type SupabaseRepository struct {
	client *supabase.Client
	cfg    SupabaseConfig
	logger logging.Logger
}

// NewSupabaseRepository подключается к Supabase
func NewSupabaseRepository(cfg SupabaseConfig, logger logging.Logger) (*SupabaseRepository, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.Key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	return &SupabaseRepository{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// expenseRow строка таблицы expenses
type expenseRow struct {
	ID            string `json:"id"`
	Amount        int64  `json:"amount"`
	Category      string `json:"category"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
	Date          string `json:"date"`
	Archived      bool   `json:"archived"`
}

func toRow(e model.Expense, loc *time.Location) expenseRow {
	return expenseRow{
		ID:            e.ID,
		Amount:        e.Amount,
		Category:      e.Category,
		PaymentMethod: e.PaymentMethod,
		Description:   e.Description,
		Date:          e.Date.In(loc).Format(model.DateLayout),
	}
}

func (row expenseRow) toExpense(loc *time.Location) (model.Expense, error) {
	// PostgREST отдает date как "2006-01-02", но timestamp-колонки приходят в RFC3339
	date, err := time.ParseInLocation(model.DateLayout, row.Date, loc)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, row.Date)
		if tsErr != nil {
			return model.Expense{}, fmt.Errorf("invalid date %q for expense %s: %w", row.Date, row.ID, err)
		}
		date = model.StartOfDay(ts, loc)
	}
	return model.Expense{
		ID:            row.ID,
		Amount:        row.Amount,
		Category:      row.Category,
		PaymentMethod: row.PaymentMethod,
		Description:   row.Description,
		Date:          date,
	}, nil
}

// updatePayload переводит частичное изменение в колонки таблицы
func updatePayload(u model.ExpenseUpdate) map[string]interface{} {
	payload := make(map[string]interface{})
	if u.Amount != nil {
		payload["amount"] = *u.Amount
	}
	if u.Category != nil {
		payload["category"] = *u.Category
	}
	if u.PaymentMethod != nil {
		payload["payment_method"] = *u.PaymentMethod
	}
	if u.Description != nil {
		payload["description"] = *u.Description
	}
	return payload
}

func (r *SupabaseRepository) CreateExpense(ctx context.Context, expense *model.Expense) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expense.GenerateID()

	_, _, err := r.client.From(r.cfg.ExpensesTable).
		Insert(toRow(*expense, r.cfg.Location), false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	r.logger.Debug("Expense created", logging.Field{Key: logging.FieldExpenseID, Value: expense.ID})
	return nil
}

func (r *SupabaseRepository) GetExpense(ctx context.Context, id string) (model.Expense, error) {
	if err := ctx.Err(); err != nil {
		return model.Expense{}, err
	}

	data, _, err := r.client.From(r.cfg.ExpensesTable).
		Select("*", "", false).
		Eq("id", id).
		Eq("archived", "false").
		Execute()
	if err != nil {
		return model.Expense{}, fmt.Errorf("failed to get expense %s: %w", id, err)
	}

	var rows []expenseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return model.Expense{}, fmt.Errorf("failed to parse expense %s: %w", id, err)
	}
	if len(rows) == 0 {
		return model.Expense{}, ErrNotFound
	}
	return rows[0].toExpense(r.cfg.Location)
}

func (r *SupabaseRepository) UpdateExpense(ctx context.Context, id string, update model.ExpenseUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	return r.patch(ctx, id, updatePayload(update))
}

func (r *SupabaseRepository) ArchiveExpense(ctx context.Context, id string) error {
	return r.patch(ctx, id, map[string]interface{}{"archived": true})
}

// patch обновляет неархивную запись; пустой ответ означает, что записи нет
func (r *SupabaseRepository) patch(ctx context.Context, id string, payload map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, _, err := r.client.From(r.cfg.ExpensesTable).
		Update(payload, "representation", "").
		Eq("id", id).
		Eq("archived", "false").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update expense %s: %w", id, err)
	}

	var rows []expenseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to parse updated expense %s: %w", id, err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SupabaseRepository) QueryByDateRange(ctx context.Context, start, end time.Time) ([]model.Expense, error) {
	from := start.In(r.cfg.Location).Format(model.DateLayout)
	to := end.In(r.cfg.Location).Format(model.DateLayout)

	rows, err := collectPages(r.cfg.PageSize, func(offset, limit int) ([]expenseRow, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, _, err := r.client.From(r.cfg.ExpensesTable).
			Select("*", "", false).
			Eq("archived", "false").
			Gte("date", from).
			Lt("date", to).
			Order("date", &postgrest.OrderOpts{Ascending: true}).
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			Range(offset, offset+limit-1, "").
			Execute()
		if err != nil {
			return nil, err
		}
		var page []expenseRow
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("failed to parse expenses page: %w", err)
		}
		return page, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses from %s to %s: %w", from, to, err)
	}

	expenses := make([]model.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := row.toExpense(r.cfg.Location)
		if err != nil {
			r.logger.WithError(err).Warn("Skipping malformed expense row")
			continue
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

// collectPages запрашивает страницы, пока очередная не окажется неполной
func collectPages[T any](pageSize int, fetch func(offset, limit int) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; ; offset += pageSize {
		page, err := fetch(offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

type nameRow struct {
	Name string `json:"name"`
}

// FetchVocabulary читает категории и способы оплаты в порядке sort_order
func (r *SupabaseRepository) FetchVocabulary(ctx context.Context) (model.Vocabulary, error) {
	categories, err := r.names(ctx, r.cfg.CategoriesTable)
	if err != nil {
		return model.Vocabulary{}, err
	}
	payments, err := r.names(ctx, r.cfg.PaymentMethodsTable)
	if err != nil {
		return model.Vocabulary{}, err
	}
	return model.Vocabulary{Categories: categories, PaymentMethods: payments}, nil
}

func (r *SupabaseRepository) names(ctx context.Context, table string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, _, err := r.client.From(table).
		Select("name", "", false).
		Order("sort_order", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", table, err)
	}

	var rows []nameRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", table, err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	return names, nil
}
