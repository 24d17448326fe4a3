package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/expense_bot/internal/model"
)

func TestCollectPages(t *testing.T) {
	data := make([]int, 25)
	for i := range data {
		data[i] = i
	}

	var calls [][2]int
	got, err := collectPages(10, func(offset, limit int) ([]int, error) {
		calls = append(calls, [2]int{offset, limit})
		end := min(offset+limit, len(data))
		if offset >= len(data) {
			return nil, nil
		}
		return data[offset:end], nil
	})
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, [][2]int{{0, 10}, {10, 10}, {20, 10}}, calls)
}

func TestCollectPages_ExactMultipleFetchesEmptyTail(t *testing.T) {
	calls := 0
	got, err := collectPages(5, func(offset, limit int) ([]string, error) {
		calls++
		if offset < 10 {
			return []string{"a", "b", "c", "d", "e"}, nil
		}
		return []string{}, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, 3, calls)
}

func TestCollectPages_Error(t *testing.T) {
	_, err := collectPages(2, func(offset, limit int) ([]int, error) {
		if offset > 0 {
			return nil, errors.New("timeout")
		}
		return []int{1, 2}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 2")
}

func TestExpenseRowMapping(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	e := model.Expense{
		ID:            "id-1",
		Amount:        1500,
		Category:      "Еда",
		PaymentMethod: "Карта",
		Description:   "ужин",
		// 22:30 UTC это уже следующий день по Москве
		Date: time.Date(2025, 1, 31, 22, 30, 0, 0, time.UTC),
	}

	row := toRow(e, loc)
	assert.Equal(t, "2025-02-01", row.Date)

	back, err := row.toExpense(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), back.Date)
	assert.Equal(t, e.Amount, back.Amount)
	assert.Equal(t, e.PaymentMethod, back.PaymentMethod)

	_, err = expenseRow{ID: "x", Date: "yesterday"}.toExpense(loc)
	assert.Error(t, err)

	ts, err := expenseRow{ID: "y", Date: "2025-02-01T10:00:00+03:00"}.toExpense(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), ts.Date)
}

func TestUpdatePayload(t *testing.T) {
	amount := int64(700)
	desc := "такси"

	payload := updatePayload(model.ExpenseUpdate{Amount: &amount, Description: &desc})
	assert.Equal(t, map[string]interface{}{"amount": int64(700), "description": "такси"}, payload)
	assert.Empty(t, updatePayload(model.ExpenseUpdate{}))
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(model.Vocabulary{Categories: []string{"Еда"}, PaymentMethods: []string{"Наличные"}})

	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	a := model.Expense{Amount: 100, Category: "Еда", Date: jan}
	b := model.Expense{Amount: 200, Category: "Еда", Date: feb}
	require.NoError(t, repo.CreateExpense(ctx, &a))
	require.NoError(t, repo.CreateExpense(ctx, &b))
	require.NotEmpty(t, a.ID)

	got, err := repo.QueryByDateRange(ctx, jan, feb)
	require.NoError(t, err)
	require.Len(t, got, 1, "end of range is exclusive")
	assert.Equal(t, a.ID, got[0].ID)

	amount := int64(150)
	require.NoError(t, repo.UpdateExpense(ctx, a.ID, model.ExpenseUpdate{Amount: &amount}))
	updated, err := repo.GetExpense(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.Amount)

	require.NoError(t, repo.ArchiveExpense(ctx, a.ID))
	assert.True(t, repo.IsArchived(a.ID))
	_, err = repo.GetExpense(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.ArchiveExpense(ctx, a.ID), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateExpense(ctx, "missing", model.ExpenseUpdate{Amount: &amount}), ErrNotFound)

	vocab, err := repo.FetchVocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Еда"}, vocab.Categories)
}
