package model

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout формат даты расхода в хранилище
const DateLayout = "2006-01-02"

// Expense представляет одну запись о расходе
type Expense struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"payment_method"`
	Description   string    `json:"description"`
	Date          time.Time `json:"date"`
}

// GenerateID генерирует новый UUID для расхода, если он еще не установлен
func (e *Expense) GenerateID() {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
}

// ExpenseUpdate частичное изменение записи: nil означает "не менять"
type ExpenseUpdate struct {
	Amount        *int64
	Category      *string
	PaymentMethod *string
	Description   *string
}

// IsEmpty сообщает, что в изменении нет ни одного поля
func (u ExpenseUpdate) IsEmpty() bool {
	return u.Amount == nil && u.Category == nil && u.PaymentMethod == nil && u.Description == nil
}

// Apply возвращает копию расхода с примененными изменениями
func (u ExpenseUpdate) Apply(e Expense) Expense {
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.PaymentMethod != nil {
		e.PaymentMethod = *u.PaymentMethod
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	return e
}

// StartOfDay обрезает время до начала дня в зоне loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// StartOfMonth возвращает первое число месяца, в котором находится t
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}
