// Package logging отделяет код бота от конкретной библиотеки логирования.
package logging

// Logger интерфейс структурированного логирования
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithError возвращает логгер с прикрепленной ошибкой
	WithError(err error) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields ...Field) Logger
}

// Field пара ключ-значение для структурированного лога
type Field struct {
	Key   string
	Value interface{}
}

// Стандартные имена полей
const (
	FieldUserID    = "user_id"
	FieldChatID    = "chat_id"
	FieldOperation = "operation"
	FieldStrategy  = "strategy"
	FieldCount     = "count"
	FieldExpenseID = "expense_id"
	FieldCategory  = "category"
	FieldReason    = "reason"
	FieldDuration  = "duration_ms"
	FieldUpdateID  = "update_id"
)
