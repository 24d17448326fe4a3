package model

// Field редактируемое поле расхода
type Field int

const (
	FieldCategory Field = iota + 1
	FieldPaymentMethod
	FieldAmount
	FieldDescription
)

// PendingKind вид незавершенного многошагового действия
type PendingKind int

const (
	PendingNone PendingKind = iota
	PendingConfirmDelete
	PendingModifyField
	PendingModifyValue
)

// PendingAction незавершенное действие пользователя; Field заполнен только для PendingModifyValue
type PendingAction struct {
	Kind  PendingKind
	Field Field
}

// NoPendingAction пустое действие
var NoPendingAction = PendingAction{Kind: PendingNone}

// IsIdle сообщает, что пользователь не находится в диалоге
func (a PendingAction) IsIdle() bool {
	return a.Kind == PendingNone
}

// UserSession хранит текущее состояние пользователя
type UserSession struct {
	LastRegisteredIDs []string
	Pending           PendingAction
}
