package dispatcher

import (
	"context"
	"strings"

	"github.com/ivanoskov/expense_bot/internal/logging"
	"github.com/ivanoskov/expense_bot/internal/model"
	"github.com/ivanoskov/expense_bot/internal/reply"
)

// continueDialog обрабатывает сообщение пользователя, который находится посреди диалога.
// Сообщение целиком поглощается диалогом, даже если похоже на команду.
func (d *Dispatcher) continueDialog(ctx context.Context, logger logging.Logger, userID int64, sess model.UserSession, text string, vocab model.Vocabulary) reply.Reply {
	if isCancel(text) {
		d.sessions.SetPendingAction(userID, model.NoPendingAction)
		return d.format.Cancelled()
	}

	switch sess.Pending.Kind {
	case model.PendingConfirmDelete:
		d.sessions.SetPendingAction(userID, model.NoPendingAction)
		if text != reply.CmdConfirmDelete {
			return d.format.DeleteCancelled()
		}
		return d.confirmDelete(ctx, logger, userID, sess.LastRegisteredIDs)

	case model.PendingModifyField:
		field, ok := reply.ParseField(text)
		if !ok {
			d.sessions.SetPendingAction(userID, model.NoPendingAction)
			return d.format.ModifyCancelled()
		}
		d.sessions.SetPendingAction(userID, model.PendingAction{Kind: model.PendingModifyValue, Field: field})
		return d.format.AskValue(field, vocab)

	case model.PendingModifyValue:
		return d.applyModify(ctx, logger, userID, sess, text, vocab)

	default:
		d.sessions.SetPendingAction(userID, model.NoPendingAction)
		return d.format.Cancelled()
	}
}

func (d *Dispatcher) confirmDelete(ctx context.Context, logger logging.Logger, userID int64, ids []string) reply.Reply {
	if len(ids) == 0 {
		return d.format.NothingToDelete()
	}

	archived, err := d.gateway.ArchiveBatch(ctx, ids)
	if err != nil {
		logger.WithError(err).Error("Failed to archive expenses",
			logging.Field{Key: logging.FieldCount, Value: archived})
		return d.format.OperationFailed("удалить записи")
	}

	d.sessions.SetLastRegistered(userID, nil)
	logger.Info("Expenses archived", logging.Field{Key: logging.FieldCount, Value: archived})

	if archived == 0 {
		return d.format.NothingToDelete()
	}
	return d.format.Deleted(archived)
}

// applyModify проверяет новое значение. Неверное значение оставляет диалог
// в том же состоянии, чтобы пользователь мог ввести его снова.
func (d *Dispatcher) applyModify(ctx context.Context, logger logging.Logger, userID int64, sess model.UserSession, text string, vocab model.Vocabulary) reply.Reply {
	field := sess.Pending.Field
	update, display, rejected := d.parseValue(field, text, vocab)
	if rejected != nil {
		return *rejected
	}

	d.sessions.SetPendingAction(userID, model.NoPendingAction)

	ids := sess.LastRegisteredIDs
	if len(ids) == 0 {
		return d.format.NothingToModify()
	}

	updated, err := d.gateway.UpdateBatch(ctx, ids, update)
	if err != nil {
		logger.WithError(err).Error("Failed to update expenses",
			logging.Field{Key: logging.FieldCount, Value: updated})
		return d.format.OperationFailed("изменить записи")
	}
	if updated == 0 {
		d.sessions.SetLastRegistered(userID, nil)
		return d.format.NothingToModify()
	}

	logger.Info("Expenses updated",
		logging.Field{Key: logging.FieldCount, Value: updated},
		logging.Field{Key: "field", Value: reply.FieldLabel(field)})
	return d.format.Modified(field, display, updated)
}

// parseValue возвращает изменение или готовый ответ с отказом
func (d *Dispatcher) parseValue(field model.Field, text string, vocab model.Vocabulary) (model.ExpenseUpdate, string, *reply.Reply) {
	switch field {
	case model.FieldCategory:
		if !vocab.HasCategory(text) {
			r := d.format.InvalidChoice(field, text, vocab.Categories, suggest(text, vocab.Categories))
			return model.ExpenseUpdate{}, "", &r
		}
		return model.ExpenseUpdate{Category: &text}, text, nil

	case model.FieldPaymentMethod:
		if !vocab.HasPaymentMethod(text) {
			r := d.format.InvalidChoice(field, text, vocab.PaymentMethods, suggest(text, vocab.PaymentMethods))
			return model.ExpenseUpdate{}, "", &r
		}
		return model.ExpenseUpdate{PaymentMethod: &text}, text, nil

	case model.FieldAmount:
		amount, ok := parseAmount(text)
		if !ok {
			r := d.format.InvalidAmount()
			return model.ExpenseUpdate{}, "", &r
		}
		return model.ExpenseUpdate{Amount: &amount}, d.format.Amount(amount), nil

	default:
		description := strings.TrimSpace(text)
		if description == "" {
			r := d.format.EmptyDescription()
			return model.ExpenseUpdate{}, "", &r
		}
		return model.ExpenseUpdate{Description: &description}, description, nil
	}
}
