package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrUnprocessableEntity = errors.New("unprocessable entity")
	ErrNotFound            = errors.New("not found")
	ErrSoldOut             = errors.New("artwork is sold out")
	ErrConflict            = errors.New("artwork was changed concurrently")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrReconciliation      = errors.New("payment succeeded but the order could not be completed")
)

// DeclineError - шлюз отказал в списании. Состояние не менялось, покупку можно повторить другой картой.
// Сообщение шлюза передаётся без изменений
type DeclineError struct {
	Message string
}

func (e *DeclineError) Error() string {
	return e.Message
}

func (e *DeclineError) Is(target error) bool {
	return target == ErrPaymentDeclined
}

// ReconciliationError - деньги списаны, покупка не сохранена.
// Повтор запроса спишет деньги ещё раз, разбор ведёт оператор по RecordID
type ReconciliationError struct {
	ArtworkID int64
	ChargeID  string
	Step      string
	RecordID  uuid.UUID
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation %s: artwork %d charge %s: %s step: %v",
		e.RecordID, e.ArtworkID, e.ChargeID, e.Step, e.Err)
}

func (e *ReconciliationError) Unwrap() []error {
	return []error{ErrReconciliation, e.Err}
}
