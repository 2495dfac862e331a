// Package lifecycle описывает допустимые статусы заявки на кредит и переходы между ними.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/iurnickita/loanmanager/internal/model"
)

var ErrIllegalTransition = errors.New("illegal loan status transition")

// Пустой статус - заявка еще не создана
const statusNone model.LoanStatus = ""

var transitions = map[model.LoanStatus][]model.LoanStatus{
	statusNone:                 {model.LoanStatusPending, model.LoanStatusProcessing},
	model.LoanStatusProcessing: {model.LoanStatusApproved, model.LoanStatusRejected, model.LoanStatusFailed},
}

// IsTerminal сообщает, что из статуса нет переходов.
func IsTerminal(status model.LoanStatus) bool {
	switch status {
	case model.LoanStatusApproved, model.LoanStatusRejected, model.LoanStatusFailed:
		return true
	default:
		return false
	}
}

// IsActive сообщает, что заявка еще в работе. У клиента может быть не больше одной такой заявки.
func IsActive(status model.LoanStatus) bool {
	return status == model.LoanStatusPending || status == model.LoanStatusProcessing
}

func CanTransition(from, to model.LoanStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition переводит заявку в статус to.
// Недопустимый переход - нарушение инварианта, заявка не меняется.
func Transition(loan *model.LoanApplication, to model.LoanStatus) error {
	if !CanTransition(loan.Status, to) {
		return fmt.Errorf("%w: loan %s %q -> %q", ErrIllegalTransition, loan.ID, loan.Status, to)
	}
	loan.Status = to
	return nil
}

// RecordPending учитывает опрос, на котором скоринг еще не готов.
// Пока retry_count ниже потолка - увеличивает его и возвращает true (нужен повтор).
// На потолке переводит заявку в FAILED, retry_count не растет.
func RecordPending(loan *model.LoanApplication, maxRetries int) (bool, error) {
	if loan.Status != model.LoanStatusProcessing {
		return false, fmt.Errorf("%w: loan %s is %q, not polling", ErrIllegalTransition, loan.ID, loan.Status)
	}
	if loan.RetryCount < maxRetries {
		loan.RetryCount++
		return true, nil
	}
	return false, Transition(loan, model.LoanStatusFailed)
}

// Complete переводит заявку по решению скоринга.
func Complete(loan *model.LoanApplication, approved bool) error {
	if approved {
		return Transition(loan, model.LoanStatusApproved)
	}
	return Transition(loan, model.LoanStatusRejected)
}
