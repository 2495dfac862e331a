package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iurnickita/loanmanager/internal/model"
)

var allStatuses = []model.LoanStatus{
	model.LoanStatusPending,
	model.LoanStatusProcessing,
	model.LoanStatusApproved,
	model.LoanStatusRejected,
	model.LoanStatusFailed,
}

func TestTransitionLegal(t *testing.T) {
	tests := []struct {
		from model.LoanStatus
		to   model.LoanStatus
	}{
		{"", model.LoanStatusPending},
		{"", model.LoanStatusProcessing},
		{model.LoanStatusProcessing, model.LoanStatusApproved},
		{model.LoanStatusProcessing, model.LoanStatusRejected},
		{model.LoanStatusProcessing, model.LoanStatusFailed},
	}
	for _, tt := range tests {
		loan := model.LoanApplication{ID: "1", Status: tt.from}
		require.NoError(t, Transition(&loan, tt.to))
		require.Equal(t, tt.to, loan.Status)
	}
}

func TestTransitionFromTerminal(t *testing.T) {
	for _, from := range allStatuses {
		if !IsTerminal(from) {
			continue
		}
		for _, to := range allStatuses {
			loan := model.LoanApplication{ID: "1", Status: from}
			err := Transition(&loan, to)
			require.ErrorIs(t, err, ErrIllegalTransition)
			require.Equal(t, from, loan.Status)
		}
	}
}

func TestTransitionBackwards(t *testing.T) {
	loan := model.LoanApplication{ID: "1", Status: model.LoanStatusProcessing}
	require.ErrorIs(t, Transition(&loan, model.LoanStatusPending), ErrIllegalTransition)
	require.ErrorIs(t, Transition(&loan, model.LoanStatusProcessing), ErrIllegalTransition)
	require.Equal(t, model.LoanStatusProcessing, loan.Status)
}

func TestRecordPending(t *testing.T) {
	const maxRetries = 5

	loan := model.LoanApplication{ID: "1", Status: model.LoanStatusProcessing}
	for i := 1; i <= maxRetries; i++ {
		retry, err := RecordPending(&loan, maxRetries)
		require.NoError(t, err)
		require.True(t, retry)
		require.Equal(t, i, loan.RetryCount)
	}

	// потолок
	retry, err := RecordPending(&loan, maxRetries)
	require.NoError(t, err)
	require.False(t, retry)
	require.Equal(t, maxRetries, loan.RetryCount)
	require.Equal(t, model.LoanStatusFailed, loan.Status)

	_, err = RecordPending(&loan, maxRetries)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Equal(t, maxRetries, loan.RetryCount)
}

func TestComplete(t *testing.T) {
	loan := model.LoanApplication{ID: "1", Status: model.LoanStatusProcessing}
	require.NoError(t, Complete(&loan, true))
	require.Equal(t, model.LoanStatusApproved, loan.Status)

	loan = model.LoanApplication{ID: "2", Status: model.LoanStatusProcessing}
	require.NoError(t, Complete(&loan, false))
	require.Equal(t, model.LoanStatusRejected, loan.Status)
}

func TestIsActive(t *testing.T) {
	require.True(t, IsActive(model.LoanStatusPending))
	require.True(t, IsActive(model.LoanStatusProcessing))
	require.False(t, IsActive(model.LoanStatusApproved))
	require.False(t, IsActive(model.LoanStatusFailed))
}
