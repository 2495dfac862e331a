package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/gateway/cbs"
	"github.com/iurnickita/loanmanager/internal/gateway/scoring"
	"github.com/iurnickita/loanmanager/internal/lifecycle"
	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/store"
)

type Service interface {
	RegisterClient(ctx context.Context, registration model.ClientRegistration) (model.ScoringEngineConfig, error)
	Subscribe(ctx context.Context, customer string) (model.Customer, error)
	RequestLoan(ctx context.Context, customer string, amount decimal.Decimal) (model.LoanApplication, error)
	GetLoan(ctx context.Context, id string) (model.LoanApplication, error)
	InitiateQueryScore(ctx context.Context, customer string) (string, error)
	QueryScore(ctx context.Context, token string) (model.ScoreResult, error)
	GetTransactions(ctx context.Context, customer string) ([]model.Transaction, error)
	GatewayModes() map[string]string
}

// ScoringStarter запускает асинхронный опрос скоринга для новой заявки
type ScoringStarter interface {
	Start(ctx context.Context, loanID string) error
}

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidAmount    = errors.New("amount must be between 1.00 and 1000000.00 with at most two decimal places")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrActiveLoan       = errors.New("customer has an ongoing loan application")
	ErrLoanNotFound     = errors.New("loan application not found")
)

type service struct {
	store   store.Store
	cbs     cbs.Client
	scoring scoring.Client
	starter ScoringStarter
	zaplog  *zap.Logger
}

func NewService(store store.Store, cbs cbs.Client, scoring scoring.Client, starter ScoringStarter, zaplog *zap.Logger) Service {
	return &service{
		store:   store,
		cbs:     cbs,
		scoring: scoring,
		starter: starter,
		zaplog:  zaplog,
	}
}

func (service *service) RegisterClient(ctx context.Context, registration model.ClientRegistration) (model.ScoringEngineConfig, error) {
	if registration.URL == "" || registration.Name == "" ||
		registration.Username == "" || registration.Password == "" {
		return model.ScoringEngineConfig{}, ErrInsufficientData
	}
	return service.scoring.Register(ctx, registration)
}

// Subscribe проверяет клиента в CBS и создает или обновляет его запись.
func (service *service) Subscribe(ctx context.Context, customer string) (model.Customer, error) {
	if customer == "" {
		return model.Customer{}, ErrInsufficientData
	}

	info, err := service.cbs.GetCustomerInfo(ctx, customer)
	if err != nil {
		if errors.Is(err, cbs.ErrCustomerNotFound) {
			return model.Customer{}, ErrCustomerNotFound
		}
		return model.Customer{}, err
	}

	return service.store.CustomerPut(ctx, model.Customer{
		Number:    customer,
		FirstName: info.FirstName,
		LastName:  info.LastName,
	})
}

func validAmount(amount decimal.Decimal) bool {
	if amount.LessThan(model.LoanAmountMin) || amount.GreaterThan(model.LoanAmountMax) {
		return false
	}
	return amount.Equal(amount.Round(2))
}

// RequestLoan создает заявку в статусе PROCESSING с токеном скоринга и запускает опрос скоринга.
func (service *service) RequestLoan(ctx context.Context, customer string, amount decimal.Decimal) (model.LoanApplication, error) {
	if customer == "" || amount.IsZero() {
		return model.LoanApplication{}, ErrInsufficientData
	}
	if !validAmount(amount) {
		return model.LoanApplication{}, ErrInvalidAmount
	}

	// Проверка: уже есть активная заявка
	_, err := service.store.LoanGetActive(ctx, customer)
	switch {
	case err == nil:
		return model.LoanApplication{}, ErrActiveLoan
	case !errors.Is(err, store.ErrNoRows):
		return model.LoanApplication{}, err
	}

	// Проверка: клиент подписан
	if _, err = service.store.CustomerGet(ctx, customer); err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.LoanApplication{}, ErrCustomerNotFound
		}
		return model.LoanApplication{}, err
	}

	token, err := service.scoring.InitiateScoring(ctx, customer)
	if err != nil {
		return model.LoanApplication{}, err
	}

	now := time.Now()
	loan := model.LoanApplication{
		ID:             uuid.NewString(),
		CustomerNumber: customer,
		Amount:         amount.Round(2),
		ScoringToken:   token,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = lifecycle.Transition(&loan, model.LoanStatusProcessing); err != nil {
		return model.LoanApplication{}, err
	}

	if err = service.store.LoanPost(ctx, loan); err != nil {
		if errors.Is(err, store.ErrActiveLoanExists) {
			return model.LoanApplication{}, ErrActiveLoan
		}
		return model.LoanApplication{}, err
	}

	if err = service.starter.Start(ctx, loan.ID); err != nil {
		// без опроса заявка не дойдет до конечного статуса
		service.zaplog.Error("could not start scoring check",
			zap.String("loan", loan.ID),
			zap.Error(err),
		)
		_, failErr := service.store.LoanUpdate(ctx, loan.ID, func(l *model.LoanApplication) error {
			return lifecycle.Transition(l, model.LoanStatusFailed)
		})
		return model.LoanApplication{}, errors.Join(err, failErr)
	}

	return loan, nil
}

func (service *service) GetLoan(ctx context.Context, id string) (model.LoanApplication, error) {
	if id == "" {
		return model.LoanApplication{}, ErrInsufficientData
	}
	if _, err := uuid.Parse(id); err != nil {
		return model.LoanApplication{}, ErrLoanNotFound
	}

	loan, err := service.store.LoanGet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.LoanApplication{}, ErrLoanNotFound
		}
		return model.LoanApplication{}, err
	}
	return loan, nil
}

func (service *service) InitiateQueryScore(ctx context.Context, customer string) (string, error) {
	if customer == "" {
		return "", ErrInsufficientData
	}
	return service.scoring.InitiateScoring(ctx, customer)
}

func (service *service) QueryScore(ctx context.Context, token string) (model.ScoreResult, error) {
	if token == "" {
		return model.ScoreResult{}, ErrInsufficientData
	}
	return service.scoring.GetScore(ctx, token)
}

func (service *service) GetTransactions(ctx context.Context, customer string) ([]model.Transaction, error) {
	if customer == "" {
		return nil, ErrInsufficientData
	}

	transactions, err := service.cbs.GetTransactionHistory(ctx, customer)
	if err != nil {
		if errors.Is(err, cbs.ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return transactions, nil
}

func (service *service) GatewayModes() map[string]string {
	return map[string]string{
		"cbs":     service.cbs.Mode().String(),
		"scoring": service.scoring.Mode().String(),
	}
}
