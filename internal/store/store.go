package store

import (
	"context"
	"errors"

	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/store/config"
)

type Store interface {
	CustomerPut(ctx context.Context, customer model.Customer) (model.Customer, error)
	CustomerGet(ctx context.Context, number string) (model.Customer, error)
	LoanPost(ctx context.Context, loan model.LoanApplication) error
	LoanGet(ctx context.Context, id string) (model.LoanApplication, error)
	LoanUpdate(ctx context.Context, id string, update LoanUpdateFunc) (model.LoanApplication, error)
	LoanGetActive(ctx context.Context, customer string) (model.LoanApplication, error)
	LoanListActive(ctx context.Context) ([]model.LoanApplication, error)
	ScoringConfigPost(ctx context.Context, cfg model.ScoringEngineConfig) (model.ScoringEngineConfig, error)
	ScoringConfigGetLatest(ctx context.Context) (model.ScoringEngineConfig, error)
}

// LoanUpdateFunc изменяет заявку под блокировкой записи.
// Вернуть ErrNoChange - ничего не записывать.
type LoanUpdateFunc func(loan *model.LoanApplication) error

var (
	ErrNoRows           = errors.New("no rows")
	ErrActiveLoanExists = errors.New("customer already has an active loan")
	ErrNoChange         = errors.New("no change")
)

// NewStore выбирает хранилище по конфигурации.
func NewStore(ctx context.Context, cfg config.Config) (Store, error) {
	if cfg.DBDsn == "" {
		return NewMemStore(), nil
	}
	return NewPgStore(ctx, cfg)
}
