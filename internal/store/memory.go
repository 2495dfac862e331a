package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iurnickita/loanmanager/internal/lifecycle"
	"github.com/iurnickita/loanmanager/internal/model"
)

// memStore - хранилище в памяти процесса. Используется без DATABASE_URI и в тестах.
type memStore struct {
	mu             sync.Mutex
	customers      map[string]model.Customer
	loans          map[string]model.LoanApplication
	scoringConfigs []model.ScoringEngineConfig
	lastCustomerID int64
}

func NewMemStore() Store {
	return &memStore{
		customers: make(map[string]model.Customer),
		loans:     make(map[string]model.LoanApplication),
	}
}

func (store *memStore) CustomerPut(_ context.Context, customer model.Customer) (model.Customer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now()
	if existing, ok := store.customers[customer.Number]; ok {
		existing.FirstName = customer.FirstName
		existing.LastName = customer.LastName
		existing.UpdatedAt = now
		store.customers[customer.Number] = existing
		return existing, nil
	}

	store.lastCustomerID++
	customer.ID = store.lastCustomerID
	customer.CreatedAt = now
	customer.UpdatedAt = now
	store.customers[customer.Number] = customer
	return customer, nil
}

func (store *memStore) CustomerGet(_ context.Context, number string) (model.Customer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	customer, ok := store.customers[number]
	if !ok {
		return model.Customer{}, ErrNoRows
	}
	return customer, nil
}

func (store *memStore) LoanPost(_ context.Context, loan model.LoanApplication) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.customers[loan.CustomerNumber]; !ok {
		return ErrNoRows
	}
	if lifecycle.IsActive(loan.Status) {
		if _, ok := store.activeLoan(loan.CustomerNumber); ok {
			return ErrActiveLoanExists
		}
	}
	store.loans[loan.ID] = loan
	return nil
}

func (store *memStore) LoanGet(_ context.Context, id string) (model.LoanApplication, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	loan, ok := store.loans[id]
	if !ok {
		return model.LoanApplication{}, ErrNoRows
	}
	return loan, nil
}

func (store *memStore) LoanUpdate(_ context.Context, id string, update LoanUpdateFunc) (model.LoanApplication, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	before, ok := store.loans[id]
	if !ok {
		return model.LoanApplication{}, ErrNoRows
	}

	loan := before
	err := update(&loan)
	if errors.Is(err, ErrNoChange) {
		return before, nil
	}
	if err != nil {
		return before, err
	}

	// Меняются только статус и retry_count
	before.Status = loan.Status
	before.RetryCount = loan.RetryCount
	before.UpdatedAt = time.Now()
	store.loans[id] = before
	return before, nil
}

func (store *memStore) LoanGetActive(_ context.Context, customer string) (model.LoanApplication, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	loan, ok := store.activeLoan(customer)
	if !ok {
		return model.LoanApplication{}, ErrNoRows
	}
	return loan, nil
}

func (store *memStore) LoanListActive(_ context.Context) ([]model.LoanApplication, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var loans []model.LoanApplication
	for _, loan := range store.loans {
		if lifecycle.IsActive(loan.Status) {
			loans = append(loans, loan)
		}
	}
	// как в Postgres: старые заявки первыми
	sort.Slice(loans, func(i, j int) bool {
		return loans[i].CreatedAt.Before(loans[j].CreatedAt)
	})
	return loans, nil
}

func (store *memStore) activeLoan(customer string) (model.LoanApplication, bool) {
	for _, loan := range store.loans {
		if loan.CustomerNumber == customer && lifecycle.IsActive(loan.Status) {
			return loan, true
		}
	}
	return model.LoanApplication{}, false
}

func (store *memStore) ScoringConfigPost(_ context.Context, cfg model.ScoringEngineConfig) (model.ScoringEngineConfig, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	store.scoringConfigs = append(store.scoringConfigs, cfg)
	return cfg, nil
}

func (store *memStore) ScoringConfigGetLatest(_ context.Context) (model.ScoringEngineConfig, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if len(store.scoringConfigs) == 0 {
		return model.ScoringEngineConfig{}, ErrNoRows
	}
	// Записи добавляются по времени создания
	return store.scoringConfigs[len(store.scoringConfigs)-1], nil
}
