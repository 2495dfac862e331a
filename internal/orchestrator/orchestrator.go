// Package orchestrator доводит заявку на кредит от выданного токена скоринга до конечного статуса.
//
// Каждый вызов CheckLoanScore - один опрос скоринга. Если результат не готов,
// следующий опрос ставится в очередь с задержкой; после MaxRetries опросов заявка
// переводится в FAILED.
//
// Опрос, прерванный остановкой сервиса, заявку не меняет: задача возвращается в очередь.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/lifecycle"
	"github.com/iurnickita/loanmanager/internal/model"
	"github.com/iurnickita/loanmanager/internal/orchestrator/config"
	"github.com/iurnickita/loanmanager/internal/scheduler"
	"github.com/iurnickita/loanmanager/internal/store"
)

// ScoreGetter - часть шлюза скоринга, нужная для опроса
type ScoreGetter interface {
	GetScore(ctx context.Context, token string) (model.ScoreResult, error)
}

type Orchestrator struct {
	cfg       config.Config
	store     store.Store
	scoring   ScoreGetter
	scheduler scheduler.Scheduler
	zaplog    *zap.Logger
	locks     loanLocks
}

// Время на запись итога, когда контекст опроса уже отменен
const detachedWriteTimeout = 5 * time.Second

var ErrUnexpectedScore = errors.New("unexpected score result")

func NewOrchestrator(cfg config.Config, store store.Store, scoring ScoreGetter, scheduler scheduler.Scheduler, zaplog *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		scoring:   scoring,
		scheduler: scheduler,
		zaplog:    zaplog,
		locks:     loanLocks{locks: make(map[string]*loanLock)},
	}
}

// loanLocks - мьютексы по id заявки. Второй вызов для той же заявки ждет первый, а не теряется.
type loanLocks struct {
	mu    sync.Mutex
	locks map[string]*loanLock
}

type loanLock struct {
	mu   sync.Mutex
	refs int
}

func (l *loanLocks) lock(loanID string) (unlock func()) {
	l.mu.Lock()
	lock, ok := l.locks[loanID]
	if !ok {
		lock = &loanLock{}
		l.locks[loanID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, loanID)
		}
		l.mu.Unlock()
	}
}

// Start ставит первый опрос скоринга для новой заявки.
func (o *Orchestrator) Start(ctx context.Context, loanID string) error {
	return o.scheduler.Schedule(ctx, loanID, 0)
}

// Resume ставит опрос для всех заявок в PROCESSING. Вызывается при старте:
// задачи локальной очереди не переживают перезапуск процесса.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	loans, err := o.store.LoanListActive(ctx)
	if err != nil {
		return 0, err
	}
	scheduled := 0
	for _, loan := range loans {
		// у PENDING нет токена и переходов
		if loan.Status != model.LoanStatusProcessing {
			continue
		}
		if err = o.scheduler.Schedule(ctx, loan.ID, 0); err != nil {
			return scheduled, fmt.Errorf("resume loan %s: %w", loan.ID, err)
		}
		scheduled++
	}
	return scheduled, nil
}

// Handle - обработчик задач очереди.
func (o *Orchestrator) Handle(ctx context.Context, loanID string) {
	o.CheckLoanScore(ctx, loanID)
}

// CheckLoanScore выполняет один опрос скоринга для заявки.
// Ошибки не возвращаются: любой сбой заканчивается статусом FAILED.
// Вызовы для одной заявки в процессе выполняются по очереди.
func (o *Orchestrator) CheckLoanScore(ctx context.Context, loanID string) {
	unlock := o.locks.lock(loanID)
	defer unlock()

	o.checkLoanScore(ctx, loanID)
}

func (o *Orchestrator) checkLoanScore(ctx context.Context, loanID string) {
	log := o.zaplog.With(zap.String("loan", loanID))

	loan, err := o.store.LoanGet(ctx, loanID)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			// заявку удалили
			log.Info("loan application is gone, scoring check skipped")
			return
		}
		o.fail(ctx, log, loanID, fmt.Errorf("load loan: %w", err))
		return
	}
	if lifecycle.IsTerminal(loan.Status) {
		log.Info("loan application is already final, scoring check skipped",
			zap.String("status", string(loan.Status)))
		return
	}

	result, err := o.scoring.GetScore(ctx, loan.ScoringToken)
	if err != nil {
		o.fail(ctx, log, loanID, fmt.Errorf("get score: %w", err))
		return
	}

	switch result.Status {
	case model.ScoreStatusCompleted:
		o.complete(ctx, log, loanID, result)
	case model.ScoreStatusPending:
		o.pending(ctx, log, loanID)
	default:
		o.fail(ctx, log, loanID, fmt.Errorf("%w: status %q", ErrUnexpectedScore, result.Status))
	}
}

func (o *Orchestrator) complete(ctx context.Context, log *zap.Logger, loanID string, result model.ScoreResult) {
	loan, err := o.store.LoanUpdate(ctx, loanID, func(loan *model.LoanApplication) error {
		if lifecycle.IsTerminal(loan.Status) {
			return store.ErrNoChange
		}
		return lifecycle.Complete(loan, result.Approved)
	})
	if err != nil {
		o.fail(ctx, log, loanID, fmt.Errorf("complete loan: %w", err))
		return
	}
	log.Info("loan application scored",
		zap.String("status", string(loan.Status)),
		zap.Int("score", result.Score),
		zap.String("limit", result.LimitAmount.String()),
		zap.Int("retries", loan.RetryCount),
	)
}

func (o *Orchestrator) pending(ctx context.Context, log *zap.Logger, loanID string) {
	var retry bool
	loan, err := o.store.LoanUpdate(ctx, loanID, func(loan *model.LoanApplication) error {
		if lifecycle.IsTerminal(loan.Status) {
			return store.ErrNoChange
		}
		var err error
		retry, err = lifecycle.RecordPending(loan, o.cfg.MaxRetries)
		return err
	})
	if err != nil {
		o.fail(ctx, log, loanID, fmt.Errorf("record pending score: %w", err))
		return
	}

	if !retry {
		if loan.Status == model.LoanStatusFailed {
			log.Warn("scoring retries exhausted", zap.Int("retries", loan.RetryCount))
		}
		return
	}

	// следующий опрос - отдельная задача
	if err = o.scheduler.Schedule(ctx, loanID, o.cfg.RetryDelay); err != nil {
		o.fail(ctx, log, loanID, fmt.Errorf("schedule retry: %w", err))
		return
	}
	log.Debug("score is not ready, retry scheduled",
		zap.Int("retries", loan.RetryCount),
		zap.Duration("delay", o.cfg.RetryDelay),
	)
}

// fail переводит заявку в FAILED. Заявку в конечном статусе не трогает.
// Если опрос прерван отменой ctx, заявка не меняется и опрос ставится заново.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, loanID string, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedWriteTimeout)
	defer cancel()

	if ctx.Err() != nil {
		log.Info("scoring check interrupted, task returned to queue", zap.Error(cause))
		if err := o.scheduler.Schedule(writeCtx, loanID, 0); err != nil {
			log.Error("could not return scoring check to queue", zap.Error(err))
		}
		return
	}

	if errors.Is(cause, lifecycle.ErrIllegalTransition) {
		log.DPanic("loan lifecycle violated", zap.Error(cause))
	} else {
		log.Error("scoring check failed", zap.Error(cause))
	}

	_, err := o.store.LoanUpdate(writeCtx, loanID, func(loan *model.LoanApplication) error {
		if lifecycle.IsTerminal(loan.Status) {
			return store.ErrNoChange
		}
		return lifecycle.Transition(loan, model.LoanStatusFailed)
	})
	if err != nil && !errors.Is(err, store.ErrNoRows) {
		log.Error("could not mark loan application as failed", zap.Error(err))
	}
}
