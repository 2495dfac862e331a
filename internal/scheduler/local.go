package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Local - отложенные задачи на таймерах процесса.
// Задачи, не дождавшиеся запуска к остановке Run, теряются вместе с процессом.
type Local struct {
	tasks  chan string
	done   chan struct{}
	once   sync.Once
	zaplog *zap.Logger
}

func NewLocal(zaplog *zap.Logger) *Local {
	return &Local{
		tasks:  make(chan string),
		done:   make(chan struct{}),
		zaplog: zaplog,
	}
}

func (s *Local) Schedule(_ context.Context, loanID string, delay time.Duration) error {
	s.zaplog.Debug("task scheduled",
		zap.String("loan", loanID),
		zap.Duration("delay", delay),
	)
	time.AfterFunc(delay, func() {
		select {
		case s.tasks <- loanID:
		case <-s.done:
		}
	})
	return nil
}

func (s *Local) Run(ctx context.Context, handler Handler) error {
	defer s.once.Do(func() { close(s.done) })

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case loanID := <-s.tasks:
			wg.Add(1)
			go func() {
				defer wg.Done()
				handler(ctx, loanID)
			}()
		}
	}
}
