// Package scheduler - очередь отложенных задач проверки скоринга.
//
// Повтор проверки - это новая задача с задержкой, а не ожидание внутри текущей.
package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iurnickita/loanmanager/internal/scheduler/config"
)

// Handler выполняет одну задачу для заявки.
type Handler func(ctx context.Context, loanID string)

type Scheduler interface {
	// Schedule ставит задачу для заявки через delay. Не блокирует.
	Schedule(ctx context.Context, loanID string, delay time.Duration) error
	// Run выполняет задачи до отмены ctx.
	Run(ctx context.Context, handler Handler) error
}

// NewScheduler выбирает очередь по конфигурации: Redis, если задан адрес, иначе в памяти процесса.
func NewScheduler(ctx context.Context, cfg config.Config, zaplog *zap.Logger) (Scheduler, error) {
	if cfg.RedisAddr == "" {
		return NewLocal(zaplog), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	zaplog.Info("scheduler uses redis", zap.String("addr", cfg.RedisAddr))

	return NewRedis(client, cfg.QueueKey, cfg.PollInterval, zaplog), nil
}
