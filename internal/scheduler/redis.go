package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultQueueKey     = "loanmanager:scoring:tasks"
	defaultPollInterval = 500 * time.Millisecond
	claimBatch          = 100
)

// Redis - отложенные задачи в sorted set: член - id заявки, вес - время запуска в мс.
// Задачу забирает тот обработчик, чей ZREM удалил член, поэтому она выполняется один раз
// при любом числе экземпляров сервиса. Одна заявка в очереди не более одного раза.
type Redis struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
	zaplog       *zap.Logger
}

func NewRedis(client *redis.Client, key string, pollInterval time.Duration, zaplog *zap.Logger) *Redis {
	if key == "" {
		key = defaultQueueKey
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Redis{
		client:       client,
		key:          key,
		pollInterval: pollInterval,
		zaplog:       zaplog,
	}
}

// Schedule не сдвигает уже поставленную задачу заявки: повторная постановка при старте
// не должна тратить попытку раньше срока.
func (s *Redis) Schedule(ctx context.Context, loanID string, delay time.Duration) error {
	due := time.Now().Add(delay).UnixMilli()
	return s.client.ZAddNX(ctx, s.key, redis.Z{Score: float64(due), Member: loanID}).Err()
}

func (s *Redis) Run(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// забранные задачи выполняются даже при ошибке: в очереди их уже нет
			loanIDs, err := s.claimDue(ctx)
			for _, loanID := range loanIDs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					handler(ctx, loanID)
				}()
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.zaplog.Error("scheduler poll failed", zap.Error(err))
			}
		}
	}
}

// claimDue забирает задачи, время которых наступило.
func (s *Redis) claimDue(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: claimBatch,
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]string, 0, len(due))
	for _, loanID := range due {
		removed, err := s.client.ZRem(ctx, s.key, loanID).Result()
		if err != nil {
			return claimed, err
		}
		// 0 - задачу забрал другой экземпляр
		if removed == 1 {
			claimed = append(claimed, loanID)
		}
	}
	return claimed, nil
}
