// Package gateway реализует режимы работы интеграций: Live (вызов внешней системы)
// и Local (детерминированная замена в процессе).
//
// Переход Live -> Local односторонний: после первого сбоя внешней системы
// экземпляр шлюза до конца жизни процесса работает локально.
package gateway

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"
)

type Mode int32

const (
	ModeLive Mode = iota
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ErrMalformedResponse - внешняя система ответила успешно, но ответ не разобрать.
// Это ошибка данных, а не транспорта: переключения в Local нет.
var ErrMalformedResponse = errors.New("malformed response")

// Switch хранит режим одного экземпляра шлюза.
type Switch struct {
	name   string
	local  atomic.Bool
	zaplog *zap.Logger
}

func NewSwitch(name string, mode Mode, zaplog *zap.Logger) *Switch {
	sw := &Switch{name: name, zaplog: zaplog}
	sw.local.Store(mode == ModeLocal)
	return sw
}

func (sw *Switch) Name() string {
	return sw.name
}

func (sw *Switch) Mode() Mode {
	if sw.local.Load() {
		return ModeLocal
	}
	return ModeLive
}

// downgrade переводит шлюз в Local. Обратного перехода нет.
func (sw *Switch) downgrade(op string, err error) {
	if sw.local.CompareAndSwap(false, true) {
		sw.zaplog.Warn("live gateway call failed, switching to local mode",
			zap.String("gateway", sw.name),
			zap.String("operation", op),
			zap.Error(err),
		)
		return
	}
	sw.zaplog.Warn("live gateway call failed",
		zap.String("gateway", sw.name),
		zap.String("operation", op),
		zap.Error(err),
	)
}

// Call выполняет одну логическую операцию шлюза.
// В режиме Live вызывает live; при сбое транспорта или неуспешном ответе
// переключает шлюз в Local и повторяет ту же операцию через local.
func Call[T any](ctx context.Context, sw *Switch, op string, live, local func(ctx context.Context) (T, error)) (T, error) {
	if sw.Mode() == ModeLive {
		result, err := live(ctx)
		if err == nil {
			return result, nil
		}
		if !fallbackEligible(ctx, err) {
			return result, err
		}
		sw.downgrade(op, err)
	}
	return local(ctx)
}

func fallbackEligible(ctx context.Context, err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	// отмена со стороны вызывающего - не сбой внешней системы
	if ctx.Err() != nil {
		return false
	}
	return true
}
