package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/loanmanager/internal/auth"
	"github.com/iurnickita/loanmanager/internal/config"
	"github.com/iurnickita/loanmanager/internal/gateway/cbs"
	"github.com/iurnickita/loanmanager/internal/gateway/scoring"
	"github.com/iurnickita/loanmanager/internal/handler"
	"github.com/iurnickita/loanmanager/internal/logger"
	"github.com/iurnickita/loanmanager/internal/orchestrator"
	"github.com/iurnickita/loanmanager/internal/scheduler"
	"github.com/iurnickita/loanmanager/internal/service"
	"github.com/iurnickita/loanmanager/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	cbsClient := cbs.NewClient(cfg.CBS, zaplog)
	scoringClient, err := scoring.NewClient(ctx, cfg.Scoring, store, zaplog)
	if err != nil {
		return err
	}

	sched, err := scheduler.NewScheduler(ctx, cfg.Scheduler, zaplog)
	if err != nil {
		return err
	}

	orch := orchestrator.NewOrchestrator(cfg.Orchestrator, store, scoringClient, sched, zaplog)

	// заявки, чьи опросы потерялись при прошлой остановке
	resumed, err := orch.Resume(ctx)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(store, zaplog)
	service := service.NewService(store, cbsClient, scoringClient, orch, zaplog)

	zaplog.Info("loan manager starting",
		zap.String("cbs", cbsClient.Mode().String()),
		zap.String("scoring", scoringClient.Mode().String()),
		zap.Bool("postgres", cfg.Store.DBDsn != ""),
		zap.Bool("redis", cfg.Scheduler.RedisAddr != ""),
		zap.Int("resumed", resumed),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx, orch.Handle)
	})
	g.Go(func() error {
		return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
	})
	return g.Wait()
}
