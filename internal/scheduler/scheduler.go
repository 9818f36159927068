package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CycleRunner — компонент, умеющий выполнить цикл обработки.
// Реализуется engine.Engine.
type CycleRunner interface {
	Cycle(ctx context.Context) error
}

// Scheduler запускает циклы обработки по cron-расписанию.
//
// Используется вместо интервального polling движка там, где циклы
// должны идти по календарю (например, только в рабочие часы или со
// смещением между экземплярами). Polling движка при этом выключается
// большим интервалом.
type Scheduler struct {
	runner   CycleRunner
	cronExpr string

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	// Runner — исполнитель циклов.
	Runner CycleRunner

	// CronExpr — cron-выражение расписания (5 полей).
	CronExpr string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Scheduler. Невалидное cron-выражение — ошибка.
func New(cfg Config) (*Scheduler, error) {
	if err := ValidateCronExpr(cfg.CronExpr); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runner:   cfg.Runner,
		cronExpr: cfg.CronExpr,
		logger:   logger,
	}, nil
}

// Start запускает расписание.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting scheduler", "cron", s.cronExpr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	return nil
}

// Stop останавливает расписание.
func (s *Scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// run — основной цикл: ждём следующего срабатывания, выполняем цикл.
func (s *Scheduler) run(ctx context.Context) {
	for {
		next, err := NextAfter(s.cronExpr, time.Now())
		if err != nil {
			// Выражение проверено в New; сюда попадать не должны
			s.logger.Error("cron parse failed", "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.runner.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduled cycle failed", "error", err)
		}
	}
}

// String описывает расписание для логирования.
func (s *Scheduler) String() string {
	return fmt.Sprintf("scheduler(%s)", s.cronExpr)
}
