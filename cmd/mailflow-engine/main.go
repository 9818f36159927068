// Mailflow Engine — продвигает контакты по шагам flows.
//
// Engine:
//   - Периодически выбирает due-set автоматизаций из Postgres
//   - Реагирует на события подписки из RabbitMQ
//   - Захватывает аренду на автоматизацию и выполняет текущий шаг
//   - Ставит письма и webhook в долговечную очередь доставки
//
// Engines масштабируются горизонтально — аренды исключают двойное
// выполнение шага несколькими экземплярами.
//
// Переменная CYCLE_CRON переводит циклы с интервального polling на
// cron-расписание (polling при этом растягивается большим интервалом).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Mailflow/internal/engine"
	"github.com/shaiso/Mailflow/internal/mq"
	"github.com/shaiso/Mailflow/internal/repo"
	"github.com/shaiso/Mailflow/internal/scheduler"
	"github.com/shaiso/Mailflow/internal/telemetry"
)

// cronPollInterval — фактически выключенный polling при работе по cron.
const cronPollInterval = time.Hour

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mailflow-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	flowRepo := repo.NewFlowRepo(pool)
	automationRepo := repo.NewAutomationRepo(pool)
	contactRepo := repo.NewContactRepo(pool)
	templateRepo := repo.NewTemplateRepo(pool)
	deliveryRepo := repo.NewDeliveryRepo(pool)
	settingsRepo := repo.NewSettingsRepo(pool)
	statsRepo := repo.NewStatsRepo(pool)

	// RabbitMQ
	var notifier engine.DeliveryNotifier
	var mqConn *mq.Connection
	mqConn, err = mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		notifier = mq.NewPublisher(mqConn, logger)
	}

	// Создаём executor шагов
	executor := engine.NewExecutor(engine.ExecutorConfig{
		Contacts:        contactRepo,
		Templates:       templateRepo,
		Deliveries:      deliveryRepo,
		Notifier:        notifier,
		TrackingBaseURL: os.Getenv("TRACKING_BASE_URL"),
		Logger:          logger,
	})

	cronExpr := os.Getenv("CYCLE_CRON")

	cfg := engine.Config{
		Automations: automationRepo,
		Flows:       flowRepo,
		Settings:    settingsRepo,
		GlobalStats: statsRepo,
		Executor:    executor,
		Conn:        mqConn,
		Logger:      logger,
	}
	if cronExpr != "" {
		cfg.PollInterval = cronPollInterval
	}

	// Создаём engine
	eng := engine.New(cfg)

	// Запускаем engine
	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Опционально: циклы по cron-расписанию
	var sched *scheduler.Scheduler
	if cronExpr != "" {
		sched, err = scheduler.New(scheduler.Config{
			Runner:   eng,
			CronExpr: cronExpr,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("invalid CYCLE_CRON", "error", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// HTTP mux: /healthz + /metrics + ручной запуск цикла
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.HandleFunc("POST /cycle", func(w http.ResponseWriter, r *http.Request) {
		if err := eng.Cycle(r.Context()); err != nil {
			logger.Error("manual cycle failed", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("cycle complete"))
	})

	port := ":8081"
	if v := os.Getenv("ENGINE_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем engine (и scheduler, если был)
	if sched != nil {
		sched.Stop()
	}
	eng.Stop()
	logger.Info("mailflow-engine stopped")
}
