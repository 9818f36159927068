// Mailflow Delivery — воркер очереди доставки.
//
// Worker:
//   - Получает задания доставки из RabbitMQ (event-driven)
//   - Периодически проверяет pending задания в БД (polling fallback)
//   - Отправляет письма через SMTP и вызывает webhook через HTTP
//   - Повторяет неуспешные задания с exponential backoff
//
// Workers масштабируются горизонтально — атомарный захват задания
// (pending → processing) исключает двойную доставку.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Mailflow/internal/delivery"
	"github.com/shaiso/Mailflow/internal/mq"
	"github.com/shaiso/Mailflow/internal/repo"
	"github.com/shaiso/Mailflow/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mailflow-delivery")

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

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.DefaultURL(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Создаём worker
	worker := delivery.New(delivery.Config{
		Jobs:     repo.NewDeliveryRepo(pool),
		Settings: repo.NewSettingsRepo(pool),
		Email:    delivery.NewSMTPSender(delivery.SMTPConfigFromEnv(), logger),
		Conn:     mqConn,
		Logger:   logger,
	})

	// Запускаем worker
	if err := worker.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", telemetry.MetricsHandler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
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

	// Останавливаем worker
	worker.Stop()
	logger.Info("mailflow-delivery stopped")
}
