package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/mq"
	"github.com/shaiso/Mailflow/internal/repo"
	"github.com/shaiso/Mailflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 15 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
	maxBackoff          = time.Hour
)

// JobStore — операции воркера над очередью доставки.
// Реализуется repo.DeliveryRepo; в тестах — in-memory фейком.
type JobStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryJob, error)
	ClaimPending(ctx context.Context, id uuid.UUID) (*domain.DeliveryJob, error)
	Update(ctx context.Context, job *domain.DeliveryJob) error
}

// SettingsStore — снимок настроек.
type SettingsStore interface {
	Load(ctx context.Context) (*domain.Settings, error)
}

// Worker доставляет задания очереди: письма через SMTP, webhook через HTTP.
//
// Worker — stateless компонент системы, который:
//   - Получает задания из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending задания в БД (polling fallback)
//   - Атомарно захватывает задание (pending → processing)
//   - Реализует retry с exponential backoff
type Worker struct {
	// Stores
	jobs     JobStore
	settings SettingsStore

	// Transports
	email   EmailSender
	webhook WebhookCaller

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Worker.
type Config struct {
	// Stores
	Jobs     JobStore
	Settings SettingsStore

	// Transports
	Email   EmailSender
	Webhook WebhookCaller

	// MQ (опционально; если nil — только polling)
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 15s)
	BatchSize    int           // количество заданий за один poll (default: 50)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	webhook := cfg.Webhook
	if webhook == nil {
		webhook = NewHTTPWebhookCaller(nil)
	}

	return &Worker{
		jobs:         cfg.Jobs,
		settings:     cfg.Settings,
		email:        cfg.Email,
		webhook:      webhook,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для deliveries.queued
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting delivery worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueDeliveriesQueued),
			Handler:  w.handleDeliveryQueued,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("delivery consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("delivery worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping delivery worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("delivery worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем задания, созданные
	// пока воркер был выключен)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.jobs.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to list due delivery jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	w.logger.Debug("poll found due delivery jobs", "count", len(jobs))

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := w.ProcessJob(ctx, jobs[i].ID); err != nil {
			w.logger.Error("failed to process delivery job from poll",
				"job_id", jobs[i].ID,
				"error", err,
			)
		}
	}
}

// handleDeliveryQueued обрабатывает событие о новом задании доставки.
func (w *Worker) handleDeliveryQueued(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.DeliveryQueuedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse delivery.queued payload", "error", err)
		return err
	}

	w.logger.Debug("received delivery.queued event", "job_id", payload.JobID)

	if err := w.ProcessJob(ctx, payload.JobID); err != nil {
		w.logger.Error("failed to process delivery job", "job_id", payload.JobID, "error", err)
		return err
	}
	return nil
}

// ProcessJob выполняет одну попытку доставки задания.
//
//  1. Атомарный захват pending → processing (попытка инкрементируется в БД)
//  2. Отправка через транспорт
//  3. Успех → sent; постоянная ошибка → failed/bounced;
//     временная → pending с backoff или failed при исчерпании попыток
func (w *Worker) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	settings, err := w.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Захват задания. Проигрыш гонки с другим воркером — не ошибка.
	job, err := w.jobs.ClaimPending(ctx, jobID)
	if errors.Is(err, repo.ErrClaimLost) {
		w.logger.Debug("delivery job already taken", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim delivery job: %w", err)
	}

	w.logger.Info("delivery attempt started",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
	)

	started := time.Now()
	messageID, sendErr := w.dispatch(ctx, job)
	telemetry.DeliveryDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(started).Seconds())

	now := w.now()

	if sendErr == nil {
		job.MarkSent(messageID, now)
		if err := w.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("update delivery job to sent: %w", err)
		}

		telemetry.DeliveryAttempts.WithLabelValues(string(job.Kind), "sent").Inc()
		w.logger.Info("delivery succeeded",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempts,
		)
		return nil
	}

	return w.handleFailure(ctx, job, settings, sendErr, now)
}

// dispatch выполняет доставку в зависимости от вида задания.
func (w *Worker) dispatch(ctx context.Context, job *domain.DeliveryJob) (string, error) {
	switch job.Kind {
	case domain.DeliveryKindEmail:
		if job.Email == nil {
			return "", Permanent(errors.New("email job without payload"))
		}
		if w.email == nil {
			return "", errors.New("email sender not configured")
		}
		return w.email.Send(ctx, job.Email)

	case domain.DeliveryKindWebhook:
		if job.Webhook == nil {
			return "", Permanent(errors.New("webhook job without payload"))
		}
		return "", w.webhook.Call(ctx, job.Webhook)

	default:
		return "", Permanent(fmt.Errorf("unknown delivery kind %q", job.Kind))
	}
}

// handleFailure обрабатывает ошибку попытки доставки.
func (w *Worker) handleFailure(ctx context.Context, job *domain.DeliveryJob, settings *domain.Settings, sendErr error, now time.Time) error {
	switch {
	case IsBounce(sendErr):
		job.MarkBounced(sendErr.Error(), now)
		telemetry.DeliveryAttempts.WithLabelValues(string(job.Kind), "bounced").Inc()

	case IsPermanent(sendErr):
		job.MarkFailed(sendErr.Error(), now)
		telemetry.DeliveryAttempts.WithLabelValues(string(job.Kind), "failed").Inc()

	case settings.RetryFailedJobs && job.CanRetry():
		job.Rearm(now.Add(backoff(job.Attempts, settings.DefaultRetryDelay())), sendErr.Error(), now)
		telemetry.DeliveryAttempts.WithLabelValues(string(job.Kind), "retry").Inc()

	default:
		job.MarkFailed(sendErr.Error(), now)
		telemetry.DeliveryAttempts.WithLabelValues(string(job.Kind), "failed").Inc()
	}

	if err := w.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update delivery job after failure: %w", err)
	}

	w.logger.Warn("delivery attempt failed",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempts,
		"status", job.Status,
		"error", sendErr,
	)
	return nil
}

// backoff вычисляет задержку перед повтором доставки.
// delay = initialDelay * 2^(attempt-1), с потолком maxBackoff.
func backoff(attempt int, initialDelay time.Duration) time.Duration {
	if initialDelay <= 0 {
		initialDelay = time.Minute
	}

	delay := initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
