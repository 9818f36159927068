package engine

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

// Значения конфигурации по умолчанию.
const (
	defaultPollInterval = 10 * time.Second
	defaultLeaseFor     = 60 * time.Second
	defaultPrefetch     = 5
)

// Engine продвигает контакты по шагам flow.
//
// Engine — stateless компонент системы, который:
//   - Периодически выбирает due-set из БД (polling)
//   - Реагирует на событие подписки из очереди RabbitMQ (event-driven)
//   - Захватывает аренду на автоматизацию и выполняет текущий шаг
//   - Фиксирует продвижение курсора одним обновлением
//
// Engines масштабируются горизонтально — аренды исключают двойное
// выполнение шага несколькими экземплярами.
type Engine struct {
	// Stores
	automations AutomationStore
	flows       FlowStore
	settings    SettingsStore
	globalStats GlobalStatsStore

	// Executor
	executor *Executor

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	workerID     string
	pollInterval time.Duration
	leaseFor     time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Engine.
type Config struct {
	// Stores
	Automations AutomationStore
	Flows       FlowStore
	Settings    SettingsStore
	GlobalStats GlobalStatsStore

	// Executor
	Executor *Executor

	// MQ (опционально; если nil — только polling)
	Conn *mq.Connection

	// WorkerID — идентификатор экземпляра для аренд (default: engine-<uuid>)
	WorkerID string

	// PollInterval — интервал polling (default: 10s)
	PollInterval time.Duration

	// LeaseFor — срок аренды автоматизации (default: 60s)
	LeaseFor time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	leaseFor := cfg.LeaseFor
	if leaseFor <= 0 {
		leaseFor = defaultLeaseFor
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "engine-" + uuid.NewString()[:8]
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		automations:  cfg.Automations,
		flows:        cfg.Flows,
		settings:     cfg.Settings,
		globalStats:  cfg.GlobalStats,
		executor:     cfg.Executor,
		conn:         cfg.Conn,
		workerID:     workerID,
		pollInterval: pollInterval,
		leaseFor:     leaseFor,
		logger:       logger,
		now:          time.Now,
	}
}

// WorkerID возвращает идентификатор экземпляра.
func (e *Engine) WorkerID() string {
	return e.workerID
}

// Start запускает Engine.
//
// Запускает:
//   - Consumer для automations.enrolled (немедленная обработка подписки)
//   - Polling горутину циклов обработки
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	e.logger.Info("starting engine",
		"worker_id", e.workerID,
		"poll_interval", e.pollInterval,
		"lease_for", e.leaseFor,
	)

	if e.conn != nil {
		e.consumer = mq.NewConsumer(e.conn, e.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueAutomationsEnrolled),
			Handler:  e.handleAutomationEnrolled,
			Prefetch: defaultPrefetch,
		})

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("enrollment consumer error", "error", err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()

	e.logger.Info("engine started")
	return nil
}

// Stop останавливает Engine.
func (e *Engine) Stop() {
	e.stoppedMu.Lock()
	e.stopped = true
	e.stoppedMu.Unlock()

	e.logger.Info("stopping engine...")

	if e.cancelFunc != nil {
		e.cancelFunc()
	}

	if e.consumer != nil {
		e.consumer.Stop()
	}

	e.wg.Wait()

	e.logger.Info("engine stopped")
}

// IsStopped проверяет, остановлен ли Engine.
func (e *Engine) IsStopped() bool {
	e.stoppedMu.RLock()
	defer e.stoppedMu.RUnlock()
	return e.stopped
}

// pollLoop — цикл polling.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Первый цикл сразу при старте (подхватываем просроченные шаги)
	if err := e.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("cycle failed", "error", err)
			}
		}
	}
}

// Cycle выполняет один цикл обработки.
//
//  1. Снимок настроек — неизменяем до конца цикла
//  2. Выборка due-set (батч FetchBatchSizePerProcess)
//  3. Обработка контактов: параллельно при EnableFlowParallelism
//     (семафор MaxConcurrentProcesses), иначе последовательно
//
// Контакты батча независимы: ошибка одного не прерывает остальных.
func (e *Engine) Cycle(ctx context.Context) error {
	started := e.now()
	// Наблюдается каждый цикл, включая пустой due-set
	defer func() {
		telemetry.CycleDuration.Observe(e.now().Sub(started).Seconds())
	}()

	settings, err := e.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	due, err := e.automations.ListDue(ctx, started, settings.FetchBatchSizePerProcess)
	if err != nil {
		return fmt.Errorf("list due automations: %w", err)
	}

	if len(due) == 0 {
		return nil
	}

	e.logger.Debug("cycle found due automations", "count", len(due))

	if settings.EnableFlowParallelism && settings.MaxConcurrentProcesses > 1 {
		sem := make(chan struct{}, settings.MaxConcurrentProcesses)
		var wg sync.WaitGroup
		for i := range due {
			a := due[i]
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				e.processAutomation(ctx, a.ContactID, a.FlowID, settings)
			}()
		}
		wg.Wait()
	} else {
		for i := range due {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.processAutomation(ctx, due[i].ContactID, due[i].FlowID, settings)
		}
	}

	return nil
}

// handleAutomationEnrolled обрабатывает событие подписки контакта —
// первый шаг выполняется сразу, не дожидаясь очередного polling-цикла.
func (e *Engine) handleAutomationEnrolled(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.AutomationEnrolledPayload](&delivery.Message)
	if err != nil {
		e.logger.Error("failed to parse automation.enrolled payload", "error", err)
		return err
	}

	e.logger.Debug("received automation.enrolled event",
		"contact_id", payload.ContactID,
		"flow_id", payload.FlowID,
	)

	settings, err := e.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	e.processAutomation(ctx, payload.ContactID, payload.FlowID, settings)
	return nil
}

// processAutomation выполняет один шаг одной автоматизации:
// claim → execute → commit. Ошибки логируются, не возвращаются —
// контакт будет подхвачен следующим циклом.
func (e *Engine) processAutomation(ctx context.Context, contactID, flowID uuid.UUID, settings *domain.Settings) {
	// 1. Захватываем аренду. Проигрыш гонки — не ошибка.
	a, err := e.automations.Claim(ctx, contactID, flowID, e.workerID, e.leaseFor)
	if errors.Is(err, repo.ErrClaimLost) {
		telemetry.ClaimsLost.Inc()
		e.logger.Debug("claim lost", "contact_id", contactID, "flow_id", flowID)
		return
	}
	if err != nil {
		e.logger.Error("claim failed", "contact_id", contactID, "flow_id", flowID, "error", err)
		return
	}
	telemetry.ClaimsWon.Inc()

	// Событие из MQ доставляется минимум один раз: повторная доставка не
	// должна выполнить будущий шаг (wait, backoff) раньше срока.
	if !a.IsDue(e.now()) {
		e.logger.Debug("automation not due yet, skipping",
			"contact_id", contactID,
			"flow_id", flowID,
			"next_step_at", a.NextStepAt,
		)
		return
	}

	// 2. Загружаем flow и закреплённую версию шагов
	flow, err := e.flows.GetByID(ctx, flowID)
	if errors.Is(err, repo.ErrNotFound) {
		e.commitFailed(ctx, a, "flow missing")
		return
	}
	if err != nil {
		e.logger.Error("load flow failed", "flow_id", flowID, "error", err)
		return
	}
	if !flow.IsActive {
		// Flow деактивирован между выборкой и захватом — пропускаем,
		// аренда истечёт сама
		e.logger.Debug("flow inactive, skipping", "flow_id", flowID)
		return
	}

	version, err := e.flows.GetVersion(ctx, flowID, a.FlowVersion)
	if errors.Is(err, repo.ErrNotFound) {
		e.commitFailed(ctx, a, fmt.Sprintf("%v: version %d", ErrStepMissing, a.FlowVersion))
		return
	}
	if err != nil {
		e.logger.Error("load flow version failed", "flow_id", flowID, "error", err)
		return
	}

	step, ok := version.StepAt(a.StepIndex)
	if !ok {
		// Курсор за пределами версии — автоматизация завершена
		now := e.now()
		a.Status = domain.AutomationStatusCompleted
		a.UpdatedAt = now
		if err := e.automations.CommitAdvance(ctx, a, e.workerID); err != nil && !errors.Is(err, repo.ErrClaimLost) {
			e.logger.Error("commit completion failed", "contact_id", contactID, "error", err)
		}
		return
	}

	e.logger.Info("step started",
		"contact_id", contactID,
		"flow_id", flowID,
		"step_index", a.StepIndex,
		"type", step.Type,
		"attempt", a.Attempts+1,
	)

	// 3. Выполняем шаг
	execStarted := time.Now()
	outcome := e.executor.ExecuteStep(ctx, &stepContext{
		automation: a,
		flow:       flow,
		step:       step,
		settings:   settings,
	})
	processingMillis := time.Since(execStarted).Milliseconds()

	telemetry.StepsExecuted.WithLabelValues(string(step.Type), string(outcome.Kind)).Inc()

	// 4. Применяем исход и фиксируем одним обновлением
	delta := applyOutcome(a, version, step, outcome, e.now(), processingMillis)

	if err := e.automations.CommitAdvance(ctx, a, e.workerID); err != nil {
		if errors.Is(err, repo.ErrClaimLost) {
			// Аренда истекла во время выполнения — продвижение отброшено.
			// Побочные действия защищены идемпотентностью очереди доставки.
			e.logger.Warn("lease expired during step execution",
				"contact_id", contactID,
				"flow_id", flowID,
				"step_index", a.StepIndex,
			)
			return
		}
		e.logger.Error("commit advance failed", "contact_id", contactID, "error", err)
		return
	}

	e.logStepOutcome(a, step, outcome)

	// 5. Счётчики — только после успешной фиксации
	e.applyStats(ctx, flowID, delta)
}

// commitFailed переводит автоматизацию в failed с текстом ошибки.
func (e *Engine) commitFailed(ctx context.Context, a *domain.Automation, reason string) {
	a.Status = domain.AutomationStatusFailed
	a.LastError = reason
	a.UpdatedAt = e.now()

	if err := e.automations.CommitAdvance(ctx, a, e.workerID); err != nil && !errors.Is(err, repo.ErrClaimLost) {
		e.logger.Error("commit failure failed", "contact_id", a.ContactID, "error", err)
	}

	e.logger.Warn("automation failed",
		"contact_id", a.ContactID,
		"flow_id", a.FlowID,
		"step_index", a.StepIndex,
		"reason", reason,
	)
}

// applyStats применяет дельту счётчиков flow и глобальных счётчиков.
func (e *Engine) applyStats(ctx context.Context, flowID uuid.UUID, delta domain.FlowStatsDelta) {
	if delta.IsZero() {
		return
	}

	if err := e.flows.IncrStats(ctx, flowID, delta); err != nil {
		e.logger.Error("incr flow stats failed", "flow_id", flowID, "error", err)
	}

	if e.globalStats == nil {
		return
	}
	if delta.EmailsSent > 0 {
		if err := e.globalStats.IncrEmailsSent(ctx, delta.EmailsSent); err != nil {
			e.logger.Error("incr global emails failed", "error", err)
		}
	}
	if delta.WebhooksSent > 0 {
		if err := e.globalStats.IncrWebhooksSent(ctx, delta.WebhooksSent); err != nil {
			e.logger.Error("incr global webhooks failed", "error", err)
		}
	}
}

// logStepOutcome логирует результат шага.
func (e *Engine) logStepOutcome(a *domain.Automation, step *domain.Step, out Outcome) {
	switch out.Kind {
	case OutcomeSuccess:
		e.logger.Info("step succeeded",
			"contact_id", a.ContactID,
			"flow_id", a.FlowID,
			"type", step.Type,
			"status", a.Status,
			"next_step_at", a.NextStepAt,
		)
	case OutcomeRetry:
		e.logger.Warn("step will retry",
			"contact_id", a.ContactID,
			"flow_id", a.FlowID,
			"type", step.Type,
			"status", a.Status,
			"attempt", a.Attempts,
			"reason", out.Reason,
		)
	case OutcomeFatal:
		e.logger.Warn("step failed permanently",
			"contact_id", a.ContactID,
			"flow_id", a.FlowID,
			"type", step.Type,
			"reason", out.Reason,
		)
	}
}
