package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/repo"
)

// Значения по умолчанию.
const (
	defaultWebhookTimeout   = 30 * time.Second
	defaultEmailMaxAttempts = 3
)

// Executor выполняет один шаг автоматизации и возвращает Outcome.
//
// Executor не мутирует автоматизацию — это забота advancer. Здесь
// происходят только побочные действия шага: постановка заданий доставки,
// мутации списков, синхронные webhook-вызовы.
type Executor struct {
	contacts   ContactStore
	templates  TemplateStore
	deliveries DeliveryStore
	notifier   DeliveryNotifier

	httpClient *http.Client
	logger     *slog.Logger

	// trackingBaseURL — база URL трекинг-пикселя.
	trackingBaseURL string

	// now подменяется в тестах.
	now func() time.Time
}

// ExecutorConfig — конфигурация Executor.
type ExecutorConfig struct {
	Contacts   ContactStore
	Templates  TemplateStore
	Deliveries DeliveryStore

	// Notifier — уведомление воркера доставки (опционально).
	Notifier DeliveryNotifier

	// HTTPClient — клиент для синхронных webhook (опционально).
	HTTPClient *http.Client

	// TrackingBaseURL — база URL трекинг-пикселя (например https://t.example.com).
	TrackingBaseURL string

	Logger *slog.Logger
}

// NewExecutor создаёт новый Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultWebhookTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		contacts:        cfg.Contacts,
		templates:       cfg.Templates,
		deliveries:      cfg.Deliveries,
		notifier:        cfg.Notifier,
		httpClient:      httpClient,
		logger:          logger,
		trackingBaseURL: cfg.TrackingBaseURL,
		now:             time.Now,
	}
}

// stepContext — всё, что нужно для выполнения одного шага.
type stepContext struct {
	automation *domain.Automation
	flow       *domain.Flow
	step       *domain.Step
	settings   *domain.Settings
}

// ExecuteStep выполняет шаг и возвращает исход.
func (e *Executor) ExecuteStep(ctx context.Context, sc *stepContext) Outcome {
	switch sc.step.Type {
	case domain.StepTypeSendMail:
		return e.executeSendMail(ctx, sc)
	case domain.StepTypeSendWebhook:
		return e.executeSendWebhook(ctx, sc)
	case domain.StepTypeWaitSubscriber:
		return e.executeWait(sc)
	case domain.StepTypeMoveSubscriber:
		return e.executeMove(ctx, sc)
	case domain.StepTypeRemoveSubscriber:
		return e.executeRemove(ctx, sc)
	case domain.StepTypeDeleteSubscriber:
		return e.executeDelete(ctx, sc)
	default:
		return Fatal(fmt.Sprintf("unknown step type %q", sc.step.Type))
	}
}

// loadContact загружает контакт шага.
// Удалённый или отсутствующий контакт завершает автоматизацию.
func (e *Executor) loadContact(ctx context.Context, sc *stepContext) (*domain.Contact, Outcome, bool) {
	contact, err := e.contacts.GetByID(ctx, sc.automation.ContactID)
	if errors.Is(err, repo.ErrNotFound) {
		e.logger.Debug("contact gone, terminating automation",
			"contact_id", sc.automation.ContactID,
			"flow_id", sc.automation.FlowID,
		)
		return nil, Terminated(), false
	}
	if err != nil {
		return nil, RetryAfter(fmt.Sprintf("load contact: %v", err), sc.settings.DefaultRetryDelay()), false
	}
	if contact.Status == domain.ContactStatusDeleted {
		return nil, Terminated(), false
	}
	return contact, Outcome{}, true
}

// notifyDelivery публикует уведомление о новом задании доставки.
// Ошибка публикации не фатальна — polling воркера доставки подхватит
// задание из БД.
func (e *Executor) notifyDelivery(ctx context.Context, job *domain.DeliveryJob) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyDeliveryQueued(ctx, job.ID); err != nil {
		e.logger.Warn("failed to notify delivery worker",
			"job_id", job.ID,
			"error", err,
		)
	}
}
