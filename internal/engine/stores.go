package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// Интерфейсы хранилищ, используемых движком. Реализуются пакетом repo;
// в тестах подменяются in-memory фейками.

// AutomationStore — выборка due-set, аренда и фиксация продвижения.
type AutomationStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Automation, error)
	Claim(ctx context.Context, contactID, flowID uuid.UUID, workerID string, leaseFor time.Duration) (*domain.Automation, error)
	CommitAdvance(ctx context.Context, a *domain.Automation, workerID string) error
}

// FlowStore — чтение flow, закреплённых версий и инкремент счётчиков.
type FlowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Flow, error)
	GetVersion(ctx context.Context, flowID uuid.UUID, version int) (*domain.FlowVersion, error)
	IncrStats(ctx context.Context, flowID uuid.UUID, delta domain.FlowStatsDelta) error
}

// ContactStore — чтение контактов и мутации членства в списках.
type ContactStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	MoveToList(ctx context.Context, contactID, targetListID uuid.UUID) error
	RemoveFromList(ctx context.Context, contactID uuid.UUID) error
	SoftDelete(ctx context.Context, contactID uuid.UUID) error
}

// TemplateStore — чтение email-шаблонов.
type TemplateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error)
}

// DeliveryStore — постановка заданий доставки и подсчёт дневного лимита.
type DeliveryStore interface {
	Enqueue(ctx context.Context, job *domain.DeliveryJob) (bool, error)
	CountEmailsEnqueuedSince(ctx context.Context, customerID uuid.UUID, since time.Time) (int, error)
}

// SettingsStore — снимок настроек на цикл.
type SettingsStore interface {
	Load(ctx context.Context) (*domain.Settings, error)
}

// GlobalStatsStore — глобальные счётчики аккаунта.
type GlobalStatsStore interface {
	IncrEmailsSent(ctx context.Context, delta int64) error
	IncrWebhooksSent(ctx context.Context, delta int64) error
}

// DeliveryNotifier — уведомление воркера доставки о новом задании.
// Лучшая из возможных доставка: ошибка публикации не фатальна,
// polling подхватит задание из БД.
type DeliveryNotifier interface {
	NotifyDeliveryQueued(ctx context.Context, jobID uuid.UUID) error
}
