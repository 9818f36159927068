package domain

import (
	"time"

	"github.com/google/uuid"
)

// Flow — определение маркетинговой автоматизации.
//
// Flow — упорядоченная последовательность шагов (Step), применяемая
// к контактам во времени. Flow версионируется: редактирование шагов
// создаёт новую FlowVersion, а автоматизации, находящиеся в процессе,
// продолжают выполняться по закреплённой при подписке версии.
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID uuid.UUID `json:"id"`

	// CustomerID — владелец flow. Используется для дневного лимита писем.
	CustomerID uuid.UUID `json:"customer_id"`

	// WebsiteID — сайт, к которому относится flow.
	WebsiteID uuid.UUID `json:"website_id"`

	// Name — человекочитаемое имя flow.
	Name string `json:"name"`

	// IsActive — флаг активности. Неактивные flows не выполняются;
	// flow деактивируется вместо жёсткого удаления, пока контакты в процессе.
	IsActive bool `json:"is_active"`

	// CurrentVersion — номер актуальной версии шагов.
	CurrentVersion int `json:"current_version"`

	// Stats — агрегированные счётчики flow.
	Stats FlowStats `json:"stats"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// FlowVersion — неизменяемый снимок последовательности шагов.
//
// Автоматизация закрепляет версию при подписке контакта, поэтому
// редактирование шагов не ломает контакты, находящиеся в середине flow.
type FlowVersion struct {
	// FlowID — ссылка на родительский flow.
	FlowID uuid.UUID `json:"flow_id"`

	// Version — номер версии (1, 2, 3, ...).
	Version int `json:"version"`

	// Steps — упорядоченная последовательность шагов.
	// Шаг адресуется позицией (индекс с нуля) внутри версии.
	Steps []Step `json:"steps"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}

// StepAt возвращает шаг по индексу. ok=false, если индекс вне последовательности.
func (v *FlowVersion) StepAt(index int) (*Step, bool) {
	if index < 0 || index >= len(v.Steps) {
		return nil, false
	}
	return &v.Steps[index], true
}

// FlowStats — агрегированные счётчики flow.
//
// Счётчики обновляются только дельтами (+1/-1), никогда из снимка —
// порядок применения конкурентными воркерами не влияет на итог.
type FlowStats struct {
	// UsersProcessed — сколько контактов завершили flow.
	UsersProcessed int64 `json:"users_processed"`

	// EmailsSent — сколько писем поставлено в очередь доставки.
	EmailsSent int64 `json:"emails_sent"`

	// WebhooksSent — сколько webhook-вызовов выполнено/поставлено в очередь.
	WebhooksSent int64 `json:"webhooks_sent"`

	// SubscribersMoved — сколько контактов перемещено между списками.
	SubscribersMoved int64 `json:"subscribers_moved"`

	// SubscribersRemoved — сколько контактов удалено из списков.
	SubscribersRemoved int64 `json:"subscribers_removed"`

	// SubscribersDeleted — сколько контактов удалено полностью.
	SubscribersDeleted int64 `json:"subscribers_deleted"`

	// ProcessingMillisTotal — суммарное время обработки шагов, мс.
	// Среднее время = ProcessingMillisTotal / UsersProcessed (считается при чтении).
	ProcessingMillisTotal int64 `json:"processing_millis_total"`
}

// FlowStatsDelta — дельта счётчиков flow для одного завершённого шага.
// Каждое поле прибавляется к соответствующему счётчику атомарно на стороне БД.
type FlowStatsDelta struct {
	UsersProcessed        int64
	EmailsSent            int64
	WebhooksSent          int64
	SubscribersMoved      int64
	SubscribersRemoved    int64
	SubscribersDeleted    int64
	ProcessingMillisTotal int64
}

// IsZero возвращает true, если дельта пустая.
func (d FlowStatsDelta) IsZero() bool {
	return d == FlowStatsDelta{}
}
