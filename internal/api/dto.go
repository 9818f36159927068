package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// Flow DTOs

// CreateFlowRequest — запрос на создание flow.
// Steps опциональны: при наличии сразу создаётся версия 1.
type CreateFlowRequest struct {
	Name       string        `json:"name"`
	CustomerID uuid.UUID     `json:"customer_id"`
	WebsiteID  uuid.UUID     `json:"website_id"`
	Steps      []domain.Step `json:"steps,omitempty"`
}

// UpdateFlowRequest — запрос на обновление flow.
type UpdateFlowRequest struct {
	Name *string `json:"name,omitempty"`
}

// SetActiveRequest — запрос на включение/выключение flow.
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// FlowResponse — ответ с flow.
type FlowResponse struct {
	ID             uuid.UUID `json:"id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	WebsiteID      uuid.UUID `json:"website_id"`
	Name           string    `json:"name"`
	IsActive       bool      `json:"is_active"`
	CurrentVersion int       `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// FlowFromDomain конвертирует domain.Flow в FlowResponse.
func FlowFromDomain(f domain.Flow) FlowResponse {
	return FlowResponse{
		ID:             f.ID,
		CustomerID:     f.CustomerID,
		WebsiteID:      f.WebsiteID,
		Name:           f.Name,
		IsActive:       f.IsActive,
		CurrentVersion: f.CurrentVersion,
		CreatedAt:      f.CreatedAt,
	}
}

// FlowStatsResponse — ответ со статистикой flow.
// Среднее время обработки вычисляется при чтении, не хранится.
type FlowStatsResponse struct {
	UsersProcessed        int64   `json:"users_processed"`
	EmailsSent            int64   `json:"emails_sent"`
	WebhooksSent          int64   `json:"webhooks_sent"`
	SubscribersMoved      int64   `json:"subscribers_moved"`
	SubscribersRemoved    int64   `json:"subscribers_removed"`
	SubscribersDeleted    int64   `json:"subscribers_deleted"`
	AvgProcessingMillis   float64 `json:"avg_processing_millis"`
	ProcessingMillisTotal int64   `json:"processing_millis_total"`
}

// FlowStatsFromDomain конвертирует domain.FlowStats в FlowStatsResponse.
func FlowStatsFromDomain(s domain.FlowStats) FlowStatsResponse {
	resp := FlowStatsResponse{
		UsersProcessed:        s.UsersProcessed,
		EmailsSent:            s.EmailsSent,
		WebhooksSent:          s.WebhooksSent,
		SubscribersMoved:      s.SubscribersMoved,
		SubscribersRemoved:    s.SubscribersRemoved,
		SubscribersDeleted:    s.SubscribersDeleted,
		ProcessingMillisTotal: s.ProcessingMillisTotal,
	}
	if s.UsersProcessed > 0 {
		resp.AvgProcessingMillis = float64(s.ProcessingMillisTotal) / float64(s.UsersProcessed)
	}
	return resp
}

// FlowVersion DTOs

// CreateFlowVersionRequest — запрос на создание версии flow.
type CreateFlowVersionRequest struct {
	Steps []domain.Step `json:"steps"`
}

// FlowVersionResponse — ответ с версией flow.
type FlowVersionResponse struct {
	FlowID    uuid.UUID     `json:"flow_id"`
	Version   int           `json:"version"`
	Steps     []domain.Step `json:"steps"`
	CreatedAt time.Time     `json:"created_at"`
}

// FlowVersionFromDomain конвертирует domain.FlowVersion в FlowVersionResponse.
func FlowVersionFromDomain(v domain.FlowVersion) FlowVersionResponse {
	return FlowVersionResponse{
		FlowID:    v.FlowID,
		Version:   v.Version,
		Steps:     v.Steps,
		CreatedAt: v.CreatedAt,
	}
}

// Template DTOs

// CreateTemplateRequest — запрос на создание шаблона письма.
type CreateTemplateRequest struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	FromEmail string `json:"from_email"`
}

// UpdateTemplateRequest — запрос на обновление шаблона.
type UpdateTemplateRequest struct {
	Name      *string `json:"name,omitempty"`
	Subject   *string `json:"subject,omitempty"`
	BodyHTML  *string `json:"body_html,omitempty"`
	FromEmail *string `json:"from_email,omitempty"`
}

// TemplateResponse — ответ с шаблоном.
type TemplateResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	BodyHTML  string    `json:"body_html"`
	FromEmail string    `json:"from_email"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateFromDomain конвертирует domain.Template в TemplateResponse.
func TemplateFromDomain(t domain.Template) TemplateResponse {
	return TemplateResponse{
		ID:        t.ID,
		Name:      t.Name,
		Subject:   t.Subject,
		BodyHTML:  t.BodyHTML,
		FromEmail: t.FromEmail,
		CreatedAt: t.CreatedAt,
	}
}

// List DTOs

// CreateListRequest — запрос на создание списка.
type CreateListRequest struct {
	WebsiteID uuid.UUID `json:"website_id"`
	Name      string    `json:"name"`
}

// ListDTOResponse — ответ со списком рассылки.
type ListDTOResponse struct {
	ID          uuid.UUID `json:"id"`
	WebsiteID   uuid.UUID `json:"website_id"`
	Name        string    `json:"name"`
	Subscribers int64     `json:"subscribers"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFromDomain конвертирует domain.List в ListDTOResponse.
func ListFromDomain(l domain.List) ListDTOResponse {
	return ListDTOResponse{
		ID:          l.ID,
		WebsiteID:   l.WebsiteID,
		Name:        l.Name,
		Subscribers: l.Subscribers,
		CreatedAt:   l.CreatedAt,
	}
}

// Contact DTOs

// CreateContactRequest — запрос на создание контакта.
type CreateContactRequest struct {
	WebsiteID  uuid.UUID         `json:"website_id"`
	ListID     *uuid.UUID        `json:"list_id,omitempty"`
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MoveContactRequest — запрос на перемещение контакта в список.
type MoveContactRequest struct {
	ListID uuid.UUID `json:"list_id"`
}

// ContactResponse — ответ с контактом.
type ContactResponse struct {
	ID         uuid.UUID         `json:"id"`
	WebsiteID  uuid.UUID         `json:"website_id"`
	ListID     *uuid.UUID        `json:"list_id,omitempty"`
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ContactFromDomain конвертирует domain.Contact в ContactResponse.
func ContactFromDomain(c domain.Contact) ContactResponse {
	return ContactResponse{
		ID:         c.ID,
		WebsiteID:  c.WebsiteID,
		ListID:     c.ListID,
		Email:      c.Email,
		Name:       c.Name,
		Attributes: c.Attributes,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt,
	}
}

// Automation DTOs

// EnrollRequest — запрос на подписку контакта на flow.
// Version опциональна: по умолчанию закрепляется актуальная версия flow.
type EnrollRequest struct {
	ContactID uuid.UUID `json:"contact_id"`
	Version   *int      `json:"version,omitempty"`
}

// AutomationResponse — ответ с автоматизацией.
type AutomationResponse struct {
	ContactID   uuid.UUID `json:"contact_id"`
	FlowID      uuid.UUID `json:"flow_id"`
	FlowVersion int       `json:"flow_version"`
	StepIndex   int       `json:"step_index"`
	Status      string    `json:"status"`
	NextStepAt  time.Time `json:"next_step_at"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AutomationFromDomain конвертирует domain.Automation в AutomationResponse.
func AutomationFromDomain(a domain.Automation) AutomationResponse {
	return AutomationResponse{
		ContactID:   a.ContactID,
		FlowID:      a.FlowID,
		FlowVersion: a.FlowVersion,
		StepIndex:   a.StepIndex,
		Status:      string(a.Status),
		NextStepAt:  a.NextStepAt,
		Attempts:    a.Attempts,
		LastError:   a.LastError,
		EnrolledAt:  a.EnrolledAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// Delivery DTOs

// DeliveryJobResponse — запись журнала доставки.
// Полезные нагрузки не отдаются целиком — журнал показывает адресата и исход.
type DeliveryJobResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	ContactID   uuid.UUID `json:"contact_id"`
	FlowID      uuid.UUID `json:"flow_id"`
	StepIndex   int       `json:"step_index"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeliveryJobFromDomain конвертирует domain.DeliveryJob в DeliveryJobResponse.
func DeliveryJobFromDomain(j domain.DeliveryJob) DeliveryJobResponse {
	return DeliveryJobResponse{
		ID:          j.ID,
		Kind:        string(j.Kind),
		ContactID:   j.ContactID,
		FlowID:      j.FlowID,
		StepIndex:   j.StepIndex,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		MessageID:   j.MessageID,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// Stats DTOs

// GlobalStatsResponse — ответ с глобальной статистикой.
type GlobalStatsResponse struct {
	TotalSubscribers  int64 `json:"total_subscribers"`
	TotalEmailsSent   int64 `json:"total_emails_sent"`
	TotalWebhooksSent int64 `json:"total_webhooks_sent"`
}

// GlobalStatsFromDomain конвертирует domain.GlobalStats в GlobalStatsResponse.
func GlobalStatsFromDomain(s domain.GlobalStats) GlobalStatsResponse {
	return GlobalStatsResponse{
		TotalSubscribers:  s.TotalSubscribers,
		TotalEmailsSent:   s.TotalEmailsSent,
		TotalWebhooksSent: s.TotalWebhooksSent,
	}
}
