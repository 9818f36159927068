package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact — подписчик. Принадлежит одному списку.
type Contact struct {
	// ID — уникальный идентификатор контакта.
	ID uuid.UUID `json:"id"`

	// WebsiteID — сайт, на котором контакт подписался.
	WebsiteID uuid.UUID `json:"website_id"`

	// ListID — список, в котором состоит контакт. Nil — вне списков.
	ListID *uuid.UUID `json:"list_id,omitempty"`

	// Email — адрес контакта.
	Email string `json:"email"`

	// Name — имя контакта.
	Name string `json:"name,omitempty"`

	// Attributes — произвольные атрибуты контакта.
	// Доступны в шаблонах писем через {{ .Attr.key }}.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Status — статус контакта.
	Status ContactStatus `json:"status"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// List — список рассылки.
type List struct {
	// ID — уникальный идентификатор списка.
	ID uuid.UUID `json:"id"`

	// WebsiteID — сайт-владелец.
	WebsiteID uuid.UUID `json:"website_id"`

	// Name — имя списка.
	Name string `json:"name"`

	// Subscribers — счётчик подписчиков. Обновляется только дельтами.
	Subscribers int64 `json:"subscribers"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Template — шаблон письма.
//
// Subject и BodyHTML — Go-шаблоны; переменные рендерятся из данных
// контакта ({{ .Email }}, {{ .Name }}, {{ .Attr.key }}).
type Template struct {
	// ID — уникальный идентификатор шаблона.
	ID uuid.UUID `json:"id"`

	// Name — имя шаблона.
	Name string `json:"name"`

	// Subject — шаблон темы письма.
	Subject string `json:"subject"`

	// BodyHTML — шаблон HTML-тела.
	BodyHTML string `json:"body_html"`

	// FromEmail — адрес отправителя.
	FromEmail string `json:"from_email"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// GlobalStats — глобальный singleton счётчиков системы.
//
// Мутируется только дельтами (lock-free атомарный инкремент на стороне БД),
// никогда через read-modify-write.
type GlobalStats struct {
	TotalSubscribers  int64 `json:"total_subscribers"`
	TotalEmailsSent   int64 `json:"total_emails_sent"`
	TotalWebhooksSent int64 `json:"total_webhooks_sent"`
}
