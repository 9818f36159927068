package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryKind — вид задания доставки.
type DeliveryKind string

const (
	// DeliveryKindEmail — отправка письма.
	DeliveryKindEmail DeliveryKind = "email"

	// DeliveryKindWebhook — вызов webhook.
	DeliveryKindWebhook DeliveryKind = "webhook"
)

// DeliveryJob — долговечная запись побочного действия (письмо или webhook).
//
// Жизненный цикл независим от курсора автоматизации: с точки зрения flow
// шаг "успешен", как только задание долговечно поставлено в очередь, а не
// когда доставка фактически произошла. Повторы доставки идут вне цикла
// обработки шагов.
//
// Задание никогда не удаляется — достигнув терминального статуса, оно
// становится записью журнала доставки. Ссылки на контакт/flow/шаблон
// переживают их удаление (висячие ссылки допустимы и не разыменовываются).
type DeliveryJob struct {
	// ID — уникальный идентификатор задания.
	ID uuid.UUID `json:"id"`

	// Kind — вид доставки: email или webhook.
	Kind DeliveryKind `json:"kind"`

	// ContactID — контакт, для которого выполняется доставка.
	ContactID uuid.UUID `json:"contact_id"`

	// FlowID — flow, породивший задание.
	FlowID uuid.UUID `json:"flow_id"`

	// FlowVersion — версия flow на момент постановки.
	FlowVersion int `json:"flow_version"`

	// StepIndex — шаг, породивший задание.
	StepIndex int `json:"step_index"`

	// CustomerID — владелец flow (для дневного лимита писем).
	CustomerID uuid.UUID `json:"customer_id"`

	// Status — текущий статус задания.
	Status DeliveryStatus `json:"status"`

	// Attempts — число выполненных попыток доставки.
	Attempts int `json:"attempts"`

	// MaxAttempts — максимальное число попыток.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt — время следующей попытки (для pending).
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError — текст последней ошибки доставки.
	LastError string `json:"last_error,omitempty"`

	// MessageID — идентификатор сообщения, присвоенный транспортом.
	MessageID string `json:"message_id,omitempty"`

	// IdempotencyKey — детерминированный ключ (contactId, flowId, stepId,
	// attemptEpoch). Уникальный индекс по этому ключу гарантирует, что
	// повторное выполнение шага не породит второе задание.
	IdempotencyKey string `json:"idempotency_key"`

	// Email — полезная нагрузка для kind=email.
	Email *EmailPayload `json:"email,omitempty"`

	// Webhook — полезная нагрузка для kind=webhook.
	Webhook *WebhookPayload `json:"webhook,omitempty"`

	// CreatedAt — время постановки в очередь.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней мутации.
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailPayload — отрендеренное письмо, готовое к передаче транспорту.
type EmailPayload struct {
	// To — адрес получателя.
	To string `json:"to"`

	// From — адрес отправителя.
	From string `json:"from"`

	// Subject — отрендеренная тема.
	Subject string `json:"subject"`

	// BodyHTML — отрендеренное HTML-тело.
	BodyHTML string `json:"body_html"`
}

// WebhookPayload — подготовленный webhook-вызов.
type WebhookPayload struct {
	// URL — полный URL с уже подставленными query-параметрами.
	URL string `json:"url"`

	// Method — HTTP-метод.
	Method string `json:"method"`
}

// MarkProcessing переводит задание в processing и увеличивает счётчик попыток.
func (j *DeliveryJob) MarkProcessing(now time.Time) {
	j.Status = DeliveryStatusProcessing
	j.Attempts++
	j.UpdatedAt = now
}

// MarkSent переводит задание в sent с идентификатором сообщения.
func (j *DeliveryJob) MarkSent(messageID string, now time.Time) {
	j.Status = DeliveryStatusSent
	j.MessageID = messageID
	j.LastError = ""
	j.UpdatedAt = now
}

// MarkFailed переводит задание в терминальный failed.
func (j *DeliveryJob) MarkFailed(errMsg string, now time.Time) {
	j.Status = DeliveryStatusFailed
	j.LastError = errMsg
	j.UpdatedAt = now
}

// MarkBounced переводит задание в терминальный bounced.
func (j *DeliveryJob) MarkBounced(errMsg string, now time.Time) {
	j.Status = DeliveryStatusBounced
	j.LastError = errMsg
	j.UpdatedAt = now
}

// Rearm возвращает задание в pending с новым временем попытки.
func (j *DeliveryJob) Rearm(nextAttempt time.Time, errMsg string, now time.Time) {
	j.Status = DeliveryStatusPending
	j.NextAttemptAt = nextAttempt
	j.LastError = errMsg
	j.UpdatedAt = now
}

// CanRetry проверяет, остались ли попытки доставки.
func (j *DeliveryJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}
