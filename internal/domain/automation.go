package domain

import (
	"time"

	"github.com/google/uuid"
)

// Automation — активная подписка контакта на один flow.
//
// Запись создаётся, когда контакт входит во flow (регистрация, перемещение
// в список, ручная подписка), и мутируется исключительно продвигателем
// состояния (advancer). Курсор (StepIndex) и время следующего шага
// (NextStepAt) — то, по чему работает селектор due-set.
//
// Пара ClaimedBy/ClaimExpiresAt — аренда: время-ограниченное эксклюзивное
// владение автоматизацией одним воркером. Аренда, которую никто не снял
// (упавший воркер), самоизлечивается истечением срока.
type Automation struct {
	// ContactID — контакт, проходящий flow.
	ContactID uuid.UUID `json:"contact_id"`

	// FlowID — flow, на который подписан контакт.
	FlowID uuid.UUID `json:"flow_id"`

	// FlowVersion — версия шагов, закреплённая при подписке.
	// Все шаги резолвятся против этой версии до завершения автоматизации.
	FlowVersion int `json:"flow_version"`

	// StepIndex — позиция текущего шага в закреплённой версии (с нуля).
	StepIndex int `json:"step_index"`

	// Status — текущий статус. Селектор due-set выбирает только active.
	Status AutomationStatus `json:"status"`

	// NextStepAt — время, когда текущий шаг должен быть выполнен.
	NextStepAt time.Time `json:"next_step_at"`

	// Attempts — число выполненных попыток текущего шага.
	// Сбрасывается в 0 при продвижении курсора.
	Attempts int `json:"attempts"`

	// ClaimedBy — идентификатор воркера, владеющего арендой. Пустой — не захвачена.
	ClaimedBy string `json:"claimed_by,omitempty"`

	// ClaimExpiresAt — срок действия аренды.
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`

	// LastError — текст последней ошибки шага.
	LastError string `json:"last_error,omitempty"`

	// EnrolledAt — время подписки контакта на flow.
	EnrolledAt time.Time `json:"enrolled_at"`

	// UpdatedAt — время последней мутации.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsClaimed возвращает true, если аренда активна на момент now.
func (a *Automation) IsClaimed(now time.Time) bool {
	return a.ClaimedBy != "" && a.ClaimExpiresAt != nil && a.ClaimExpiresAt.After(now)
}

// IsDue возвращает true, если автоматизация готова к выполнению шага.
// Планируемы оба статуса: active и waiting (пауза wait-шага истекает
// сама собой наступлением NextStepAt).
func (a *Automation) IsDue(now time.Time) bool {
	if a.Status != AutomationStatusActive && a.Status != AutomationStatusWaiting {
		return false
	}
	return !a.NextStepAt.After(now)
}
