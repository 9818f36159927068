package domain

// AutomationStatus — статус прохождения контактом автоматизации.
//
// Жизненный цикл:
//
//	ACTIVE → (шаг успешен) → ACTIVE@след.шаг → ... → COMPLETED
//	       → (шаг retry)   → ACTIVE@тот же шаг (отложен)
//	       → (шаг fatal)   → FAILED
type AutomationStatus string

const (
	// AutomationStatusActive — автоматизация активна, контакт ждёт следующий шаг.
	AutomationStatusActive AutomationStatus = "active"

	// AutomationStatusWaiting — автоматизация приостановлена внешним условием
	// (например, ожиданием подтверждения подписки).
	AutomationStatusWaiting AutomationStatus = "waiting"

	// AutomationStatusCompleted — последовательность шагов исчерпана.
	AutomationStatusCompleted AutomationStatus = "completed"

	// AutomationStatusFailed — шаг завершился неисправимой ошибкой.
	AutomationStatusFailed AutomationStatus = "failed"

	// AutomationStatusPaused — приостановлена оператором.
	AutomationStatusPaused AutomationStatus = "paused"
)

// IsTerminal возвращает true, если статус финальный.
// Терминальные автоматизации никогда не выбираются селектором due-set.
func (s AutomationStatus) IsTerminal() bool {
	switch s {
	case AutomationStatusCompleted, AutomationStatusFailed:
		return true
	default:
		return false
	}
}

// DeliveryStatus — статус задания в очереди доставки.
//
// Жизненный цикл:
//
//	PENDING → PROCESSING → SENT
//	                     ↘ FAILED (после исчерпания попыток)
//	                     ↘ BOUNCED (постоянный отказ получателя)
//
// FAILED до исчерпания попыток возвращается в PENDING с новым next_attempt_at.
type DeliveryStatus string

const (
	// DeliveryStatusPending — задание ждёт обработки воркером доставки.
	DeliveryStatusPending DeliveryStatus = "pending"

	// DeliveryStatusProcessing — задание захвачено воркером.
	DeliveryStatusProcessing DeliveryStatus = "processing"

	// DeliveryStatusSent — доставка подтверждена транспортом.
	DeliveryStatusSent DeliveryStatus = "sent"

	// DeliveryStatusFailed — все попытки исчерпаны.
	DeliveryStatusFailed DeliveryStatus = "failed"

	// DeliveryStatusBounced — получатель отверг доставку навсегда.
	DeliveryStatusBounced DeliveryStatus = "bounced"
)

// IsTerminal возвращает true, если статус финальный.
// Терминальное задание не удаляется — оно становится записью журнала доставки.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryStatusSent, DeliveryStatusFailed, DeliveryStatusBounced:
		return true
	default:
		return false
	}
}

// ContactStatus — статус контакта.
type ContactStatus string

const (
	// ContactStatusSubscribed — контакт подписан и участвует в автоматизациях.
	ContactStatusSubscribed ContactStatus = "subscribed"

	// ContactStatusDeleted — контакт удалён (soft delete).
	// Записи очереди доставки остаются как исторические.
	ContactStatusDeleted ContactStatus = "deleted"
)
