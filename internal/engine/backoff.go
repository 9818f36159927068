package engine

import (
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
)

// stepRetryDelay возвращает задержку повтора шага: явная настройка шага
// (webhook retry_after_sec) или значение по умолчанию из настроек.
func stepRetryDelay(step *domain.Step, settings *domain.Settings) time.Duration {
	if step.Type == domain.StepTypeSendWebhook && step.SendWebhook != nil && step.SendWebhook.RetryAfterSec > 0 {
		return time.Duration(step.SendWebhook.RetryAfterSec) * time.Second
	}
	return settings.DefaultRetryDelay()
}

// stepRetryBudget возвращает допустимое число повторов шага сверх первой
// попытки. Явно настраивается только у webhook; остальные шаги получают
// один повтор по умолчанию.
func stepRetryBudget(step *domain.Step) int {
	if step.Type == domain.StepTypeSendWebhook && step.SendWebhook != nil {
		return step.SendWebhook.RetryAttempts
	}
	return 1
}

// nextUTCMidnight возвращает начало следующих суток UTC.
// Дневной лимит писем сбрасывается в полночь UTC.
func nextUTCMidnight(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

// startOfUTCDay возвращает начало текущих суток UTC.
func startOfUTCDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
