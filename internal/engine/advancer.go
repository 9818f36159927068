package engine

import (
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
)

// applyOutcome применяет исход шага к автоматизации.
//
// Мутирует только in-memory структуру: долговечность даёт CommitAdvance,
// который пишет курсор, статус и счётчик попыток одним обновлением.
// Возвращает дельту счётчиков flow, заработанную шагом (включая
// UsersProcessed при завершении автоматизации).
func applyOutcome(
	a *domain.Automation,
	version *domain.FlowVersion,
	step *domain.Step,
	out Outcome,
	now time.Time,
	processingMillis int64,
) domain.FlowStatsDelta {
	delta := out.Stats
	a.UpdatedAt = now

	switch out.Kind {
	case OutcomeSuccess:
		a.Attempts = 0
		a.LastError = ""

		finished := out.Terminate || a.StepIndex+1 >= len(version.Steps)
		if finished {
			a.Status = domain.AutomationStatusCompleted
			a.NextStepAt = now
			delta.UsersProcessed++
			delta.ProcessingMillisTotal += processingMillis
			return delta
		}

		// Пауза wait-шага выражается только отсрочкой NextStepAt; статус
		// остаётся active, и селектор due-set подхватит шаг по наступлении
		// срока без отдельного перехода статусов.
		a.StepIndex++
		a.Status = domain.AutomationStatusActive
		a.NextStepAt = now.Add(out.NextDelay)
		return delta

	case OutcomeRetry:
		a.LastError = out.Reason
		a.NextStepAt = now.Add(out.After)

		// Отсрочка (дневной лимит) не расходует бюджет попыток
		if out.Deferred {
			return delta
		}

		a.Attempts++
		if a.Attempts > stepRetryBudget(step) {
			a.Status = domain.AutomationStatusFailed
			return delta
		}
		a.Status = domain.AutomationStatusActive
		return delta

	case OutcomeFatal:
		a.Status = domain.AutomationStatusFailed
		a.LastError = out.Reason
		return delta
	}

	return delta
}
