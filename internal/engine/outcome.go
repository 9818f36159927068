package engine

import (
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
)

// OutcomeKind — вид исхода выполнения шага.
type OutcomeKind string

const (
	// OutcomeSuccess — шаг выполнен, курсор двигается вперёд.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeRetry — временная ошибка, шаг будет повторён без сдвига курсора.
	OutcomeRetry OutcomeKind = "retry"

	// OutcomeFatal — повторы бессмысленны, автоматизация переводится в failed.
	OutcomeFatal OutcomeKind = "fatal"
)

// Outcome — результат выполнения одного шага.
//
// Исполнитель шага возвращает Outcome вместо error: ошибки внешних систем
// здесь — данные (retry или fatal), а не исключительные ситуации.
type Outcome struct {
	// Kind — вид исхода.
	Kind OutcomeKind

	// NextDelay — отсрочка следующего шага (wait). Ноль — следующий шаг
	// доступен немедленно.
	NextDelay time.Duration

	// Terminate — завершить автоматизацию, не доходя до конца шагов
	// (deleteSubscriber).
	Terminate bool

	// Reason — причина для retry/fatal. Пишется в last_error.
	Reason string

	// After — задержка перед повтором шага (retry).
	After time.Duration

	// Deferred — повтор не расходует бюджет попыток шага. Используется
	// для ожидаемых отсрочек (дневной лимит писем), а не ошибок.
	Deferred bool

	// Stats — дельта счётчиков flow, заработанная этим шагом.
	Stats domain.FlowStatsDelta
}

// Success — успешный исход без отсрочки.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// SuccessAfter — успешный исход с отсрочкой следующего шага.
func SuccessAfter(delay time.Duration) Outcome {
	return Outcome{Kind: OutcomeSuccess, NextDelay: delay}
}

// Terminated — успешный исход, завершающий автоматизацию.
func Terminated() Outcome {
	return Outcome{Kind: OutcomeSuccess, Terminate: true}
}

// RetryAfter — временная ошибка с задержкой повтора.
func RetryAfter(reason string, after time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: reason, After: after}
}

// Defer — отсрочка шага без расходования бюджета попыток.
func Defer(reason string, after time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: reason, After: after, Deferred: true}
}

// Fatal — невосстановимая ошибка шага.
func Fatal(reason string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason}
}

// WithStats прикрепляет дельту счётчиков к исходу.
func (o Outcome) WithStats(delta domain.FlowStatsDelta) Outcome {
	o.Stats = delta
	return o
}
