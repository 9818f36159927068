package engine

import (
	"fmt"

	"github.com/shaiso/Mailflow/internal/domain"
)

// IdempotencyKey строит детерминированный ключ задания доставки.
//
// Ключ одинаков для всех повторных выполнений одной и той же попытки шага:
// если воркер упал между постановкой задания и фиксацией курсора, перезахват
// аренды выполнит шаг заново, но вставка по тому же ключу не создаст
// дубликат. Attempts входит в ключ, чтобы намеренный повтор шага (retry с
// новой попыткой) мог породить новое задание.
func IdempotencyKey(a *domain.Automation) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d",
		a.ContactID, a.FlowID, a.FlowVersion, a.StepIndex, a.Attempts)
}
