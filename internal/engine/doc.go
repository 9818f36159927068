// Package engine выполняет шаги маркетинговых автоматизаций.
//
// # Обзор
//
// Engine — stateless компонент системы Mailflow, который продвигает
// контакты по шагам flow. Engine отвечает за:
//
//   - Выборку готовых автоматизаций из БД (due-set: next_step_at наступил)
//   - Захват аренды на автоматизацию (CAS, взаимное исключение воркеров)
//   - Выполнение текущего шага (sendMail, sendWebhook, waitSubscriber,
//     moveSubscriber, removeSubscriber, deleteSubscriber)
//   - Фиксацию результата одним обновлением (курсор + снятие аренды)
//   - Инкремент счётчиков flow дельтами
//
// Engines масштабируются горизонтально — несколько экземпляров работают
// по одной таблице, аренды исключают двойное выполнение шага.
//
// # Цикл обработки
//
//  1. Снимок настроек (неизменяем до конца цикла)
//  2. ListDue — выборка батча готовых автоматизаций
//  3. Для каждой: Claim → Execute → CommitAdvance
//  4. Проигрыш Claim (ErrClaimLost) — не ошибка, контакт пропускается
//
// Контакты батча независимы: при EnableFlowParallelism обрабатываются
// параллельно (семафор MaxConcurrentProcesses), иначе последовательно.
//
// # Результат шага
//
// Выполнение шага завершается одним из трёх исходов (Outcome):
//
//   - Success — курсор двигается вперёд; NextDelay откладывает следующий
//     шаг (wait), Terminate завершает автоматизацию досрочно (delete)
//   - Retry — курсор не двигается, шаг будет повторён после After;
//     исчерпание бюджета повторов переводит автоматизацию в failed
//   - Fatal — повторы бессмысленны (шаблон удалён, список не существует),
//     автоматизация сразу переводится в failed
//
// # Побочные действия
//
// Письма и вебхуки не отправляются движком напрямую: шаг ставит
// DeliveryJob в долговечную очередь и считается успешным с момента
// постановки. Доставкой занимается отдельный компонент (internal/delivery),
// со своим независимым счётчиком попыток.
//
// Исключение — webhook при ProcessWebhookInProcess: вызывается синхронно
// в движке с ограниченным таймаутом, не-2xx статус означает Retry.
//
// # Идемпотентность
//
// Ключ идемпотентности задания детерминирован (контакт, flow, версия,
// шаг, эпоха попытки): повторное выполнение шага после истёкшей аренды
// не породит второе письмо — вставка с тем же ключом не вставляет строку.
package engine
