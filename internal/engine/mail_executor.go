package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/repo"
)

// executeSendMail выполняет шаг sendMail.
//
// Шаг успешен с момента долговечной постановки задания в очередь доставки,
// а не с момента фактической отправки письма. Доставкой и её повторами
// занимается internal/delivery.
func (e *Executor) executeSendMail(ctx context.Context, sc *stepContext) Outcome {
	templateID, err := uuid.Parse(sc.step.SendMail.TemplateID)
	if err != nil {
		return Fatal(fmt.Sprintf("invalid template id %q", sc.step.SendMail.TemplateID))
	}

	// 1. Загружаем шаблон. Удалённый шаблон — fatal, повторы бессмысленны.
	tpl, err := e.templates.GetByID(ctx, templateID)
	if errors.Is(err, repo.ErrNotFound) {
		return Fatal(fmt.Sprintf("%v: %s", ErrTemplateMissing, templateID))
	}
	if err != nil {
		return RetryAfter(fmt.Sprintf("load template: %v", err), sc.settings.DefaultRetryDelay())
	}

	// 2. Загружаем контакт
	contact, outcome, ok := e.loadContact(ctx, sc)
	if !ok {
		return outcome
	}

	now := e.now()

	// 3. Дневной лимит писем клиента. Лимит считает поставленные задания,
	// а не доставленные письма; сбрасывается в полночь UTC.
	if cap := sc.settings.MaxDailyEmailsPerCustomer; cap > 0 {
		count, err := e.deliveries.CountEmailsEnqueuedSince(ctx, sc.flow.CustomerID, startOfUTCDay(now))
		if err != nil {
			return RetryAfter(fmt.Sprintf("count daily emails: %v", err), sc.settings.DefaultRetryDelay())
		}
		if count >= cap {
			return Defer(ErrDailyCapReached.Error(), nextUTCMidnight(now).Sub(now))
		}
	}

	// 4. Рендерим письмо из данных контакта
	subject, bodyHTML, err := RenderEmail(tpl, contact)
	if err != nil {
		return Fatal(fmt.Sprintf("render email: %v", err))
	}

	jobID := uuid.New()
	if sc.settings.EnableTracking && e.trackingBaseURL != "" {
		pixelURL := fmt.Sprintf("%s/t/%s.png", e.trackingBaseURL, jobID)
		bodyHTML = AppendTrackingPixel(bodyHTML, pixelURL)
	}

	// 5. Ставим задание в долговечную очередь
	job := &domain.DeliveryJob{
		ID:             jobID,
		Kind:           domain.DeliveryKindEmail,
		ContactID:      contact.ID,
		FlowID:         sc.flow.ID,
		FlowVersion:    sc.automation.FlowVersion,
		StepIndex:      sc.automation.StepIndex,
		CustomerID:     sc.flow.CustomerID,
		Status:         domain.DeliveryStatusPending,
		MaxAttempts:    defaultEmailMaxAttempts,
		NextAttemptAt:  now,
		IdempotencyKey: IdempotencyKey(sc.automation),
		Email: &domain.EmailPayload{
			To:       contact.Email,
			From:     tpl.FromEmail,
			Subject:  subject,
			BodyHTML: bodyHTML,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := e.deliveries.Enqueue(ctx, job)
	if err != nil {
		return RetryAfter(fmt.Sprintf("enqueue email: %v", err), sc.settings.DefaultRetryDelay())
	}

	// Повторное выполнение шага (перезахват аренды) — задание уже стоит,
	// счётчики не двигаются.
	if !inserted {
		e.logger.Debug("email job already enqueued",
			"idempotency_key", job.IdempotencyKey,
		)
		return Success()
	}

	e.notifyDelivery(ctx, job)

	return Success().WithStats(domain.FlowStatsDelta{EmailsSent: 1})
}
