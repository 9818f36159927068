package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// executeSendWebhook выполняет шаг sendWebhook.
//
// Два режима:
//   - очередь (по умолчанию): задание ставится в очередь доставки, шаг
//     успешен с момента постановки;
//   - in-process (ProcessWebhookInProcess): вызов выполняется синхронно
//     с ограниченным таймаутом, не-2xx статус означает retry шага.
func (e *Executor) executeSendWebhook(ctx context.Context, sc *stepContext) Outcome {
	cfg := sc.step.SendWebhook

	contact, outcome, ok := e.loadContact(ctx, sc)
	if !ok {
		return outcome
	}

	callURL, err := buildWebhookURL(cfg, contact)
	if err != nil {
		return Fatal(fmt.Sprintf("build webhook url: %v", err))
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	if sc.settings.ProcessWebhookInProcess {
		return e.callWebhook(ctx, sc, method, callURL)
	}

	now := e.now()
	job := &domain.DeliveryJob{
		ID:             uuid.New(),
		Kind:           domain.DeliveryKindWebhook,
		ContactID:      contact.ID,
		FlowID:         sc.flow.ID,
		FlowVersion:    sc.automation.FlowVersion,
		StepIndex:      sc.automation.StepIndex,
		CustomerID:     sc.flow.CustomerID,
		Status:         domain.DeliveryStatusPending,
		MaxAttempts:    cfg.RetryAttempts + 1,
		NextAttemptAt:  now,
		IdempotencyKey: IdempotencyKey(sc.automation),
		Webhook: &domain.WebhookPayload{
			URL:    callURL,
			Method: method,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := e.deliveries.Enqueue(ctx, job)
	if err != nil {
		return RetryAfter(fmt.Sprintf("enqueue webhook: %v", err), stepRetryDelay(sc.step, sc.settings))
	}
	if !inserted {
		return Success()
	}

	e.notifyDelivery(ctx, job)

	return Success().WithStats(domain.FlowStatsDelta{WebhooksSent: 1})
}

// callWebhook выполняет webhook синхронно в движке.
func (e *Executor) callWebhook(ctx context.Context, sc *stepContext, method, callURL string) Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, defaultWebhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, callURL, nil)
	if err != nil {
		return Fatal(fmt.Sprintf("build webhook request: %v", err))
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return RetryAfter(fmt.Sprintf("webhook call: %v", err), stepRetryDelay(sc.step, sc.settings))
	}
	defer resp.Body.Close()

	// Тело не используется, но вычитывается для переиспользования соединения
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	e.logger.Debug("webhook called",
		"url", callURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RetryAfter(fmt.Sprintf("webhook status %d", resp.StatusCode), stepRetryDelay(sc.step, sc.settings))
	}

	return Success().WithStats(domain.FlowStatsDelta{WebhooksSent: 1})
}

// buildWebhookURL подставляет query-параметры шага в URL.
// Параметры с source=contactEmail получают email контакта.
func buildWebhookURL(cfg *domain.SendWebhookStep, contact *domain.Contact) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for _, p := range cfg.Params {
		switch p.Source {
		case domain.ParamSourceContactEmail:
			q.Set(p.Key, contact.Email)
		default:
			q.Set(p.Key, p.Value)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
