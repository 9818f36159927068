package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
)

const webhookTimeout = 30 * time.Second

// WebhookCaller — транспорт webhook-вызовов.
type WebhookCaller interface {
	// Call выполняет webhook-вызов.
	Call(ctx context.Context, p *domain.WebhookPayload) error
}

// HTTPWebhookCaller — webhook через net/http с ограниченным таймаутом.
type HTTPWebhookCaller struct {
	client *http.Client
}

// NewHTTPWebhookCaller создаёт новый HTTPWebhookCaller.
func NewHTTPWebhookCaller(client *http.Client) *HTTPWebhookCaller {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &HTTPWebhookCaller{client: client}
}

// Call выполняет webhook-вызов.
//
// Любой не-2xx статус — временная ошибка: задание повторяется до
// исчерпания MaxAttempts. Принимающая сторона может чинить и 4xx
// (истёкший токен, ещё не созданный ресурс), поэтому ранняя
// терминализация по коду статуса не делается.
func (c *HTTPWebhookCaller) Call(ctx context.Context, p *domain.WebhookPayload) error {
	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, p.Method, p.URL, nil)
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook call: %w", err)
	}
	defer resp.Body.Close()

	// Тело не используется, но вычитывается для переиспользования соединения
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
