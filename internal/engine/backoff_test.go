package engine

import (
	"testing"
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
)

func TestIdempotencyKey_Deterministic(t *testing.T) {
	a := &domain.Automation{
		FlowVersion: 2,
		StepIndex:   3,
		Attempts:    1,
	}

	if IdempotencyKey(a) != IdempotencyKey(a) {
		t.Error("key should be deterministic")
	}

	// Новая попытка шага — новый ключ
	b := *a
	b.Attempts++
	if IdempotencyKey(a) == IdempotencyKey(&b) {
		t.Error("key should change with attempts")
	}

	// Другой шаг — новый ключ
	c := *a
	c.StepIndex++
	if IdempotencyKey(a) == IdempotencyKey(&c) {
		t.Error("key should change with step index")
	}
}

func TestStepRetryDelay(t *testing.T) {
	settings := &domain.Settings{DefaultRetryDelaySec: 60}

	webhook := webhookStep(domain.SendWebhookStep{URL: "https://x", RetryAfterSec: 15})
	if got := stepRetryDelay(&webhook, settings); got != 15*time.Second {
		t.Errorf("webhook delay should come from the step, got %v", got)
	}

	webhookNoDelay := webhookStep(domain.SendWebhookStep{URL: "https://x"})
	if got := stepRetryDelay(&webhookNoDelay, settings); got != 60*time.Second {
		t.Errorf("unset webhook delay should fall back to settings, got %v", got)
	}

	mail := domain.Step{Type: domain.StepTypeSendMail}
	if got := stepRetryDelay(&mail, settings); got != 60*time.Second {
		t.Errorf("non-webhook delay should come from settings, got %v", got)
	}
}

func TestStepRetryBudget(t *testing.T) {
	webhook := webhookStep(domain.SendWebhookStep{URL: "https://x", RetryAttempts: 4})
	if got := stepRetryBudget(&webhook); got != 4 {
		t.Errorf("webhook budget should come from the step, got %d", got)
	}

	mail := domain.Step{Type: domain.StepTypeSendMail}
	if got := stepRetryBudget(&mail); got != 1 {
		t.Errorf("default budget should be 1 retry, got %d", got)
	}
}

func TestUTCDayBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 17, 45, 12, 0, time.UTC)

	if got := startOfUTCDay(now); !got.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start of day: %v", got)
	}
	if got := nextUTCMidnight(now); !got.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected next midnight: %v", got)
	}

	// Не-UTC время нормализуется к суткам UTC
	loc := time.FixedZone("UTC+5", 5*3600)
	late := time.Date(2026, 3, 11, 2, 0, 0, 0, loc) // 2026-03-10 21:00 UTC
	if got := startOfUTCDay(late); !got.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start of day for zoned time: %v", got)
	}
}
