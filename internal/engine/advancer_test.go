package engine

import (
	"testing"
	"time"

	"github.com/shaiso/Mailflow/internal/domain"
)

var advancerNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func twoStepVersion() *domain.FlowVersion {
	return &domain.FlowVersion{
		Version: 1,
		Steps: []domain.Step{
			{Type: domain.StepTypeDeleteSubscriber},
			{Type: domain.StepTypeDeleteSubscriber},
		},
	}
}

func TestApplyOutcome_SuccessAdvancesCursor(t *testing.T) {
	a := &domain.Automation{Status: domain.AutomationStatusActive, Attempts: 2, LastError: "old"}
	version := twoStepVersion()

	delta := applyOutcome(a, version, &version.Steps[0], Success(), advancerNow, 5)

	if a.StepIndex != 1 {
		t.Errorf("expected step index 1, got %d", a.StepIndex)
	}
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("expected active, got %s", a.Status)
	}
	if a.Attempts != 0 {
		t.Errorf("attempts should reset on advance, got %d", a.Attempts)
	}
	if a.LastError != "" {
		t.Errorf("last error should clear on advance, got %q", a.LastError)
	}
	if !a.NextStepAt.Equal(advancerNow) {
		t.Errorf("next step should be due immediately, got %v", a.NextStepAt)
	}
	if !delta.IsZero() {
		t.Errorf("plain success should earn no stats, got %+v", delta)
	}
}

func TestApplyOutcome_SuccessWithDelayStaysActive(t *testing.T) {
	a := &domain.Automation{Status: domain.AutomationStatusActive}
	version := twoStepVersion()

	applyOutcome(a, version, &version.Steps[0], SuccessAfter(2*time.Hour), advancerNow, 0)

	// Пауза — только отсрочка NextStepAt, не переход статуса
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("expected active during wait, got %s", a.Status)
	}
	if want := advancerNow.Add(2 * time.Hour); !a.NextStepAt.Equal(want) {
		t.Errorf("expected next step at %v, got %v", want, a.NextStepAt)
	}
}

func TestApplyOutcome_LastStepCompletes(t *testing.T) {
	a := &domain.Automation{StepIndex: 1, Status: domain.AutomationStatusActive}
	version := twoStepVersion()

	delta := applyOutcome(a, version, &version.Steps[1], Success(), advancerNow, 40)

	if a.Status != domain.AutomationStatusCompleted {
		t.Errorf("expected completed, got %s", a.Status)
	}
	if a.StepIndex != 1 {
		t.Errorf("cursor should not move past the end, got %d", a.StepIndex)
	}
	if delta.UsersProcessed != 1 {
		t.Errorf("completion should count the user, got %d", delta.UsersProcessed)
	}
	if delta.ProcessingMillisTotal != 40 {
		t.Errorf("completion should record processing time, got %d", delta.ProcessingMillisTotal)
	}
}

func TestApplyOutcome_TerminateCompletesEarly(t *testing.T) {
	a := &domain.Automation{StepIndex: 0, Status: domain.AutomationStatusActive}
	version := twoStepVersion()

	delta := applyOutcome(a, version, &version.Steps[0],
		Terminated().WithStats(domain.FlowStatsDelta{SubscribersDeleted: 1}), advancerNow, 10)

	if a.Status != domain.AutomationStatusCompleted {
		t.Errorf("expected completed, got %s", a.Status)
	}
	if delta.SubscribersDeleted != 1 {
		t.Errorf("step stats should carry through, got %+v", delta)
	}
	if delta.UsersProcessed != 1 {
		t.Errorf("early termination still counts the user, got %d", delta.UsersProcessed)
	}
}

func TestApplyOutcome_RetryConsumesBudget(t *testing.T) {
	a := &domain.Automation{Status: domain.AutomationStatusActive}
	version := twoStepVersion()

	applyOutcome(a, version, &version.Steps[0], RetryAfter("smtp timeout", time.Minute), advancerNow, 0)

	if a.StepIndex != 0 {
		t.Errorf("retry must not advance the cursor, got %d", a.StepIndex)
	}
	if a.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", a.Attempts)
	}
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("expected active, got %s", a.Status)
	}
	if a.LastError != "smtp timeout" {
		t.Errorf("expected last error recorded, got %q", a.LastError)
	}
	if want := advancerNow.Add(time.Minute); !a.NextStepAt.Equal(want) {
		t.Errorf("expected retry at %v, got %v", want, a.NextStepAt)
	}
}

func TestApplyOutcome_RetryBudgetExhaustedFails(t *testing.T) {
	version := &domain.FlowVersion{
		Version: 1,
		Steps: []domain.Step{webhookStep(domain.SendWebhookStep{
			URL:           "https://hooks.example.com",
			RetryAttempts: 2,
		})},
	}
	a := &domain.Automation{Status: domain.AutomationStatusActive}

	// Бюджет webhook: 2 повтора сверх первой попытки
	for i := 0; i < 2; i++ {
		applyOutcome(a, version, &version.Steps[0], RetryAfter("status 502", time.Minute), advancerNow, 0)
		if a.Status != domain.AutomationStatusActive {
			t.Fatalf("attempt %d: expected still active, got %s", i+1, a.Status)
		}
	}

	applyOutcome(a, version, &version.Steps[0], RetryAfter("status 502", time.Minute), advancerNow, 0)

	if a.Status != domain.AutomationStatusFailed {
		t.Errorf("expected failed after exhausting budget, got %s", a.Status)
	}
	if a.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", a.Attempts)
	}
}

func TestApplyOutcome_DeferKeepsBudget(t *testing.T) {
	a := &domain.Automation{Status: domain.AutomationStatusActive, Attempts: 1}
	version := twoStepVersion()

	applyOutcome(a, version, &version.Steps[0], Defer("daily email cap reached", 6*time.Hour), advancerNow, 0)

	if a.Attempts != 1 {
		t.Errorf("deferral must not consume attempts, got %d", a.Attempts)
	}
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("expected active, got %s", a.Status)
	}
	if want := advancerNow.Add(6 * time.Hour); !a.NextStepAt.Equal(want) {
		t.Errorf("expected deferral until %v, got %v", want, a.NextStepAt)
	}
}

func TestApplyOutcome_FatalFails(t *testing.T) {
	a := &domain.Automation{Status: domain.AutomationStatusActive}
	version := twoStepVersion()

	applyOutcome(a, version, &version.Steps[0], Fatal("template missing"), advancerNow, 0)

	if a.Status != domain.AutomationStatusFailed {
		t.Errorf("expected failed, got %s", a.Status)
	}
	if a.LastError != "template missing" {
		t.Errorf("expected reason recorded, got %q", a.LastError)
	}
	if a.StepIndex != 0 {
		t.Errorf("fatal must not advance the cursor, got %d", a.StepIndex)
	}
}
