package engine

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
)

// --- Executor Fixture ---

type executorEnv struct {
	executor   *Executor
	contacts   *fakeContactStore
	templates  *fakeTemplateStore
	deliveries *fakeDeliveryStore

	contact  *domain.Contact
	flow     *domain.Flow
	settings domain.Settings
	now      time.Time
}

func newExecutorEnv(t *testing.T) *executorEnv {
	t.Helper()

	env := &executorEnv{
		contacts:   newFakeContactStore(),
		templates:  newFakeTemplateStore(),
		deliveries: newFakeDeliveryStore(),
		settings:   domain.DefaultSettings(),
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	env.contact = &domain.Contact{
		ID:        uuid.New(),
		WebsiteID: uuid.New(),
		Email:     "alice@example.com",
		Name:      "Alice",
		Status:    domain.ContactStatusSubscribed,
	}
	env.contacts.add(env.contact)

	env.flow = &domain.Flow{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		WebsiteID:      env.contact.WebsiteID,
		IsActive:       true,
		CurrentVersion: 1,
	}

	env.executor = NewExecutor(ExecutorConfig{
		Contacts:   env.contacts,
		Templates:  env.templates,
		Deliveries: env.deliveries,
		Logger:     slog.Default(),
	})
	env.executor.now = func() time.Time { return env.now }

	return env
}

func (env *executorEnv) execute(step domain.Step) Outcome {
	return env.executor.ExecuteStep(context.Background(), &stepContext{
		automation: &domain.Automation{
			ContactID:   env.contact.ID,
			FlowID:      env.flow.ID,
			FlowVersion: 1,
			StepIndex:   0,
			Status:      domain.AutomationStatusActive,
		},
		flow:     env.flow,
		step:     &step,
		settings: &env.settings,
	})
}

// --- SendMail Tests ---

func TestExecutor_SendMail_TrackingPixel(t *testing.T) {
	env := newExecutorEnv(t)
	env.executor.trackingBaseURL = "https://t.example.com"
	env.settings.EnableTracking = true

	tpl := &domain.Template{
		ID:        uuid.New(),
		Subject:   "Hi",
		BodyHTML:  "<html><body>Hello</body></html>",
		FromEmail: "noreply@example.com",
	}
	env.templates.templates[tpl.ID] = tpl

	out := env.execute(mailStep(tpl.ID))
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", out.Kind, out.Reason)
	}

	job := env.deliveries.jobs[0]
	if !strings.Contains(job.Email.BodyHTML, "https://t.example.com/t/") {
		t.Error("body should carry tracking pixel URL")
	}
	if !strings.Contains(job.Email.BodyHTML, job.ID.String()) {
		t.Error("pixel URL should embed the job id")
	}
	if idx := strings.Index(job.Email.BodyHTML, "<img"); idx > strings.Index(job.Email.BodyHTML, "</body>") {
		t.Error("pixel should be inserted before </body>")
	}
}

func TestExecutor_SendMail_TrackingDisabled(t *testing.T) {
	env := newExecutorEnv(t)
	env.executor.trackingBaseURL = "https://t.example.com"
	env.settings.EnableTracking = false

	tpl := &domain.Template{ID: uuid.New(), Subject: "Hi", BodyHTML: "<p>Hello</p>", FromEmail: "noreply@example.com"}
	env.templates.templates[tpl.ID] = tpl

	out := env.execute(mailStep(tpl.ID))
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s", out.Kind)
	}
	if strings.Contains(env.deliveries.jobs[0].Email.BodyHTML, "<img") {
		t.Error("tracking pixel should not be added when disabled")
	}
}

func TestExecutor_SendMail_InvalidTemplateID(t *testing.T) {
	env := newExecutorEnv(t)

	out := env.execute(domain.Step{
		Type:     domain.StepTypeSendMail,
		SendMail: &domain.SendMailStep{TemplateID: "not-a-uuid"},
	})

	if out.Kind != OutcomeFatal {
		t.Errorf("expected fatal, got %s", out.Kind)
	}
}

func TestExecutor_SendMail_RenderErrorFatal(t *testing.T) {
	env := newExecutorEnv(t)

	tpl := &domain.Template{
		ID:        uuid.New(),
		Subject:   "{{ .Missing | badfunc }}",
		BodyHTML:  "<p>Hello</p>",
		FromEmail: "noreply@example.com",
	}
	env.templates.templates[tpl.ID] = tpl

	out := env.execute(mailStep(tpl.ID))
	if out.Kind != OutcomeFatal {
		t.Errorf("broken template should be fatal, got %s", out.Kind)
	}
}

// --- SendWebhook Tests ---

func webhookStep(cfg domain.SendWebhookStep) domain.Step {
	return domain.Step{Type: domain.StepTypeSendWebhook, SendWebhook: &cfg}
}

func TestExecutor_Webhook_EnqueuesJob(t *testing.T) {
	env := newExecutorEnv(t)

	out := env.execute(webhookStep(domain.SendWebhookStep{
		URL:           "https://hooks.example.com/notify",
		Method:        http.MethodPost,
		RetryAttempts: 2,
		Params: []domain.ParamBinding{
			{Key: "email", Source: domain.ParamSourceContactEmail},
			{Key: "source", Value: "mailflow"},
		},
	}))

	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", out.Kind, out.Reason)
	}
	if out.Stats.WebhooksSent != 1 {
		t.Errorf("expected 1 webhook in stats delta, got %d", out.Stats.WebhooksSent)
	}

	job := env.deliveries.jobs[0]
	if job.Kind != domain.DeliveryKindWebhook {
		t.Fatalf("expected webhook job, got %s", job.Kind)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("expected 3 max attempts (2 retries + first), got %d", job.MaxAttempts)
	}
	if job.Webhook.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", job.Webhook.Method)
	}
	if !strings.Contains(job.Webhook.URL, "email=alice%40example.com") {
		t.Errorf("contactEmail param should be bound, got %s", job.Webhook.URL)
	}
	if !strings.Contains(job.Webhook.URL, "source=mailflow") {
		t.Errorf("static param should be bound, got %s", job.Webhook.URL)
	}
}

func TestExecutor_Webhook_InProcess(t *testing.T) {
	env := newExecutorEnv(t)
	env.settings.ProcessWebhookInProcess = true

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	step := webhookStep(domain.SendWebhookStep{
		URL:           srv.URL,
		RetryAttempts: 2,
		RetryAfterSec: 30,
	})

	// Первые две попытки — retry с настроенной задержкой шага
	for attempt := 1; attempt <= 2; attempt++ {
		out := env.execute(step)
		if out.Kind != OutcomeRetry {
			t.Fatalf("attempt %d: expected retry, got %s", attempt, out.Kind)
		}
		if out.After != 30*time.Second {
			t.Errorf("attempt %d: expected step retry delay 30s, got %v", attempt, out.After)
		}
	}

	// Третья попытка успешна
	out := env.execute(step)
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success on third attempt, got %s (%s)", out.Kind, out.Reason)
	}
	if out.Stats.WebhooksSent != 1 {
		t.Errorf("expected 1 webhook in stats delta, got %d", out.Stats.WebhooksSent)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("in-process webhook must not enqueue jobs, got %d", len(env.deliveries.jobs))
	}
}

func TestExecutor_Webhook_DefaultMethodGet(t *testing.T) {
	env := newExecutorEnv(t)

	out := env.execute(webhookStep(domain.SendWebhookStep{URL: "https://hooks.example.com/ping"}))
	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s", out.Kind)
	}
	if got := env.deliveries.jobs[0].Webhook.Method; got != http.MethodGet {
		t.Errorf("expected GET default, got %s", got)
	}
}

// --- Subscriber Step Tests ---

func TestExecutor_Move(t *testing.T) {
	env := newExecutorEnv(t)
	target := uuid.New()
	env.contacts.knownLists[target] = true

	out := env.execute(domain.Step{
		Type: domain.StepTypeMoveSubscriber,
		Move: &domain.MoveStep{TargetListID: target.String()},
	})

	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", out.Kind, out.Reason)
	}
	if out.Stats.SubscribersMoved != 1 {
		t.Errorf("expected 1 moved in stats delta, got %d", out.Stats.SubscribersMoved)
	}
	if env.contact.ListID == nil || *env.contact.ListID != target {
		t.Error("contact should be in the target list")
	}
}

func TestExecutor_Move_TargetListMissing(t *testing.T) {
	env := newExecutorEnv(t)
	env.contacts.knownLists[uuid.New()] = true

	out := env.execute(domain.Step{
		Type: domain.StepTypeMoveSubscriber,
		Move: &domain.MoveStep{TargetListID: uuid.NewString()},
	})

	if out.Kind != OutcomeFatal {
		t.Errorf("missing target list should be fatal, got %s", out.Kind)
	}
}

func TestExecutor_Remove(t *testing.T) {
	env := newExecutorEnv(t)
	listID := uuid.New()
	env.contact.ListID = &listID

	out := env.execute(domain.Step{
		Type:   domain.StepTypeRemoveSubscriber,
		Remove: &domain.RemoveStep{ListID: listID.String()},
	})

	if out.Kind != OutcomeSuccess {
		t.Fatalf("expected success, got %s", out.Kind)
	}
	if out.Stats.SubscribersRemoved != 1 {
		t.Errorf("expected 1 removed in stats delta, got %d", out.Stats.SubscribersRemoved)
	}
	if env.contact.ListID != nil {
		t.Error("contact should be removed from the list")
	}
}

func TestExecutor_Remove_DifferentListNoop(t *testing.T) {
	env := newExecutorEnv(t)
	listID := uuid.New()
	env.contact.ListID = &listID

	out := env.execute(domain.Step{
		Type:   domain.StepTypeRemoveSubscriber,
		Remove: &domain.RemoveStep{ListID: uuid.NewString()},
	})

	if out.Kind != OutcomeSuccess {
		t.Fatalf("no-op removal should succeed, got %s", out.Kind)
	}
	if !out.Stats.IsZero() {
		t.Error("no-op removal must not earn stats")
	}
	if env.contact.ListID == nil || *env.contact.ListID != listID {
		t.Error("contact should stay in its list")
	}
}

func TestExecutor_Delete(t *testing.T) {
	env := newExecutorEnv(t)

	out := env.execute(domain.Step{Type: domain.StepTypeDeleteSubscriber})

	if out.Kind != OutcomeSuccess || !out.Terminate {
		t.Fatalf("expected terminating success, got %+v", out)
	}
	if out.Stats.SubscribersDeleted != 1 {
		t.Errorf("expected 1 deleted in stats delta, got %d", out.Stats.SubscribersDeleted)
	}
	if env.contact.Status != domain.ContactStatusDeleted {
		t.Errorf("contact should be soft-deleted, got %s", env.contact.Status)
	}
}

func TestExecutor_Delete_AlreadyGone(t *testing.T) {
	env := newExecutorEnv(t)
	env.contacts.contacts = map[uuid.UUID]*domain.Contact{}

	out := env.execute(domain.Step{Type: domain.StepTypeDeleteSubscriber})

	if out.Kind != OutcomeSuccess || !out.Terminate {
		t.Fatalf("deleting a gone contact should terminate, got %+v", out)
	}
	if !out.Stats.IsZero() {
		t.Error("already-gone contact must not earn stats")
	}
}

func TestExecutor_UnknownStepType(t *testing.T) {
	env := newExecutorEnv(t)

	out := env.execute(domain.Step{Type: "teleportSubscriber"})

	if out.Kind != OutcomeFatal {
		t.Errorf("unknown step type should be fatal, got %s", out.Kind)
	}
}
