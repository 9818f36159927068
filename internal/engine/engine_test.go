package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/repo"
	"github.com/shaiso/Mailflow/internal/telemetry"
)

// --- Test Fixture ---

type testEnv struct {
	engine      *Engine
	automations *fakeAutomationStore
	flows       *fakeFlowStore
	contacts    *fakeContactStore
	templates   *fakeTemplateStore
	deliveries  *fakeDeliveryStore
	settings    *fakeSettingsStore
	globalStats *fakeGlobalStatsStore

	flow     *domain.Flow
	contact  *domain.Contact
	template *domain.Template
	now      time.Time
}

// newTestEnv собирает движок на in-memory фейках с flow из заданных шагов
// и одним подписанным контактом.
func newTestEnv(t *testing.T, steps []domain.Step) *testEnv {
	t.Helper()

	env := &testEnv{
		automations: newFakeAutomationStore(),
		flows:       newFakeFlowStore(),
		contacts:    newFakeContactStore(),
		templates:   newFakeTemplateStore(),
		deliveries:  newFakeDeliveryStore(),
		settings:    &fakeSettingsStore{settings: domain.DefaultSettings()},
		globalStats: &fakeGlobalStatsStore{},
		now:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	env.automations.now = func() time.Time { return env.now }

	env.template = &domain.Template{
		ID:        uuid.New(),
		Name:      "welcome",
		Subject:   "Welcome, {{ .Name }}!",
		BodyHTML:  "<html><body>Hello {{ .Email }}</body></html>",
		FromEmail: "noreply@example.com",
	}
	env.templates.templates[env.template.ID] = env.template

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
		Name:           "onboarding",
		IsActive:       true,
		CurrentVersion: 1,
	}
	env.flows.add(env.flow, steps)

	env.automations.put(&domain.Automation{
		ContactID:   env.contact.ID,
		FlowID:      env.flow.ID,
		FlowVersion: 1,
		StepIndex:   0,
		Status:      domain.AutomationStatusActive,
		NextStepAt:  env.now,
		EnrolledAt:  env.now,
	})

	executor := NewExecutor(ExecutorConfig{
		Contacts:   env.contacts,
		Templates:  env.templates,
		Deliveries: env.deliveries,
		Logger:     slog.Default(),
	})
	executor.now = func() time.Time { return env.now }

	env.engine = New(Config{
		Automations: env.automations,
		Flows:       env.flows,
		Settings:    env.settings,
		GlobalStats: env.globalStats,
		Executor:    executor,
		WorkerID:    "engine-test",
		Logger:      slog.Default(),
	})
	env.engine.now = func() time.Time { return env.now }

	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) cycle(t *testing.T) {
	t.Helper()
	if err := env.engine.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
}

func (env *testEnv) automation(t *testing.T) *domain.Automation {
	t.Helper()
	a := env.automations.get(env.contact.ID, env.flow.ID)
	if a == nil {
		t.Fatal("automation should exist")
	}
	return a
}

func mailStep(templateID uuid.UUID) domain.Step {
	return domain.Step{
		Type:     domain.StepTypeSendMail,
		SendMail: &domain.SendMailStep{TemplateID: templateID.String()},
	}
}

func waitStep(duration int, unit domain.WaitUnit) domain.Step {
	return domain.Step{
		Type: domain.StepTypeWaitSubscriber,
		Wait: &domain.WaitStep{Duration: duration, Unit: unit},
	}
}

// --- Engine Lifecycle Tests ---

func TestNew_Defaults(t *testing.T) {
	eng := New(Config{})

	if eng.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, eng.pollInterval)
	}
	if eng.leaseFor != defaultLeaseFor {
		t.Errorf("expected default lease %v, got %v", defaultLeaseFor, eng.leaseFor)
	}
	if eng.WorkerID() == "" {
		t.Error("worker id should be generated")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	eng := New(Config{
		WorkerID:     "engine-1",
		PollInterval: 3 * time.Second,
		LeaseFor:     30 * time.Second,
	})

	if eng.WorkerID() != "engine-1" {
		t.Errorf("expected worker id engine-1, got %s", eng.WorkerID())
	}
	if eng.pollInterval != 3*time.Second {
		t.Errorf("expected poll interval 3s, got %v", eng.pollInterval)
	}
	if eng.leaseFor != 30*time.Second {
		t.Errorf("expected lease 30s, got %v", eng.leaseFor)
	}
}

func TestEngine_IsStopped(t *testing.T) {
	eng := New(Config{})

	if eng.IsStopped() {
		t.Error("should not be stopped initially")
	}

	eng.Stop()

	if !eng.IsStopped() {
		t.Error("should be stopped after Stop")
	}
}

// --- Cycle Tests ---

func TestEngine_Cycle_FullFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{
		mailStep(env.template.ID),
		waitStep(2, domain.WaitUnitHours),
		{Type: domain.StepTypeDeleteSubscriber},
	})

	// Цикл 1: sendMail — задание в очереди, курсор на wait
	env.cycle(t)

	a := env.automation(t)
	if a.StepIndex != 1 {
		t.Fatalf("expected step index 1, got %d", a.StepIndex)
	}
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("expected active, got %s", a.Status)
	}
	if len(env.deliveries.jobs) != 1 {
		t.Fatalf("expected 1 delivery job, got %d", len(env.deliveries.jobs))
	}

	job := env.deliveries.jobs[0]
	if job.Kind != domain.DeliveryKindEmail {
		t.Errorf("expected email job, got %s", job.Kind)
	}
	if job.Email.To != "alice@example.com" {
		t.Errorf("expected recipient alice@example.com, got %s", job.Email.To)
	}
	if job.Email.Subject != "Welcome, Alice!" {
		t.Errorf("subject should be rendered, got %q", job.Email.Subject)
	}

	// Цикл 2: wait — курсор двигается, следующий шаг через 2 часа
	env.cycle(t)

	a = env.automation(t)
	if a.StepIndex != 2 {
		t.Fatalf("expected step index 2, got %d", a.StepIndex)
	}
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("status should stay active during wait, got %s", a.Status)
	}
	if want := env.now.Add(2 * time.Hour); !a.NextStepAt.Equal(want) {
		t.Errorf("expected next step at %v, got %v", want, a.NextStepAt)
	}

	// Пауза не истекла — цикл ничего не делает
	env.cycle(t)
	if got := env.automation(t).StepIndex; got != 2 {
		t.Fatalf("step should not advance during wait, got index %d", got)
	}

	// Цикл 3 (после паузы): deleteSubscriber завершает автоматизацию
	env.advance(2 * time.Hour)
	env.cycle(t)

	a = env.automation(t)
	if a.Status != domain.AutomationStatusCompleted {
		t.Fatalf("expected completed, got %s", a.Status)
	}

	contact, err := env.contacts.GetByID(context.Background(), env.contact.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contact.Status != domain.ContactStatusDeleted {
		t.Errorf("contact should be soft-deleted, got %s", contact.Status)
	}

	stats := env.flows.stats[env.flow.ID]
	if stats.EmailsSent != 1 {
		t.Errorf("expected 1 email sent, got %d", stats.EmailsSent)
	}
	if stats.SubscribersDeleted != 1 {
		t.Errorf("expected 1 subscriber deleted, got %d", stats.SubscribersDeleted)
	}
	if stats.UsersProcessed != 1 {
		t.Errorf("expected 1 user processed, got %d", stats.UsersProcessed)
	}
	if env.globalStats.emails != 1 {
		t.Errorf("expected 1 global email, got %d", env.globalStats.emails)
	}
}

func TestEngine_Cycle_NothingDue(t *testing.T) {
	env := newTestEnv(t, []domain.Step{mailStep(uuid.New())})

	// Автоматизация запланирована в будущем
	a := env.automation(t)
	a.NextStepAt = env.now.Add(time.Hour)
	env.automations.put(a)

	env.cycle(t)

	if env.automations.commits != 0 {
		t.Errorf("expected no commits, got %d", env.automations.commits)
	}
}

func TestEngine_Cycle_ClaimLost(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})
	env.automations.claimLost = true

	// Проигрыш гонки за аренду — не ошибка, шаг просто не выполняется
	env.cycle(t)

	a := env.automation(t)
	if a.StepIndex != 0 {
		t.Errorf("step should not advance on lost claim, got index %d", a.StepIndex)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("no jobs should be enqueued, got %d", len(env.deliveries.jobs))
	}
}

func TestEngine_Cycle_LeaseExpiredDuringExecution(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{
		mailStep(env.template.ID),
		waitStep(1, domain.WaitUnitHours),
	})
	env.automations.loseCommit = true

	// Фиксация отброшена, но задание уже поставлено — дубликат при
	// перезахвате исключает идемпотентная вставка
	env.cycle(t)

	a := env.automation(t)
	if a.StepIndex != 0 {
		t.Errorf("advance should be discarded, got index %d", a.StepIndex)
	}
	if len(env.deliveries.jobs) != 1 {
		t.Fatalf("job should be enqueued before commit, got %d", len(env.deliveries.jobs))
	}

	// Перезахват после истечения аренды: та же попытка шага не создаёт
	// второе задание
	env.automations.loseCommit = false
	env.advance(2 * time.Minute)
	env.cycle(t)

	if len(env.deliveries.jobs) != 1 {
		t.Errorf("idempotent enqueue should dedupe, got %d jobs", len(env.deliveries.jobs))
	}
	if got := env.automation(t).StepIndex; got != 1 {
		t.Errorf("expected step index 1 after reclaim, got %d", got)
	}

	// Счётчик писем не двигается на дедуплицированной постановке
	if env.flows.stats[env.flow.ID].EmailsSent != 0 {
		t.Errorf("deduped enqueue must not count as email sent")
	}
}

func TestEngine_Cycle_InactiveFlowSkipped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})
	env.flow.IsActive = false

	env.cycle(t)

	a := env.automation(t)
	if a.StepIndex != 0 {
		t.Errorf("inactive flow should not execute steps, got index %d", a.StepIndex)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("no jobs should be enqueued for inactive flow")
	}
}

func TestEngine_Cycle_MissingVersionFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})

	a := env.automation(t)
	a.FlowVersion = 99
	env.automations.put(a)

	env.cycle(t)

	a = env.automation(t)
	if a.Status != domain.AutomationStatusFailed {
		t.Fatalf("expected failed, got %s", a.Status)
	}
	if a.LastError == "" {
		t.Error("last error should be recorded")
	}
}

func TestEngine_Cycle_CursorBeyondStepsCompletes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})

	a := env.automation(t)
	a.StepIndex = 5
	env.automations.put(a)

	env.cycle(t)

	if got := env.automation(t).Status; got != domain.AutomationStatusCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestEngine_Cycle_DailyCapDefersWithoutAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})
	env.settings.settings.MaxDailyEmailsPerCustomer = 100
	env.deliveries.dailyCount = 100

	env.cycle(t)

	a := env.automation(t)
	if a.StepIndex != 0 {
		t.Errorf("capped step should not advance, got index %d", a.StepIndex)
	}
	if a.Attempts != 0 {
		t.Errorf("deferral must not consume attempt budget, got %d", a.Attempts)
	}
	if want := nextUTCMidnight(env.now); !a.NextStepAt.Equal(want) {
		t.Errorf("expected deferral until %v, got %v", want, a.NextStepAt)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("no jobs should be enqueued over the cap")
	}
}

func TestEngine_Cycle_TemplateMissingFatal(t *testing.T) {
	env := newTestEnv(t, []domain.Step{mailStep(uuid.New())})

	env.cycle(t)

	a := env.automation(t)
	if a.Status != domain.AutomationStatusFailed {
		t.Fatalf("expected failed, got %s", a.Status)
	}
	if a.LastError == "" {
		t.Error("last error should name the missing template")
	}
}

func TestEngine_Cycle_ContactGoneTerminates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})
	env.contacts.contacts = map[uuid.UUID]*domain.Contact{}

	env.cycle(t)

	a := env.automation(t)
	if a.Status != domain.AutomationStatusCompleted {
		t.Errorf("orphaned automation should complete, got %s", a.Status)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("no jobs should be enqueued for a gone contact")
	}
}

func TestEngine_Cycle_BatchLimit(t *testing.T) {
	env := newTestEnv(t, []domain.Step{waitStep(1, domain.WaitUnitHours), waitStep(1, domain.WaitUnitHours)})
	env.settings.settings.FetchBatchSizePerProcess = 1

	// Вторая автоматизация в том же flow
	other := &domain.Contact{
		ID:        uuid.New(),
		WebsiteID: env.contact.WebsiteID,
		Email:     "bob@example.com",
		Status:    domain.ContactStatusSubscribed,
	}
	env.contacts.add(other)
	env.automations.put(&domain.Automation{
		ContactID:   other.ID,
		FlowID:      env.flow.ID,
		FlowVersion: 1,
		Status:      domain.AutomationStatusActive,
		NextStepAt:  env.now,
	})

	env.cycle(t)

	if env.automations.commits != 1 {
		t.Errorf("batch of 1 should process exactly 1 automation, got %d commits", env.automations.commits)
	}
}

func TestEngine_RedeliveredEventDoesNotRunEarly(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})

	// Шаг запланирован через два часа: повторная доставка события из MQ
	// не должна выполнить его раньше срока
	a := env.automation(t)
	a.NextStepAt = env.now.Add(2 * time.Hour)
	env.automations.put(a)

	settings := domain.DefaultSettings()
	env.engine.processAutomation(context.Background(), env.contact.ID, env.flow.ID, &settings)

	a = env.automation(t)
	if a.StepIndex != 0 {
		t.Errorf("future step must not run early, got index %d", a.StepIndex)
	}
	if a.Status != domain.AutomationStatusActive {
		t.Errorf("expected active, got %s", a.Status)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("no jobs should be enqueued before the step is due, got %d", len(env.deliveries.jobs))
	}
	if env.automations.commits != 0 {
		t.Errorf("expected no commits, got %d", env.automations.commits)
	}
}

// --- Lease Tests ---

func TestAutomationLease_ExclusiveUntilExpiry(t *testing.T) {
	env := newTestEnv(t, []domain.Step{waitStep(1, domain.WaitUnitHours)})
	ctx := context.Background()

	if _, err := env.automations.Claim(ctx, env.contact.ID, env.flow.ID, "worker-a", time.Minute); err != nil {
		t.Fatalf("first claim should win: %v", err)
	}

	// Живая аренда worker-a исключает захват вторым воркером
	if _, err := env.automations.Claim(ctx, env.contact.ID, env.flow.ID, "worker-b", time.Minute); !errors.Is(err, repo.ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost for concurrent claim, got %v", err)
	}

	// После истечения аренды автоматизация перезахватывается
	env.advance(2 * time.Minute)
	if _, err := env.automations.Claim(ctx, env.contact.ID, env.flow.ID, "worker-b", time.Minute); err != nil {
		t.Errorf("expired lease should be reclaimable: %v", err)
	}
}

func TestEngine_Cycle_ForeignLeaseSkipped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.flows.add(env.flow, []domain.Step{mailStep(env.template.ID)})

	a := env.automation(t)
	expires := env.now.Add(30 * time.Second)
	a.ClaimedBy = "other-engine"
	a.ClaimExpiresAt = &expires
	env.automations.put(a)

	env.cycle(t)

	if got := env.automation(t).StepIndex; got != 0 {
		t.Errorf("claimed automation should not run, got index %d", got)
	}
	if len(env.deliveries.jobs) != 0 {
		t.Errorf("no jobs should be enqueued under a foreign lease")
	}
}

func TestEngine_Cycle_IdleObservesDuration(t *testing.T) {
	env := newTestEnv(t, []domain.Step{waitStep(1, domain.WaitUnitHours)})

	a := env.automation(t)
	a.NextStepAt = env.now.Add(time.Hour)
	env.automations.put(a)

	var before dto.Metric
	if err := telemetry.CycleDuration.Write(&before); err != nil {
		t.Fatalf("read histogram: %v", err)
	}

	// Пустой due-set — цикл всё равно наблюдается в гистограмме
	env.cycle(t)

	var after dto.Metric
	if err := telemetry.CycleDuration.Write(&after); err != nil {
		t.Fatalf("read histogram: %v", err)
	}
	if got, want := after.GetHistogram().GetSampleCount(), before.GetHistogram().GetSampleCount()+1; got != want {
		t.Errorf("idle cycle should be observed, sample count %d, want %d", got, want)
	}
}
