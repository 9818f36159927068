package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/repo"
)

// --- Fakes ---

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.DeliveryJob
	now  func() time.Time

	// claimLost заставляет ClaimPending проигрывать гонку.
	claimLost bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs: make(map[uuid.UUID]*domain.DeliveryJob),
		now:  time.Now,
	}
}

func (s *fakeJobStore) put(job *domain.DeliveryJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
}

func (s *fakeJobStore) get(id uuid.UUID) *domain.DeliveryJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.jobs[id]
	return &cp
}

func (s *fakeJobStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.DeliveryJob
	for _, j := range s.jobs {
		if len(due) >= limit {
			break
		}
		if j.Status == domain.DeliveryStatusPending && !j.NextAttemptAt.After(now) {
			due = append(due, *j)
		}
	}
	return due, nil
}

func (s *fakeJobStore) ClaimPending(_ context.Context, id uuid.UUID) (*domain.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimLost {
		return nil, repo.ErrClaimLost
	}

	j, ok := s.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	// Зеркало CAS репозитория: pending и наступивший next_attempt_at
	if j.Status != domain.DeliveryStatusPending || j.NextAttemptAt.After(s.now()) {
		return nil, repo.ErrClaimLost
	}

	j.MarkProcessing(s.now())
	cp := *j
	return &cp, nil
}

func (s *fakeJobStore) Update(_ context.Context, job *domain.DeliveryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

type fakeSettings struct {
	settings domain.Settings
}

func (s *fakeSettings) Load(_ context.Context) (*domain.Settings, error) {
	cp := s.settings
	return &cp, nil
}

// fakeSender возвращает подготовленную последовательность ошибок,
// затем успех.
type fakeSender struct {
	mu    sync.Mutex
	fails []error
	calls int
	sent  []*domain.EmailPayload
}

func (s *fakeSender) Send(_ context.Context, email *domain.EmailPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.fails) > 0 {
		err := s.fails[0]
		s.fails = s.fails[1:]
		return "", err
	}
	s.sent = append(s.sent, email)
	return "msg-" + uuid.NewString()[:8], nil
}

type fakeCaller struct {
	mu    sync.Mutex
	fails []error
	calls int
}

func (c *fakeCaller) Call(_ context.Context, _ *domain.WebhookPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if len(c.fails) > 0 {
		err := c.fails[0]
		c.fails = c.fails[1:]
		return err
	}
	return nil
}

// --- Fixture ---

type workerEnv struct {
	worker   *Worker
	jobs     *fakeJobStore
	sender   *fakeSender
	caller   *fakeCaller
	settings *fakeSettings
	now      time.Time
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()

	env := &workerEnv{
		jobs:     newFakeJobStore(),
		sender:   &fakeSender{},
		caller:   &fakeCaller{},
		settings: &fakeSettings{settings: domain.DefaultSettings()},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	env.jobs.now = func() time.Time { return env.now }

	env.worker = New(Config{
		Jobs:     env.jobs,
		Settings: env.settings,
		Email:    env.sender,
		Webhook:  env.caller,
	})
	env.worker.now = func() time.Time { return env.now }

	return env
}

func (env *workerEnv) emailJob(maxAttempts int) *domain.DeliveryJob {
	job := &domain.DeliveryJob{
		ID:            uuid.New(),
		Kind:          domain.DeliveryKindEmail,
		ContactID:     uuid.New(),
		FlowID:        uuid.New(),
		Status:        domain.DeliveryStatusPending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: env.now,
		Email: &domain.EmailPayload{
			To:       "alice@example.com",
			From:     "noreply@example.com",
			Subject:  "Hi",
			BodyHTML: "<p>Hello</p>",
		},
	}
	env.jobs.put(job)
	return job
}

func (env *workerEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *workerEnv) process(t *testing.T, id uuid.UUID) {
	t.Helper()
	if err := env.worker.ProcessJob(context.Background(), id); err != nil {
		t.Fatalf("process job failed: %v", err)
	}
}

// --- Worker Tests ---

func TestNew_Defaults(t *testing.T) {
	w := New(Config{})

	if w.pollInterval != defaultPollInterval {
		t.Errorf("expected default poll interval %v, got %v", defaultPollInterval, w.pollInterval)
	}
	if w.batchSize != defaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", defaultBatchSize, w.batchSize)
	}
	if w.webhook == nil {
		t.Error("webhook caller should default to HTTP caller")
	}
}

func TestWorker_ProcessJob_EmailSent(t *testing.T) {
	env := newWorkerEnv(t)
	job := env.emailJob(3)

	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.MessageID == "" {
		t.Error("message id should be recorded")
	}
	if got.LastError != "" {
		t.Errorf("last error should clear on success, got %q", got.LastError)
	}
	if len(env.sender.sent) != 1 || env.sender.sent[0].To != "alice@example.com" {
		t.Error("sender should receive the payload")
	}
}

func TestWorker_ProcessJob_RetryThenSent(t *testing.T) {
	env := newWorkerEnv(t)
	env.sender.fails = []error{errors.New("smtp timeout"), errors.New("smtp timeout")}
	job := env.emailJob(3)

	// Попытка 1: временная ошибка → pending с backoff
	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusPending {
		t.Fatalf("expected pending after transient failure, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.LastError != "smtp timeout" {
		t.Errorf("expected last error recorded, got %q", got.LastError)
	}
	if want := env.now.Add(env.settings.settings.DefaultRetryDelay()); !got.NextAttemptAt.Equal(want) {
		t.Errorf("expected first retry at %v, got %v", want, got.NextAttemptAt)
	}

	// Попытка 2 (после backoff): снова ошибка → backoff удваивается
	env.advance(env.settings.settings.DefaultRetryDelay())
	env.process(t, job.ID)

	got = env.jobs.get(job.ID)
	if got.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", got.Attempts)
	}
	if want := env.now.Add(2 * env.settings.settings.DefaultRetryDelay()); !got.NextAttemptAt.Equal(want) {
		t.Errorf("expected doubled backoff at %v, got %v", want, got.NextAttemptAt)
	}

	// Попытка 3: успех
	env.advance(2 * env.settings.settings.DefaultRetryDelay())
	env.process(t, job.ID)

	got = env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusSent {
		t.Fatalf("expected sent on third attempt, got %s", got.Status)
	}
	if env.sender.calls != 3 {
		t.Errorf("expected 3 send calls, got %d", env.sender.calls)
	}
}

func TestWorker_ProcessJob_AttemptsExhausted(t *testing.T) {
	env := newWorkerEnv(t)
	env.sender.fails = []error{errors.New("down"), errors.New("down")}
	job := env.emailJob(2)

	env.process(t, job.ID)
	env.advance(time.Hour)
	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusFailed {
		t.Fatalf("expected failed after exhausting attempts, got %s", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", got.Attempts)
	}

	// Терминальное задание не захватывается повторно
	env.advance(time.Hour)
	env.process(t, job.ID)
	if env.sender.calls != 2 {
		t.Errorf("terminal job must not be retried, got %d calls", env.sender.calls)
	}
}

func TestWorker_ProcessJob_RetryDisabled(t *testing.T) {
	env := newWorkerEnv(t)
	env.settings.settings.RetryFailedJobs = false
	env.sender.fails = []error{errors.New("down")}
	job := env.emailJob(3)

	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusFailed {
		t.Errorf("expected failed with retries disabled, got %s", got.Status)
	}
}

func TestWorker_ProcessJob_Bounce(t *testing.T) {
	env := newWorkerEnv(t)
	env.sender.fails = []error{Bounce(errors.New("550 no such user"))}
	job := env.emailJob(3)

	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusBounced {
		t.Fatalf("expected bounced, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("bounce should terminate on first attempt, got %d", got.Attempts)
	}
}

func TestWorker_ProcessJob_PermanentError(t *testing.T) {
	env := newWorkerEnv(t)
	env.sender.fails = []error{Permanent(errors.New("invalid payload"))}
	job := env.emailJob(3)

	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("permanent error should terminate on first attempt, got %d", got.Attempts)
	}
}

func TestWorker_ProcessJob_ClaimLost(t *testing.T) {
	env := newWorkerEnv(t)
	env.jobs.claimLost = true
	job := env.emailJob(3)

	// Проигрыш гонки с другим воркером — не ошибка
	env.process(t, job.ID)

	if env.sender.calls != 0 {
		t.Errorf("lost claim must not dispatch, got %d calls", env.sender.calls)
	}
}

func TestWorker_ProcessJob_RedeliveredBeforeBackoff(t *testing.T) {
	env := newWorkerEnv(t)
	job := env.emailJob(3)

	// Следующая попытка через 5 минут: повторная доставка события из MQ
	// не обходит backoff
	j := env.jobs.get(job.ID)
	j.NextAttemptAt = env.now.Add(5 * time.Minute)
	env.jobs.put(j)

	env.process(t, job.ID)

	if env.sender.calls != 0 {
		t.Errorf("early redelivery must not dispatch, got %d calls", env.sender.calls)
	}
	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("early redelivery must not consume attempts, got %d", got.Attempts)
	}
}

func TestWorker_ProcessJob_Webhook(t *testing.T) {
	env := newWorkerEnv(t)
	env.caller.fails = []error{errors.New("status 502")}

	job := &domain.DeliveryJob{
		ID:            uuid.New(),
		Kind:          domain.DeliveryKindWebhook,
		Status:        domain.DeliveryStatusPending,
		MaxAttempts:   3,
		NextAttemptAt: env.now,
		Webhook:       &domain.WebhookPayload{URL: "https://hooks.example.com", Method: "POST"},
	}
	env.jobs.put(job)

	env.process(t, job.ID)

	got := env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusPending {
		t.Fatalf("expected pending after transient webhook failure, got %s", got.Status)
	}

	env.advance(time.Hour)
	env.process(t, job.ID)

	got = env.jobs.get(job.ID)
	if got.Status != domain.DeliveryStatusSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if env.caller.calls != 2 {
		t.Errorf("expected 2 webhook calls, got %d", env.caller.calls)
	}
}

func TestWorker_ProcessJob_EmailWithoutPayload(t *testing.T) {
	env := newWorkerEnv(t)

	job := &domain.DeliveryJob{
		ID:            uuid.New(),
		Kind:          domain.DeliveryKindEmail,
		Status:        domain.DeliveryStatusPending,
		MaxAttempts:   3,
		NextAttemptAt: env.now,
	}
	env.jobs.put(job)

	env.process(t, job.ID)

	if got := env.jobs.get(job.ID).Status; got != domain.DeliveryStatusFailed {
		t.Errorf("payload-less job should fail permanently, got %s", got)
	}
}

func TestWorker_IsStopped(t *testing.T) {
	env := newWorkerEnv(t)

	if env.worker.IsStopped() {
		t.Error("should not be stopped initially")
	}

	env.worker.Stop()

	if !env.worker.IsStopped() {
		t.Error("should be stopped after Stop")
	}
}

// --- Backoff Tests ---

func TestBackoff(t *testing.T) {
	initial := time.Minute

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
	}
	for _, c := range cases {
		if got := backoff(c.attempt, initial); got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}

	// Потолок
	if got := backoff(20, initial); got != maxBackoff {
		t.Errorf("backoff should cap at %v, got %v", maxBackoff, got)
	}

	// Нулевая настройка падает в дефолт
	if got := backoff(1, 0); got != time.Minute {
		t.Errorf("zero initial delay should default to 1m, got %v", got)
	}
}

// --- Error Marker Tests ---

func TestPermanentAndBounceMarkers(t *testing.T) {
	base := errors.New("boom")

	if !IsPermanent(Permanent(base)) {
		t.Error("Permanent should be detected")
	}
	if !IsBounce(Bounce(base)) {
		t.Error("Bounce should be detected")
	}
	if IsPermanent(base) || IsBounce(base) {
		t.Error("plain errors should not match markers")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("Permanent should unwrap to the base error")
	}
	if Permanent(nil) != nil || Bounce(nil) != nil {
		t.Error("nil in, nil out")
	}
}
