package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Mailflow/internal/domain"
	"github.com/shaiso/Mailflow/internal/repo"
)

// In-memory фейки хранилищ для тестов движка.

type automationKey struct {
	contactID uuid.UUID
	flowID    uuid.UUID
}

type fakeAutomationStore struct {
	mu    sync.Mutex
	items map[automationKey]*domain.Automation
	now   func() time.Time

	// claimLost заставляет Claim проигрывать гонку.
	claimLost bool

	// loseCommit заставляет CommitAdvance возвращать ErrClaimLost.
	loseCommit bool

	commits int
}

func newFakeAutomationStore() *fakeAutomationStore {
	return &fakeAutomationStore{
		items: make(map[automationKey]*domain.Automation),
		now:   time.Now,
	}
}

func (s *fakeAutomationStore) put(a *domain.Automation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.items[automationKey{a.ContactID, a.FlowID}] = &cp
}

func (s *fakeAutomationStore) get(contactID, flowID uuid.UUID) *domain.Automation {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[automationKey{contactID, flowID}]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (s *fakeAutomationStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.Automation
	for _, a := range s.items {
		if len(due) >= limit {
			break
		}
		if a.IsDue(now) && !a.IsClaimed(now) {
			due = append(due, *a)
		}
	}
	return due, nil
}

// Claim повторяет CAS настоящего репозитория: аренда выдаётся, только
// если автоматизация due и не захвачена живой арендой другого воркера.
func (s *fakeAutomationStore) Claim(_ context.Context, contactID, flowID uuid.UUID, workerID string, leaseFor time.Duration) (*domain.Automation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimLost {
		return nil, repo.ErrClaimLost
	}

	a, ok := s.items[automationKey{contactID, flowID}]
	if !ok {
		return nil, repo.ErrNotFound
	}

	now := s.now()
	if !a.IsDue(now) || a.IsClaimed(now) {
		return nil, repo.ErrClaimLost
	}

	expires := now.Add(leaseFor)
	a.ClaimedBy = workerID
	a.ClaimExpiresAt = &expires

	cp := *a
	return &cp, nil
}

func (s *fakeAutomationStore) CommitAdvance(_ context.Context, a *domain.Automation, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loseCommit {
		return repo.ErrClaimLost
	}

	cp := *a
	cp.ClaimedBy = ""
	cp.ClaimExpiresAt = nil
	s.items[automationKey{a.ContactID, a.FlowID}] = &cp
	s.commits++
	return nil
}

type fakeFlowStore struct {
	mu       sync.Mutex
	flows    map[uuid.UUID]*domain.Flow
	versions map[uuid.UUID]map[int]*domain.FlowVersion
	stats    map[uuid.UUID]domain.FlowStatsDelta
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{
		flows:    make(map[uuid.UUID]*domain.Flow),
		versions: make(map[uuid.UUID]map[int]*domain.FlowVersion),
		stats:    make(map[uuid.UUID]domain.FlowStatsDelta),
	}
}

func (s *fakeFlowStore) add(flow *domain.Flow, steps []domain.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = flow
	if s.versions[flow.ID] == nil {
		s.versions[flow.ID] = make(map[int]*domain.FlowVersion)
	}
	s.versions[flow.ID][flow.CurrentVersion] = &domain.FlowVersion{
		FlowID:  flow.ID,
		Version: flow.CurrentVersion,
		Steps:   steps,
	}
}

func (s *fakeFlowStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return flow, nil
}

func (s *fakeFlowStore) GetVersion(_ context.Context, flowID uuid.UUID, version int) (*domain.FlowVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[flowID][version]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return v, nil
}

func (s *fakeFlowStore) IncrStats(_ context.Context, flowID uuid.UUID, delta domain.FlowStatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.stats[flowID]
	acc.UsersProcessed += delta.UsersProcessed
	acc.EmailsSent += delta.EmailsSent
	acc.WebhooksSent += delta.WebhooksSent
	acc.SubscribersMoved += delta.SubscribersMoved
	acc.SubscribersRemoved += delta.SubscribersRemoved
	acc.SubscribersDeleted += delta.SubscribersDeleted
	acc.ProcessingMillisTotal += delta.ProcessingMillisTotal
	s.stats[flowID] = acc
	return nil
}

type fakeContactStore struct {
	mu       sync.Mutex
	contacts map[uuid.UUID]*domain.Contact

	// knownLists ограничивает допустимые целевые списки MoveToList.
	knownLists map[uuid.UUID]bool
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{
		contacts:   make(map[uuid.UUID]*domain.Contact),
		knownLists: make(map[uuid.UUID]bool),
	}
}

func (s *fakeContactStore) add(c *domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

func (s *fakeContactStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

func (s *fakeContactStore) MoveToList(_ context.Context, contactID, targetListID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return repo.ErrNotFound
	}
	if len(s.knownLists) > 0 && !s.knownLists[targetListID] {
		return repo.ErrNotFound
	}
	c.ListID = &targetListID
	return nil
}

func (s *fakeContactStore) RemoveFromList(_ context.Context, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return repo.ErrNotFound
	}
	c.ListID = nil
	return nil
}

func (s *fakeContactStore) SoftDelete(_ context.Context, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return repo.ErrNotFound
	}
	c.Status = domain.ContactStatusDeleted
	return nil
}

type fakeTemplateStore struct {
	templates map[uuid.UUID]*domain.Template
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{templates: make(map[uuid.UUID]*domain.Template)}
}

func (s *fakeTemplateStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Template, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t, nil
}

type fakeDeliveryStore struct {
	mu   sync.Mutex
	jobs []*domain.DeliveryJob
	keys map[string]bool

	// dailyCount подменяет подсчёт поставленных за сутки писем.
	dailyCount int
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{keys: make(map[string]bool)}
}

func (s *fakeDeliveryStore) Enqueue(_ context.Context, job *domain.DeliveryJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[job.IdempotencyKey] {
		return false, nil
	}
	s.keys[job.IdempotencyKey] = true
	cp := *job
	s.jobs = append(s.jobs, &cp)
	return true, nil
}

func (s *fakeDeliveryStore) CountEmailsEnqueuedSince(_ context.Context, _ uuid.UUID, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyCount, nil
}

type fakeSettingsStore struct {
	settings domain.Settings
}

func (s *fakeSettingsStore) Load(_ context.Context) (*domain.Settings, error) {
	cp := s.settings
	return &cp, nil
}

type fakeGlobalStatsStore struct {
	mu       sync.Mutex
	emails   int64
	webhooks int64
}

func (s *fakeGlobalStatsStore) IncrEmailsSent(_ context.Context, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails += delta
	return nil
}

func (s *fakeGlobalStatsStore) IncrWebhooksSent(_ context.Context, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks += delta
	return nil
}
