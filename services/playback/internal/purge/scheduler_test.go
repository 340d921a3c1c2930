package purge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/pkg/events"
	"github.com/rework/video-access/pkg/metrics"
	"github.com/rework/video-access/services/playback/internal/domain"
	"github.com/rework/video-access/services/playback/internal/purge"
)

// ---------- Mocks ----------

type mockGrants struct {
	grants      map[string]*domain.AccessGrant
	unscheduled []string
}

func newMockGrants() *mockGrants {
	return &mockGrants{grants: make(map[string]*domain.AccessGrant)}
}

func (m *mockGrants) Create(context.Context, *domain.CreateGrantReq) (*domain.AccessGrant, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGrants) GetByID(_ context.Context, id string) (*domain.AccessGrant, error) {
	g, ok := m.grants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockGrants) GetByVideoAndScope(context.Context, string, string) (*domain.AccessGrant, error) {
	return nil, domain.ErrNotFound
}

func (m *mockGrants) Consume(context.Context, string, string) (*domain.ConsumeResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGrants) MarkDeleted(_ context.Context, id string) (bool, error) {
	g, ok := m.grants[id]
	if !ok || g.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	g.DeletedAt = &now
	return true, nil
}

func (m *mockGrants) Stats(context.Context, string) (*domain.VideoStats, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGrants) ListExhaustedUnscheduled(context.Context, int) ([]string, error) {
	return m.unscheduled, nil
}

type mockDeletions struct {
	records map[string]*domain.DeletionRecord
}

func newMockDeletions() *mockDeletions {
	return &mockDeletions{records: make(map[string]*domain.DeletionRecord)}
}

func (m *mockDeletions) Schedule(_ context.Context, grantID string, at time.Time, reason string) (bool, error) {
	if _, ok := m.records[grantID]; ok {
		return false, nil
	}
	m.records[grantID] = &domain.DeletionRecord{
		GrantID:     grantID,
		ScheduledAt: at,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	return true, nil
}

func (m *mockDeletions) GetByGrant(_ context.Context, grantID string) (*domain.DeletionRecord, error) {
	d, ok := m.records[grantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *mockDeletions) DuePending(_ context.Context, now time.Time, maxAttempts, _ int) ([]domain.DeletionRecord, error) {
	var due []domain.DeletionRecord
	for _, d := range m.records {
		if d.ExecutedAt == nil && d.CanceledAt == nil &&
			!d.ScheduledAt.After(now) && d.Attempts < maxAttempts {
			due = append(due, *d)
		}
	}
	return due, nil
}

func (m *mockDeletions) RecordAttempts(_ context.Context, grantID string, attempts int) error {
	if d, ok := m.records[grantID]; ok && d.ExecutedAt == nil {
		d.Attempts = attempts
	}
	return nil
}

func (m *mockDeletions) MarkExecuted(_ context.Context, grantID string) (bool, error) {
	d, ok := m.records[grantID]
	if !ok || d.ExecutedAt != nil {
		return false, nil
	}
	now := time.Now()
	d.ExecutedAt = &now
	return true, nil
}

func (m *mockDeletions) Cancel(_ context.Context, grantID string) (bool, error) {
	d, ok := m.records[grantID]
	if !ok || d.ExecutedAt != nil || d.CanceledAt != nil {
		return false, nil
	}
	now := time.Now()
	d.CanceledAt = &now
	return true, nil
}

type mockSessions struct {
	endedByGrant map[string]string
}

func newMockSessions() *mockSessions {
	return &mockSessions{endedByGrant: make(map[string]string)}
}

func (m *mockSessions) Create(context.Context, *domain.PlaybackSession) (*domain.PlaybackSession, error) {
	return nil, errors.New("not implemented")
}
func (m *mockSessions) GetByID(context.Context, string) (*domain.PlaybackSession, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSessions) FindContinuable(context.Context, string, string, time.Time) (*domain.PlaybackSession, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSessions) Refresh(context.Context, string, time.Time) (*domain.PlaybackSession, error) {
	return nil, domain.ErrNotFound
}
func (m *mockSessions) Touch(context.Context, string) error { return nil }
func (m *mockSessions) End(context.Context, string, string) (bool, error) {
	return false, nil
}
func (m *mockSessions) EndByGrant(_ context.Context, grantID, reason string) (int64, error) {
	m.endedByGrant[grantID] = reason
	return 1, nil
}
func (m *mockSessions) CountActive(context.Context) (int, error) { return 0, nil }

type mockStorage struct {
	deleted  []string
	failures int // fail this many calls before succeeding
	calls    int
}

func (m *mockStorage) Delete(_ context.Context, assetID string) error {
	m.calls++
	if m.calls <= m.failures {
		return domain.ErrDownstreamUnavailable
	}
	m.deleted = append(m.deleted, assetID)
	return nil
}

type mockBus struct {
	published []string
}

func (m *mockBus) Publish(_ context.Context, subject string, _ interface{}) error {
	m.published = append(m.published, subject)
	return nil
}
func (m *mockBus) Close() error { return nil }

type mockAlerts struct {
	failed []string
}

func (m *mockAlerts) DeletionFailed(grantID, _ string, _ int, _ error) error {
	m.failed = append(m.failed, grantID)
	return nil
}

// ---------- Test Setup ----------

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Purge.GracePeriod = 2 * time.Second
	cfg.Purge.MaxAttempts = 3
	cfg.Purge.PollInterval = time.Second
	cfg.Purge.CallTimeout = time.Second
	return cfg
}

type fixture struct {
	scheduler *purge.Scheduler
	grants    *mockGrants
	deletions *mockDeletions
	sessions  *mockSessions
	storage   *mockStorage
	bus       *mockBus
	alerts    *mockAlerts
}

func setup() *fixture {
	f := &fixture{
		grants:    newMockGrants(),
		deletions: newMockDeletions(),
		sessions:  newMockSessions(),
		storage:   &mockStorage{},
		bus:       &mockBus{},
		alerts:    &mockAlerts{},
	}
	f.scheduler = purge.NewScheduler(f.deletions, f.grants, f.sessions, f.storage, f.bus, f.alerts, metrics.New(), testConfig())
	return f
}

func (f *fixture) addExhaustedGrant(id string) *domain.AccessGrant {
	g := &domain.AccessGrant{
		ID:            id,
		VideoID:       "video-" + id,
		ViewerScope:   "scope-1",
		MaxViews:      2,
		ViewsConsumed: 2,
	}
	f.grants.grants[id] = g
	return g
}

// ---------- Tests ----------

func TestScheduleExhausted_FirstWins(t *testing.T) {
	f := setup()
	f.addExhaustedGrant("g1")

	if err := f.scheduler.ScheduleExhausted(context.Background(), "g1"); err != nil {
		t.Fatalf("ScheduleExhausted failed: %v", err)
	}
	first := f.deletions.records["g1"].ScheduledAt

	time.Sleep(5 * time.Millisecond)
	if err := f.scheduler.ScheduleExhausted(context.Background(), "g1"); err != nil {
		t.Fatalf("Repeated ScheduleExhausted failed: %v", err)
	}
	if !f.deletions.records["g1"].ScheduledAt.Equal(first) {
		t.Fatal("Re-scheduling must not move the purge clock")
	}
}

func TestExecutePurge_Success(t *testing.T) {
	f := setup()
	grant := f.addExhaustedGrant("g1")
	f.scheduler.ScheduleExhausted(context.Background(), "g1")

	if err := f.scheduler.ExecutePurge(context.Background(), "g1", 0); err != nil {
		t.Fatalf("ExecutePurge failed: %v", err)
	}

	if grant.DeletedAt == nil {
		t.Fatal("Grant must be marked deleted")
	}
	if f.sessions.endedByGrant["g1"] != domain.EndReasonGrantDeleted {
		t.Fatalf("Sessions not ended with grant_deleted: %v", f.sessions.endedByGrant)
	}
	if len(f.storage.deleted) != 1 || f.storage.deleted[0] != grant.VideoID {
		t.Fatalf("Expected asset delete for %s, got %v", grant.VideoID, f.storage.deleted)
	}
	record := f.deletions.records["g1"]
	if !record.Executed() {
		t.Fatal("Deletion record must be terminal after success")
	}

	found := false
	for _, s := range f.bus.published {
		if s == events.GrantDeleted {
			found = true
		}
	}
	if !found {
		t.Fatal("Expected grant.deleted event")
	}
}

func TestExecutePurge_RetriesThenSucceeds(t *testing.T) {
	f := setup()
	f.addExhaustedGrant("g1")
	f.scheduler.ScheduleExhausted(context.Background(), "g1")
	f.storage.failures = 2

	if err := f.scheduler.ExecutePurge(context.Background(), "g1", 0); err != nil {
		t.Fatalf("ExecutePurge should succeed within the retry budget: %v", err)
	}
	if f.storage.calls != 3 {
		t.Fatalf("Expected 3 delete attempts, got %d", f.storage.calls)
	}
	if len(f.alerts.failed) != 0 {
		t.Fatalf("No alert expected on eventual success, got %v", f.alerts.failed)
	}
}

func TestExecutePurge_ExhaustsBudget_AlertsOperator(t *testing.T) {
	f := setup()
	grant := f.addExhaustedGrant("g1")
	f.scheduler.ScheduleExhausted(context.Background(), "g1")
	f.storage.failures = 100

	err := f.scheduler.ExecutePurge(context.Background(), "g1", 0)
	if err == nil {
		t.Fatal("Expected failure after the retry budget")
	}

	// Denial-side effects land even when the provider delete fails.
	if grant.DeletedAt == nil {
		t.Fatal("Grant must be marked deleted despite the provider failure")
	}
	if len(f.alerts.failed) != 1 || f.alerts.failed[0] != "g1" {
		t.Fatalf("Expected one operator alert for g1, got %v", f.alerts.failed)
	}
	record := f.deletions.records["g1"]
	if record.Executed() {
		t.Fatal("Record must not be terminal while the asset survives")
	}
	if record.Attempts < 3 {
		t.Fatalf("Expected recorded attempts >= 3, got %d", record.Attempts)
	}

	// The due query skips records past the attempt cap, so the operator
	// is alerted once rather than on every poll.
	due, _ := f.deletions.DuePending(context.Background(), time.Now().Add(time.Hour), 3, 100)
	for _, d := range due {
		if d.GrantID == "g1" {
			t.Fatal("Failed record must drop out of the due set")
		}
	}
}

func TestExecutePurge_Idempotent(t *testing.T) {
	f := setup()
	f.addExhaustedGrant("g1")
	f.scheduler.ScheduleExhausted(context.Background(), "g1")

	if err := f.scheduler.ExecutePurge(context.Background(), "g1", 0); err != nil {
		t.Fatalf("First purge failed: %v", err)
	}
	if err := f.scheduler.ExecutePurge(context.Background(), "g1", 0); err != nil {
		t.Fatalf("Repeated purge must be a no-op, got %v", err)
	}

	var deletedEvents int
	for _, s := range f.bus.published {
		if s == events.GrantDeleted {
			deletedEvents++
		}
	}
	if deletedEvents != 1 {
		t.Fatalf("Expected exactly 1 grant.deleted event, got %d", deletedEvents)
	}
}

func TestCancelScheduled_BeforeExecution(t *testing.T) {
	f := setup()
	f.addExhaustedGrant("g1")
	f.scheduler.ScheduleExhausted(context.Background(), "g1")

	canceled, err := f.scheduler.CancelScheduled(context.Background(), "g1")
	if err != nil {
		t.Fatalf("CancelScheduled failed: %v", err)
	}
	if !canceled {
		t.Fatal("Expected cancel to succeed before execution")
	}

	due, _ := f.deletions.DuePending(context.Background(), time.Now().Add(time.Hour), 3, 100)
	if len(due) != 0 {
		t.Fatalf("Canceled record must never fire, due=%v", due)
	}
}

func TestCancelScheduled_AfterExecution_Refused(t *testing.T) {
	f := setup()
	f.addExhaustedGrant("g1")
	f.scheduler.ScheduleExhausted(context.Background(), "g1")
	if err := f.scheduler.ExecutePurge(context.Background(), "g1", 0); err != nil {
		t.Fatalf("ExecutePurge failed: %v", err)
	}

	canceled, err := f.scheduler.CancelScheduled(context.Background(), "g1")
	if err != nil {
		t.Fatalf("CancelScheduled failed: %v", err)
	}
	if canceled {
		t.Fatal("Purge is irreversible once executed")
	}
}
