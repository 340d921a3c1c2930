package purge

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/pkg/events"
	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/metrics"
	"github.com/rework/video-access/services/playback/internal/alert"
	"github.com/rework/video-access/services/playback/internal/domain"
	"github.com/rework/video-access/services/playback/internal/repository"
	"github.com/rework/video-access/services/playback/internal/storage"
)

// Scheduler irreversibly purges exhausted grants after a grace window. The
// trigger is the exhaustion raised at consume time, never a client timer:
// a client that never calls back cannot skip deletion. Playback denial takes
// effect when deleted_at is set, so the privacy guarantee never waits on the
// storage provider.
type Scheduler struct {
	deletions repository.DeletionRepository
	grants    repository.GrantRepository
	sessions  repository.SessionRepository
	storage   storage.Client
	eventBus  events.Publisher
	alerts    alert.Service
	metrics   *metrics.Metrics
	config    *config.Config
	wake      chan struct{}
	stopChan  chan struct{}
}

func NewScheduler(
	deletions repository.DeletionRepository,
	grants repository.GrantRepository,
	sessions repository.SessionRepository,
	storageClient storage.Client,
	eventBus events.Publisher,
	alerts alert.Service,
	m *metrics.Metrics,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		deletions: deletions,
		grants:    grants,
		sessions:  sessions,
		storage:   storageClient,
		eventBus:  eventBus,
		alerts:    alerts,
		metrics:   m,
		config:    cfg,
		wake:      make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background worker.
func (s *Scheduler) Start(ctx context.Context) {
	logger.Info("Starting purge scheduler",
		"grace_period", s.config.Purge.GracePeriod,
		"max_attempts", s.config.Purge.MaxAttempts,
	)
	go s.run(ctx)
}

// Stop stops the background worker.
func (s *Scheduler) Stop() {
	logger.Info("Stopping purge scheduler")
	close(s.stopChan)
}

// ScheduleExhausted arms the purge timer for a grant whose view cap just ran
// out. Idempotent per grant; the grace period starts at first exhaustion.
func (s *Scheduler) ScheduleExhausted(ctx context.Context, grantID string) error {
	at := time.Now().Add(s.config.Purge.GracePeriod)
	created, err := s.deletions.Schedule(ctx, grantID, at, domain.PurgeReasonExhausted)
	if err != nil {
		return err
	}
	if created {
		logger.InfoContext(ctx, "Purge scheduled", "grant_id", grantID, "scheduled_at", at)
		s.poke()
	}
	return nil
}

// ScheduleAdmin arms an immediate purge by operator request.
func (s *Scheduler) ScheduleAdmin(ctx context.Context, grantID string) error {
	_, err := s.deletions.Schedule(ctx, grantID, time.Now(), domain.PurgeReasonAdmin)
	if err != nil {
		return err
	}
	s.poke()
	return nil
}

// CancelScheduled withdraws a pending purge. Only possible before execution.
func (s *Scheduler) CancelScheduled(ctx context.Context, grantID string) (bool, error) {
	return s.deletions.Cancel(ctx, grantID)
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	s.recover(ctx)

	ticker := time.NewTicker(s.config.Purge.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.executeDue(ctx)
		case <-s.wake:
			s.executeDue(ctx)
		case <-s.stopChan:
			logger.Info("Purge worker stopped")
			return
		case <-ctx.Done():
			logger.Info("Purge worker cancelled")
			return
		}
	}
}

// recover re-arms work lost to a restart: pending deletion records fire on
// their original schedule, and exhausted grants that crashed between consume
// and schedule get a record now.
func (s *Scheduler) recover(ctx context.Context) {
	ids, err := s.grants.ListExhaustedUnscheduled(ctx, 100)
	if err != nil {
		logger.Error("Failed to sweep exhausted grants", "error", err)
		return
	}
	for _, id := range ids {
		if err := s.ScheduleExhausted(ctx, id); err != nil {
			logger.Error("Failed to re-schedule purge", "error", err, "grant_id", id)
		}
	}
	if len(ids) > 0 {
		logger.Info("Recovered unscheduled exhausted grants", "count", len(ids))
	}
}

func (s *Scheduler) executeDue(ctx context.Context) {
	due, err := s.deletions.DuePending(ctx, time.Now(), s.config.Purge.MaxAttempts, 100)
	if err != nil {
		logger.Error("Failed to list due purges", "error", err)
		return
	}

	for _, record := range due {
		if err := s.ExecutePurge(ctx, record.GrantID, record.Attempts); err != nil {
			logger.Error("Purge execution failed", "error", err, "grant_id", record.GrantID)
		}
	}
}

// ExecutePurge is idempotent. Denial-side effects (deleted_at, ended
// sessions, the Deleted event) happen first and unconditionally; the physical
// provider delete retries behind them with bounded backoff.
func (s *Scheduler) ExecutePurge(ctx context.Context, grantID string, priorAttempts int) error {
	grant, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return err
	}

	marked, err := s.grants.MarkDeleted(ctx, grantID)
	if err != nil {
		return err
	}

	ended, err := s.sessions.EndByGrant(ctx, grantID, domain.EndReasonGrantDeleted)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to end sessions for purged grant", "error", err, "grant_id", grantID)
	} else if ended > 0 {
		logger.InfoContext(ctx, "Ended sessions for purged grant", "grant_id", grantID, "count", ended)
	}

	if marked {
		s.publishDeleted(ctx, grant)
	}

	attempts := priorAttempts
	deleteErr := s.deleteAsset(ctx, grant.VideoID, &attempts)

	if err := s.deletions.RecordAttempts(ctx, grantID, attempts); err != nil {
		logger.ErrorContext(ctx, "Failed to record purge attempts", "error", err, "grant_id", grantID)
	}

	if deleteErr != nil {
		if attempts >= s.config.Purge.MaxAttempts {
			s.metrics.IncPurgeFailures()
			if err := s.alerts.DeletionFailed(grantID, grant.VideoID, attempts, deleteErr); err != nil {
				logger.ErrorContext(ctx, "Failed to deliver deletion alert", "error", err, "grant_id", grantID)
			}
		}
		return deleteErr
	}

	if _, err := s.deletions.MarkExecuted(ctx, grantID); err != nil {
		return err
	}
	s.metrics.IncPurgesExecuted()

	logger.InfoContext(ctx, "Grant purged", "grant_id", grantID, "video_id", grant.VideoID)
	return nil
}

func (s *Scheduler) deleteAsset(ctx context.Context, assetID string, attempts *int) error {
	backoff := retry.WithMaxRetries(uint64(s.config.Purge.MaxAttempts-*attempts-1),
		retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		*attempts++

		callCtx, cancel := context.WithTimeout(ctx, s.config.Purge.CallTimeout)
		defer cancel()

		if err := s.storage.Delete(callCtx, assetID); err != nil {
			logger.Warn("Asset delete attempt failed", "asset_id", assetID, "attempt", *attempts, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Scheduler) publishDeleted(ctx context.Context, grant *domain.AccessGrant) {
	record, err := s.deletions.GetByGrant(ctx, grant.ID)
	reason := domain.PurgeReasonExhausted
	if err == nil {
		reason = record.Reason
	}

	event := events.GrantDeletedEvent{
		GrantID:       grant.ID,
		VideoID:       grant.VideoID,
		ViewerScope:   grant.ViewerScope,
		ViewsConsumed: grant.ViewsConsumed,
		Reason:        reason,
		DeletedAt:     time.Now(),
	}

	if err := s.eventBus.Publish(ctx, events.GrantDeleted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish grant deleted event", "error", err, "grant_id", grant.ID)
	}
}
