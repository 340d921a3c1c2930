package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/pkg/events"
	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/metrics"
	"github.com/rework/video-access/services/playback/internal/domain"
	"github.com/rework/video-access/services/playback/internal/repository"
)

// PurgeScheduler is the deletion scheduler as seen from the consume path.
type PurgeScheduler interface {
	ScheduleExhausted(ctx context.Context, grantID string) error
}

type SessionService interface {
	Start(ctx context.Context, grant *domain.AccessGrant, viewerIdentity string) (*domain.PlaybackSession, *domain.ConsumeResult, error)
	Refresh(ctx context.Context, sessionID string) (*domain.PlaybackSession, error)
	End(ctx context.Context, sessionID, reason string) error
	Get(ctx context.Context, sessionID string) (*domain.PlaybackSession, error)
}

type sessionService struct {
	sessions repository.SessionRepository
	grants   repository.GrantRepository
	eventBus events.Publisher
	purger   PurgeScheduler
	metrics  *metrics.Metrics
	config   *config.Config
}

func NewSessionService(
	sessions repository.SessionRepository,
	grants repository.GrantRepository,
	eventBus events.Publisher,
	purger PurgeScheduler,
	m *metrics.Metrics,
	cfg *config.Config,
) SessionService {
	return &sessionService{
		sessions: sessions,
		grants:   grants,
		eventBus: eventBus,
		purger:   purger,
		metrics:  m,
		config:   cfg,
	}
}

// Start decides "new view" vs "continuation of the current view". A live
// session for the same viewer seen within the continuation window is returned
// unchanged and costs nothing; anything else falls through to consume.
func (s *sessionService) Start(ctx context.Context, grant *domain.AccessGrant, viewerIdentity string) (*domain.PlaybackSession, *domain.ConsumeResult, error) {
	if grant.Deleted() {
		return nil, nil, domain.ErrExhausted
	}

	seenSince := time.Now().Add(-s.config.Playback.ContinuationWindow)
	existing, err := s.sessions.FindContinuable(ctx, grant.ID, viewerIdentity, seenSince)
	if err == nil {
		if err := s.sessions.Touch(ctx, existing.ID); err != nil {
			logger.WarnContext(ctx, "Failed to touch continued session", "error", err, "session_id", existing.ID)
		}
		res := &domain.ConsumeResult{
			ViewsConsumed:  grant.ViewsConsumed,
			ViewsRemaining: grant.ViewsRemaining(),
			Exhausted:      grant.Exhausted(),
		}
		return existing, res, nil
	}
	if err != domain.ErrNotFound {
		return nil, nil, fmt.Errorf("failed to look up continuable session: %w", err)
	}

	attemptID := uuid.NewString()
	res, err := s.grants.Consume(ctx, grant.ID, attemptID)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.IncViewsConsumed()

	now := time.Now()
	session, err := s.sessions.Create(ctx, &domain.PlaybackSession{
		GrantID:          grant.ID,
		ViewerIdentity:   viewerIdentity,
		ConsumedView:     true,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.config.Signing.PlaybackTokenTTL),
		AbsoluteDeadline: now.Add(s.config.Playback.AbsoluteDeadline),
	})
	if err != nil {
		// The view is already counted; failing to mint the session must not
		// un-count it. The client retries and the continuation window is gone,
		// so the deny-by-default posture holds.
		return nil, nil, fmt.Errorf("failed to create playback session: %w", err)
	}

	s.publishConsumed(ctx, grant, res)

	if res.Exhausted {
		s.metrics.IncGrantsExhausted()
		s.publishExhausted(ctx, grant, res)
		if err := s.purger.ScheduleExhausted(ctx, grant.ID); err != nil {
			logger.ErrorContext(ctx, "Failed to schedule purge for exhausted grant", "error", err, "grant_id", grant.ID)
		}
	}

	return session, res, nil
}

// Refresh extends the current sitting. It never consumes; past the absolute
// deadline the client has to start over, which will consume if headroom remains.
func (s *sessionService) Refresh(ctx context.Context, sessionID string) (*domain.PlaybackSession, error) {
	newExpiry := time.Now().Add(s.config.Signing.PlaybackTokenTTL)
	return s.sessions.Refresh(ctx, sessionID, newExpiry)
}

func (s *sessionService) End(ctx context.Context, sessionID, reason string) error {
	if reason == "" {
		reason = domain.EndReasonClient
	}
	_, err := s.sessions.End(ctx, sessionID, reason)
	return err
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*domain.PlaybackSession, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

func (s *sessionService) publishConsumed(ctx context.Context, grant *domain.AccessGrant, res *domain.ConsumeResult) {
	event := events.ViewConsumedEvent{
		GrantID:        grant.ID,
		VideoID:        grant.VideoID,
		ViewerScope:    grant.ViewerScope,
		ViewsConsumed:  res.ViewsConsumed,
		ViewsRemaining: res.ViewsRemaining,
		ConsumedAt:     time.Now(),
	}

	if err := s.eventBus.Publish(ctx, events.ViewConsumed, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish view consumed event", "error", err, "grant_id", grant.ID)
	}
}

func (s *sessionService) publishExhausted(ctx context.Context, grant *domain.AccessGrant, res *domain.ConsumeResult) {
	event := events.GrantExhaustedEvent{
		GrantID:       grant.ID,
		VideoID:       grant.VideoID,
		ViewerScope:   grant.ViewerScope,
		ViewsConsumed: res.ViewsConsumed,
		ExhaustedAt:   time.Now(),
	}

	if err := s.eventBus.Publish(ctx, events.GrantExhausted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish grant exhausted event", "error", err, "grant_id", grant.ID)
	}
}
