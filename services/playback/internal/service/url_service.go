package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rework/video-access/pkg/auth"
	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/services/playback/internal/domain"
	"github.com/rework/video-access/services/playback/internal/repository"
)

// URLService mints and verifies signed short-TTL playback URLs. It is
// stateless beyond the signing key and never mutates counters.
type URLService interface {
	Issue(ctx context.Context, session *domain.PlaybackSession) (string, time.Time, error)
	Verify(ctx context.Context, token string) (*domain.PlaybackSession, *domain.AccessGrant, error)
}

type urlService struct {
	sessions repository.SessionRepository
	grants   repository.GrantRepository
	config   *config.Config
}

func NewURLService(sessions repository.SessionRepository, grants repository.GrantRepository, cfg *config.Config) URLService {
	return &urlService{
		sessions: sessions,
		grants:   grants,
		config:   cfg,
	}
}

func (s *urlService) Issue(ctx context.Context, session *domain.PlaybackSession) (string, time.Time, error) {
	if !session.Active() {
		return "", time.Time{}, domain.ErrDenied
	}

	ttl := s.config.Signing.PlaybackTokenTTL
	if remaining := time.Until(session.AbsoluteDeadline); remaining < ttl {
		if remaining <= 0 {
			return "", time.Time{}, domain.ErrDenied
		}
		ttl = remaining
	}

	grant, err := s.grants.GetByID(ctx, session.GrantID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to load grant for issuance: %w", err)
	}
	if grant.Deleted() {
		return "", time.Time{}, domain.ErrDenied
	}

	token, expiresAt, err := auth.NewPlaybackToken(session.ID, s.config.Signing.PlaybackTokenSecret, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign playback token: %w", err)
	}

	streamURL := fmt.Sprintf("%s/videos/%s/stream?token=%s",
		s.config.Playback.StreamBaseURL, url.PathEscape(grant.VideoID), url.QueryEscape(token))

	return streamURL, expiresAt, nil
}

// Verify is the delivery-edge check: signature, expiry, the session still
// active, the grant not deleted. It is defense in depth behind consume, so a
// cryptographically valid URL still dies the moment the grant does.
func (s *urlService) Verify(ctx context.Context, token string) (*domain.PlaybackSession, *domain.AccessGrant, error) {
	claims, err := auth.ParsePlaybackToken(token, s.config.Signing.PlaybackTokenSecret)
	if err != nil {
		return nil, nil, domain.ErrDenied
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, domain.ErrDenied
	}
	if !session.Active() {
		return nil, nil, domain.ErrDenied
	}

	grant, err := s.grants.GetByID(ctx, session.GrantID)
	if err != nil {
		return nil, nil, domain.ErrDenied
	}
	if grant.Deleted() {
		return nil, nil, domain.ErrDenied
	}

	return session, grant, nil
}
