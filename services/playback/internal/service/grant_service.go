package service

import (
	"context"
	"fmt"

	"github.com/rework/video-access/pkg/config"
	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/services/playback/internal/domain"
	"github.com/rework/video-access/services/playback/internal/repository"
)

// AdminPurger is the deletion scheduler as seen from the administrative surface.
type AdminPurger interface {
	ScheduleAdmin(ctx context.Context, grantID string) error
	CancelScheduled(ctx context.Context, grantID string) (bool, error)
}

type GrantService interface {
	CreateGrant(ctx context.Context, req *domain.CreateGrantReq) (*domain.AccessGrant, error)
	GetGrant(ctx context.Context, id string) (*domain.AccessGrant, error)
	GetByVideoAndScope(ctx context.Context, videoID, viewerScope string) (*domain.AccessGrant, error)
	VideoStats(ctx context.Context, videoID string) (*domain.VideoStats, error)
	AdminPurge(ctx context.Context, grantID string) error
	CancelPurge(ctx context.Context, grantID string) (bool, error)
}

type grantService struct {
	grants repository.GrantRepository
	purger AdminPurger
	config *config.Config
}

func NewGrantService(grants repository.GrantRepository, purger AdminPurger, cfg *config.Config) GrantService {
	return &grantService{
		grants: grants,
		purger: purger,
		config: cfg,
	}
}

func (s *grantService) CreateGrant(ctx context.Context, req *domain.CreateGrantReq) (*domain.AccessGrant, error) {
	if req.VideoID == "" || req.ViewerScope == "" {
		return nil, fmt.Errorf("%w: video_id and viewer_scope are required", domain.ErrConflict)
	}
	if req.MaxViews <= 0 {
		req.MaxViews = s.config.Playback.DefaultMaxViews
	}

	grant, err := s.grants.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	logger.InfoContext(ctx, "Grant provisioned",
		"grant_id", grant.ID,
		"video_id", grant.VideoID,
		"viewer_scope", grant.ViewerScope,
		"max_views", grant.MaxViews,
	)
	return grant, nil
}

func (s *grantService) GetGrant(ctx context.Context, id string) (*domain.AccessGrant, error) {
	return s.grants.GetByID(ctx, id)
}

func (s *grantService) GetByVideoAndScope(ctx context.Context, videoID, viewerScope string) (*domain.AccessGrant, error) {
	return s.grants.GetByVideoAndScope(ctx, videoID, viewerScope)
}

func (s *grantService) VideoStats(ctx context.Context, videoID string) (*domain.VideoStats, error) {
	return s.grants.Stats(ctx, videoID)
}

// AdminPurge schedules an immediate irreversible purge regardless of the
// grant's view count.
func (s *grantService) AdminPurge(ctx context.Context, grantID string) error {
	if _, err := s.grants.GetByID(ctx, grantID); err != nil {
		return err
	}
	return s.purger.ScheduleAdmin(ctx, grantID)
}

// CancelPurge cancels a pending purge; once execute_purge ran the transition
// is terminal and cancellation reports false.
func (s *grantService) CancelPurge(ctx context.Context, grantID string) (bool, error) {
	return s.purger.CancelScheduled(ctx, grantID)
}
