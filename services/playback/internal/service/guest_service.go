package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rework/video-access/services/playback/internal/domain"
	"github.com/rework/video-access/services/playback/internal/repository"
)

type GuestService interface {
	TrackView(ctx context.Context, deviceID, contentID string) (*domain.GuestQuota, error)
	Status(ctx context.Context, deviceID string) (*domain.GuestQuota, error)
	Sync(ctx context.Context, deviceID string, contentIDs []string) (*domain.GuestQuota, error)
	Reset(ctx context.Context, deviceID string) error
}

type guestService struct {
	guests repository.GuestRepository
}

func NewGuestService(guests repository.GuestRepository) GuestService {
	return &guestService{guests: guests}
}

// TrackView records one anonymous view, minting a device id on first contact.
// Repeats of already-seen content never move the count.
func (s *guestService) TrackView(ctx context.Context, deviceID, contentID string) (*domain.GuestQuota, error) {
	if contentID == "" {
		return nil, fmt.Errorf("content id is required")
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	return s.guests.RecordView(ctx, deviceID, contentID)
}

func (s *guestService) Status(ctx context.Context, deviceID string) (*domain.GuestQuota, error) {
	return s.guests.Status(ctx, deviceID)
}

func (s *guestService) Sync(ctx context.Context, deviceID string, contentIDs []string) (*domain.GuestQuota, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	return s.guests.Merge(ctx, deviceID, contentIDs)
}

// Reset clears the quota, e.g. when the device registers an account.
func (s *guestService) Reset(ctx context.Context, deviceID string) error {
	return s.guests.Reset(ctx, deviceID)
}
