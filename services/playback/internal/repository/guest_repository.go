package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rework/video-access/services/playback/internal/domain"
)

// GuestRepository tracks the anonymous browsing quota. It deliberately lives
// in a TTL'd cache rather than the durable store: the quota is advisory UX
// state, not part of the privacy guarantee.
type GuestRepository interface {
	RecordView(ctx context.Context, deviceID, contentID string) (*domain.GuestQuota, error)
	Status(ctx context.Context, deviceID string) (*domain.GuestQuota, error)
	Merge(ctx context.Context, deviceID string, contentIDs []string) (*domain.GuestQuota, error)
	IsExhausted(ctx context.Context, deviceID string) (bool, error)
	Reset(ctx context.Context, deviceID string) error
}

type guestRepository struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewGuestRepository(rdb *redis.Client, limit int, ttl time.Duration) GuestRepository {
	return &guestRepository{rdb: rdb, limit: limit, ttl: ttl}
}

func viewsKey(deviceID string) string { return "guest_views:" + deviceID }
func metaKey(deviceID string) string  { return "guest_views:" + deviceID + ":meta" }

// RecordView adds contentID to the device's viewed set. Membership is unique,
// so revisiting already-seen content never moves the count.
func (r *guestRepository) RecordView(ctx context.Context, deviceID, contentID string) (*domain.GuestQuota, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	key, meta := viewsKey(deviceID), metaKey(deviceID)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, contentID)
		pipe.HSetNX(ctx, meta, "first_view_at", now)
		pipe.HSet(ctx, meta, "last_view_at", now)
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, meta, r.ttl)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.Status(ctx, deviceID)
}

// Merge unions client-reported content ids into the server copy (batch sync
// from devices that tracked views while offline).
func (r *guestRepository) Merge(ctx context.Context, deviceID string, contentIDs []string) (*domain.GuestQuota, error) {
	if len(contentIDs) == 0 {
		return r.Status(ctx, deviceID)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	key, meta := viewsKey(deviceID), metaKey(deviceID)

	members := make([]interface{}, len(contentIDs))
	for i, id := range contentIDs {
		members[i] = id
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, members...)
		pipe.HSetNX(ctx, meta, "first_view_at", now)
		pipe.HSet(ctx, meta, "last_view_at", now)
		pipe.Expire(ctx, key, r.ttl)
		pipe.Expire(ctx, meta, r.ttl)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.Status(ctx, deviceID)
}

func (r *guestRepository) Status(ctx context.Context, deviceID string) (*domain.GuestQuota, error) {
	contentIDs, err := r.rdb.SMembers(ctx, viewsKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}

	meta, err := r.rdb.HGetAll(ctx, metaKey(deviceID)).Result()
	if err != nil {
		return nil, err
	}

	count := len(contentIDs)
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}

	quota := &domain.GuestQuota{
		DeviceID:     deviceID,
		ContentIDs:   contentIDs,
		Count:        count,
		Limit:        r.limit,
		Remaining:    remaining,
		LimitReached: count >= r.limit,
	}

	if raw, ok := meta["first_view_at"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			quota.FirstViewAt = &t
		}
	}
	if raw, ok := meta["last_view_at"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			quota.LastViewAt = &t
		}
	}

	return quota, nil
}

func (r *guestRepository) IsExhausted(ctx context.Context, deviceID string) (bool, error) {
	count, err := r.rdb.SCard(ctx, viewsKey(deviceID)).Result()
	if err != nil {
		return false, err
	}
	return int(count) >= r.limit, nil
}

// Reset clears the quota unconditionally, e.g. after a successful registration.
func (r *guestRepository) Reset(ctx context.Context, deviceID string) error {
	return r.rdb.Del(ctx, viewsKey(deviceID), metaKey(deviceID)).Err()
}
