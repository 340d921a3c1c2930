package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rework/video-access/services/playback/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.PlaybackSession) (*domain.PlaybackSession, error)
	GetByID(ctx context.Context, id string) (*domain.PlaybackSession, error)
	FindContinuable(ctx context.Context, grantID, viewerIdentity string, seenSince time.Time) (*domain.PlaybackSession, error)
	Refresh(ctx context.Context, id string, newExpiresAt time.Time) (*domain.PlaybackSession, error)
	Touch(ctx context.Context, id string) error
	End(ctx context.Context, id, reason string) (bool, error)
	EndByGrant(ctx context.Context, grantID, reason string) (int64, error)
	CountActive(ctx context.Context) (int, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionCols = `id, grant_id, viewer_identity, state, consumed_view,
issued_at, expires_at, absolute_deadline, last_seen_at, end_reason, created_at, updated_at`

func scanSession(row pgx.Row) (*domain.PlaybackSession, error) {
	var s domain.PlaybackSession
	err := row.Scan(
		&s.ID, &s.GrantID, &s.ViewerIdentity, &s.State, &s.ConsumedView,
		&s.IssuedAt, &s.ExpiresAt, &s.AbsoluteDeadline, &s.LastSeenAt,
		&s.EndReason, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) Create(ctx context.Context, s *domain.PlaybackSession) (*domain.PlaybackSession, error) {
	const q = `INSERT INTO playback_sessions (
		id, grant_id, viewer_identity, state, consumed_view,
		issued_at, expires_at, absolute_deadline, last_seen_at
	) VALUES ($1,$2,$3,'active',$4,$5,$6,$7,$5)
	RETURNING ` + sessionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSession(r.pool.QueryRow(ctx, q,
		uuid.NewString(), s.GrantID, s.ViewerIdentity, s.ConsumedView,
		s.IssuedAt, s.ExpiresAt, s.AbsoluteDeadline,
	))
}

func (r *sessionRepository) GetByID(ctx context.Context, id string) (*domain.PlaybackSession, error) {
	const q = `SELECT ` + sessionCols + ` FROM playback_sessions WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSession(r.pool.QueryRow(ctx, q, id))
}

// FindContinuable returns the live session for (grant, viewer) last seen
// within the continuation window, if any.
func (r *sessionRepository) FindContinuable(ctx context.Context, grantID, viewerIdentity string, seenSince time.Time) (*domain.PlaybackSession, error) {
	const q = `SELECT ` + sessionCols + ` FROM playback_sessions
	WHERE grant_id=$1 AND viewer_identity=$2 AND state='active'
	  AND last_seen_at >= $3 AND absolute_deadline > now()
	ORDER BY last_seen_at DESC
	LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSession(r.pool.QueryRow(ctx, q, grantID, viewerIdentity, seenSince))
}

// Refresh extends expires_at, guarded in the statement so an ended or
// deadline-passed session can never slip through.
func (r *sessionRepository) Refresh(ctx context.Context, id string, newExpiresAt time.Time) (*domain.PlaybackSession, error) {
	const q = `UPDATE playback_sessions
	SET expires_at=$2, last_seen_at=now(), updated_at=now()
	WHERE id=$1 AND state='active' AND absolute_deadline > now()
	RETURNING ` + sessionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSession(r.pool.QueryRow(ctx, q, id, newExpiresAt))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.classifyRefreshFailure(ctx, id)
	}
	return s, err
}

func (r *sessionRepository) classifyRefreshFailure(ctx context.Context, id string) error {
	const q = `SELECT state, absolute_deadline FROM playback_sessions WHERE id=$1`

	var state domain.SessionState
	var deadline time.Time
	err := r.pool.QueryRow(ctx, q, id).Scan(&state, &deadline)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrSessionExpired
}

func (r *sessionRepository) Touch(ctx context.Context, id string) error {
	const q = `UPDATE playback_sessions SET last_seen_at=now(), updated_at=now() WHERE id=$1 AND state='active'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// End is idempotent; ended sessions stay ended with their original reason.
func (r *sessionRepository) End(ctx context.Context, id, reason string) (bool, error) {
	const q = `UPDATE playback_sessions SET state='ended', end_reason=$2, updated_at=now()
	WHERE id=$1 AND state != 'ended'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, reason)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *sessionRepository) EndByGrant(ctx context.Context, grantID, reason string) (int64, error) {
	const q = `UPDATE playback_sessions SET state='ended', end_reason=$2, updated_at=now()
	WHERE grant_id=$1 AND state != 'ended'`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, grantID, reason)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *sessionRepository) CountActive(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM playback_sessions WHERE state='active' AND absolute_deadline > now()`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.pool.QueryRow(ctx, q).Scan(&n)
	return n, err
}
