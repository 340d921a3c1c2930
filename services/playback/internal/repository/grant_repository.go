package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rework/video-access/services/playback/internal/domain"
)

type GrantRepository interface {
	Create(ctx context.Context, req *domain.CreateGrantReq) (*domain.AccessGrant, error)
	GetByID(ctx context.Context, id string) (*domain.AccessGrant, error)
	GetByVideoAndScope(ctx context.Context, videoID, viewerScope string) (*domain.AccessGrant, error)
	Consume(ctx context.Context, grantID, attemptID string) (*domain.ConsumeResult, error)
	MarkDeleted(ctx context.Context, grantID string) (bool, error)
	Stats(ctx context.Context, videoID string) (*domain.VideoStats, error)
	ListExhaustedUnscheduled(ctx context.Context, limit int) ([]string, error)
}

type grantRepository struct {
	pool *pgxpool.Pool
}

func NewGrantRepository(pool *pgxpool.Pool) GrantRepository {
	return &grantRepository{pool: pool}
}

const grantCols = `id, video_id, viewer_scope, max_views, views_consumed,
first_consumed_at, last_consumed_at, deleted_at, context_ref, created_at, updated_at`

func scanGrant(row pgx.Row) (*domain.AccessGrant, error) {
	var g domain.AccessGrant
	err := row.Scan(
		&g.ID, &g.VideoID, &g.ViewerScope, &g.MaxViews, &g.ViewsConsumed,
		&g.FirstConsumedAt, &g.LastConsumedAt, &g.DeletedAt, &g.ContextRef,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create is idempotent: a repeated call for the same (video_id, viewer_scope)
// returns the existing grant untouched. A grant is never recreated.
func (r *grantRepository) Create(ctx context.Context, req *domain.CreateGrantReq) (*domain.AccessGrant, error) {
	const q = `INSERT INTO access_grants (id, video_id, viewer_scope, max_views, context_ref)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (video_id, viewer_scope) DO NOTHING
	RETURNING ` + grantCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	g, err := scanGrant(r.pool.QueryRow(ctx, q,
		uuid.NewString(), req.VideoID, req.ViewerScope, req.MaxViews, req.ContextRef))
	if errors.Is(err, domain.ErrNotFound) {
		return r.GetByVideoAndScope(ctx, req.VideoID, req.ViewerScope)
	}
	return g, err
}

func (r *grantRepository) GetByID(ctx context.Context, id string) (*domain.AccessGrant, error) {
	const q = `SELECT ` + grantCols + ` FROM access_grants WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanGrant(r.pool.QueryRow(ctx, q, id))
}

func (r *grantRepository) GetByVideoAndScope(ctx context.Context, videoID, viewerScope string) (*domain.AccessGrant, error) {
	const q = `SELECT ` + grantCols + ` FROM access_grants WHERE video_id=$1 AND viewer_scope=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanGrant(r.pool.QueryRow(ctx, q, videoID, viewerScope))
}

// Consume counts one view atomically. The guard lives in the UPDATE statement
// itself, and attempt dedup is the view_attempts primary key; both guarantees
// sit at the storage layer so racing requests can never push views_consumed
// past max_views or count one logical attempt twice.
func (r *grantRepository) Consume(ctx context.Context, grantID, attemptID string) (*domain.ConsumeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if res, err := r.storedAttempt(ctx, grantID, attemptID); err == nil {
		return res, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const update = `UPDATE access_grants
	SET views_consumed = views_consumed + 1,
	    first_consumed_at = COALESCE(first_consumed_at, now()),
	    last_consumed_at = now(),
	    updated_at = now()
	WHERE id=$1 AND deleted_at IS NULL AND views_consumed < max_views
	RETURNING views_consumed, max_views`

	var consumed, maxViews int
	err = tx.QueryRow(ctx, update, grantID).Scan(&consumed, &maxViews)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyConsumeFailure(ctx, grantID)
	}
	if err != nil {
		return nil, err
	}

	res := &domain.ConsumeResult{
		ViewsConsumed:  consumed,
		ViewsRemaining: maxViews - consumed,
		Exhausted:      consumed >= maxViews,
	}

	const record = `INSERT INTO view_attempts (attempt_id, grant_id, views_consumed, views_remaining, exhausted)
	VALUES ($1,$2,$3,$4,$5)`
	if _, err := tx.Exec(ctx, record, attemptID, grantID, res.ViewsConsumed, res.ViewsRemaining, res.Exhausted); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race to a concurrent retry of the same attempt; its
			// result is the one that counted. Our increment rolls back.
			return r.storedAttempt(ctx, grantID, attemptID)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *grantRepository) storedAttempt(ctx context.Context, grantID, attemptID string) (*domain.ConsumeResult, error) {
	const q = `SELECT grant_id, views_consumed, views_remaining, exhausted FROM view_attempts WHERE attempt_id=$1`

	var storedGrant string
	var res domain.ConsumeResult
	err := r.pool.QueryRow(ctx, q, attemptID).Scan(&storedGrant, &res.ViewsConsumed, &res.ViewsRemaining, &res.Exhausted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if storedGrant != grantID {
		return nil, domain.ErrConflict
	}
	return &res, nil
}

// classifyConsumeFailure tells a missing grant apart from a denied one. A
// deleted grant and an exhausted grant both deny with ErrExhausted; the video
// is no longer available either way.
func (r *grantRepository) classifyConsumeFailure(ctx context.Context, grantID string) error {
	const q = `SELECT 1 FROM access_grants WHERE id=$1`

	var one int
	err := r.pool.QueryRow(ctx, q, grantID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrExhausted
}

// MarkDeleted is idempotent; the first call flips deleted_at and reports true.
func (r *grantRepository) MarkDeleted(ctx context.Context, grantID string) (bool, error) {
	const q = `UPDATE access_grants SET deleted_at=now(), updated_at=now() WHERE id=$1 AND deleted_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, grantID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *grantRepository) Stats(ctx context.Context, videoID string) (*domain.VideoStats, error) {
	const q = `SELECT count(*),
	       COALESCE(sum(views_consumed), 0),
	       count(*) FILTER (WHERE views_consumed >= max_views),
	       max(last_consumed_at)
	FROM access_grants WHERE video_id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	stats := domain.VideoStats{VideoID: videoID}
	err := r.pool.QueryRow(ctx, q, videoID).Scan(
		&stats.UniqueScopes, &stats.TotalViews, &stats.ExhaustedScopes, &stats.LastViewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListExhaustedUnscheduled finds exhausted grants that never got a deletion
// record, e.g. due to a crash between consume and schedule. Used by the
// startup recovery sweep.
func (r *grantRepository) ListExhaustedUnscheduled(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const q = `SELECT g.id FROM access_grants g
	WHERE g.views_consumed >= g.max_views
	  AND NOT EXISTS (SELECT 1 FROM deletion_records d WHERE d.grant_id = g.id)
	ORDER BY g.updated_at
	LIMIT $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
