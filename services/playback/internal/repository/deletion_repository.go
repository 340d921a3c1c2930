package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rework/video-access/services/playback/internal/domain"
)

type DeletionRepository interface {
	Schedule(ctx context.Context, grantID string, at time.Time, reason string) (bool, error)
	GetByGrant(ctx context.Context, grantID string) (*domain.DeletionRecord, error)
	DuePending(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeletionRecord, error)
	RecordAttempts(ctx context.Context, grantID string, attempts int) error
	MarkExecuted(ctx context.Context, grantID string) (bool, error)
	Cancel(ctx context.Context, grantID string) (bool, error)
}

type deletionRepository struct {
	pool *pgxpool.Pool
}

func NewDeletionRepository(pool *pgxpool.Pool) DeletionRepository {
	return &deletionRepository{pool: pool}
}

const deletionCols = `grant_id, scheduled_at, executed_at, canceled_at, reason, attempts, created_at`

func scanDeletion(row pgx.Row) (*domain.DeletionRecord, error) {
	var d domain.DeletionRecord
	err := row.Scan(
		&d.GrantID, &d.ScheduledAt, &d.ExecutedAt, &d.CanceledAt,
		&d.Reason, &d.Attempts, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Schedule is idempotent per grant; the first schedule wins and later calls
// report false without moving the clock.
func (r *deletionRepository) Schedule(ctx context.Context, grantID string, at time.Time, reason string) (bool, error) {
	const q = `INSERT INTO deletion_records (grant_id, scheduled_at, reason)
	VALUES ($1,$2,$3)
	ON CONFLICT (grant_id) DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, grantID, at, reason)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *deletionRepository) GetByGrant(ctx context.Context, grantID string) (*domain.DeletionRecord, error) {
	const q = `SELECT ` + deletionCols + ` FROM deletion_records WHERE grant_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanDeletion(r.pool.QueryRow(ctx, q, grantID))
}

func (r *deletionRepository) DuePending(ctx context.Context, now time.Time, maxAttempts, limit int) ([]domain.DeletionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const q = `SELECT ` + deletionCols + ` FROM deletion_records
	WHERE executed_at IS NULL AND canceled_at IS NULL
	  AND scheduled_at <= $1 AND attempts < $2
	ORDER BY scheduled_at
	LIMIT $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.DeletionRecord
	for rows.Next() {
		var d domain.DeletionRecord
		if err := rows.Scan(
			&d.GrantID, &d.ScheduledAt, &d.ExecutedAt, &d.CanceledAt,
			&d.Reason, &d.Attempts, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

func (r *deletionRepository) RecordAttempts(ctx context.Context, grantID string, attempts int) error {
	const q = `UPDATE deletion_records SET attempts=$2 WHERE grant_id=$1 AND executed_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, grantID, attempts)
	return err
}

// MarkExecuted makes the record terminal; repeated calls are no-ops.
func (r *deletionRepository) MarkExecuted(ctx context.Context, grantID string) (bool, error) {
	const q = `UPDATE deletion_records SET executed_at=now() WHERE grant_id=$1 AND executed_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, grantID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// Cancel succeeds only before execution; once executed the transition is terminal.
func (r *deletionRepository) Cancel(ctx context.Context, grantID string) (bool, error) {
	const q = `UPDATE deletion_records SET canceled_at=now()
	WHERE grant_id=$1 AND executed_at IS NULL AND canceled_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, grantID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
