package repository

import (
	"context"
	"errors"
	"time"

	"github.com/crmkit/email-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("row not found")

	// ErrAlreadyClaimed means another invocation won the queued->processing
	// transition for this item.
	ErrAlreadyClaimed = errors.New("item already claimed")
)

// QueueRepository defines persistence for the email_queue table.
type QueueRepository interface {
	// FetchDue returns up to limit queued items eligible at now, ordered by
	// priority descending then created_at ascending.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.QueueItem, error)

	// Claim transitions one item from queued to processing. The update is
	// conditional on the prior status; zero rows affected means another
	// worker got there first and Claim returns ErrAlreadyClaimed.
	Claim(ctx context.Context, id string, now time.Time) error

	// MarkSent finalizes a successful send.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// Release reverts a claimed item to queued without touching retry_count.
	// Used when the rate limiter denies admission: throttling is not failure.
	Release(ctx context.Context, id string, now time.Time) error

	// RequeueForRetry records a transient failure: retry_count+1, last_error,
	// status back to queued so a later run may retry immediately.
	RequeueForRetry(ctx context.Context, id, lastError string, now time.Time) error

	// MarkFailed records a terminal failure: retry_count+1, last_error,
	// status failed.
	MarkFailed(ctx context.Context, id, lastError string, now time.Time) error

	// RequeueStale recovers items stuck in processing since before cutoff,
	// consuming a retry; items out of retries go straight to failed.
	// Returns the number of rows touched.
	RequeueStale(ctx context.Context, cutoff time.Time, lastError string, now time.Time) (int64, error)
}

type QueueRepositoryImpl struct {
	db *sqlx.DB
}

func NewQueueRepository(db *sqlx.DB) *QueueRepositoryImpl {
	return &QueueRepositoryImpl{db: db}
}

var _ QueueRepository = (*QueueRepositoryImpl)(nil)

func (r *QueueRepositoryImpl) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
		SELECT id, tenant_id, mailbox_id, to_address, subject, body,
		       template_id, campaign_id, priority, scheduled_at, status,
		       retry_count, max_retries, last_error, processed_at,
		       created_at, updated_at
		  FROM email_queue
		 WHERE status = 'queued'
		   AND (scheduled_at IS NULL OR scheduled_at <= ?)
		 ORDER BY priority DESC, created_at ASC
		 LIMIT ?
	`
	items := make([]model.QueueItem, 0, limit)
	if err := r.db.SelectContext(ctx, &items, q, now, limit); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *QueueRepositoryImpl) Claim(ctx context.Context, id string, now time.Time) error {
	const q = `
		UPDATE email_queue
		   SET status = 'processing', updated_at = ?
		 WHERE id = ? AND status = 'queued'
	`
	res, err := r.db.ExecContext(ctx, q, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

func (r *QueueRepositoryImpl) MarkSent(ctx context.Context, id string, at time.Time) error {
	const q = `
		UPDATE email_queue
		   SET status = 'sent', processed_at = ?, last_error = NULL, updated_at = ?
		 WHERE id = ?
	`
	return r.execOne(ctx, q, at, at, id)
}

func (r *QueueRepositoryImpl) Release(ctx context.Context, id string, now time.Time) error {
	const q = `
		UPDATE email_queue
		   SET status = 'queued', updated_at = ?
		 WHERE id = ? AND status = 'processing'
	`
	return r.execOne(ctx, q, now, id)
}

func (r *QueueRepositoryImpl) RequeueForRetry(ctx context.Context, id, lastError string, now time.Time) error {
	const q = `
		UPDATE email_queue
		   SET status = 'queued', retry_count = retry_count + 1,
		       last_error = ?, updated_at = ?
		 WHERE id = ?
	`
	return r.execOne(ctx, q, lastError, now, id)
}

func (r *QueueRepositoryImpl) MarkFailed(ctx context.Context, id, lastError string, now time.Time) error {
	const q = `
		UPDATE email_queue
		   SET status = 'failed', retry_count = retry_count + 1,
		       last_error = ?, updated_at = ?
		 WHERE id = ?
	`
	return r.execOne(ctx, q, lastError, now, id)
}

func (r *QueueRepositoryImpl) RequeueStale(ctx context.Context, cutoff time.Time, lastError string, now time.Time) (int64, error) {
	const q = `
		UPDATE email_queue
		   SET retry_count = retry_count + 1,
		       last_error = ?,
		       status = CASE WHEN retry_count + 1 >= max_retries
		                     THEN 'failed' ELSE 'queued' END,
		       updated_at = ?
		 WHERE status = 'processing' AND updated_at < ?
	`
	res, err := r.db.ExecContext(ctx, q, lastError, now, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *QueueRepositoryImpl) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
