package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/peoplehub/integration-gateway/internal/model"
)

// DeliveriesRepository persists the delivery ledger. Rows are append-only: one
// row per attempt, and the only in-place transition is
// pending -> in_flight -> terminal on the same row.
type DeliveriesRepository interface {
	InsertPending(ctx context.Context, tx *sqlx.Tx, a model.DeliveryAttempt) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error)
	// Claim moves one row pending -> in_flight. Returns false when another
	// worker already claimed it; the loser backs off silently.
	Claim(ctx context.Context, id string) (bool, error)
	MarkDelivered(ctx context.Context, id string, httpStatus int, latency time.Duration) error
	MarkFailed(ctx context.Context, id string, httpStatus *int, cause string, latency time.Duration) error
	MarkDead(ctx context.Context, id string, httpStatus *int, cause string, latency time.Duration) error
	// ReleaseStale returns abandoned claims to the pending pool. A row stuck
	// in_flight past the cutoff means its worker died mid-attempt.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	ListByEventAndSubscription(ctx context.Context, eventID, subscriptionID string) ([]model.DeliveryAttempt, error)
	ListBySubscription(ctx context.Context, subscriptionID string, limit, offset int) ([]model.DeliveryAttempt, error)
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

var _ DeliveriesRepository = (*DeliveriesRepositoryImpl)(nil)

const attemptColumns = `
	id, event_id, subscription_id, attempt, status, http_status, error,
	latency_ms, scheduled_at, started_at, completed_at, created_at, updated_at`

func (r *DeliveriesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *DeliveriesRepositoryImpl) InsertPending(ctx context.Context, tx *sqlx.Tx, a model.DeliveryAttempt) error {
	const q = `
		INSERT INTO delivery_attempts
		    (id, event_id, subscription_id, attempt, status, error, scheduled_at, created_at, updated_at)
		VALUES
		    (?,  ?,        ?,               ?,       'pending', '', ?,           NOW(),      NOW())
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, a.ID, a.EventID, a.SubscriptionID, a.Attempt, a.ScheduledAt)
		return err
	})
}

func (r *DeliveriesRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.DeliveryAttempt
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+attemptColumns+`
		  FROM delivery_attempts
		 WHERE status = 'pending' AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC
		 LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeliveriesRepositoryImpl) Claim(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_attempts
		   SET status = 'in_flight', started_at = NOW(), updated_at = NOW()
		 WHERE id = ? AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DeliveriesRepositoryImpl) MarkDelivered(ctx context.Context, id string, httpStatus int, latency time.Duration) error {
	return r.complete(ctx, id, model.DeliveryDelivered, &httpStatus, "", latency)
}

func (r *DeliveriesRepositoryImpl) MarkFailed(ctx context.Context, id string, httpStatus *int, cause string, latency time.Duration) error {
	return r.complete(ctx, id, model.DeliveryFailed, httpStatus, cause, latency)
}

func (r *DeliveriesRepositoryImpl) MarkDead(ctx context.Context, id string, httpStatus *int, cause string, latency time.Duration) error {
	return r.complete(ctx, id, model.DeliveryDead, httpStatus, cause, latency)
}

// complete finishes an in_flight row. The status guard keeps history immutable:
// a row that already reached a terminal state cannot be rewritten.
func (r *DeliveriesRepositoryImpl) complete(ctx context.Context, id string, status model.DeliveryStatus, httpStatus *int, cause string, latency time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE delivery_attempts
		   SET status = ?, http_status = ?, error = ?, latency_ms = ?,
		       completed_at = NOW(), updated_at = NOW()
		 WHERE id = ? AND status = 'in_flight'
	`, status.String(), httpStatus, cause, latency.Milliseconds(), id)
	return err
}

func (r *DeliveriesRepositoryImpl) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_attempts
		   SET status = 'pending', started_at = NULL, updated_at = NOW()
		 WHERE status = 'in_flight' AND started_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *DeliveriesRepositoryImpl) ListByEventAndSubscription(ctx context.Context, eventID, subscriptionID string) ([]model.DeliveryAttempt, error) {
	var rows []model.DeliveryAttempt
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+attemptColumns+`
		  FROM delivery_attempts
		 WHERE event_id = ? AND subscription_id = ?
		 ORDER BY attempt ASC
	`, eventID, subscriptionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeliveriesRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID string, limit, offset int) ([]model.DeliveryAttempt, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var rows []model.DeliveryAttempt
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+attemptColumns+`
		  FROM delivery_attempts
		 WHERE subscription_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?
	`, subscriptionID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
