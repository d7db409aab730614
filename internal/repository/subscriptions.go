package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/peoplehub/integration-gateway/internal/model"
)

// SubscriptionsRepository is the registry of webhook endpoints. Mutation beyond
// the degraded marker belongs to the external admin CRUD; the gateway only
// resolves, reads, and flags.
type SubscriptionsRepository interface {
	ResolveActive(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	MarkDegraded(ctx context.Context, id string) error
	Insert(ctx context.Context, tx *sqlx.Tx, s model.Subscription) error
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

// ResolveActive returns active subscriptions of the tenant listening for the
// event type. Reads go straight to the DB, so registry writes committed before
// the next emit are always visible.
func (r *SubscriptionsRepositoryImpl) ResolveActive(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.SelectContext(ctx, &subs, `
		SELECT id, tenant_id, target_url, secret, event_types, active,
		       custom_headers, timeout_ms, max_attempts, degraded_at, created_at, updated_at
		  FROM subscriptions
		 WHERE tenant_id = ?
		   AND active = 1
		   AND JSON_CONTAINS(event_types, JSON_QUOTE(?))
	`, tenantID, eventType)
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, `
		SELECT id, tenant_id, target_url, secret, event_types, active,
		       custom_headers, timeout_ms, max_attempts, degraded_at, created_at, updated_at
		  FROM subscriptions
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkDegraded stamps the subscription after a delivery went dead. It never
// deactivates; that policy call stays with the operators.
func (r *SubscriptionsRepositoryImpl) MarkDegraded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		   SET degraded_at = NOW(), updated_at = NOW()
		 WHERE id = ?
	`, id)
	return err
}

func (r *SubscriptionsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, s model.Subscription) error {
	const q = `
		INSERT INTO subscriptions
		    (id, tenant_id, target_url, secret, event_types, active,
		     custom_headers, timeout_ms, max_attempts, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    target_url     = VALUES(target_url),
		    secret         = VALUES(secret),
		    event_types    = VALUES(event_types),
		    active         = VALUES(active),
		    custom_headers = VALUES(custom_headers),
		    timeout_ms     = VALUES(timeout_ms),
		    max_attempts   = VALUES(max_attempts),
		    updated_at     = VALUES(updated_at)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, s.ID, s.TenantID, s.TargetURL, s.Secret, s.EventTypes,
			s.Active, s.CustomHeaders, s.TimeoutMs, s.MaxAttempts)
		return err
	})
}

func (r *SubscriptionsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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
