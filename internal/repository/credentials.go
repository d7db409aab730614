package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/peoplehub/integration-gateway/internal/model"
)

type CredentialsRepository interface {
	GetByKeyID(ctx context.Context, keyID string) (*model.Credential, error)
	Insert(ctx context.Context, tx *sqlx.Tx, c model.Credential) error
}

type CredentialsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCredentialsRepository(db *sqlx.DB) *CredentialsRepositoryImpl {
	return &CredentialsRepositoryImpl{db: db}
}

var _ CredentialsRepository = (*CredentialsRepositoryImpl)(nil)

func (r *CredentialsRepositoryImpl) GetByKeyID(ctx context.Context, keyID string) (*model.Credential, error) {
	var c model.Credential
	err := r.db.GetContext(ctx, &c, `
		SELECT key_id, tenant_id, hashed_secret, scopes, rate_limit_per_window,
		       allowed_ips, expires_at, revoked, created_at
		  FROM credentials
		 WHERE key_id = ? LIMIT 1
	`, keyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CredentialsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, c model.Credential) error {
	const q = `
		INSERT INTO credentials
		    (key_id, tenant_id, hashed_secret, scopes, rate_limit_per_window,
		     allowed_ips, expires_at, revoked, created_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
		    scopes                = VALUES(scopes),
		    rate_limit_per_window = VALUES(rate_limit_per_window),
		    allowed_ips           = VALUES(allowed_ips)
	`
	exec := func(t *sqlx.Tx) error {
		_, err := t.ExecContext(ctx, q, c.KeyID, c.TenantID, c.HashedSecret, c.Scopes,
			c.RateLimitPerWindow, c.AllowedIPs, c.ExpiresAt, c.Revoked)
		return err
	}
	if tx != nil {
		return exec(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := exec(t); err != nil {
		return err
	}
	return t.Commit()
}
