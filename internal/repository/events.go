package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/peoplehub/integration-gateway/internal/model"
)

// EventsRepository defines persistence for the events table. Events are
// immutable: insert and read only, no updates.
type EventsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, ev model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *EventsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev model.Event) error {
	const q = `
		INSERT INTO events (id, tenant_id, type, occurred_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, ev.ID, ev.TenantID, ev.Type, ev.OccurredAt, []byte(ev.Payload))
		return err
	})
}

func (r *EventsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	err := r.db.GetContext(ctx, &ev, `
		SELECT id, tenant_id, type, occurred_at, payload
		  FROM events
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
