package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/peoplehub/integration-gateway/internal/model"
)

// AttemptAuditRow is the denormalized shape of a delivery attempt in the
// ClickHouse audit store (tenant and target are flattened in during replication).
type AttemptAuditRow struct {
	ID             string    `db:"id" json:"id"`
	EventID        string    `db:"event_id" json:"event_id"`
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	TargetURL      string    `db:"target_url" json:"target_url"`
	Attempt        int       `db:"attempt" json:"attempt"`
	Status         string    `db:"status" json:"status"`
	HTTPStatus     *int      `db:"http_status" json:"http_status,omitempty"`
	Error          string    `db:"error" json:"error,omitempty"`
	LatencyMs      int64     `db:"latency_ms" json:"latency_ms"`
	CompletedAt    time.Time `db:"completed_at" json:"completed_at"`
}

// CHAttemptsRepository reads the delivery-attempt audit trail from ClickHouse
// (replicated from MySQL by CDC; the gateway never writes here).
type CHAttemptsRepository interface {
	ListByTenant(ctx context.Context, tenantID, subscriptionID string, status model.DeliveryStatus, limit, offset int) ([]AttemptAuditRow, error)
}

type chAttemptsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHAttemptsRepository(ch *sqlx.DB) CHAttemptsRepository {
	return &chAttemptsRepository{ch: ch}
}

func (r *chAttemptsRepository) ListByTenant(ctx context.Context, tenantID, subscriptionID string, status model.DeliveryStatus, limit, offset int) ([]AttemptAuditRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, event_id, subscription_id, tenant_id, target_url,
		       attempt, status, http_status, error, latency_ms, completed_at
		FROM igw.delivery_attempts
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if subscriptionID != "" {
		q += " AND subscription_id = ?"
		args = append(args, subscriptionID)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY completed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []AttemptAuditRow
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
