package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genforge/backend/internal/models"
)

type BindingRepo struct {
	pool *pgxpool.Pool
}

func NewBindingRepo(pool *pgxpool.Pool) *BindingRepo {
	return &BindingRepo{pool: pool}
}

// Create inserts the binding without taking any lock. A second insert for the
// same task id is ignored.
func (r *BindingRepo) Create(ctx context.Context, b *models.TaskCreditBinding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_credit_bindings (task_id, credit_log_id, user_id, kind, model_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO NOTHING
	`, b.TaskID, b.CreditLogID, b.UserID, string(b.Kind), b.ModelID)
	return err
}

func (r *BindingRepo) GetByTaskID(ctx context.Context, taskID string) (*models.TaskCreditBinding, error) {
	return scanBinding(r.pool.QueryRow(ctx, `
		SELECT task_id, credit_log_id, user_id, kind, model_id, refunded, refunded_at, created_at
		FROM task_credit_bindings WHERE task_id = $1
	`, taskID))
}

// GetByTaskIDForUpdate locks the binding row. Call within a transaction, after
// the owning user's usage row has been locked.
func (r *BindingRepo) GetByTaskIDForUpdate(ctx context.Context, tx pgx.Tx, taskID string) (*models.TaskCreditBinding, error) {
	return scanBinding(tx.QueryRow(ctx, `
		SELECT task_id, credit_log_id, user_id, kind, model_id, refunded, refunded_at, created_at
		FROM task_credit_bindings WHERE task_id = $1 FOR UPDATE
	`, taskID))
}

// MarkRefundedTx flips refunded to true. It only matches unrefunded rows, so
// a zero row count means another transaction already settled the task.
func (r *BindingRepo) MarkRefundedTx(ctx context.Context, tx pgx.Tx, taskID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE task_credit_bindings SET refunded = true, refunded_at = now()
		WHERE task_id = $1 AND refunded = false
	`, taskID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnsettled returns unrefunded bindings created between olderThan and
// newerThan ago that have no terminal activity entry yet.
func (r *BindingRepo) ListUnsettled(ctx context.Context, olderThan, newerThan time.Duration, limit int) ([]*models.TaskCreditBinding, error) {
	now := time.Now()
	rows, err := r.pool.Query(ctx, `
		SELECT b.task_id, b.credit_log_id, b.user_id, b.kind, b.model_id, b.refunded, b.refunded_at, b.created_at
		FROM task_credit_bindings b
		WHERE b.refunded = false
		  AND b.created_at <= $1 AND b.created_at >= $2
		  AND NOT EXISTS (
			SELECT 1 FROM activity_logs a
			WHERE a.user_id = b.user_id AND a.resource_id = b.task_id
			  AND a.action IN (b.kind || '_generation_succeeded', b.kind || '_generation_failed', b.kind || '_generation_failed_refunded')
		  )
		ORDER BY b.created_at
		LIMIT $3
	`, now.Add(-olderThan), now.Add(-newerThan), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TaskCreditBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func scanBinding(row pgx.Row) (*models.TaskCreditBinding, error) {
	var b models.TaskCreditBinding
	var kind string
	if err := row.Scan(&b.TaskID, &b.CreditLogID, &b.UserID, &kind, &b.ModelID, &b.Refunded, &b.RefundedAt, &b.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	b.Kind = models.Kind(kind)
	return &b, nil
}
