package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genforge/backend/internal/models"
)

type CreditLogRepo struct {
	pool *pgxpool.Pool
}

func NewCreditLogRepo(pool *pgxpool.Pool) *CreditLogRepo {
	return &CreditLogRepo{pool: pool}
}

// CreateTx inserts a log entry inside the given transaction.
func (r *CreditLogRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditLog) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_logs (id, user_id, amount, one_time_balance_after, subscription_balance_after, log_type, notes, refund_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, c.ID, c.UserID, c.Amount, c.OneTimeBalanceAfter, c.SubscriptionBalanceAfter, c.LogType, c.Notes, c.RefundOf).Scan(&c.CreatedAt)
}

func (r *CreditLogRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.CreditLog, error) {
	var c models.CreditLog
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, amount, one_time_balance_after, subscription_balance_after, log_type, notes, refund_of, created_at
		FROM credit_logs WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.Amount, &c.OneTimeBalanceAfter, &c.SubscriptionBalanceAfter, &c.LogType, &c.Notes, &c.RefundOf, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *CreditLogRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.CreditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, one_time_balance_after, subscription_balance_after, log_type, notes, refund_of, created_at
		FROM credit_logs WHERE user_id = $1 ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLog
	for rows.Next() {
		var c models.CreditLog
		if err := rows.Scan(&c.ID, &c.UserID, &c.Amount, &c.OneTimeBalanceAfter, &c.SubscriptionBalanceAfter, &c.LogType, &c.Notes, &c.RefundOf, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
