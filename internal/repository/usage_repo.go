package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genforge/backend/internal/models"
)

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

func (r *UsageRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UsageAccount, error) {
	var u models.UsageAccount
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, one_time_balance, subscription_balance, updated_at
		FROM usage_accounts WHERE user_id = $1
	`, userID).Scan(&u.UserID, &u.OneTimeBalance, &u.SubscriptionBalance, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetForUpdate locks the user's usage row for update. Call within a transaction.
func (r *UsageRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.UsageAccount, error) {
	var u models.UsageAccount
	err := tx.QueryRow(ctx, `
		SELECT user_id, one_time_balance, subscription_balance, updated_at
		FROM usage_accounts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&u.UserID, &u.OneTimeBalance, &u.SubscriptionBalance, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpdateBalances sets both pools. Call after GetForUpdate in the same tx.
func (r *UsageRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, userID uuid.UUID, oneTime, subscription int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE usage_accounts SET one_time_balance = $2, subscription_balance = $3, updated_at = now()
		WHERE user_id = $1
	`, userID, oneTime, subscription)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
