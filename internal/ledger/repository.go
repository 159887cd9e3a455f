package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/genforge/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UsageRepo is the balance-row repository used by the ledger.
type UsageRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UsageAccount, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.UsageAccount, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, userID uuid.UUID, oneTime, subscription int) error
}

// CreditLogRepo is the append-only credit log used by the ledger.
type CreditLogRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditLog) error
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.CreditLog, error)
}

// BindingRepo is the task-credit binding store, locked during refunds.
type BindingRepo interface {
	GetByTaskIDForUpdate(ctx context.Context, tx pgx.Tx, taskID string) (*models.TaskCreditBinding, error)
	MarkRefundedTx(ctx context.Context, tx pgx.Tx, taskID string) (bool, error)
}
