package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/repository"
)

var (
	// ErrInsufficientCredits is returned when both pools together cannot cover the charge.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidAmount is returned for non-positive charges or refunds.
	ErrInvalidAmount = errors.New("amount must be > 0")
	// ErrBindingMismatch is returned when a refund names a task bound to another deduction.
	ErrBindingMismatch = errors.New("task binding does not match credit log")
)

// Deduction is the outcome of a successful Deduct.
type Deduction struct {
	LogID            uuid.UUID `json:"logId"`
	CreditsDeducted  int       `json:"creditsDeducted"`
	RemainingCredits int       `json:"remainingCredits"`
}

// RefundRequest describes a compensating refund. TaskID is optional: when
// set, the task's binding is the idempotency key. Amount <= 0 means "the
// full original deduction".
type RefundRequest struct {
	UserID      uuid.UUID
	Amount      int
	Reason      string
	CreditLogID uuid.UUID
	TaskID      string
}

// RefundResult reports what Refund did. Skipped is true when the deduction
// had already been refunded and nothing changed.
type RefundResult struct {
	Skipped         bool      `json:"skipped"`
	LogID           uuid.UUID `json:"logId"`
	CreditsRefunded int       `json:"creditsRefunded"`
}

// Service owns every mutation of usage_accounts and credit_logs.
type Service struct {
	Pool     TxBeginner
	Usage    UsageRepo
	Logs     CreditLogRepo
	Bindings BindingRepo
	Logger   *slog.Logger
}

// NewService returns a ledger Service.
func NewService(pool TxBeginner, usage UsageRepo, logs CreditLogRepo, bindings BindingRepo, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Pool: pool, Usage: usage, Logs: logs, Bindings: bindings, Logger: logger}
}

// Deduct locks the user's usage row (SELECT FOR UPDATE), takes amount from the
// subscription pool first and the one-time pool for the remainder, and writes
// a feature_usage log entry, all in one transaction. When the total balance is
// short nothing is written.
func (s *Service) Deduct(ctx context.Context, userID uuid.UUID, amount int, kind models.Kind, notes string) (*Deduction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin deduct tx: %w", err)
	}
	defer tx.Rollback(ctx)

	usage, err := s.Usage.GetForUpdate(ctx, tx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInsufficientCredits
	}
	if err != nil {
		return nil, fmt.Errorf("lock usage row: %w", err)
	}
	if usage.Total() < amount {
		return nil, ErrInsufficientCredits
	}

	fromSubscription := min(usage.SubscriptionBalance, amount)
	fromOneTime := amount - fromSubscription
	subscription := usage.SubscriptionBalance - fromSubscription
	oneTime := usage.OneTimeBalance - fromOneTime

	if err := s.Usage.UpdateBalances(ctx, tx, userID, oneTime, subscription); err != nil {
		return nil, fmt.Errorf("update balances: %w", err)
	}
	entry := &models.CreditLog{
		ID:                       uuid.New(),
		UserID:                   userID,
		Amount:                   -amount,
		OneTimeBalanceAfter:      oneTime,
		SubscriptionBalanceAfter: subscription,
		LogType:                  models.CreditLogFeatureUsage,
		Notes:                    fmt.Sprintf("[%s] %s", kind, notes),
	}
	if err := s.Logs.CreateTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("insert credit log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit deduct tx: %w", err)
	}

	return &Deduction{
		LogID:            entry.ID,
		CreditsDeducted:  amount,
		RemainingCredits: oneTime + subscription,
	}, nil
}

// Refund returns credits for a failed generation to the one-time pool and logs
// a refund_failed_generation entry pointing at the original deduction. Lock
// order is usage row, then binding row, matching Deduct. If the binding is
// already refunded the call is a no-op.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	usage, err := s.Usage.GetForUpdate(ctx, tx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock usage row: %w", err)
	}

	if req.TaskID != "" {
		binding, err := s.Bindings.GetByTaskIDForUpdate(ctx, tx, req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("lock binding %s: %w", req.TaskID, err)
		}
		if binding.CreditLogID != req.CreditLogID || binding.UserID != req.UserID {
			return nil, ErrBindingMismatch
		}
		if binding.Refunded {
			return &RefundResult{Skipped: true}, nil
		}
	}

	original, err := s.Logs.GetByIDTx(ctx, tx, req.CreditLogID)
	if err != nil {
		return nil, fmt.Errorf("load credit log %s: %w", req.CreditLogID, err)
	}
	amount := req.Amount
	if amount <= 0 {
		amount = -original.Amount
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	oneTime := usage.OneTimeBalance + amount
	if err := s.Usage.UpdateBalances(ctx, tx, req.UserID, oneTime, usage.SubscriptionBalance); err != nil {
		return nil, fmt.Errorf("update balances: %w", err)
	}
	refundOf := req.CreditLogID
	entry := &models.CreditLog{
		ID:                       uuid.New(),
		UserID:                   req.UserID,
		Amount:                   amount,
		OneTimeBalanceAfter:      oneTime,
		SubscriptionBalanceAfter: usage.SubscriptionBalance,
		LogType:                  models.CreditLogRefundFailedGeneration,
		Notes:                    fmt.Sprintf("%s (refund of %s)", req.Reason, req.CreditLogID),
		RefundOf:                 &refundOf,
	}
	if err := s.Logs.CreateTx(ctx, tx, entry); err != nil {
		if repository.IsUniqueViolation(err) {
			s.Logger.Warn("refund already recorded for credit log", "credit_log_id", req.CreditLogID, "task_id", req.TaskID)
			return &RefundResult{Skipped: true}, nil
		}
		return nil, fmt.Errorf("insert refund log: %w", err)
	}
	if req.TaskID != "" {
		marked, err := s.Bindings.MarkRefundedTx(ctx, tx, req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("mark binding refunded: %w", err)
		}
		if !marked {
			return &RefundResult{Skipped: true}, nil
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refund tx: %w", err)
	}

	return &RefundResult{LogID: entry.ID, CreditsRefunded: amount}, nil
}

// Balance returns the user's current balances. A user without a usage row has
// zero credits.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*models.UsageAccount, error) {
	usage, err := s.Usage.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.UsageAccount{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return usage, nil
}
