package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/genforge/backend/internal/ledger"
	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/repository"
	"github.com/genforge/backend/internal/textutil"
)

// Ledger is the credit ledger as seen by the orchestration layer.
type Ledger interface {
	Deduct(ctx context.Context, userID uuid.UUID, amount int, kind models.Kind, notes string) (*ledger.Deduction, error)
	Refund(ctx context.Context, req ledger.RefundRequest) (*ledger.RefundResult, error)
}

// BindingStore persists task to credit-log bindings.
type BindingStore interface {
	Create(ctx context.Context, b *models.TaskCreditBinding) error
	GetByTaskID(ctx context.Context, taskID string) (*models.TaskCreditBinding, error)
}

// Settlement reports the refund state of a task after reconciliation.
type Settlement struct {
	// Bound is false when no binding exists, so nothing could be refunded.
	Bound bool
	// Refunded is true when the task's credits are back with the user,
	// whether by this call or an earlier one.
	Refunded bool
	// Applied is true only for the call that moved the credits.
	Applied bool
	Credits int
}

// Reconciler turns failed generations into refunds. Every method is safe to
// call any number of times; the ledger's binding lock makes the refund
// happen at most once.
type Reconciler struct {
	Ledger   Ledger
	Bindings BindingStore
	Logger   *slog.Logger
}

func NewReconciler(l Ledger, bindings BindingStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{Ledger: l, Bindings: bindings, Logger: logger}
}

// RefundTask refunds the deduction bound to taskID.
func (r *Reconciler) RefundTask(ctx context.Context, taskID, reason string) (Settlement, error) {
	b, err := r.Bindings.GetByTaskID(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		r.Logger.Warn("failed task has no credit binding, nothing to refund", "task_id", taskID)
		return Settlement{}, nil
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("load binding %s: %w", taskID, err)
	}
	return r.RefundBinding(ctx, b, reason)
}

// RefundBinding refunds the deduction recorded in b.
func (r *Reconciler) RefundBinding(ctx context.Context, b *models.TaskCreditBinding, reason string) (Settlement, error) {
	if b.Refunded {
		return Settlement{Bound: true, Refunded: true}, nil
	}
	res, err := r.Ledger.Refund(ctx, ledger.RefundRequest{
		UserID:      b.UserID,
		Reason:      fmt.Sprintf("Refund for failed %s generation task %s: %s", b.Kind, b.TaskID, reason),
		CreditLogID: b.CreditLogID,
		TaskID:      b.TaskID,
	})
	if err != nil {
		return Settlement{Bound: true}, fmt.Errorf("refund task %s: %w", b.TaskID, err)
	}
	if res.Skipped {
		return Settlement{Bound: true, Refunded: true}, nil
	}
	r.Logger.Info("credits refunded for failed task", "task_id", b.TaskID, "user_id", b.UserID, "credits", res.CreditsRefunded)
	return Settlement{Bound: true, Refunded: true, Applied: true, Credits: res.CreditsRefunded}, nil
}

// RefundSubmission compensates a deduction whose provider submission failed,
// before any task id existed.
func (r *Reconciler) RefundSubmission(ctx context.Context, userID uuid.UUID, d *ledger.Deduction, reason string) (Settlement, error) {
	res, err := r.Ledger.Refund(ctx, ledger.RefundRequest{
		UserID:      userID,
		Amount:      d.CreditsDeducted,
		Reason:      "Refund for failed submission: " + textutil.Truncate(reason, 50),
		CreditLogID: d.LogID,
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("refund submission %s: %w", d.LogID, err)
	}
	if res.Skipped {
		return Settlement{Refunded: true}, nil
	}
	return Settlement{Refunded: true, Applied: true, Credits: res.CreditsRefunded}, nil
}
