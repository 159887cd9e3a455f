package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit log types.
const (
	CreditLogFeatureUsage           = "feature_usage"
	CreditLogRefundFailedGeneration = "refund_failed_generation"
)

// CreditLog is an append-only ledger entry. Amount is signed: deductions are
// negative, refunds positive. The balances are the values after the entry.
type CreditLog struct {
	ID                       uuid.UUID  `json:"id"`
	UserID                   uuid.UUID  `json:"user_id"`
	Amount                   int        `json:"amount"`
	OneTimeBalanceAfter      int        `json:"one_time_balance_after"`
	SubscriptionBalanceAfter int        `json:"subscription_balance_after"`
	LogType                  string     `json:"log_type"`
	Notes                    string     `json:"notes"`
	RefundOf                 *uuid.UUID `json:"refund_of,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
}
