package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageAccount is the per-user credit balance row. Both pools are kept >= 0
// by the ledger and by CHECK constraints on usage_accounts.
type UsageAccount struct {
	UserID              uuid.UUID `json:"user_id"`
	OneTimeBalance      int       `json:"one_time_balance"`
	SubscriptionBalance int       `json:"subscription_balance"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Total returns the spendable balance across both pools.
func (u *UsageAccount) Total() int {
	return u.OneTimeBalance + u.SubscriptionBalance
}
