package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Activity action suffixes; the full action is "<kind>_generation_<suffix>".
const (
	ActivityStarted        = "started"
	ActivitySucceeded      = "succeeded"
	ActivityFailed         = "failed"
	ActivityFailedRefunded = "failed_refunded"
)

// ActivityAction builds the action name for a kind.
func ActivityAction(kind Kind, suffix string) string {
	return string(kind) + "_generation_" + suffix
}

type ActivityLog struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
}
