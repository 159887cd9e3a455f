package models

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the generation media kind.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindMusic Kind = "music"
)

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindMusic:
		return true
	}
	return false
}

// TaskState is the canonical provider-agnostic task state.
type TaskState string

const (
	TaskStatePending    TaskState = "pending"
	TaskStateProcessing TaskState = "processing"
	TaskStateSuccess    TaskState = "success"
	TaskStateFailed     TaskState = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s TaskState) Terminal() bool {
	return s == TaskStateSuccess || s == TaskStateFailed
}

// GenerationStatus is a normalized provider status.
type GenerationStatus struct {
	State        TaskState `json:"state"`
	ResultURLs   []string  `json:"result_urls"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
}

// PollResult is what a poll returns to the caller.
type PollResult struct {
	TaskID          string    `json:"taskId"`
	Status          TaskState `json:"status"`
	ResultURLs      []string  `json:"resultUrls"`
	IsComplete      bool      `json:"isComplete"`
	CreditsRefunded bool      `json:"creditsRefunded"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`

	// Settled is true once a terminal result needs no further work. A failed
	// task whose refund errored is complete but not settled.
	Settled bool `json:"-"`
}

// TaskCreditBinding ties a provider task id to the credit log entry that paid
// for it. Refunded flips from false to true at most once.
type TaskCreditBinding struct {
	TaskID      string     `json:"task_id"`
	CreditLogID uuid.UUID  `json:"credit_log_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Kind        Kind       `json:"kind"`
	ModelID     string     `json:"model_id"`
	Refunded    bool       `json:"refunded"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
