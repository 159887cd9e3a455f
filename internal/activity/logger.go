// Package activity writes the user-visible audit trail of generation tasks
// and classifies failures for that trail.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/genforge/backend/internal/models"
	"github.com/genforge/backend/internal/textutil"
)

// Repo is the persistence the Logger needs.
type Repo interface {
	Create(ctx context.Context, a *models.ActivityLog) error
	Exists(ctx context.Context, userID uuid.UUID, action, resourceID string) (bool, error)
}

type Logger struct {
	Repo   Repo
	Logger *slog.Logger
}

func NewLogger(repo Repo, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{Repo: repo, Logger: logger}
}

// RecordStarted logs <kind>_generation_started right after the charge.
func (l *Logger) RecordStarted(ctx context.Context, userID uuid.UUID, kind models.Kind, modelID, prompt string, credits int) error {
	return l.write(ctx, userID, kind, "", models.ActivityAction(kind, models.ActivityStarted), map[string]any{
		"modelId":     modelID,
		"prompt":      textutil.Truncate(prompt, 100),
		"creditsUsed": credits,
	})
}

// RecordSubmitFailed logs <kind>_generation_failed for a submission the
// provider rejected, with the failure classification attached.
func (l *Logger) RecordSubmitFailed(ctx context.Context, userID uuid.UUID, kind models.Kind, modelID string, c Classification, creditsRefunded bool) error {
	return l.write(ctx, userID, kind, "", models.ActivityAction(kind, models.ActivityFailed), map[string]any{
		"modelId":         modelID,
		"stage":           "submit",
		"creditsRefunded": creditsRefunded,
		"failure":         c,
	})
}

// RecordTerminal logs a terminal action for taskID unless an entry with the
// same (user, action, task) already exists. written reports whether a new
// row was inserted. The check is best effort: two racing pollers can both
// insert, which only duplicates an audit row.
func (l *Logger) RecordTerminal(ctx context.Context, userID uuid.UUID, kind models.Kind, taskID, action string, metadata map[string]any) (bool, error) {
	exists, err := l.Repo.Exists(ctx, userID, action, taskID)
	if err != nil {
		return false, fmt.Errorf("check activity %s for %s: %w", action, taskID, err)
	}
	if exists {
		return false, nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["taskId"] = taskID
	if err := l.write(ctx, userID, kind, taskID, action, metadata); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Logger) write(ctx context.Context, userID uuid.UUID, kind models.Kind, resourceID, action string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode activity metadata: %w", err)
	}
	entry := &models.ActivityLog{
		ID:           uuid.New(),
		UserID:       userID,
		Action:       action,
		ResourceType: string(kind),
		ResourceID:   resourceID,
		Metadata:     raw,
	}
	if err := l.Repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("insert activity %s: %w", action, err)
	}
	l.Logger.Info("activity recorded", "user_id", userID, "action", action, "resource_id", resourceID)
	return nil
}
