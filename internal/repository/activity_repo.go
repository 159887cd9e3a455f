package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genforge/backend/internal/models"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) Create(ctx context.Context, a *models.ActivityLog) error {
	metadata := a.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO activity_logs (id, user_id, action, resource_type, resource_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, a.ID, a.UserID, a.Action, a.ResourceType, a.ResourceID, metadata).Scan(&a.CreatedAt)
}

// Exists reports whether an entry with the (user, action, resource) key exists.
func (r *ActivityRepo) Exists(ctx context.Context, userID uuid.UUID, action, resourceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM activity_logs WHERE user_id = $1 AND action = $2 AND resource_id = $3
		)
	`, userID, action, resourceID).Scan(&exists)
	return exists, err
}

func (r *ActivityRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.ActivityLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, metadata, created_at
		FROM activity_logs WHERE user_id = $1 ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ActivityLog
	for rows.Next() {
		var a models.ActivityLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.ResourceType, &a.ResourceID, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
