package chatrecords

import (
	"context"

	"github.com/dmitrijs2005/chatgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, r *models.ChatRecord) (*models.ChatRecord, error)
	// ListByUser returns a user's records newest first, ties broken by
	// insertion order, newest first.
	ListByUser(ctx context.Context, userID string, offset, limit uint64) ([]*models.ChatRecord, error)
	// ListByUserInRange returns records with start <= created_at <= end,
	// newest first.
	ListByUserInRange(ctx context.Context, userID string, start, end int64) ([]*models.ChatRecord, error)
}
