package authgrants

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/server/models"
)

type Repository interface {
	// FindLatestByUser returns the grant with the furthest end, or
	// common.ErrorNotFound when the user never had one.
	FindLatestByUser(ctx context.Context, userID string) (*models.AuthGrant, error)
	Create(ctx context.Context, g *models.AuthGrant) (*models.AuthGrant, error)
	Extend(ctx context.Context, id int64, endAt time.Time) error
}
