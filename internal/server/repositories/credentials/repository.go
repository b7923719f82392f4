package credentials

import (
	"context"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/server/models"
)

// Repository stores upstream credentials in their sealed form.
//
// staleBefore marks the lease horizon: an occupancy taken before it is
// treated as abandoned and may be taken over.
type Repository interface {
	Create(ctx context.Context, c *models.SealedCredential) (*models.SealedCredential, error)
	GetByID(ctx context.Context, id int64) (*models.SealedCredential, error)
	FindOwnedLive(ctx context.Context, ownerID string) (*models.SealedCredential, error)
	ListAvailableShared(ctx context.Context, staleBefore time.Time) ([]*models.SealedCredential, error)
	FirstLiveShared(ctx context.Context) (*models.SealedCredential, error)
	// Occupy marks the credential as held by occupantID. It reports false
	// when someone else holds it or it is no longer live.
	Occupy(ctx context.Context, id int64, occupantID string, now, staleBefore time.Time) (bool, error)
	Release(ctx context.Context, id int64) error
	SetLive(ctx context.Context, id int64, live bool) error
}
