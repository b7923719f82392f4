package conversations

import (
	"context"

	"github.com/dmitrijs2005/chatgate/internal/server/models"
)

type Repository interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Conversation, error)
	Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
}
