package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/dbx"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/pgerr"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Conversation, error) {
	query :=
		`SELECT id, identifier, user_id, created_at FROM conversations
		 WHERE identifier = $1
		 `

	c := &models.Conversation{}
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(&c.ID, &c.Identifier, &c.UserID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

// Create inserts c. A taken identifier yields common.ErrorAlreadyExists
// without aborting the surrounding transaction, so the caller can look the
// winning row up and keep going.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	query :=
		`INSERT INTO conversations (identifier, user_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (identifier) DO NOTHING
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, c.Identifier, c.UserID, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pgerr.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}
