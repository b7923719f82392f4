package authgrants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/dbx"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindLatestByUser(ctx context.Context, userID string) (*models.AuthGrant, error) {
	query :=
		`SELECT id, user_id, began_at, end_at FROM auth_grants
		 WHERE user_id = $1
		 ORDER BY end_at DESC, id DESC
		 LIMIT 1
		 `

	g := &models.AuthGrant{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&g.ID, &g.UserID, &g.BeganAt, &g.EndAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return g, nil
}

func (r *PostgresRepository) Create(ctx context.Context, g *models.AuthGrant) (*models.AuthGrant, error) {
	query :=
		`INSERT INTO auth_grants (user_id, began_at, end_at)
		 VALUES ($1, $2, $3)
		 RETURNING id
		 `

	if err := r.db.QueryRowContext(ctx, query, g.UserID, g.BeganAt, g.EndAt).Scan(&g.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return g, nil
}

func (r *PostgresRepository) Extend(ctx context.Context, id int64, endAt time.Time) error {
	query :=
		`UPDATE auth_grants SET end_at = $1
		 WHERE id = $2
		 `

	n, err := dbx.ExecAffected(ctx, r.db, query, endAt, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
