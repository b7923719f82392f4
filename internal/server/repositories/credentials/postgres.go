package credentials

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

const selectColumns = `SELECT id, owner_id, secret_ciphertext, secret_nonce, is_live, occupant_id, occupied_at FROM credentials`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.SealedCredential) (*models.SealedCredential, error) {
	query :=
		`INSERT INTO credentials (owner_id, secret_ciphertext, secret_nonce, is_live)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, c.OwnerID, c.SecretCiphertext, c.SecretNonce, c.Live).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.SealedCredential, error) {
	query := selectColumns + `
		 WHERE id = $1
		 `

	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) FindOwnedLive(ctx context.Context, ownerID string) (*models.SealedCredential, error) {
	query := selectColumns + `
		 WHERE owner_id = $1 AND is_live
		 ORDER BY id
		 LIMIT 1
		 `

	return scanOne(r.db.QueryRowContext(ctx, query, ownerID))
}

func (r *PostgresRepository) ListAvailableShared(ctx context.Context, staleBefore time.Time) ([]*models.SealedCredential, error) {
	query := selectColumns + `
		 WHERE owner_id IS NULL AND is_live
		   AND (occupant_id IS NULL OR occupied_at < $1)
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.SealedCredential, 0)
	for rows.Next() {
		c, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) FirstLiveShared(ctx context.Context) (*models.SealedCredential, error) {
	query := selectColumns + `
		 WHERE owner_id IS NULL AND is_live
		 ORDER BY id
		 LIMIT 1
		 `

	return scanOne(r.db.QueryRowContext(ctx, query))
}

// Occupy is a single conditional UPDATE, so two callers racing for the
// same row cannot both win.
func (r *PostgresRepository) Occupy(ctx context.Context, id int64, occupantID string, now, staleBefore time.Time) (bool, error) {
	query :=
		`UPDATE credentials SET occupant_id = $1, occupied_at = $2
		 WHERE id = $3 AND is_live
		   AND (occupant_id IS NULL OR occupied_at < $4)
		 `

	n, err := dbx.ExecAffected(ctx, r.db, query, occupantID, now, id, staleBefore)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n == 1, nil
}

func (r *PostgresRepository) Release(ctx context.Context, id int64) error {
	query :=
		`UPDATE credentials SET occupant_id = NULL, occupied_at = NULL
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) SetLive(ctx context.Context, id int64, live bool) error {
	query :=
		`UPDATE credentials SET is_live = $1
		 WHERE id = $2
		 `

	n, err := dbx.ExecAffected(ctx, r.db, query, live, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*models.SealedCredential, error) {
	c := &models.SealedCredential{}
	var owner, occupant sql.NullString
	var occupiedAt sql.NullTime

	err := row.Scan(&c.ID, &owner, &c.SecretCiphertext, &c.SecretNonce, &c.Live, &occupant, &occupiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if owner.Valid {
		c.OwnerID = &owner.String
	}
	if occupant.Valid {
		c.OccupantID = &occupant.String
	}
	if occupiedAt.Valid {
		c.OccupiedAt = &occupiedAt.Time
	}

	return c, nil
}
