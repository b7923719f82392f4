package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/dbx"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
)

// GrantService gates premium operations behind a time-boxed access window.
type GrantService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	pool         *CredentialPool
	sharedAPIKey string
}

func NewGrantService(db *sql.DB, m repomanager.RepositoryManager, pool *CredentialPool, cfg *config.Config) *GrantService {
	return &GrantService{db: db, repomanager: m, pool: pool, sharedAPIKey: cfg.SharedAPIKey}
}

// Window returns the user's latest grant when it covers now. No grant at all
// is common.ErrGrantNotFound; a grant that does not cover now (ended, or not
// started yet) is common.ErrGrantExpired.
func (s *GrantService) Window(ctx context.Context, userID string, now time.Time) (*models.AuthGrant, error) {
	g, err := s.repomanager.AuthGrants(s.db).FindLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrGrantNotFound
		}
		return nil, err
	}
	if !g.Covers(now) {
		return g, common.ErrGrantExpired
	}
	return g, nil
}

// IsAuthorized reports nil when the user holds a grant covering now.
func (s *GrantService) IsAuthorized(ctx context.Context, userID string, now time.Time) error {
	_, err := s.Window(ctx, userID, now)
	return err
}

// SharedKey returns the shared upstream key to an authorized user: the
// configured key, or else the first live shared credential.
func (s *GrantService) SharedKey(ctx context.Context, userID string, now time.Time) (string, error) {
	if err := s.IsAuthorized(ctx, userID, now); err != nil {
		return "", err
	}
	if s.sharedAPIKey != "" {
		return s.sharedAPIKey, nil
	}
	return s.pool.FirstSharedSecret(ctx)
}

// Grant gives userID days of access. A grant that still covers now is
// extended; otherwise a new window [now, now+days] starts.
func (s *GrantService) Grant(ctx context.Context, userID string, days int, now time.Time) (*models.AuthGrant, error) {
	if days <= 0 {
		return nil, common.ErrInvalidDays
	}
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		return nil, err
	}

	var out *models.AuthGrant
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.AuthGrants(tx)

		g, err := repo.FindLatestByUser(ctx, userID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if err == nil && g.Covers(now) {
			end := g.EndAt.AddDate(0, 0, days)
			if err := repo.Extend(ctx, g.ID, end); err != nil {
				return err
			}
			g.EndAt = end
			out = g
			return nil
		}

		out, err = repo.Create(ctx, &models.AuthGrant{UserID: userID, BeganAt: now, EndAt: now.AddDate(0, 0, days)})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
