package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/cryptox"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
)

// SandboxSecret is the secret of the throwaway credential handed out in
// sandbox mode.
const SandboxSecret = "test_key"

// CredentialPool hands out upstream credentials, at most one in-flight
// request per credential.
//
// Tiers, in order: the sandbox credential (sandbox mode only), the caller's
// own live credential, then a random live shared credential that nobody
// holds. Occupancy older than leaseTTL is considered abandoned.
type CredentialPool struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sealer      *cryptox.Sealer
	logger      logging.Logger
	sandbox     bool
	leaseTTL    time.Duration

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

func NewCredentialPool(db *sql.DB, m repomanager.RepositoryManager, sealer *cryptox.Sealer,
	logger logging.Logger, cfg *config.Config) *CredentialPool {
	return &CredentialPool{
		db:          db,
		repomanager: m,
		sealer:      sealer,
		logger:      logger,
		sandbox:     cfg.Sandbox,
		leaseTTL:    cfg.CredentialLeaseTTL,
		now:         time.Now,
		shuffle:     rand.Shuffle,
	}
}

// Select picks a credential for user without taking it. It returns
// common.ErrServiceBusy when no tier has a candidate.
func (p *CredentialPool) Select(ctx context.Context, user *models.User) (*models.Credential, error) {
	if p.sandbox {
		return p.sandboxCredential(user), nil
	}

	repo := p.repomanager.Credentials(p.db)

	owned, err := repo.FindOwnedLive(ctx, user.ID)
	switch {
	case err == nil:
		cred, oerr := p.open(owned)
		if oerr == nil {
			return cred, nil
		}
		p.logger.Warn(ctx, "skipping credential that cannot be opened", "credential_id", owned.ID, "error", oerr)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	shared, err := repo.ListAvailableShared(ctx, p.staleBefore())
	if err != nil {
		return nil, err
	}
	if len(shared) == 0 {
		return nil, common.ErrServiceBusy
	}

	return p.open(shared[rand.IntN(len(shared))])
}

// Acquire marks cred as held by user. It fails with
// common.ErrCredentialOccupied when someone else holds it.
func (p *CredentialPool) Acquire(ctx context.Context, cred *models.Credential, user *models.User) error {
	if cred.Ephemeral {
		cred.OccupantID = &user.ID
		return nil
	}

	now := p.now()
	won, err := p.repomanager.Credentials(p.db).Occupy(ctx, cred.ID, user.ID, now, p.staleBefore())
	if err != nil {
		return err
	}
	if !won {
		return common.ErrCredentialOccupied
	}

	cred.OccupantID = &user.ID
	cred.OccupiedAt = &now
	return nil
}

// Release clears the occupancy of cred. It runs detached from ctx
// cancellation so a client hanging up does not leave the credential
// occupied.
func (p *CredentialPool) Release(ctx context.Context, cred *models.Credential) error {
	if !cred.Ephemeral {
		if err := p.repomanager.Credentials(p.db).Release(context.WithoutCancel(ctx), cred.ID); err != nil {
			return err
		}
	}
	cred.OccupantID = nil
	cred.OccupiedAt = nil
	return nil
}

// Lease selects and acquires a credential in one step. Within the shared
// tier candidates are tried in random order until one is won, so losing a
// race to another request moves on instead of failing.
//
//	lease, err := pool.Lease(ctx, user)
//	if err != nil { ... }
//	defer lease.Release(ctx)
func (p *CredentialPool) Lease(ctx context.Context, user *models.User) (*Lease, error) {
	if p.sandbox {
		cred := p.sandboxCredential(user)
		if err := p.Acquire(ctx, cred, user); err != nil {
			return nil, err
		}
		return &Lease{pool: p, cred: cred}, nil
	}

	repo := p.repomanager.Credentials(p.db)

	owned, err := repo.FindOwnedLive(ctx, user.ID)
	switch {
	case err == nil:
		if lease, err := p.tryLease(ctx, owned, user); err != nil || lease != nil {
			return lease, err
		}
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	shared, err := repo.ListAvailableShared(ctx, p.staleBefore())
	if err != nil {
		return nil, err
	}
	p.shuffle(len(shared), func(i, j int) { shared[i], shared[j] = shared[j], shared[i] })

	for _, sc := range shared {
		lease, err := p.tryLease(ctx, sc, user)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}
	}

	return nil, common.ErrServiceBusy
}

// tryLease returns a nil lease without error when the credential is taken
// or cannot be opened. The latter is logged; it usually means the secret key
// changed since the credential was sealed.
func (p *CredentialPool) tryLease(ctx context.Context, sc *models.SealedCredential, user *models.User) (*Lease, error) {
	cred, err := p.open(sc)
	if err != nil {
		p.logger.Warn(ctx, "skipping credential that cannot be opened", "credential_id", sc.ID, "error", err)
		return nil, nil
	}
	if err := p.Acquire(ctx, cred, user); err != nil {
		if errors.Is(err, common.ErrCredentialOccupied) {
			return nil, nil
		}
		return nil, err
	}
	return &Lease{pool: p, cred: cred}, nil
}

// AddCredential stores a new live credential. A nil ownerID puts it in the
// shared pool.
func (p *CredentialPool) AddCredential(ctx context.Context, ownerID *string, secret string) (*models.Credential, error) {
	if secret == "" {
		return nil, common.ErrEmptyCredential
	}
	ct, nonce, err := p.sealer.Seal([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("error sealing credential: %w", err)
	}

	sc, err := p.repomanager.Credentials(p.db).Create(ctx, &models.SealedCredential{
		OwnerID:          ownerID,
		SecretCiphertext: ct,
		SecretNonce:      nonce,
		Live:             true,
	})
	if err != nil {
		return nil, err
	}
	return p.open(sc)
}

// SetLive enables or disables a credential.
func (p *CredentialPool) SetLive(ctx context.Context, id int64, live bool) error {
	return p.repomanager.Credentials(p.db).SetLive(ctx, id, live)
}

// Get loads a credential with its secret opened.
func (p *CredentialPool) Get(ctx context.Context, id int64) (*models.Credential, error) {
	sc, err := p.repomanager.Credentials(p.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.open(sc)
}

// FirstSharedSecret returns the secret of the first live shared credential,
// or common.ErrServiceBusy when there is none.
func (p *CredentialPool) FirstSharedSecret(ctx context.Context) (string, error) {
	sc, err := p.repomanager.Credentials(p.db).FirstLiveShared(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrServiceBusy
		}
		return "", err
	}
	cred, err := p.open(sc)
	if err != nil {
		return "", err
	}
	return cred.Secret, nil
}

func (p *CredentialPool) sandboxCredential(user *models.User) *models.Credential {
	return &models.Credential{OwnerID: &user.ID, Secret: SandboxSecret, Live: true, Ephemeral: true}
}

func (p *CredentialPool) staleBefore() time.Time {
	return p.now().Add(-p.leaseTTL)
}

func (p *CredentialPool) open(sc *models.SealedCredential) (*models.Credential, error) {
	secret, err := p.sealer.Open(sc.SecretCiphertext, sc.SecretNonce)
	if err != nil {
		return nil, fmt.Errorf("error opening credential %d: %w", sc.ID, err)
	}
	return &models.Credential{
		ID:         sc.ID,
		OwnerID:    sc.OwnerID,
		Secret:     string(secret),
		Live:       sc.Live,
		OccupantID: sc.OccupantID,
		OccupiedAt: sc.OccupiedAt,
	}, nil
}

// Lease is a held credential. Release is idempotent; callers defer it right
// after a successful CredentialPool.Lease.
type Lease struct {
	pool *CredentialPool
	cred *models.Credential

	once sync.Once
	err  error
}

// Credential returns the held credential.
func (l *Lease) Credential() *models.Credential {
	return l.cred
}

// Release gives the credential back to the pool. Later calls return the
// result of the first one.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.pool.Release(ctx, l.cred)
	})
	return l.err
}
