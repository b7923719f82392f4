package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/cryptox"
	"github.com/dmitrijs2005/chatgate/internal/dbx"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/authgrants"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/chatrecords"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- shared fixtures ---

// newTxDB returns a real *sql.DB so dbx.WithTx can begin and commit. The
// fake repositories ignore the handle they are given.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.AdminIdentifier = "admin000000000000000000000000000"
	return cfg
}

func newTestSealer(t *testing.T) *cryptox.Sealer {
	t.Helper()
	s, err := cryptox.NewSealerFromSecret("test-secret")
	require.NoError(t, err)
	return s
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// --- in-memory store behind the repository interfaces ---

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[string]*models.User
	convs   []*models.Conversation
	records []*models.ChatRecord
	creds   []*models.SealedCredential
	grants  []*models.AuthGrant

	// failure injection
	recordErr    func(r *models.ChatRecord) error
	occupyErr    error
	releaseErr   error
	listSharedFn func() // runs before ListAvailableShared returns
	convCreateFn func() // runs once before the next conversation Create
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) recordsCopy() []models.ChatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out
}

func (s *memStore) credential(id int64) models.SealedCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.ID == id {
			return *c
		}
	}
	return models.SealedCredential{}
}

type memRepoManager struct{ s *memStore }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *memRepoManager) Users(dbx.DBTX) users.Repository {
	return &memUsers{m.s}
}

func (m *memRepoManager) Conversations(dbx.DBTX) conversations.Repository {
	return &memConvs{m.s}
}

func (m *memRepoManager) ChatRecords(dbx.DBTX) chatrecords.Repository {
	return &memRecords{m.s}
}

func (m *memRepoManager) Credentials(dbx.DBTX) credentials.Repository {
	return &memCreds{m.s}
}

func (m *memRepoManager) AuthGrants(dbx.DBTX) authgrants.Repository {
	return &memGrants{m.s}
}

type memUsers struct{ s *memStore }

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	for _, x := range r.s.users {
		if x.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.CreatedAt = time.Now()
	c := *u
	r.s.users[u.ID] = &c
	return u, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) UpdateToken(_ context.Context, id string, token *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	if token == nil {
		u.Token = nil
	} else {
		t := *token
		u.Token = &t
	}
	return nil
}

type memConvs struct{ s *memStore }

func (r *memConvs) GetByIdentifier(_ context.Context, identifier string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.convs {
		if c.Identifier == identifier {
			cc := *c
			return &cc, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memConvs) Create(_ context.Context, c *models.Conversation) (*models.Conversation, error) {
	r.s.mu.Lock()
	fn := r.s.convCreateFn
	r.s.convCreateFn = nil
	r.s.mu.Unlock()
	if fn != nil {
		fn()
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.convs {
		if x.Identifier == c.Identifier {
			return nil, common.ErrorAlreadyExists
		}
	}
	c.ID = r.s.id()
	cc := *c
	r.s.convs = append(r.s.convs, &cc)
	return c, nil
}

type memRecords struct{ s *memStore }

func (r *memRecords) Create(_ context.Context, rec *models.ChatRecord) (*models.ChatRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.recordErr != nil {
		if err := r.s.recordErr(rec); err != nil {
			return nil, err
		}
	}
	rec.ID = r.s.id()
	c := *rec
	r.s.records = append(r.s.records, &c)
	return rec, nil
}

func (r *memRecords) sorted(keep func(*models.ChatRecord) bool) []*models.ChatRecord {
	out := make([]*models.ChatRecord, 0)
	for _, rec := range r.s.records {
		if keep(rec) {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memRecords) ListByUser(_ context.Context, userID string, offset, limit uint64) ([]*models.ChatRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.sorted(func(rec *models.ChatRecord) bool { return rec.UserID == userID })
	if offset >= uint64(len(all)) {
		return []*models.ChatRecord{}, nil
	}
	end := min(offset+limit, uint64(len(all)))
	return all[offset:end], nil
}

func (r *memRecords) ListByUserInRange(_ context.Context, userID string, start, end int64) ([]*models.ChatRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.sorted(func(rec *models.ChatRecord) bool {
		return rec.UserID == userID && rec.CreatedAt >= start && rec.CreatedAt <= end
	}), nil
}

type memCreds struct{ s *memStore }

func (r *memCreds) Create(_ context.Context, c *models.SealedCredential) (*models.SealedCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	cc := *c
	r.s.creds = append(r.s.creds, &cc)
	return c, nil
}

func (r *memCreds) find(id int64) *models.SealedCredential {
	for _, c := range r.s.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *memCreds) GetByID(_ context.Context, id int64) (*models.SealedCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c := r.find(id); c != nil {
		cc := *c
		return &cc, nil
	}
	return nil, common.ErrorNotFound
}

func (r *memCreds) FindOwnedLive(_ context.Context, ownerID string) (*models.SealedCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.creds {
		if c.OwnerID != nil && *c.OwnerID == ownerID && c.Live {
			cc := *c
			return &cc, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memCreds) ListAvailableShared(_ context.Context, staleBefore time.Time) ([]*models.SealedCredential, error) {
	r.s.mu.Lock()
	out := make([]*models.SealedCredential, 0)
	for _, c := range r.s.creds {
		if c.OwnerID == nil && c.Live && (c.OccupantID == nil || c.OccupiedAt.Before(staleBefore)) {
			cc := *c
			out = append(out, &cc)
		}
	}
	hook := r.s.listSharedFn
	r.s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *memCreds) FirstLiveShared(_ context.Context) (*models.SealedCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.creds {
		if c.OwnerID == nil && c.Live {
			cc := *c
			return &cc, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memCreds) Occupy(_ context.Context, id int64, occupantID string, now, staleBefore time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.occupyErr != nil {
		return false, r.s.occupyErr
	}
	c := r.find(id)
	if c == nil || !c.Live {
		return false, nil
	}
	if c.OccupantID != nil && !c.OccupiedAt.Before(staleBefore) {
		return false, nil
	}
	o := occupantID
	at := now
	c.OccupantID = &o
	c.OccupiedAt = &at
	return true, nil
}

func (r *memCreds) Release(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.s.releaseErr != nil {
		return r.s.releaseErr
	}
	if c := r.find(id); c != nil {
		c.OccupantID = nil
		c.OccupiedAt = nil
	}
	return nil
}

func (r *memCreds) SetLive(_ context.Context, id int64, live bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.find(id)
	if c == nil {
		return common.ErrorNotFound
	}
	c.Live = live
	return nil
}

type memGrants struct{ s *memStore }

func (r *memGrants) FindLatestByUser(_ context.Context, userID string) (*models.AuthGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.AuthGrant
	for _, g := range r.s.grants {
		if g.UserID != userID {
			continue
		}
		if best == nil || g.EndAt.After(best.EndAt) || (g.EndAt.Equal(best.EndAt) && g.ID > best.ID) {
			best = g
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	c := *best
	return &c, nil
}

func (r *memGrants) Create(_ context.Context, g *models.AuthGrant) (*models.AuthGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g.ID = r.s.id()
	c := *g
	r.s.grants = append(r.s.grants, &c)
	return g, nil
}

func (r *memGrants) Extend(_ context.Context, id int64, endAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.ID == id {
			g.EndAt = endAt
			return nil
		}
	}
	return common.ErrorNotFound
}

func newUser(id string) *models.User {
	return &models.User{ID: id, Email: id + "@example.com"}
}

// failingUsersManager serves a users repository whose reads fail.
type failingUsersManager struct{ memRepoManager }

func (m *failingUsersManager) Users(dbx.DBTX) users.Repository {
	return &failingUsers{}
}

type failingUsers struct{}

func (failingUsers) Create(context.Context, *models.User) (*models.User, error) {
	return nil, errBoom{}
}

func (failingUsers) GetByEmail(context.Context, string) (*models.User, error) {
	return nil, errBoom{}
}

func (failingUsers) GetByID(context.Context, string) (*models.User, error) {
	return nil, errBoom{}
}

func (failingUsers) UpdateToken(context.Context, string, *string) error {
	return errBoom{}
}
