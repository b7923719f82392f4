package rest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/services"
)

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeUsers struct {
	mu       sync.Mutex
	tokens   map[string]*models.User
	adminID  string
	loginRes *services.LoginResult
	loginErr error
	logouts  int
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if email == "" {
		return nil, common.ErrEmailRequired
	}
	if password == "" {
		return nil, common.ErrPasswordRequired
	}
	return f.loginRes, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, token string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.tokens[token]; ok {
		return u, nil
	}
	return nil, common.ErrorUnauthorized
}

func (f *fakeUsers) Logout(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	for t, u := range f.tokens {
		if u.ID == user.ID {
			delete(f.tokens, t)
		}
	}
	return nil
}

func (f *fakeUsers) IsAdmin(user *models.User) bool {
	return user.ID == f.adminID
}

type fakeCompletions struct {
	res     *services.CompletionResult
	err     error
	lastReq services.CompletionRequest
	user    *models.User
}

func (f *fakeCompletions) Complete(_ context.Context, user *models.User, req services.CompletionRequest) (*services.CompletionResult, error) {
	f.user = user
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeRecords struct {
	records []*models.ChatRecord
	err     error
	userID  string
	page    int
	limit   int
	start   int64
	end     int64
}

func (f *fakeRecords) ListRecords(_ context.Context, userID string, page, limit int) ([]*models.ChatRecord, error) {
	f.userID, f.page, f.limit = userID, page, limit
	return f.records, f.err
}

func (f *fakeRecords) ListRecordsInRange(_ context.Context, userID string, start, end int64) ([]*models.ChatRecord, error) {
	f.userID, f.start, f.end = userID, start, end
	if start > end {
		return nil, common.ErrInvalidRange
	}
	return f.records, f.err
}

type fakeGrants struct {
	window    *models.AuthGrant
	windowErr error
	key       string
	granted   []string
	days      int
}

func (f *fakeGrants) Window(context.Context, string, time.Time) (*models.AuthGrant, error) {
	return f.window, f.windowErr
}

func (f *fakeGrants) SharedKey(context.Context, string, time.Time) (string, error) {
	if f.windowErr != nil {
		return "", f.windowErr
	}
	return f.key, nil
}

func (f *fakeGrants) Grant(_ context.Context, userID string, days int, now time.Time) (*models.AuthGrant, error) {
	if days <= 0 {
		return nil, common.ErrInvalidDays
	}
	f.granted = append(f.granted, userID)
	f.days = days
	return &models.AuthGrant{ID: 1, UserID: userID, BeganAt: now, EndAt: now.AddDate(0, 0, days)}, nil
}

type fakeCredentials struct {
	added  []string
	owner  *string
	live   map[int64]bool
	nextID int64
}

func (f *fakeCredentials) AddCredential(_ context.Context, ownerID *string, secret string) (*models.Credential, error) {
	if secret == "" {
		return nil, common.ErrEmptyCredential
	}
	f.nextID++
	f.added = append(f.added, secret)
	f.owner = ownerID
	return &models.Credential{ID: f.nextID, OwnerID: ownerID, Secret: secret, Live: true}, nil
}

func (f *fakeCredentials) SetLive(_ context.Context, id int64, live bool) error {
	if id > f.nextID {
		return common.ErrorNotFound
	}
	if f.live == nil {
		f.live = map[int64]bool{}
	}
	f.live[id] = live
	return nil
}
