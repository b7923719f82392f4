// Package services contains server-side business logic. This file implements
// UserService, which handles accounts, login and session tokens, plus the
// administrative capability check.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/auth"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User  *models.User
	Token string
}

// UserService provides account operations:
//   - Login/Logout: verify credentials, mint and store the session token
//   - Authenticate: resolve a presented token to a user
//   - CreateUser/EnsureAdmin: provisioning
//   - IsAdmin: the capability check for administrative operations
type UserService struct {
	db                    *sql.DB
	repomanager           repomanager.RepositoryManager
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	adminIdentifier       string
	adminEmail            string
	adminPassword         string
	passwordCost          int
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                    db,
		repomanager:           m,
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		adminIdentifier:       cfg.AdminIdentifier,
		adminEmail:            cfg.AdminEmail,
		adminPassword:         cfg.AdminPassword,
		passwordCost:          bcrypt.DefaultCost,
	}
}

// Login checks email/password and issues a new session token. The token is
// stored on the user row, which invalidates any previously issued one.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" {
		return nil, common.ErrEmailRequired
	}
	if password == "" {
		return nil, common.ErrPasswordRequired
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, common.ErrorInternal
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, common.ErrInvalidCredentials
	}

	token, err := auth.IssueSessionToken(user.ID, s.jwtSecret, s.tokenValidityDuration, time.Now())
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := repo.UpdateToken(ctx, user.ID, &token); err != nil {
		return nil, common.ErrorInternal
	}
	user.Token = &token

	return &LoginResult{User: user, Token: token}, nil
}

// Authenticate resolves a session token to its user. The token must verify
// and also match the one stored on the user row.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}

	userID, err := auth.SessionUserID(token, s.jwtSecret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if user.Token == nil || subtle.ConstantTimeCompare([]byte(*user.Token), []byte(token)) != 1 {
		return nil, common.ErrorUnauthorized
	}

	return user, nil
}

// Logout clears the stored session token.
func (s *UserService) Logout(ctx context.Context, user *models.User) error {
	if err := s.repomanager.Users(s.db).UpdateToken(ctx, user.ID, nil); err != nil {
		return common.ErrorInternal
	}
	user.Token = nil
	return nil
}

// CreateUser registers a user. An empty identifier gets a generated one.
func (s *UserService) CreateUser(ctx context.Context, email, password, identifier string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, common.ErrEmailRequired
	}
	if password == "" {
		return nil, common.ErrPasswordRequired
	}
	if identifier == "" {
		identifier = common.NewIdentifier()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{ID: identifier, Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// EnsureAdmin creates the configured administrative user when it does not
// exist yet. Without a configured admin email it does nothing.
func (s *UserService) EnsureAdmin(ctx context.Context) (bool, error) {
	if s.adminEmail == "" {
		return false, nil
	}

	_, err := s.repomanager.Users(s.db).GetByID(ctx, s.adminIdentifier)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return false, err
	}

	if _, err := s.CreateUser(ctx, s.adminEmail, s.adminPassword, s.adminIdentifier); err != nil {
		return false, err
	}
	return true, nil
}

// IsAdmin is the single capability check for administrative operations.
func (s *UserService) IsAdmin(user *models.User) bool {
	return user != nil && s.adminIdentifier != "" && user.ID == s.adminIdentifier
}
