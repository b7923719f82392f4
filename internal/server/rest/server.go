// Package rest exposes the gateway over HTTP. Every envelope response is
// sent with HTTP 200; the outcome is carried in the envelope code.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/metrics"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Logout(ctx context.Context, user *models.User) error
	IsAdmin(user *models.User) bool
}

type CompletionService interface {
	Complete(ctx context.Context, user *models.User, req services.CompletionRequest) (*services.CompletionResult, error)
}

type RecordService interface {
	ListRecords(ctx context.Context, userID string, page, limit int) ([]*models.ChatRecord, error)
	ListRecordsInRange(ctx context.Context, userID string, start, end int64) ([]*models.ChatRecord, error)
}

type GrantService interface {
	Window(ctx context.Context, userID string, now time.Time) (*models.AuthGrant, error)
	SharedKey(ctx context.Context, userID string, now time.Time) (string, error)
	Grant(ctx context.Context, userID string, days int, now time.Time) (*models.AuthGrant, error)
}

type CredentialService interface {
	AddCredential(ctx context.Context, ownerID *string, secret string) (*models.Credential, error)
	SetLive(ctx context.Context, id int64, live bool) error
}

// Services bundles the collaborators the HTTP layer dispatches to. A nil
// Metrics disables instrumentation and the /metrics route.
type Services struct {
	Users       UserService
	Completions CompletionService
	Records     RecordService
	Grants      GrantService
	Credentials CredentialService
	Metrics     *metrics.Metrics
}

type Server struct {
	address string
	logger  logging.Logger
	svc     Services
	router  *gin.Engine
	now     func() time.Time
}

func NewServer(address string, l logging.Logger, svc Services) *Server {
	s := &Server{
		address: address,
		logger:  l.With("module", "rest_server"),
		svc:     svc,
		now:     time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if s.svc.Metrics != nil {
		r.Use(s.svc.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.svc.Metrics.Handler()))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	a := r.Group("/auth")
	a.POST("/login/", s.login)
	a.POST("/logout/", s.authenticate(), s.logout)
	a.GET("/info/", s.authenticate(), s.info)

	g := r.Group("/gpt", s.authenticate())
	g.POST("/completion/", s.completion)
	g.POST("/competion/", s.completion)
	g.POST("/chat_records/", s.chatRecords)
	g.POST("/chat_records/range/", s.chatRecordsRange)
	g.GET("/key/", s.sharedKey)
	g.GET("/auth/", s.authWindow)

	adm := r.Group("/admin", s.authenticate(), s.requireAdmin())
	adm.POST("/auth/", s.grantAuth)
	adm.POST("/keys/", s.addKey)
	adm.PUT("/keys/:id/live", s.setKeyLive)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
