// Package server wires the gateway together: database, migrations,
// services, the upstream client and the HTTP server, and runs them until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/chatgate/internal/cryptox"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/metrics"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chatgate/internal/server/rest"
	"github.com/dmitrijs2005/chatgate/internal/server/services"
	"github.com/dmitrijs2005/chatgate/internal/server/upstream"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	rm     repomanager.RepositoryManager

	users *services.UserService
	rest  *rest.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(c, logger, db, rm)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	sealer, err := cryptox.NewSealerFromSecret(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("sealer init error: %w", err)
	}

	us := services.NewUserService(db, rm, c)
	pool := services.NewCredentialPool(db, rm, sealer, logger.With("module", "credential_pool"), c)
	cs := services.NewCompletionService(db, rm, pool, newUpstreamClient(c), logger.With("module", "completion"), c)
	rs := services.NewRecordService(db, rm, c)
	gs := services.NewGrantService(db, rm, pool, c)

	srv := rest.NewServer(c.EndpointAddrHTTP, logger, rest.Services{
		Users:       us,
		Completions: cs,
		Records:     rs,
		Grants:      gs,
		Credentials: pool,
		Metrics:     metrics.New(),
	})

	return &App{config: c, logger: logger, db: db, rm: rm, users: us, rest: srv}, nil
}

// newUpstreamClient picks the sandbox client in sandbox mode and the
// OpenAI-compatible client otherwise.
func newUpstreamClient(c *config.Config) upstream.Client {
	if c.Sandbox {
		return upstream.NewSandboxClient()
	}
	return upstream.NewOpenAIClient(upstream.OpenAIConfig{
		BaseURL:      c.GPTBaseURL,
		Organization: c.GPTOrganization,
		Timeout:      c.UpstreamTimeout,
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// prepare migrates the schema and seeds the admin user.
func (app *App) prepare(ctx context.Context) error {
	if err := app.rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	created, err := app.users.EnsureAdmin(ctx)
	if err != nil {
		return fmt.Errorf("admin seed: %w", err)
	}
	if created {
		app.logger.Info(ctx, "Admin user created", "identifier", app.config.AdminIdentifier)
	}
	return nil
}

// Run blocks until ctx is canceled or a shutdown signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close(ctx)

	app.logger.Info(ctx, "Starting app...", "sandbox", app.config.Sandbox)

	app.initSignalHandler(cancelFunc)

	if err := app.prepare(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}

	if err := app.rest.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}

func (app *App) close(ctx context.Context) {
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	if s, ok := app.logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}
