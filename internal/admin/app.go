// Package admin implements the out-of-band provisioning CLI: schema
// migration, user creation, credential registration and access grants.
package admin

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/cryptox"
	"github.com/dmitrijs2005/chatgate/internal/flagx"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chatgate/internal/server/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrUnknownCommand = errors.New("unknown command")

const usage = `usage: chatgate-cli <command> [flags]

commands:
  migrate                               apply database migrations
  add-user -email E [-identifier I]     create a user (password is prompted)
  add-key [-owner USER_ID]              register an upstream credential (secret is prompted)
  set-live -id N -live=true|false       enable or disable a credential
  grant -user USER_ID -days N           grant or extend premium access
`

type App struct {
	config *config.Config
	db     *sql.DB
	rm     repomanager.RepositoryManager
	users  *services.UserService
	pool   *services.CredentialPool
	grants *services.GrantService
	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time
}

func NewApp(c *config.Config) (*App, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app, err := newApp(c, db, rm, bufio.NewReader(os.Stdin), os.Stdout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, db *sql.DB, rm repomanager.RepositoryManager, in *bufio.Reader, out io.Writer) (*App, error) {
	sealer, err := cryptox.NewSealerFromSecret(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("sealer init error: %w", err)
	}
	pool := services.NewCredentialPool(db, rm, sealer, logging.NewTextSlogLogger(c.LogLevel), c)
	return &App{
		config: c,
		db:     db,
		rm:     rm,
		users:  services.NewUserService(db, rm, c),
		pool:   pool,
		grants: services.NewGrantService(db, rm, pool, c),
		reader: in,
		out:    out,
		now:    time.Now,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Run executes one command. args starts with the command name.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUnknownCommand
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return a.Migrate(ctx)
	case "add-user":
		return a.AddUser(ctx, rest)
	case "add-key":
		return a.AddKey(ctx, rest)
	case "set-live":
		return a.SetLive(ctx, rest)
	case "grant":
		return a.Grant(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// parse runs fs over the subset of args it owns, so global config flags
// mixed into the command line are ignored here.
func parse(fs *flag.FlagSet, args []string, valueFlags []string, boolFlags ...string) error {
	fs.SetOutput(io.Discard)
	return fs.Parse(flagx.FilterArgs(args, valueFlags, boolFlags...))
}

func (a *App) Migrate(ctx context.Context) error {
	if err := a.rm.RunMigrations(ctx, a.db); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func (a *App) AddUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	identifier := fs.String("identifier", "", "user identifier (generated when empty)")
	if err := parse(fs, args, []string{"-email", "-identifier"}); err != nil {
		return err
	}

	if *email == "" {
		v, err := GetSimpleText(a.reader, "Email", a.out)
		if err != nil {
			return err
		}
		*email = v
	}

	password, err := GetHidden("Password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.users.CreateUser(ctx, *email, string(password), *identifier)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created user %s (%s)\n", u.ID, u.Email)
	return nil
}

func (a *App) AddKey(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-key", flag.ContinueOnError)
	owner := fs.String("owner", "", "owning user identifier (shared when empty)")
	if err := parse(fs, args, []string{"-owner"}); err != nil {
		return err
	}

	secret, err := GetHidden("API key", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	var ownerID *string
	if *owner != "" {
		ownerID = owner
	}

	cred, err := a.pool.AddCredential(ctx, ownerID, string(secret))
	if err != nil {
		return err
	}
	if ownerID == nil {
		fmt.Fprintf(a.out, "added shared credential %d\n", cred.ID)
	} else {
		fmt.Fprintf(a.out, "added credential %d for %s\n", cred.ID, *ownerID)
	}
	return nil
}

func (a *App) SetLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-live", flag.ContinueOnError)
	id := fs.Int64("id", 0, "credential id")
	live := fs.Bool("live", true, "whether the credential may be used")
	if err := parse(fs, args, []string{"-id"}, "-live"); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("set-live: -id is required")
	}

	if err := a.pool.SetLive(ctx, *id, *live); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "credential %d live=%t\n", *id, *live)
	return nil
}

func (a *App) Grant(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ContinueOnError)
	user := fs.String("user", "", "user identifier")
	days := fs.Int("days", 0, "number of days")
	if err := parse(fs, args, []string{"-user", "-days"}); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("grant: -user is required")
	}

	g, err := a.grants.Grant(ctx, *user, *days, a.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user %s has access from %s until %s\n", *user,
		g.BeganAt.UTC().Format(time.RFC3339), g.EndAt.UTC().Format(time.RFC3339))
	return nil
}
