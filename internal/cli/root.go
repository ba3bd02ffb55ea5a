// Package cli implements the proploc command tree. Every command maps onto
// a route in the guard table and is gated by it before running.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/proploc14/proploc/internal/apiclient"
	"github.com/proploc14/proploc/internal/config"
	"github.com/proploc14/proploc/internal/credstore"
	"github.com/proploc14/proploc/internal/localdata"
	"github.com/proploc14/proploc/internal/routes"
	"github.com/proploc14/proploc/internal/session"
)

// App holds the wired application components shared by all commands.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   credstore.Store
	client  *apiclient.Client
	session *session.Manager
	local   *localdata.Store

	// returnTo remembers the destination that triggered a login redirect.
	returnTo string
}

// NewApp wires the application components. The session is not initialized
// until InitSession runs.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	credsPath := cfg.CredentialsPath
	if credsPath == "" {
		var err error
		credsPath, err = credstore.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	store := credstore.NewFileStore(credsPath)
	client := apiclient.New(cfg.APIBaseURL, store,
		apiclient.WithLogger(logger),
		apiclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second}),
	)
	mgr := session.NewManager(client, store, session.Options{
		AllowAdminBypass: cfg.AllowAdminBypass,
		Logger:           logger,
	})

	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		client:  client,
		session: mgr,
	}, nil
}

// InitSession reconciles the stored credentials with in-memory state.
func (a *App) InitSession(ctx context.Context) {
	a.session.Initialize(ctx)
}

// Session exposes the session manager, mainly for tests.
func (a *App) Session() *session.Manager {
	return a.session
}

// ReturnTo reports the destination remembered from the last login redirect,
// or "" when none is pending.
func (a *App) ReturnTo() string {
	return a.returnTo
}

// Guard checks whether the current session may access the view at path.
// A login redirect remembers path so a subsequent login can return there.
func (a *App) Guard(path string) error {
	snap := a.session.Snapshot()
	decision := routes.Decide(routes.Session{
		Loading:       snap.Loading,
		Authenticated: snap.Authenticated,
		Admin:         snap.IsAdmin(),
		Owner:         snap.IsPropertyOwner(),
	}, path)

	switch decision.Kind {
	case routes.Allow:
		return nil
	case routes.Suspend:
		return fmt.Errorf("session is still initializing")
	default:
		if decision.To == routes.LoginPath {
			a.returnTo = decision.From
			return fmt.Errorf("not signed in: run `proploc login` first (you will be returned to %s)", decision.From)
		}
		return fmt.Errorf("you do not have permission to view %s", path)
	}
}

// localStore lazily opens the local data store.
func (a *App) localStore() (*localdata.Store, error) {
	if a.local != nil {
		return a.local, nil
	}
	path := a.cfg.DataPath
	if path == "" {
		var err error
		path, err = localdata.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	local, err := localdata.Open(path, a.logger)
	if err != nil {
		return nil, err
	}
	a.local = local
	return local, nil
}

// NewRootCmd builds the proploc command tree.
func NewRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "proploc",
		Short:         "Browse and manage property listings",
		Long:          "proploc is a command-line client for the property-locator API:\nbrowse and filter listings, keep favourites, submit inquiries, and\nmanage users, properties and amenities as an administrator.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var app *App
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = NewApp(cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing application: %w", err)
		}
		app.InitSession(cmd.Context())
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app != nil && app.local != nil {
			return app.local.Close()
		}
		return nil
	}

	appRef := func() *App { return app }
	root.AddCommand(
		newLoginCmd(appRef),
		newLogoutCmd(appRef),
		newRegisterCmd(appRef),
		newWhoamiCmd(appRef),
		newPropertiesCmd(appRef),
		newFavouritesCmd(appRef),
		newContactCmd(appRef),
		newQueriesCmd(appRef),
		newAmenitiesCmd(appRef),
		newUsersCmd(appRef),
	)
	return root
}
