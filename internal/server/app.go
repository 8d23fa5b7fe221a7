// Package server wires the Hoot server together: database, object store,
// services and the HTTP API, plus the background subscription sync.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/hoot/internal/logging"
	"github.com/dmitrijs2005/hoot/internal/server/config"
	"github.com/dmitrijs2005/hoot/internal/server/mail"
	"github.com/dmitrijs2005/hoot/internal/server/objectstore"
	"github.com/dmitrijs2005/hoot/internal/server/patreon"
	"github.com/dmitrijs2005/hoot/internal/server/reconcile"
	"github.com/dmitrijs2005/hoot/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hoot/internal/server/rest"
	"github.com/dmitrijs2005/hoot/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	repos   repomanager.RepositoryManager
	store   objectstore.Gateway
	patreon *patreon.Client

	users         *services.UserService
	tracks        *services.TrackService
	subscriptions *services.SubscriptionService
}

// NewApp opens the database and object store and builds the services.
// Logs go to logOut.
func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.New(cfg.Environment, logOut)

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	store, err := objectstore.New(ctx, objectstore.Config{
		Driver:    cfg.S3Driver,
		AccessKey: cfg.S3RootUser,
		SecretKey: cfg.S3RootPassword,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3BaseEndpoint,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	provider := patreon.NewClient(cfg.PatreonClientID, cfg.PatreonClientSecret, cfg.PatreonRedirectURL)
	mailer := mail.NewSMTPSender(mail.Config{
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		Server:   cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Name:     cfg.SMTPName,
	})

	catalog := services.NewCatalogService(db, repos, store)
	sources := services.NewSourceResolver(store, catalog, cfg.SourceURLTTL, logger.With("module", "sources"))

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		repos:         repos,
		store:         store,
		patreon:       provider,
		users:         services.NewUserService(db, repos, cfg, mailer, provider, logger.With("module", "users")),
		tracks:        services.NewTrackService(catalog, sources, store, cfg, logger.With("module", "tracks")),
		subscriptions: services.NewSubscriptionService(db, repos, cfg, provider, logger.With("module", "subscriptions")),
	}, nil
}

// Close releases the database.
func (app *App) Close() error {
	return app.db.Close()
}

// Migrate applies pending schema migrations.
func (app *App) Migrate(ctx context.Context) error {
	return app.repos.RunMigrations(ctx, app.db)
}

// Reconcile reports, and with remove deletes, stored objects older than
// minAge that no track refers to.
func (app *App) Reconcile(ctx context.Context, minAge time.Duration, remove bool) (*reconcile.Report, error) {
	r := reconcile.New(app.repos.Tracks(app.db), app.store, minAge, app.logger)
	return r.Run(ctx, remove)
}

// SetPassword replaces a user's password without the old one.
func (app *App) SetPassword(ctx context.Context, email, password string) error {
	return app.users.SetPassword(ctx, email, password)
}

// SyncSubscriptions runs a single subscription sync pass.
func (app *App) SyncSubscriptions(ctx context.Context) (int, error) {
	return app.subscriptions.SyncDue(ctx)
}

// PatreonAuthURL is where a user is sent to grant account access.
func (app *App) PatreonAuthURL(state string) string {
	return app.patreon.AuthURL(state)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := rest.NewHandler(app.tracks, app.users, app.subscriptions, app.logger, app.config.IsProduction(), app.config.MaxUploadSize)
	s := rest.NewServer(app.config.EndpointAddrHTTP, h.Routes(), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run migrates the schema, then serves the API and runs the subscription
// sync until a termination signal arrives or ctx is done.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.Migrate(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.subscriptions.Run(ctx)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
	return nil
}
