// Package app assembles the services from configuration. The server, the
// worker and the admin CLI all build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"client-delivery-backend/internal/cache"
	"client-delivery-backend/internal/config"
	"client-delivery-backend/internal/credentials"
	"client-delivery-backend/internal/database"
	"client-delivery-backend/internal/frameio"
	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/notify"
	"client-delivery-backend/internal/payments"
	"client-delivery-backend/internal/repository"
	"client-delivery-backend/internal/repository/memstore"
	"client-delivery-backend/internal/services"
	"client-delivery-backend/internal/supabase"
	"client-delivery-backend/internal/supervisor"
	"client-delivery-backend/internal/trello"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

// ServiceFrameio names the stored Frame.io credential.
const ServiceFrameio = "frameio"

const thumbnailCacheEntries = 512

type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store repository.Store
	DB    *sql.DB
	Cache cache.Cache

	Frameio    *credentials.Provider
	Media      *frameio.Client
	Kanban     *trello.Client
	Sender     notify.Sender
	Queue      notify.Queue
	Dispatcher *notify.Dispatcher

	Machine    *services.Machine
	Reconciler *services.ReconcileService
	Projects   *services.ProjectService
	Bridge     *services.WorkflowBridge
	Ingest     *services.IngestService
	Supervisor *supervisor.Supervisor

	closers []func() error
}

// NewLogger returns the JSON logger used by every binary.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// New connects the configured backends and builds every service. Close
// releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Frameio = credentials.NewProvider(ServiceFrameio, a.Store, frameio.NewOAuthConfig(frameio.OAuthSettings{
		ClientID:     cfg.Frameio.ClientID,
		ClientSecret: cfg.Frameio.ClientSecret,
		RedirectURL:  cfg.Frameio.RedirectURL,
		AuthURL:      cfg.Frameio.AuthURL,
		TokenURL:     cfg.Frameio.TokenURL,
		Scopes:       cfg.Frameio.Scopes,
	}), logger)
	a.Media = frameio.NewClient(cfg.Frameio.APIBaseURL, cfg.Frameio.AccountID, cfg.Frameio.ProjectID, a.Frameio, cfg.HTTPTimeout)
	a.Kanban = trello.NewClient(cfg.Trello.APIBaseURL, cfg.Trello.APIKey, cfg.Trello.Token, cfg.HTTPTimeout)

	if err := a.buildNotify(); err != nil {
		a.Close()
		return nil, err
	}

	a.Machine = services.NewMachine(a.Store, logger)
	a.Bridge = services.NewWorkflowBridge(a.Store, a.Kanban, services.BoardConfig{
		BoardID:        cfg.Trello.BoardID,
		IntakeListID:   cfg.Trello.IntakeListID,
		RevisionListID: cfg.Trello.RevisionListID,
		ReviewListID:   cfg.Trello.ReviewListID,
		DoneListID:     cfg.Trello.DoneListID,
		FrontendURL:    cfg.FrontendURL,
	}, logger)
	a.Machine.Observe(a.Bridge)
	a.Machine.Observe(a.Dispatcher)

	a.Reconciler = services.NewReconcileService(a.Store, a.Media, a.Machine, a.Cache,
		cfg.Frameio.RootFolderID, cfg.Frameio.ShareComments, logger)

	prices := make(map[models.Tier]string)
	for _, tier := range models.Tiers() {
		if id := cfg.StripePrice(string(tier)); id != "" {
			prices[tier] = id
		}
	}
	a.Projects = services.NewProjectService(a.Store, a.Machine, a.Reconciler,
		payments.NewStripeGateway(cfg.Stripe.SecretKey, nil),
		services.ProjectOptions{
			AccessWindow:       cfg.AccessWindow,
			RevisionPriceCents: cfg.Stripe.RevisionPriceCents,
			RevisionCurrency:   cfg.Stripe.RevisionCurrency,
			FrontendURL:        cfg.FrontendURL,
			SubscriptionPrices: prices,
			ShareComments:      cfg.Frameio.ShareComments,
		}, logger)
	a.Projects.SetRevisionNotes(a.Bridge)
	a.Ingest = services.NewIngestService(a.Store, a.Projects, a.Reconciler, a.Media, logger)
	a.Supervisor = supervisor.New(a.Frameio, a.Dispatcher, cfg.Supervisor.Interval, cfg.Supervisor.InitialDelay, logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreBackend {
	case "memory":
		a.Logger.Warn("using in-memory store, data is lost on restart")
		a.Store = memstore.New()
		return nil
	case "postgres":
		db, err := supabase.NewDatabaseClient(ctx, a.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize database client: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Store = db
		a.DB = db.DB()
		return nil
	}
	return fmt.Errorf("unknown store backend %q", a.Config.StoreBackend)
}

func (a *App) openCache(ctx context.Context) error {
	if a.Config.CacheBackend != "redis" {
		a.Cache = cache.NewMemoryCache(thumbnailCacheEntries)
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.Cache = cache.NewRedisCache(client, "delivery:")
	return nil
}

func (a *App) buildNotify() error {
	cfg := a.Config
	if cfg.Email.ResendAPIKey != "" {
		a.Sender = notify.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
	} else {
		a.Logger.Warn("RESEND_API_KEY not set, emails are only logged")
		a.Sender = notify.NewLogSender(a.Logger)
	}

	if cfg.Redis.Addr != "" {
		client := asynq.NewClient(a.RedisOpt())
		a.closers = append(a.closers, client.Close)
		a.Queue = notify.NewAsynqQueue(client)
	} else {
		a.Queue = notify.NewDirectQueue(a.Sender)
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load email templates: %w", err)
	}

	var directory notify.EmailLookup
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceRoleKey != "" {
		dir, err := supabase.NewUserDirectory(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
		if err != nil {
			return err
		}
		directory = dir
	}
	a.Dispatcher = notify.NewDispatcher(a.Queue, renderer, directory, cfg.AdminEmail, cfg.FrontendURL, a.Logger)
	return nil
}

// RedisOpt is the asynq connection shared by the server and the worker.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// Migrate applies pending schema migrations. It is a no-op on the memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return database.NewMigrator(a.DB, a.Logger).Run(ctx)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
