package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/coursework/calendar/auth"
	"github.com/coursework/calendar/config"
	"github.com/coursework/calendar/handlers"
	"github.com/coursework/calendar/middleware"
	"github.com/coursework/calendar/repositories"
	"github.com/coursework/calendar/repositories/cache"
	"github.com/coursework/calendar/repositories/postgres"
	"github.com/coursework/calendar/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	// Infrastructure
	Config      *config.Config
	Logger      *zap.Logger
	DB          *postgres.DB
	RepoFactory *postgres.RepositoryFactory
	Redis       *redis.Client // nil when REDIS_URL is unset

	// Repositories
	Users     repositories.UserRepository
	Directory repositories.PrincipalDirectory
	TxManager repositories.TransactionManager

	// Token machinery
	Codec   *auth.Codec
	Issuer  *auth.Issuer
	Cookies *auth.CookieManager

	// Services and handlers
	AuthService   *services.AuthService
	AuthHandler   *handlers.AuthHandler
	HealthHandler *handlers.HealthHandler

	// Authenticator is the single request authenticator selected by the
	// configured auth mode.
	Authenticator middleware.RequestAuthenticator
}

// NewDependencies opens the database and wires every component
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires every component around an existing
// repository factory. Tests pass a factory built on sqlmock.
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Database.AutoMigrate {
		if err := factory.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	deps.initRepositories()

	if err := deps.initCache(cfg); err != nil {
		return nil, err
	}

	deps.initAuth(cfg)
	deps.initHandlers()

	logger.Info("dependencies initialized",
		zap.String("auth_mode", string(cfg.Auth.EffectiveMode())),
		zap.Bool("principal_cache", deps.Redis != nil))

	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Directory = repos.Users
	d.TxManager = d.RepoFactory.GetTransactionManager()
}

// initCache puts the Redis read-through cache in front of the directory
// when a Redis URL is configured
func (d *Dependencies) initCache(cfg *config.Config) error {
	if !cfg.Redis.Enabled() {
		return nil
	}

	client, err := cache.NewClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize principal cache: %w", err)
	}

	d.Redis = client
	d.Directory = cache.NewCachedDirectory(client, d.Users, cfg.Redis.CacheTTL, d.Logger)
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	d.Codec = auth.NewCodec(auth.DeriveKey(cfg.Auth.Secret))
	d.Issuer = auth.NewIssuer(d.Codec, cfg.Auth.AccessTokenTTL.Duration(), cfg.Auth.RefreshTokenTTL.Duration())
	d.Cookies = auth.NewCookieManager(d.Issuer.RefreshTTL(), cfg.Auth.Cookie.Secure, cfg.Auth.Cookie.SameSiteMode())

	d.AuthService = services.NewAuthService(
		d.Users,
		d.Directory,
		d.TxManager,
		d.Codec,
		d.Issuer,
		auth.NewBcryptHasher(0),
		services.AuthServiceConfig{
			DevBypass:  cfg.Auth.DevBypass(),
			DevSubject: cfg.Auth.DevDefaultSubject,
		},
		d.Logger,
	)

	if cfg.Auth.DevBypass() {
		d.Logger.Warn("dev bypass authentication enabled",
			zap.String("subject", cfg.Auth.DevDefaultSubject))
		d.Authenticator = middleware.NewDevBypassMiddleware(d.Directory, cfg.Auth.DevDefaultSubject, d.Logger)
		return
	}
	d.Authenticator = middleware.NewAuthMiddleware(d.Codec, d.Logger)
}

func (d *Dependencies) initHandlers() {
	d.AuthHandler = handlers.NewAuthHandler(d.AuthService, d.Cookies, d.Logger)

	d.HealthHandler = handlers.NewHealthHandler(d.Logger).
		AddCheck("database", d.DB.HealthCheck)
	if cached, ok := d.Directory.(*cache.CachedDirectory); ok {
		d.HealthHandler.AddCheck("cache", cached.Health)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}
