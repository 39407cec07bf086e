package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
	apphttp "gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/http"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/logger"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/memcache"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/middleware"
	appnats "gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/nats"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/restapi"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/application"
	"gitlab.com/shutterbug/web/shutterbug-core/internal/domain"
)

// AdminAuthMiddleware guards the admin routes. A distinct type lets Wire tell it apart.
type AdminAuthMiddleware func(http.Handler) http.Handler

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App holds the long-lived components started by Run.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server
	handlers       *apphttp.Handlers
	adminAuth      AdminAuthMiddleware
	cache          *memcache.Store
	comments       *application.CommentService
	invalidation   *application.InvalidationService
	subscriber     *appnats.InvalidationSubscriber // nil when NATS is disabled
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	handlers *apphttp.Handlers,
	adminAuth AdminAuthMiddleware,
	cache *memcache.Store,
	comments *application.CommentService,
	invalidation *application.InvalidationService,
	subscriber *appnats.InvalidationSubscriber,
) (*App, func(), error) {
	app := &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServeMux:   mux,
		httpServer:     server,
		handlers:       handlers,
		adminAuth:      adminAuth,
		cache:          cache,
		comments:       comments,
		invalidation:   invalidation,
		subscriber:     subscriber,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		app.comments.StopIdleThreadReaper()
		if app.subscriber != nil {
			if err := app.subscriber.Stop(); err != nil {
				app.logger.Warn(context.Background(), "Failed to stop invalidation subscriber", "error", err.Error())
			}
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
// appCtx bounds the lifetime of the hot-reload goroutines.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
// Every request gets a request id and, if the auth provider sent one, a viewer.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux, appLogger domain.Logger) *http.Server {
	appCfg := cfgProvider.Get()
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      middleware.RequestIDMiddleware(middleware.ViewerMiddleware(appLogger)(mux)),
		ReadTimeout:  config.TTL(appCfg.Server.ReadTimeoutSeconds, 10*time.Second),
		WriteTimeout: config.TTL(appCfg.Server.WriteTimeoutSeconds, 10*time.Second),
		IdleTimeout:  config.TTL(appCfg.Server.IdleTimeoutSeconds, 60*time.Second),
	}
}

// AdminAuthMiddlewareProvider provides the API key middleware for admin routes.
func AdminAuthMiddlewareProvider(cfgProvider config.Provider, logger domain.Logger) AdminAuthMiddleware {
	return middleware.APIKeyAuthMiddleware(cfgProvider, logger)
}

// InteractionCacheProvider provides the process-wide interaction cache.
func InteractionCacheProvider(cfgProvider config.Provider, logger domain.Logger) *memcache.Store {
	ttl := config.TTL(cfgProvider.Get().Cache.DefaultTTLSeconds, memcache.DefaultTTL)
	return memcache.New(logger, memcache.WithDefaultTTL(ttl))
}

// RESTClientProvider provides the REST API client used by the comment and profile services.
func RESTClientProvider(cfgProvider config.Provider, logger domain.Logger) *restapi.Client {
	return restapi.NewClient(cfgProvider, logger)
}

// InvalidationSubscriberProvider connects to NATS when it is enabled and
// returns nil otherwise.
func InvalidationSubscriberProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*appnats.InvalidationSubscriber, func(), error) {
	if !cfgProvider.Get().NATS.Enabled {
		appLogger.Info(ctx, "NATS is disabled; cache invalidation events will not be received")
		return nil, func() {}, nil
	}
	return appnats.NewInvalidationSubscriber(ctx, cfgProvider, appLogger)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,
	AdminAuthMiddlewareProvider,

	// Infrastructure Adapters
	InteractionCacheProvider,
	wire.Bind(new(domain.InteractionCache), new(*memcache.Store)),
	RESTClientProvider,
	wire.Bind(new(domain.CommentAPI), new(*restapi.Client)),
	wire.Bind(new(domain.ProfileAPI), new(*restapi.Client)),
	InvalidationSubscriberProvider,

	// Application Services
	application.NewCommentService,
	application.NewProfileService,
	application.NewInvalidationService,

	// HTTP Handlers
	apphttp.NewHandlers,

	NewApp,
)
