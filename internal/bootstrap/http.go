package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-bff/config"
	httpx "github.com/target/mmk-bff/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// Errors receives listener failures. Optional.
	Errors chan<- error
}

// StartHTTPServer builds the gateway router and starts serving in the background.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := BuildRouter(RouterDeps{
		Config:      appCfg,
		Services:    cfg.Services,
		DB:          cfg.DB,
		RedisClient: cfg.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	return startServer(logger, handler, appCfg.HTTP.Addr, cfg.Errors), nil
}

// RouterDeps groups what BuildRouter needs.
type RouterDeps struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildRouter maps configuration and services onto httpx.RouterServices.
func BuildRouter(deps RouterDeps) (http.Handler, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := deps.Services
	if svc.Auth == nil || svc.Cookies == nil {
		return nil, errors.New("auth service and cookie handler are required")
	}

	services := httpx.RouterServices{
		Auth:             svc.Auth,
		Authentication:   svc.Cookies,
		RemoteAPIs:       remoteAPIRoutes(cfg.HTTP.RemoteAPIs),
		BasePath:         cfg.BFF.ManagementBasePath,
		CookieDomain:     cfg.HTTP.CookieDomain,
		AntiForgeryName:  cfg.BFF.AntiForgeryHeaderName,
		AntiForgeryValue: cfg.BFF.AntiForgeryHeaderValue,
		HealthChecks:     healthChecks(deps.DB, deps.RedisClient),
		Logger:           logger,
	}
	// Interface fields stay nil rather than holding typed nil pointers.
	if svc.Backchannel != nil {
		services.Sessions = svc.Backchannel
	}
	if svc.Retriever != nil {
		services.DefaultRetriever = svc.Retriever
	}
	if svc.Identity.LogoutTokens != nil {
		services.LogoutTokens = svc.Identity.LogoutTokens
	}
	if svc.Identity.DPoP != nil {
		services.DPoP = svc.Identity.DPoP
	}
	if cfg.BFF.DisableAntiForgeryCheck {
		logger.Warn("anti-forgery header check disabled")
		services.DisableAntiForgery = func(*http.Request) bool { return true }
	}
	if cfg.Observability.Prometheus.Enabled && svc.Observability.Registry != nil {
		services.Metrics = promhttp.HandlerFor(svc.Observability.Registry, promhttp.HandlerOpts{})
		services.MetricsPath = cfg.Observability.Prometheus.Path
	}

	return httpx.NewRouter(services)
}

func remoteAPIRoutes(apis config.RemoteAPIs) []httpx.RemoteAPIRoute {
	routes := make([]httpx.RemoteAPIRoute, 0, len(apis))
	for _, api := range apis {
		routes = append(routes, httpx.RemoteAPIRoute{
			LocalPath:         api.LocalPath,
			Target:            api.Target,
			RequiredToken:     api.RequiredToken,
			OptionalUserToken: api.OptionalUserToken,
		})
	}
	return routes
}

func healthChecks(db *sql.DB, client redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := make(map[string]httpx.HealthCheck, 2)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}

func startServer(logger *slog.Logger, handler http.Handler, addr string, errCh chan<- error) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				select {
				case errCh <- fmt.Errorf("http server: %w", err):
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
