package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/adapters/reaper"
	httpx "github.com/target/mmk-bff/internal/http"
	"github.com/target/mmk-bff/internal/observability/metrics"
	"github.com/target/mmk-bff/internal/ports"
	"github.com/target/mmk-bff/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Sessions SessionBackend
	Tickets  *service.TicketStore
	Identity Identity
	Auth     *service.AuthService
	Cookies  *httpx.CookieAuthHandler
	// Logout revokes the caller's own session; Backchannel applies the IdP-initiated policy.
	Logout      *service.SessionRevocationService
	Backchannel *service.SessionRevocationService
	Retriever   *service.DefaultAccessTokenRetriever

	Observability ObservabilityContainer
}

// ObservabilityContainer groups the Prometheus registry and the collectors registered on it.
type ObservabilityContainer struct {
	Registry *prometheus.Registry
	Sessions *metrics.SessionMetrics
	Cleanup  *metrics.CleanupMetrics
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability creates the registry with runtime collectors and the gateway's own metrics.
func buildObservability() (ObservabilityContainer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessions, err := metrics.NewSessionMetrics(registry)
	if err != nil {
		return ObservabilityContainer{}, fmt.Errorf("register session metrics: %w", err)
	}
	cleanup, err := metrics.NewCleanupMetrics(registry)
	if err != nil {
		return ObservabilityContainer{}, fmt.Errorf("register cleanup metrics: %w", err)
	}
	return ObservabilityContainer{Registry: registry, Sessions: sessions, Cleanup: cleanup}, nil
}

// NewServices wires the session store, ticket store, identity provider and the services on top of them.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enc, err := CreateEncryptors(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	backend, err := BuildSessionBackend(SessionBackendDeps{
		Config:      cfg,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	tickets, err := service.NewTicketStore(service.TicketStoreOptions{
		Sessions: backend.Store,
		Codec:    service.NewTicketCodec(enc.Tickets, logger),
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create ticket store: %w", err)
	}

	identity, err := BuildIdentity(ctx, IdentityDeps{Config: cfg, Tickets: tickets, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}

	obs, err := buildObservability()
	if err != nil {
		return ServiceContainer{}, err
	}

	logout, err := newRevocationService(backend, tickets, identity, obs.Sessions,
		cfg.BFF.RevokeRefreshTokenOnLogout, false, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	backchannel, err := newRevocationService(backend, tickets, identity, obs.Sessions,
		cfg.BFF.RevokeRefreshTokenOnLogout, cfg.BFF.BackchannelLogoutAllUserSessions, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	postLogout := cfg.Auth.OAuth.PostLogoutRedirectURL
	if postLogout == "" {
		postLogout = cfg.HTTP.BaseURL + "/"
	}
	auth := service.NewAuthService(service.AuthServiceOptions{
		Provider:           identity.Provider,
		Revoker:            logout,
		Metrics:            obs.Sessions,
		Lifetime:           cfg.BFF.SessionLifetime,
		PostLogoutRedirect: postLogout,
	})

	cookies, err := httpx.NewCookieAuthHandler(httpx.CookieAuthOptions{
		Tickets:           tickets,
		Sealer:            enc.Cookies,
		Name:              cfg.BFF.SessionCookieName,
		Domain:            cfg.HTTP.CookieDomain,
		LoginPath:         cfg.BFF.ManagementBasePath + "/login",
		Lifetime:          cfg.BFF.SessionLifetime,
		SlidingExpiration: cfg.BFF.SlidingExpiration,
		Logger:            logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create cookie handler: %w", err)
	}

	logger.Info("services initialised",
		"session_backend", backend.Name,
		"auth_mode", cfg.Auth.Mode,
		"refresh_token_revocation", identity.Revoker != nil && cfg.BFF.RevokeRefreshTokenOnLogout,
		"backchannel_logout", identity.LogoutTokens != nil,
		"dpop", identity.DPoP != nil,
	)

	return ServiceContainer{
		Sessions:      backend,
		Tickets:       tickets,
		Identity:      identity,
		Auth:          auth,
		Cookies:       cookies,
		Logout:        logout,
		Backchannel:   backchannel,
		Retriever:     service.NewDefaultAccessTokenRetriever(identity.Tokens, logger),
		Observability: obs,
	}, nil
}

func newRevocationService(
	backend SessionBackend,
	tickets *service.TicketStore,
	identity Identity,
	sessionMetrics ports.SessionMetrics,
	revokeRefresh, revokeAll bool,
	logger *slog.Logger,
) (*service.SessionRevocationService, error) {
	opts := service.SessionRevocationOptions{
		Sessions:              backend.Store,
		Metrics:               sessionMetrics,
		Logger:                logger,
		RevokeAllUserSessions: revokeAll,
	}
	if revokeRefresh && identity.Revoker != nil {
		opts.Tickets = tickets
		opts.Revoker = identity.Revoker
		opts.RevokeRefreshToken = true
	}
	svc, err := service.NewSessionRevocationService(opts)
	if err != nil {
		return nil, fmt.Errorf("create session revocation: %w", err)
	}
	return svc, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:      deps.cfg.Config,
		Services:    deps.cfg.Services,
		DB:          deps.cfg.DB,
		RedisClient: deps.cfg.RedisClient,
		Logger:      deps.logger,
		Errors:      deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSessionCleanupBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSessionCleanup,
		name: "session cleanup",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var cleanupCfg config.SessionCleanupConfig
			if deps.cfg.Config != nil {
				cleanupCfg = deps.cfg.Config.SessionCleanup
			}
			obs := deps.cfg.Services.Observability
			runner := reaper.NewRunner(reaper.RunnerOptions{
				Cleaner:  deps.cfg.Services.Sessions.Cleaner,
				Config:   cleanupCfg,
				Logger:   deps.logger,
				Metrics:  obs.Cleanup,
				Sessions: obs.Sessions,
			})
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSessionCleanupBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// enabledServiceModes resolves SERVICES and folds in SESSION_CLEANUP_ENABLED.
func enabledServiceModes(cfg *config.AppConfig) (map[config.ServiceMode]bool, error) {
	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return nil, err
	}
	if cfg.SessionCleanup.Enabled {
		enabled[config.ServiceModeSessionCleanup] = true
	}
	return enabled, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := enabledServiceModes(cfg.Config)
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already cancelled; shutdown gets a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
