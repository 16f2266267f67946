package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/ports"
)

// RemoteAPIRoute is one proxied remote API.
type RemoteAPIRoute struct {
	LocalPath         string
	Target            *url.URL
	RequiredToken     bff.RequiredTokenType
	OptionalUserToken bool
	// Retriever replaces the default retrieval policy for this route.
	Retriever ports.AccessTokenRetriever
}

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth AuthServiceInterface // Required
	// Authentication is the cookie pipeline; the router wraps it in a ResponseTranslator.
	Authentication AuthenticationHandler // Required
	Sessions       ports.SessionRevoker
	LogoutTokens   ports.LogoutTokenValidator // Optional: enables back-channel logout

	RemoteAPIs       []RemoteAPIRoute
	DefaultRetriever ports.AccessTokenRetriever
	DPoP             ProofSigner
	Transport        http.RoundTripper

	BasePath           string // default /bff
	CookieDomain       string
	AntiForgeryName    string
	AntiForgeryValue   string
	DisableAntiForgery func(*http.Request) bool

	Metrics      http.Handler // Optional: Prometheus handler
	MetricsPath  string       // default /metrics
	HealthChecks map[string]HealthCheck
	Logger       *slog.Logger
}

// NewRouter builds the endpoint registry and wraps it with the gateway pipeline:
// Recover, Logging, Gateway, then routing.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Auth == nil || services.Authentication == nil {
		return nil, errors.New("auth service and authentication handler are required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimSuffix(services.BasePath, "/")
	if base == "" {
		base = "/bff"
	}

	auth := NewResponseTranslator(services.Authentication)
	reg := NewEndpointRegistry()

	bffHandlers := &BFFHandlers{
		Svc:          services.Auth,
		Auth:         auth,
		Sessions:     services.Sessions,
		LogoutTokens: services.LogoutTokens,
		BasePath:     base,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	registerBFFRoutes(reg, bffHandlers, base)

	for _, api := range services.RemoteAPIs {
		if err := registerRemoteAPI(reg, api, services, auth, logger); err != nil {
			return nil, err
		}
	}

	ops := bff.EndpointMetadata{Name: "ops", SkipAntiForgery: true}
	reg.HandleFunc("GET /healthz", ops, healthHandler)
	reg.HandleFunc("HEAD /healthz", ops, healthHandler)
	reg.HandleFunc("GET /readyz", ops, readyHandler(services.HealthChecks))
	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		reg.Handle("GET "+path, ops, services.Metrics)
	}

	return Chain(reg,
		Recover(logger),
		Logging(logger),
		Gateway(GatewayOptions{
			Endpoints:          reg,
			AntiForgeryName:    services.AntiForgeryName,
			AntiForgeryValue:   services.AntiForgeryValue,
			DisableAntiForgery: services.DisableAntiForgery,
			Logger:             logger,
		}),
	), nil
}

func registerBFFRoutes(reg *EndpointRegistry, h *BFFHandlers, base string) {
	mgmt := func(name string) bff.EndpointMetadata {
		return bff.EndpointMetadata{Name: name, Kind: bff.EndpointManagement}
	}
	reg.HandleFunc("GET "+base+"/login", mgmt("login"), h.Login)
	reg.HandleFunc("GET "+base+"/callback", mgmt("callback"), h.Callback)
	reg.HandleFunc("GET "+base+"/logout", mgmt("logout"), h.Logout)
	// The user endpoint is fetched by script, so it is protected like an API.
	reg.HandleFunc("GET "+base+"/user", bff.EndpointMetadata{Name: "user", Kind: bff.EndpointAPI}, h.User)
	if h.LogoutTokens != nil && h.Sessions != nil {
		// Called server-to-server by the IdP, which cannot send the anti-forgery header.
		reg.HandleFunc("POST "+base+"/backchannel",
			bff.EndpointMetadata{Name: "backchannel", SkipAntiForgery: true}, h.Backchannel)
	}
}

func registerRemoteAPI(reg *EndpointRegistry, api RemoteAPIRoute, services RouterServices, auth AuthenticationHandler, logger *slog.Logger) error {
	retriever := api.Retriever
	if retriever == nil {
		retriever = services.DefaultRetriever
	}
	if retriever == nil {
		return fmt.Errorf("remote API %s: no access token retriever", api.LocalPath)
	}
	md := bff.EndpointMetadata{
		Name:              "remote:" + api.LocalPath,
		Kind:              bff.EndpointAPI,
		RequiredToken:     api.RequiredToken,
		OptionalUserToken: api.OptionalUserToken,
	}
	proxy, err := NewRemoteAPIProxy(RemoteAPIOptions{
		LocalPath:       api.LocalPath,
		Target:          api.Target,
		Metadata:        md,
		Retriever:       retriever,
		Auth:            auth,
		DPoP:            services.DPoP,
		AntiForgeryName: services.AntiForgeryName,
		Transport:       services.Transport,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("remote API %s: %w", api.LocalPath, err)
	}
	local := strings.TrimSuffix(api.LocalPath, "/")
	reg.Handle(local, md, proxy)
	reg.Handle(local+"/", md, proxy)
	return nil
}
