package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/mmk-bff/internal/domain/bff"
)

const (
	// DefaultAntiForgeryHeaderName is the static header script callers must send to API endpoints.
	DefaultAntiForgeryHeaderName = "X-CSRF"
	// DefaultAntiForgeryHeaderValue is the expected value of the anti-forgery header.
	DefaultAntiForgeryHeaderValue = "1"
)

// GatewayOptions configures the Gateway middleware.
type GatewayOptions struct {
	Endpoints        EndpointResolver
	AntiForgeryName  string
	AntiForgeryValue string
	// DisableAntiForgery, when it matches a request, skips the anti-forgery check entirely.
	DisableAntiForgery func(*http.Request) bool
	Logger             *slog.Logger
}

// Gateway returns the request gateway middleware.
//
// It marks the request as gated and attaches the matched endpoint's metadata to the context.
// Protected API endpoints require the anti-forgery header unless they opt out; a missing header
// is answered with 401. Script-driven calls to management endpoints are logged but not blocked,
// since those endpoints are meant for full-page navigation.
func Gateway(opts GatewayOptions) func(http.Handler) http.Handler {
	name := opts.AntiForgeryName
	if name == "" {
		name = DefaultAntiForgeryHeaderName
	}
	value := opts.AntiForgeryValue
	if value == "" {
		value = DefaultAntiForgeryHeaderValue
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := markGateway(r.Context())
			var (
				md       bff.EndpointMetadata
				resolved bool
			)
			if opts.Endpoints != nil {
				md, resolved = opts.Endpoints.Resolve(r)
				if resolved {
					ctx = WithEndpoint(ctx, md)
				}
			}
			r = r.WithContext(ctx)

			if opts.DisableAntiForgery != nil && opts.DisableAntiForgery(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !resolved {
				next.ServeHTTP(w, r)
				return
			}

			switch {
			case md.IsAPI() && !md.SkipAntiForgery:
				if r.Header.Get(name) != value {
					logger.DebugContext(ctx, "anti-forgery header missing",
						"endpoint", md.Name, "path", r.URL.Path, "header", name)
					WriteError(w, ErrorParams{
						Code:    http.StatusUnauthorized,
						ErrCode: "antiforgery_required",
						Err:     errors.New("anti-forgery header is required"),
					})
					return
				}
			case md.IsManagement() && isScriptRequest(r, name):
				logger.WarnContext(ctx, "management endpoint called from script; it expects full-page navigation",
					"endpoint", md.Name, "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isScriptRequest reports whether r looks like an Ajax/fetch call rather than a navigation.
func isScriptRequest(r *http.Request, antiForgeryName string) bool {
	if r.Header.Get(antiForgeryName) != "" {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	switch strings.ToLower(r.Header.Get("Sec-Fetch-Mode")) {
	case "cors", "same-origin", "no-cors":
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
