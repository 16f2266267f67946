package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/mmk-bff/internal/data/cryptoutil"
	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
)

// AuthenticationHandler is the cookie authentication pipeline seen by handlers.
type AuthenticationHandler interface {
	// Authenticate resolves the request's principal. A nil principal with a nil error means anonymous.
	Authenticate(r *http.Request) (*bff.Principal, error)
	// Challenge asks an anonymous caller to sign in.
	Challenge(w http.ResponseWriter, r *http.Request)
	// Forbid tells a signed-in caller it may not access the resource.
	Forbid(w http.ResponseWriter, r *http.Request)
	SignIn(w http.ResponseWriter, r *http.Request, ticket session.Ticket) error
	SignOut(w http.ResponseWriter, r *http.Request) error
}

// Default cookie authentication settings.
const (
	DefaultSessionCookieName = "__Host-bff"
	DefaultSessionLifetime   = 8 * time.Hour
	returnURLParam           = "returnUrl"
)

// CookieAuthOptions configures CookieAuthHandler.
type CookieAuthOptions struct {
	Tickets ports.TicketStore     // Required
	Sealer  cryptoutil.Encryptor  // Required: seals the session key into the cookie value
	Name    string                // default __Host-bff
	Domain  string                // ignored for __Host- cookies
	// LoginPath receives challenges; AccessDeniedPath receives forbids.
	LoginPath        string
	AccessDeniedPath string
	// Lifetime is used for sliding renewal. Zero means DefaultSessionLifetime.
	Lifetime          time.Duration
	SlidingExpiration bool
	Logger            *slog.Logger
	Now               func() time.Time
}

// CookieAuthHandler keeps only a sealed session key in the browser; the ticket lives in the TicketStore.
type CookieAuthHandler struct {
	tickets          ports.TicketStore
	sealer           cryptoutil.Encryptor
	name             string
	domain           string
	loginPath        string
	accessDeniedPath string
	lifetime         time.Duration
	sliding          bool
	logger           *slog.Logger
	now              func() time.Time
}

var _ AuthenticationHandler = (*CookieAuthHandler)(nil)

// NewCookieAuthHandler constructs a CookieAuthHandler.
func NewCookieAuthHandler(opts CookieAuthOptions) (*CookieAuthHandler, error) {
	if opts.Tickets == nil {
		return nil, errors.New("ticket store is required")
	}
	if opts.Sealer == nil {
		return nil, errors.New("cookie sealer is required")
	}
	h := &CookieAuthHandler{
		tickets:          opts.Tickets,
		sealer:           opts.Sealer,
		name:             opts.Name,
		domain:           opts.Domain,
		loginPath:        opts.LoginPath,
		accessDeniedPath: opts.AccessDeniedPath,
		lifetime:         opts.Lifetime,
		sliding:          opts.SlidingExpiration,
		logger:           opts.Logger,
		now:              opts.Now,
	}
	if h.name == "" {
		h.name = DefaultSessionCookieName
	}
	if strings.HasPrefix(h.name, "__Host-") {
		h.domain = ""
	}
	if h.loginPath == "" {
		h.loginPath = "/bff/login"
	}
	if h.accessDeniedPath == "" {
		h.accessDeniedPath = "/"
	}
	if h.lifetime <= 0 {
		h.lifetime = DefaultSessionLifetime
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "cookie_auth")
	if h.now == nil {
		h.now = time.Now
	}
	return h, nil
}

// Authenticate opens the session cookie and loads its ticket. Expired tickets are removed.
// With sliding expiration, a ticket past half its lifetime is renewed in the store.
func (h *CookieAuthHandler) Authenticate(r *http.Request) (*bff.Principal, error) {
	ctx := r.Context()
	key, ok := h.sessionKey(r)
	if !ok {
		return nil, nil
	}
	ticket, err := h.tickets.Retrieve(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("retrieve ticket: %w", err)
	}
	if ticket == nil {
		return nil, nil
	}

	now := h.now()
	if exp, ok := ticket.ExpiresAt(); ok && !now.Before(exp) {
		h.logger.DebugContext(ctx, "session ticket expired", "subject_id", ticket.SubjectID())
		if err := h.tickets.Remove(ctx, key); err != nil {
			h.logger.WarnContext(ctx, "failed to remove expired session", "error", err)
		}
		return nil, nil
	}

	if h.sliding && h.shouldRenew(*ticket, now) {
		renewed := ticket.Clone()
		renewed.SetIssuedAt(now)
		renewed.SetExpiresAt(now.Add(h.lifetime))
		if err := h.tickets.Renew(ctx, key, renewed); err != nil {
			h.logger.WarnContext(ctx, "sliding session renewal failed", "error", err)
		} else {
			ticket = &renewed
		}
	}
	return &bff.Principal{Key: key, Ticket: *ticket}, nil
}

// shouldRenew reports whether more than half of the ticket's lifetime has elapsed.
func (h *CookieAuthHandler) shouldRenew(t session.Ticket, now time.Time) bool {
	issued, okIssued := t.IssuedAt()
	exp, okExp := t.ExpiresAt()
	if !okIssued || !okExp {
		return false
	}
	return now.Sub(issued) > exp.Sub(now)
}

// Challenge redirects to the login endpoint, returning the caller to the current URL afterwards.
// A stale session cookie is expired on the way.
func (h *CookieAuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(h.name); err == nil {
		h.expireCookie(w, r)
	}
	q := url.Values{returnURLParam: {safeRedirectPath(r.URL.RequestURI())}}
	http.Redirect(w, r, h.loginPath+"?"+q.Encode(), http.StatusFound)
}

// Forbid redirects to the access denied page.
func (h *CookieAuthHandler) Forbid(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.accessDeniedPath, http.StatusFound)
}

// SignIn stores the ticket and writes the sealed session key cookie.
func (h *CookieAuthHandler) SignIn(w http.ResponseWriter, r *http.Request, ticket session.Ticket) error {
	key, err := h.tickets.Store(r.Context(), ticket)
	if err != nil {
		return fmt.Errorf("store ticket: %w", err)
	}
	sealed, err := h.sealer.Encrypt([]byte(key))
	if err != nil {
		return fmt.Errorf("seal session cookie: %w", err)
	}
	http.SetCookie(w, h.cookie(r, sealed))
	return nil
}

// SignOut removes the session behind the cookie, if any, and expires the cookie.
func (h *CookieAuthHandler) SignOut(w http.ResponseWriter, r *http.Request) error {
	defer h.expireCookie(w, r)
	key, ok := h.sessionKey(r)
	if !ok {
		return nil
	}
	if err := h.tickets.Remove(r.Context(), key); err != nil {
		return fmt.Errorf("remove ticket: %w", err)
	}
	return nil
}

func (h *CookieAuthHandler) sessionKey(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	key, err := h.sealer.Decrypt(c.Value)
	if err != nil {
		h.logger.DebugContext(r.Context(), "unreadable session cookie", "error", err)
		return "", false
	}
	return string(key), len(key) > 0
}

// cookie builds the session cookie. It has no Max-Age: the server-side expiry is authoritative.
func (h *CookieAuthHandler) cookie(r *http.Request, value string) *http.Cookie {
	return &http.Cookie{
		Name:     h.name,
		Value:    value,
		Path:     "/",
		Domain:   h.domain,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.name, "__Host-") || isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *CookieAuthHandler) expireCookie(w http.ResponseWriter, r *http.Request) {
	c := h.cookie(r, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, c)
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
