package httpx

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/target/mmk-bff/internal/domain/session"
	"github.com/target/mmk-bff/internal/ports"
	"github.com/target/mmk-bff/internal/service"
)

// Temporary cookies that carry the OIDC flow between login and callback.
const (
	stateCookieName    = "bff_oauth_state"
	nonceCookieName    = "bff_oauth_nonce"
	redirectCookieName = "bff_post_login_redirect"
	flowCookieMaxAge   = 600 // 10 minutes
)

// Claim types added to the user endpoint response.
const (
	ClaimLogoutURL        = "bff:logout_url"
	ClaimSessionExpiresIn = "bff:session_expires_in"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (session.Ticket, error)
	Logout(ctx context.Context, ticket session.Ticket) (string, error)
}

// BFFHandlers serves the management endpoints: login, callback, logout, user and back-channel logout.
type BFFHandlers struct {
	Svc  AuthServiceInterface
	Auth AuthenticationHandler
	// Sessions and LogoutTokens serve back-channel logout.
	Sessions     ports.SessionRevoker
	LogoutTokens ports.LogoutTokenValidator
	BasePath     string
	CookieDomain string
	Logger       *slog.Logger
	Now          func() time.Time
}

func (h *BFFHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *BFFHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Login starts the OIDC authorization code flow.
// GET /bff/login?returnUrl=<optional_redirect>.
func (h *BFFHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get(returnURLParam))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: err})
		return
	}

	h.setFlowCookie(w, r, stateCookieName, result.State)
	h.setFlowCookie(w, r, nonceCookieName, result.Nonce)
	h.setFlowCookie(w, r, redirectCookieName, redirectURI)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the flow, signs the new session in and returns to the original destination.
// GET /bff/callback?code=<code>&state=<state>.
func (h *BFFHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if idpErr := q.Get("error"); idpErr != "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "login_rejected",
			Err:     errors.New(idpErr + ": " + q.Get("error_description")),
		})
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_code", Err: errors.New("authorization code is required")})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_state", Err: errors.New("state parameter is required")})
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_state", Err: errors.New("invalid or missing state parameter")})
		return
	}
	nonceCookie, err := r.Cookie(nonceCookieName)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_nonce", Err: errors.New("missing nonce parameter")})
		return
	}

	ticket, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{Code: code, State: state, Nonce: nonceCookie.Value})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "login completion failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_completion_failed", Err: err})
		return
	}
	if err := h.Auth.SignIn(w, r, ticket); err != nil {
		h.logger().ErrorContext(r.Context(), "sign in failed", "subject_id", ticket.SubjectID(), "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "sign_in_failed", Err: errors.New("could not create session")})
		return
	}

	h.clearCookie(w, r, stateCookieName)
	h.clearCookie(w, r, nonceCookieName)
	redirectURI := "/"
	if c, err := r.Cookie(redirectCookieName); err == nil {
		redirectURI = safeRedirectPath(c.Value)
	}
	h.clearCookie(w, r, redirectCookieName)
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// Logout ends the current session and redirects to the IdP end-session endpoint when there is one.
// The sid query parameter must match the session so third-party pages cannot log the user out.
// GET /bff/logout?sid=<sid>&returnUrl=<optional_redirect>.
func (h *BFFHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	returnURL := safeRedirectPath(r.URL.Query().Get(returnURLParam))
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		h.logger().WarnContext(r.Context(), "authenticate on logout failed", "error", err)
	}
	if principal == nil {
		http.Redirect(w, r, returnURL, http.StatusFound)
		return
	}

	if sid := principal.Ticket.SessionID(); sid != "" && r.URL.Query().Get("sid") != sid {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_sid", Err: errors.New("sid does not match the current session")})
		return
	}

	endSession, err := h.Svc.Logout(r.Context(), principal.Ticket)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "logout revocation failed",
			"subject_id", principal.Ticket.SubjectID(), "session_id", principal.Ticket.SessionID(), "error", err)
	}
	if err := h.Auth.SignOut(w, r); err != nil {
		h.logger().WarnContext(r.Context(), "sign out failed", "error", err)
	}

	if endSession != "" {
		http.Redirect(w, r, endSession, http.StatusFound)
		return
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

type claimJSON struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// User returns the current session's claims. Anonymous callers are challenged.
// GET /bff/user.
func (h *BFFHandlers) User(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		h.logger().WarnContext(r.Context(), "authenticate user failed", "error", err)
	}
	if principal == nil {
		h.Auth.Challenge(w, r)
		return
	}

	t := principal.Ticket
	claims := make([]claimJSON, 0, len(t.Principal)+2)
	for _, c := range t.Principal {
		claims = append(claims, claimJSON{Type: c.Type, Value: c.Value})
	}
	logout := url.URL{Path: h.BasePath + "/logout"}
	if sid := t.SessionID(); sid != "" {
		logout.RawQuery = url.Values{"sid": {sid}}.Encode()
	}
	claims = append(claims, claimJSON{Type: ClaimLogoutURL, Value: logout.String()})
	if exp, ok := t.ExpiresAt(); ok {
		remaining := math.Max(0, math.Round(exp.Sub(h.now()).Seconds()))
		claims = append(claims, claimJSON{Type: ClaimSessionExpiresIn, Value: int64(remaining)})
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, claims)
}

// Backchannel handles OIDC back-channel logout from the IdP.
// POST /bff/backchannel with form field logout_token.
func (h *BFFHandlers) Backchannel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
		return
	}
	claims, err := h.LogoutTokens.ValidateLogoutToken(r.Context(), r.PostForm.Get("logout_token"))
	if err != nil {
		h.logger().WarnContext(r.Context(), "invalid back-channel logout token", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_logout_token", Err: err})
		return
	}

	filter := session.Filter{SubjectID: claims.Subject, SessionID: claims.SessionID}
	removed, err := h.Sessions.Revoke(r.Context(), filter)
	if err != nil {
		// Sessions are deleted even when refresh token revocation fails.
		h.logger().ErrorContext(r.Context(), "back-channel logout revocation failed",
			"subject_id", claims.Subject, "session_id", claims.SessionID, "error", err)
	}
	h.logger().InfoContext(r.Context(), "back-channel logout",
		"subject_id", claims.Subject, "session_id", claims.SessionID, "removed", removed)
	w.WriteHeader(http.StatusOK)
}

func (h *BFFHandlers) setFlowCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   flowCookieMaxAge,
	})
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors the attributes used when setting it so browsers match the cookie.
func (h *BFFHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
