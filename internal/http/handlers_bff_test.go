package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/internal/domain/session"
)

func TestBFF_LoginSetsFlowCookies(t *testing.T) {
	st := newTestStack(t)

	rec := st.serve(httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/login?returnUrl=https://evil.example.com", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://mock-idp/auth", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	assert.Equal(t, "state-1", cookieValue(t, cookies, stateCookieName))
	assert.Equal(t, "nonce-1", cookieValue(t, cookies, nonceCookieName))
	assert.Equal(t, "/", cookieValue(t, cookies, redirectCookieName), "absolute return URLs are rejected")
	for _, c := range cookies {
		assert.True(t, c.HttpOnly, c.Name)
		assert.True(t, c.Secure, c.Name)
	}
}

func TestBFF_CallbackSignsIn(t *testing.T) {
	st := newTestStack(t)
	cookie := st.signIn(t)

	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, "/", cookie.Path)
	assert.NotContains(t, cookie.Value, "mock", "the cookie carries only the sealed session key")
	assert.Equal(t, 1, st.store.Len())
	assert.Equal(t, int64(1), st.metrics.Started())

	sessions, err := st.store.GetMany(t.Context(), session.Filter{SubjectID: "mock-user-1"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "mock-sid-1", sessions[0].SessionID)
	require.NotNil(t, sessions[0].Expires)
}

func TestBFF_CallbackRedirectsToReturnURL(t *testing.T) {
	st := newTestStack(t)
	login := st.serve(httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/login?returnUrl=/app/orders", nil))

	req := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/callback?code=abc&state=state-1", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := st.serve(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/app/orders", rec.Header().Get("Location"))

	cleared := findCookie(rec.Result().Cookies(), stateCookieName)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestBFF_CallbackErrors(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		cookies map[string]string
		wantErr string
	}{
		{name: "idp error", query: "error=access_denied&error_description=nope", wantErr: "login_rejected"},
		{name: "missing code", query: "state=state-1", wantErr: "missing_code"},
		{name: "missing state", query: "code=abc", wantErr: "missing_state"},
		{name: "state mismatch", query: "code=abc&state=other", cookies: map[string]string{stateCookieName: "state-1", nonceCookieName: "n"}, wantErr: "invalid_state"},
		{name: "missing nonce", query: "code=abc&state=state-1", cookies: map[string]string{stateCookieName: "state-1"}, wantErr: "missing_nonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStack(t)
			req := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/callback?"+tt.query, nil)
			for name, value := range tt.cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
			rec := st.serve(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
			assert.Zero(t, st.store.Len())
		})
	}
}

func TestBFF_UserEndpoint(t *testing.T) {
	st := newTestStack(t)

	t.Run("anonymous without anti-forgery header", func(t *testing.T) {
		rec := st.serve(httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/user", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "antiforgery_required")
	})

	t.Run("anonymous challenge becomes 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/user", nil)
		req.Header.Set(csrfHeader, "1")
		rec := st.serve(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Empty(t, rec.Header().Values("Set-Cookie"))
	})

	t.Run("signed in", func(t *testing.T) {
		cookie := st.signIn(t)
		req := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/user", nil)
		req.Header.Set(csrfHeader, "1")
		req.AddCookie(cookie)
		rec := st.serve(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var claims []struct {
			Type  string `json:"type"`
			Value any    `json:"value"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claims))
		got := map[string]any{}
		for _, c := range claims {
			got[c.Type] = c.Value
		}
		assert.Equal(t, "mock-user-1", got["sub"])
		assert.Equal(t, "mock-sid-1", got["sid"])
		assert.Equal(t, "Mock User", got["name"])
		assert.Equal(t, "/bff/logout?sid=mock-sid-1", got[ClaimLogoutURL])
		expiresIn, ok := got[ClaimSessionExpiresIn].(float64)
		require.True(t, ok)
		assert.InDelta(t, 8*3600, expiresIn, 60)
		assert.NotContains(t, rec.Body.String(), "mock-refresh-token", "tokens never reach the browser")
	})
}

func TestBFF_Logout(t *testing.T) {
	st := newTestStack(t)
	cookie := st.signIn(t)

	t.Run("sid mismatch is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/logout?sid=other", nil)
		req.AddCookie(cookie)
		rec := st.serve(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 1, st.store.Len())
	})

	t.Run("matching sid ends the session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/logout?sid=mock-sid-1", nil)
		req.AddCookie(cookie)
		rec := st.serve(req)
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "mock-idp", loc.Host)
		assert.Equal(t, "mock-id-token", loc.Query().Get("id_token_hint"))
		assert.Equal(t, "https://app.example.com/", loc.Query().Get("post_logout_redirect_uri"))

		assert.Zero(t, st.store.Len())
		assert.Equal(t, []string{"mock-refresh-token"}, st.revoker.Revoked())
		assert.Equal(t, int64(1), st.metrics.Ended())
		expired := findCookie(rec.Result().Cookies(), DefaultSessionCookieName)
		require.NotNil(t, expired)
		assert.Negative(t, expired.MaxAge)
	})

	t.Run("anonymous redirects to return URL", func(t *testing.T) {
		rec := st.serve(httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/logout?returnUrl=/bye", nil))
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/bye", rec.Header().Get("Location"))
	})
}

func TestBFF_Backchannel(t *testing.T) {
	st := newTestStack(t)
	st.signIn(t)
	require.Equal(t, 1, st.store.Len())

	post := func(token string) *httptest.ResponseRecorder {
		form := url.Values{"logout_token": {token}}
		req := httptest.NewRequest(http.MethodPost, "https://app.example.com/bff/backchannel", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return st.serve(req)
	}

	rec := post("forged")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, st.store.Len())

	rec = post("good-logout-token")
	assert.Equal(t, http.StatusOK, rec.Code, "no anti-forgery header is needed for server-to-server calls")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Zero(t, st.store.Len())
	assert.Equal(t, []string{"mock-refresh-token"}, st.revoker.Revoked())
	assert.Equal(t, int64(1), st.metrics.Ended())
}
