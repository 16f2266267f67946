package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/internal/adapters/memory"
	"github.com/target/mmk-bff/internal/adapters/oidc"
	"github.com/target/mmk-bff/internal/data/cryptoutil"
	"github.com/target/mmk-bff/internal/domain/bff"
	mocks "github.com/target/mmk-bff/internal/mocks/auth"
	"github.com/target/mmk-bff/internal/ports"
	"github.com/target/mmk-bff/internal/service"
)

const csrfHeader = "X-CSRF"

func testRing(t *testing.T, purpose string) *cryptoutil.KeyRing {
	t.Helper()
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(3*i + 1)
	}
	ring, err := cryptoutil.NewKeyRing(purpose, cryptoutil.Key{ID: "k1", Secret: secret})
	require.NoError(t, err)
	return ring
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// upstreamRecorder is a remote API that records what it received.
type upstreamRecorder struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []*http.Request
}

func newUpstream(t *testing.T) *upstreamRecorder {
	t.Helper()
	u := &upstreamRecorder{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.Clone(context.Background()))
		u.mu.Unlock()
		WriteJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "query": r.URL.RawQuery})
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstreamRecorder) last(t *testing.T) *http.Request {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.requests, "upstream received no request")
	return u.requests[len(u.requests)-1]
}

func (u *upstreamRecorder) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

// testStack wires the real session stack behind the router with a mock IdP.
type testStack struct {
	store    *memory.SessionStore
	tickets  *service.TicketStore
	provider *mocks.MockAuthProvider
	revoker  *mocks.RecordingRevoker
	metrics  *mocks.CountingMetrics
	cookies  *CookieAuthHandler
	upstream *upstreamRecorder
	handler  http.Handler
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := discardLogger()
	ring := testRing(t, "tickets")

	st := &testStack{
		store:    memory.NewSessionStore(logger),
		provider: mocks.NewMockAuthProvider(),
		revoker:  &mocks.RecordingRevoker{},
		metrics:  &mocks.CountingMetrics{},
		upstream: newUpstream(t),
	}
	tickets, err := service.NewTicketStore(service.TicketStoreOptions{
		Sessions: st.store,
		Codec:    service.NewTicketCodec(ring, logger),
		Logger:   logger,
	})
	require.NoError(t, err)
	st.tickets = tickets

	revocation, err := service.NewSessionRevocationService(service.SessionRevocationOptions{
		Sessions:           st.store,
		Tickets:            tickets,
		Revoker:            st.revoker,
		Metrics:            st.metrics,
		RevokeRefreshToken: true,
		Logger:             logger,
	})
	require.NoError(t, err)

	st.cookies, err = NewCookieAuthHandler(CookieAuthOptions{
		Tickets:           tickets,
		Sealer:            ring.WithPurpose("cookie"),
		SlidingExpiration: true,
		Logger:            logger,
	})
	require.NoError(t, err)

	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Provider:           st.provider,
		Revoker:            revocation,
		Metrics:            st.metrics,
		Lifetime:           8 * time.Hour,
		PostLogoutRedirect: "https://app.example.com/",
	})

	tokens, err := oidc.NewTokenManager(oidc.TokenManagerOptions{Logger: logger})
	require.NoError(t, err)

	target, err := url.Parse(st.upstream.server.URL + "/v1/orders")
	require.NoError(t, err)
	public, err := url.Parse(st.upstream.server.URL + "/public")
	require.NoError(t, err)

	st.handler, err = NewRouter(RouterServices{
		Auth:           authSvc,
		Authentication: st.cookies,
		Sessions:       revocation,
		LogoutTokens: mocks.StaticLogoutTokenValidator{
			Token:  "good-logout-token",
			Claims: ports.LogoutTokenClaims{Subject: "mock-user-1", SessionID: "mock-sid-1"},
		},
		RemoteAPIs: []RemoteAPIRoute{
			{LocalPath: "/api/orders", Target: target, RequiredToken: bff.TokenTypeUser},
			{LocalPath: "/api/public", Target: public, OptionalUserToken: true},
		},
		DefaultRetriever: service.NewDefaultAccessTokenRetriever(tokens, logger),
		Logger:           logger,
	})
	require.NoError(t, err)
	return st
}

// serve runs a request through the full router.
func (st *testStack) serve(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	st.handler.ServeHTTP(rec, r)
	return rec
}

// signIn performs the login and callback round trip and returns the session cookie.
func (st *testStack) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	login := st.serve(httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/login?returnUrl=/app", nil))
	require.Equal(t, http.StatusFound, login.Code)

	callback := httptest.NewRequest(http.MethodGet, "https://app.example.com/bff/callback?code=abc&state="+
		cookieValue(t, login.Result().Cookies(), stateCookieName), nil)
	for _, c := range login.Result().Cookies() {
		callback.AddCookie(c)
	}
	rec := st.serve(callback)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("callback did not set a session cookie")
	return nil
}

func cookieValue(t *testing.T, cookies []*http.Cookie, name string) string {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	t.Fatalf("cookie %s not set", name)
	return ""
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
