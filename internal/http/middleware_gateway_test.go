package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-bff/internal/domain/bff"
)

// gatewayFixture registers an API, a management and an opted-out endpoint behind the Gateway.
func gatewayFixture(opts GatewayOptions) (http.Handler, *[]bff.EndpointMetadata) {
	reg := NewEndpointRegistry()
	var seen []bff.EndpointMetadata
	record := func(w http.ResponseWriter, r *http.Request) {
		md, _ := EndpointFromContext(r.Context())
		seen = append(seen, md)
		if !PassedGateway(r.Context()) {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	reg.HandleFunc("GET /api/items", bff.EndpointMetadata{Name: "items", Kind: bff.EndpointAPI}, record)
	reg.HandleFunc("POST /hooks", bff.EndpointMetadata{Name: "hooks", Kind: bff.EndpointAPI, SkipAntiForgery: true}, record)
	reg.HandleFunc("GET /bff/login", bff.EndpointMetadata{Name: "login", Kind: bff.EndpointManagement}, record)
	reg.HandleFunc("GET /plain", bff.EndpointMetadata{}, record)

	opts.Endpoints = reg
	return Chain(reg, Gateway(opts)), &seen
}

func TestGateway_AntiForgery(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{name: "api without header", method: http.MethodGet, path: "/api/items", wantStatus: http.StatusUnauthorized},
		{name: "api with wrong value", method: http.MethodGet, path: "/api/items", header: "0", wantStatus: http.StatusUnauthorized},
		{name: "api with header", method: http.MethodGet, path: "/api/items", header: "1", wantStatus: http.StatusNoContent},
		{name: "api opted out", method: http.MethodPost, path: "/hooks", wantStatus: http.StatusNoContent},
		{name: "management without header", method: http.MethodGet, path: "/bff/login", wantStatus: http.StatusNoContent},
		{name: "unclassified", method: http.MethodGet, path: "/plain", wantStatus: http.StatusNoContent},
		{name: "unknown route", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := gatewayFixture(GatewayOptions{Logger: discardLogger()})
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(DefaultAntiForgeryHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "antiforgery_required")
				assert.Empty(t, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGateway_CustomHeader(t *testing.T) {
	h, _ := gatewayFixture(GatewayOptions{AntiForgeryName: "X-Requested-By", AntiForgeryValue: "spa", Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set(DefaultAntiForgeryHeaderName, "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "the default header no longer counts")

	req = httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("X-Requested-By", "spa")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGateway_DisablePredicate(t *testing.T) {
	h, seen := gatewayFixture(GatewayOptions{
		DisableAntiForgery: func(r *http.Request) bool { return r.Header.Get("X-Internal") == "yes" },
		Logger:             discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("X-Internal", "yes")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, *seen, 1)
	assert.Equal(t, "items", (*seen)[0].Name, "metadata is attached even when the check is skipped")
}

func TestGateway_AttachesMetadata(t *testing.T) {
	h, seen := gatewayFixture(GatewayOptions{Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/bff/login", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Len(t, *seen, 1)
	assert.True(t, (*seen)[0].IsManagement())
}

func TestGateway_WarnsOnScriptedManagementCall(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	h, _ := gatewayFixture(GatewayOptions{Logger: logger})

	req := httptest.NewRequest(http.MethodGet, "/bff/login", nil)
	req.Header.Set("Sec-Fetch-Mode", "cors")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code, "management calls are never blocked")
	assert.Contains(t, logs.String(), "management endpoint called from script")

	logs.Reset()
	req = httptest.NewRequest(http.MethodGet, "/bff/login", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html,application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, logs.String())
}

func TestIsScriptRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{name: "navigation", headers: map[string]string{"Accept": "text/html"}, want: false},
		{name: "anti-forgery header", headers: map[string]string{"X-CSRF": "1"}, want: true},
		{name: "xhr", headers: map[string]string{"X-Requested-With": "XMLHttpRequest"}, want: true},
		{name: "fetch same-origin", headers: map[string]string{"Sec-Fetch-Mode": "same-origin"}, want: true},
		{name: "json accept", headers: map[string]string{"Accept": "application/json"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, isScriptRequest(req, "X-CSRF"))
		})
	}
}

func TestEndpointRegistry_Resolve(t *testing.T) {
	reg := NewEndpointRegistry()
	reg.HandleFunc("/api/orders/", bff.EndpointMetadata{Name: "orders", Kind: bff.EndpointAPI, RequiredToken: bff.TokenTypeUser},
		func(http.ResponseWriter, *http.Request) {})

	md, ok := reg.Resolve(httptest.NewRequest(http.MethodGet, "/api/orders/42", nil))
	require.True(t, ok)
	assert.Equal(t, "orders", md.Name)
	assert.Equal(t, bff.TokenTypeUser, md.RequiredToken)

	_, ok = reg.Resolve(httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.False(t, ok)
}
