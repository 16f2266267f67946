package httpx

import (
	"bytes"
	"net/http"

	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/domain/session"
)

// ResponseTranslator decorates an AuthenticationHandler so that API endpoints never receive
// browser redirects: a redirecting challenge becomes 401 and a redirecting forbid becomes 403,
// with Location and Set-Cookie removed. Everything else is forwarded untouched.
type ResponseTranslator struct {
	inner AuthenticationHandler
}

var _ AuthenticationHandler = (*ResponseTranslator)(nil)

// NewResponseTranslator wraps inner.
func NewResponseTranslator(inner AuthenticationHandler) *ResponseTranslator {
	return &ResponseTranslator{inner: inner}
}

func (t *ResponseTranslator) Authenticate(r *http.Request) (*bff.Principal, error) {
	return t.inner.Authenticate(r)
}

func (t *ResponseTranslator) Challenge(w http.ResponseWriter, r *http.Request) {
	t.translate(w, r, t.inner.Challenge, http.StatusUnauthorized)
}

func (t *ResponseTranslator) Forbid(w http.ResponseWriter, r *http.Request) {
	t.translate(w, r, t.inner.Forbid, http.StatusForbidden)
}

func (t *ResponseTranslator) SignIn(w http.ResponseWriter, r *http.Request, ticket session.Ticket) error {
	return t.inner.SignIn(w, r, ticket)
}

func (t *ResponseTranslator) SignOut(w http.ResponseWriter, r *http.Request) error {
	return t.inner.SignOut(w, r)
}

func (t *ResponseTranslator) translate(w http.ResponseWriter, r *http.Request, call func(http.ResponseWriter, *http.Request), status int) {
	md, ok := EndpointFromContext(r.Context())
	if !ok || !md.IsAPI() || md.SkipResponseHandling {
		call(w, r)
		return
	}

	buf := newBufferedResponse()
	call(buf, r)
	if !isRedirect(buf.status) {
		buf.copyTo(w)
		return
	}

	buf.header.Del("Location")
	buf.header.Del("Set-Cookie")
	buf.header.Del("Content-Type")
	buf.header.Del("Content-Length")
	buf.status = status
	buf.body.Reset()
	buf.copyTo(w)
}

func isRedirect(status int) bool {
	return status >= http.StatusMultipleChoices && status < http.StatusBadRequest && status != http.StatusNotModified
}

// bufferedResponse captures a response so it can be inspected before reaching the client.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferedResponse) WriteHeader(status int) { b.status = status }

func (b *bufferedResponse) copyTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = append([]string(nil), v...)
	}
	w.WriteHeader(b.status)
	if b.body.Len() > 0 {
		_, _ = b.body.WriteTo(w)
	}
}
