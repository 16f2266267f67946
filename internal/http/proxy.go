package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/target/mmk-bff/internal/domain/bff"
	"github.com/target/mmk-bff/internal/ports"
)

// ProofSigner creates DPoP proofs for outbound calls.
type ProofSigner interface {
	Proof(method, uri, accessToken string) (string, error)
}

// RemoteAPIOptions configures a RemoteAPIProxy.
type RemoteAPIOptions struct {
	LocalPath string   // Required, e.g. /api/orders
	Target    *url.URL // Required
	Metadata  bff.EndpointMetadata
	Retriever ports.AccessTokenRetriever // Required
	Auth      AuthenticationHandler      // Required
	DPoP      ProofSigner                // Optional; required for DPoP-bound tokens
	// AntiForgeryName is stripped from forwarded requests.
	AntiForgeryName string
	Transport       http.RoundTripper
	Logger          *slog.Logger
}

// RemoteAPIProxy forwards a local path prefix to a remote API, attaching the access token that
// the route's retrieval policy produces. The browser's cookies never reach the remote API.
type RemoteAPIProxy struct {
	localPath   string
	target      *url.URL
	metadata    bff.EndpointMetadata
	retriever   ports.AccessTokenRetriever
	auth        AuthenticationHandler
	dpop        ProofSigner
	antiForgery string
	logger      *slog.Logger
	proxy       *httputil.ReverseProxy
}

// NewRemoteAPIProxy constructs a RemoteAPIProxy.
func NewRemoteAPIProxy(opts RemoteAPIOptions) (*RemoteAPIProxy, error) {
	switch {
	case opts.LocalPath == "" || !strings.HasPrefix(opts.LocalPath, "/"):
		return nil, fmt.Errorf("local path %q must start with /", opts.LocalPath)
	case opts.Target == nil:
		return nil, errors.New("target URL is required")
	case opts.Retriever == nil:
		return nil, errors.New("access token retriever is required")
	case opts.Auth == nil:
		return nil, errors.New("authentication handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.AntiForgeryName
	if name == "" {
		name = DefaultAntiForgeryHeaderName
	}
	p := &RemoteAPIProxy{
		localPath:   strings.TrimSuffix(opts.LocalPath, "/"),
		target:      opts.Target,
		metadata:    opts.Metadata,
		retriever:   opts.Retriever,
		auth:        opts.Auth,
		dpop:        opts.DPoP,
		antiForgery: name,
		logger:      logger.With("component", "remote_api", "local_path", opts.LocalPath),
	}
	p.proxy = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		Transport:    opts.Transport,
		ErrorHandler: p.proxyError,
	}
	return p, nil
}

func (p *RemoteAPIProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !PassedGateway(ctx) {
		p.logger.ErrorContext(ctx, "remote API reached without the gateway middleware; refusing to forward")
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "gateway_missing", Err: errors.New("request pipeline is misconfigured")})
		return
	}

	principal, err := p.auth.Authenticate(r)
	if err != nil {
		p.logger.WarnContext(ctx, "authenticate for remote API failed; continuing anonymously", "error", err)
	}
	md, ok := EndpointFromContext(ctx)
	if !ok {
		md = p.metadata
	}

	result := p.retriever.GetAccessToken(ctx, bff.AccessTokenRetrievalContext{
		Request:    r,
		Principal:  principal,
		Metadata:   md,
		LocalPath:  p.localPath,
		APIAddress: p.target,
	})

	out := r.Clone(ctx)
	out.Header.Del("Authorization")
	out.Header.Del(DPoPHeader)
	switch res := result.(type) {
	case bff.NoAccessTokenResult:
	case bff.BearerTokenResult:
		out.Header.Set("Authorization", "Bearer "+res.AccessToken)
	case bff.DPoPTokenResult:
		if p.dpop == nil {
			p.logger.ErrorContext(ctx, "DPoP-bound token without a proof signer")
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "dpop_unavailable", Err: errors.New("DPoP is not configured")})
			return
		}
		proof, err := p.dpop.Proof(r.Method, p.outboundURL(r.URL).String(), res.AccessToken)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to create DPoP proof", "error", err)
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "dpop_unavailable", Err: errors.New("could not create DPoP proof")})
			return
		}
		out.Header.Set("Authorization", bff.TokenTypeDPoP+" "+res.AccessToken)
		out.Header.Set(DPoPHeader, proof)
	case bff.AccessTokenRetrievalError:
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "access_token_unavailable", Err: errors.New(res.Reason)})
		return
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "access_token_unavailable", Err: fmt.Errorf("unexpected token result %T", result)})
		return
	}
	p.proxy.ServeHTTP(w, out)
}

// DPoPHeader carries the proof-of-possession JWT on outbound requests.
const DPoPHeader = "DPoP"

func (p *RemoteAPIProxy) rewrite(pr *httputil.ProxyRequest) {
	pr.Out.URL = p.outboundURL(pr.In.URL)
	pr.Out.Host = ""
	pr.SetXForwarded()

	pr.Out.Header.Del("Cookie")
	pr.Out.Header.Del(p.antiForgery)
}

// outboundURL maps a local request URL onto the remote API, dropping the local prefix.
func (p *RemoteAPIProxy) outboundURL(in *url.URL) *url.URL {
	rest := strings.TrimPrefix(in.Path, p.localPath)
	out := *p.target
	out.Path = strings.TrimSuffix(p.target.Path, "/") + rest
	if out.Path == "" {
		out.Path = "/"
	}
	out.RawPath = ""
	out.RawQuery = in.RawQuery
	if p.target.RawQuery != "" && in.RawQuery != "" {
		out.RawQuery = p.target.RawQuery + "&" + in.RawQuery
	} else if p.target.RawQuery != "" {
		out.RawQuery = p.target.RawQuery
	}
	out.Fragment = ""
	return &out
}

func (p *RemoteAPIProxy) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.ErrorContext(r.Context(), "remote API call failed", "target", p.target.Redacted(), "error", err)
	WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "remote_api_unavailable", Err: errors.New("remote API is unavailable")})
}
