package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/segmentio/ksuid"
)

// DPoP header and proof type from RFC 9449.
const (
	DPoPHeaderName = "DPoP"
	dpopJWTType    = "dpop+jwt"
)

// DPoPSigner produces DPoP proofs with a single P-256 private key.
type DPoPSigner struct {
	private jwk.Key
	public  jwk.Key
	now     func() time.Time
}

// NewDPoPSigner wraps an EC P-256 private key.
func NewDPoPSigner(key jwk.Key) (*DPoPSigner, error) {
	if key == nil {
		return nil, errors.New("dpop key is required")
	}
	if key.KeyType() != jwa.EC {
		return nil, fmt.Errorf("dpop key must be an EC key, got %s", key.KeyType())
	}
	var raw ecdsa.PrivateKey
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("dpop key must be a private key: %w", err)
	}
	if raw.Curve != elliptic.P256() {
		return nil, errors.New("dpop key must use curve P-256")
	}
	public, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive dpop public key: %w", err)
	}
	return &DPoPSigner{private: key, public: public, now: time.Now}, nil
}

// LoadDPoPSigner reads a private JWK from path.
func LoadDPoPSigner(path string) (*DPoPSigner, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read dpop key: %w", err)
	}
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse dpop key: %w", err)
	}
	return NewDPoPSigner(key)
}

// GenerateDPoPKey creates a fresh P-256 private JWK.
func GenerateDPoPKey() (jwk.Key, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return jwk.FromRaw(raw)
}

// PublicKey returns the public half that bound tokens are tied to.
func (s *DPoPSigner) PublicKey() jwk.Key { return s.public }

// Proof returns a signed proof for method and uri. When accessToken is set its hash is bound as ath.
func (s *DPoPSigner) Proof(method, uri, accessToken string) (string, error) {
	htu, err := proofURI(uri)
	if err != nil {
		return "", err
	}

	token := jwt.New()
	claims := map[string]any{
		jwt.JwtIDKey:    ksuid.New().String(),
		"htm":           method,
		"htu":           htu,
		jwt.IssuedAtKey: s.now().Unix(),
	}
	if accessToken != "" {
		sum := sha256.Sum256([]byte(accessToken))
		claims["ath"] = base64.RawURLEncoding.EncodeToString(sum[:])
	}
	for k, v := range claims {
		if err := token.Set(k, v); err != nil {
			return "", fmt.Errorf("set dpop claim %s: %w", k, err)
		}
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, dpopJWTType); err != nil {
		return "", err
	}
	if err := headers.Set(jws.JWKKey, s.public); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, s.private, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("sign dpop proof: %w", err)
	}
	return string(signed), nil
}

// proofURI strips query and fragment as htu requires.
func proofURI(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse dpop uri: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// dpopTransport adds a proof to every POST, which covers the token endpoint.
type dpopTransport struct {
	base   http.RoundTripper
	signer *DPoPSigner
}

func (t *dpopTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost {
		return t.base.RoundTrip(req)
	}
	proof, err := t.signer.Proof(req.Method, req.URL.String(), "")
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set(DPoPHeaderName, proof)
	return t.base.RoundTrip(clone)
}

// WithDPoP returns a client that attaches proofs to token requests. A nil signer returns client unchanged.
func WithDPoP(client *http.Client, signer *DPoPSigner) *http.Client {
	if signer == nil {
		return client
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out := *client
	out.Transport = &dpopTransport{base: base, signer: signer}
	return &out
}
