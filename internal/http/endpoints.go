package httpx

import (
	"net/http"
	"sync"

	"github.com/target/mmk-bff/internal/domain/bff"
)

// EndpointResolver returns the metadata of the endpoint a request is routed to.
type EndpointResolver interface {
	Resolve(r *http.Request) (bff.EndpointMetadata, bool)
}

// EndpointRegistry is a ServeMux that remembers the metadata each pattern was registered with,
// so middleware running ahead of routing can classify the request.
type EndpointRegistry struct {
	mux *http.ServeMux

	mu   sync.RWMutex
	meta map[string]bff.EndpointMetadata
}

var _ EndpointResolver = (*EndpointRegistry)(nil)

// NewEndpointRegistry creates an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{mux: http.NewServeMux(), meta: make(map[string]bff.EndpointMetadata)}
}

// Handle registers h for pattern with the given metadata.
func (e *EndpointRegistry) Handle(pattern string, md bff.EndpointMetadata, h http.Handler) {
	e.mu.Lock()
	e.meta[pattern] = md
	e.mu.Unlock()
	e.mux.Handle(pattern, h)
}

// HandleFunc registers f for pattern with the given metadata.
func (e *EndpointRegistry) HandleFunc(pattern string, md bff.EndpointMetadata, f http.HandlerFunc) {
	e.Handle(pattern, md, f)
}

// Resolve returns the metadata registered for the pattern r matches.
func (e *EndpointRegistry) Resolve(r *http.Request) (bff.EndpointMetadata, bool) {
	_, pattern := e.mux.Handler(r)
	if pattern == "" {
		return bff.EndpointMetadata{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	md, ok := e.meta[pattern]
	return md, ok
}

func (e *EndpointRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mux.ServeHTTP(w, r)
}
