package httpx

import (
	"context"

	"github.com/target/mmk-bff/internal/domain/bff"
)

// Context keys are unexported types to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same keys.
type (
	gatewayKey  struct{}
	endpointKey struct{}
)

// markGateway records that the request went through the Gateway middleware.
func markGateway(ctx context.Context) context.Context {
	return context.WithValue(ctx, gatewayKey{}, true)
}

// PassedGateway reports whether the Gateway middleware ran for this request.
// Handlers that rely on anti-forgery protection use it to detect a mis-ordered pipeline.
func PassedGateway(ctx context.Context) bool {
	v, _ := ctx.Value(gatewayKey{}).(bool)
	return v
}

// WithEndpoint returns a child context carrying the matched endpoint's metadata.
func WithEndpoint(ctx context.Context, md bff.EndpointMetadata) context.Context {
	return context.WithValue(ctx, endpointKey{}, md)
}

// EndpointFromContext returns the matched endpoint's metadata and whether one was resolved.
func EndpointFromContext(ctx context.Context) (bff.EndpointMetadata, bool) {
	md, ok := ctx.Value(endpointKey{}).(bff.EndpointMetadata)
	return md, ok
}
