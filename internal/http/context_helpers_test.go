package httpx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/target/mmk-bff/internal/domain/bff"
)

func TestPassedGateway(t *testing.T) {
	assert.False(t, PassedGateway(context.Background()))
	assert.True(t, PassedGateway(markGateway(context.Background())))
}

func TestEndpointFromContext(t *testing.T) {
	_, ok := EndpointFromContext(context.Background())
	assert.False(t, ok)

	md := bff.EndpointMetadata{Name: "user", Kind: bff.EndpointAPI}
	got, ok := EndpointFromContext(WithEndpoint(context.Background(), md))
	assert.True(t, ok)
	assert.Equal(t, md, got)
}
