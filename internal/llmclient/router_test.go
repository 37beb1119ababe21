package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// fakeClient records which tier it served.
type fakeClient struct {
	name     string
	calls    int
	closes   int
	response string
	err      error
}

func (f *fakeClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeClient) Close() error {
	f.closes++
	return nil
}

func TestNewRouter_RequiresBothTiers(t *testing.T) {
	_, err := NewRouter(zap.NewNop(), nil, &fakeClient{})
	assert.Error(t, err)

	_, err = NewRouter(zap.NewNop(), &fakeClient{}, nil)
	assert.Error(t, err)
}

func TestRouter_Generate_RoutesByTier(t *testing.T) {
	fast := &fakeClient{name: "fast", response: "fast response"}
	powerful := &fakeClient{name: "powerful", response: "powerful response"}

	router, err := NewRouter(zap.NewNop(), fast, powerful)
	require.NoError(t, err)

	resp, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast response", resp)
	assert.Equal(t, 1, fast.calls)
	assert.Equal(t, 0, powerful.calls)

	resp, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "powerful response", resp)
	assert.Equal(t, 1, powerful.calls)
}

// An unspecified tier defaults to the powerful client.
func TestRouter_Generate_DefaultsToPowerful(t *testing.T) {
	fast := &fakeClient{name: "fast"}
	powerful := &fakeClient{name: "powerful", response: "powerful response"}

	router, err := NewRouter(zap.NewNop(), fast, powerful)
	require.NoError(t, err)

	resp, err := router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "powerful response", resp)
	assert.Equal(t, 0, fast.calls)
	assert.Equal(t, 1, powerful.calls)
}

func TestRouter_Generate_UnknownTierIsFatal(t *testing.T) {
	router, err := NewRouter(zap.NewNop(), &fakeClient{}, &fakeClient{})
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: "quantum"})
	require.Error(t, err)
	assert.False(t, schemas.IsTransient(err))
}

// A shared client backing both tiers is closed exactly once.
func TestRouter_Close_DedupesSharedClients(t *testing.T) {
	shared := &fakeClient{name: "shared"}
	router, err := NewRouter(zap.NewNop(), shared, shared)
	require.NoError(t, err)

	require.NoError(t, router.Close())
	assert.Equal(t, 1, shared.closes)
}
