package contextutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/auth"
)

func TestScope_PublishOnce(t *testing.T) {
	scope := NewScope("widgets.create")

	require.NoError(t, scope.Publish(&auth.Identity{Subject: "u1"}))
	err := scope.Publish(&auth.Identity{Subject: "u2"})

	assert.ErrorIs(t, err, ErrIdentityAlreadyPublished)
	assert.Equal(t, "u1", scope.Identity().Subject)
}

func TestScope_Context(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetScope(ctx))
	assert.Nil(t, IdentityFromContext(ctx))

	scope := NewScope("widgets.create")
	ctx = WithScope(ctx, scope)
	assert.Same(t, scope, GetScope(ctx))
	assert.Nil(t, IdentityFromContext(ctx))

	require.NoError(t, scope.Publish(&auth.Identity{Subject: "u1"}))
	assert.Equal(t, "u1", IdentityFromContext(ctx).Subject)
}

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestRouteInfo(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetRouteInfo(ctx))

	info := &RouteInfo{}
	ctx = WithRouteInfo(ctx, info)
	GetRouteInfo(ctx).Operation = "widgets.list"
	assert.Equal(t, "widgets.list", info.Operation)
}
