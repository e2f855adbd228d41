package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/errors"
)

func TestConnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Connect(ctx, ConnectInput{CallerID: alice, OtherID: bob})
	require.NoError(t, err)
	assert.False(t, out.Mutual)

	out, err = f.svc.Connect(ctx, ConnectInput{CallerID: bob, OtherID: alice})
	require.NoError(t, err)
	assert.True(t, out.Mutual)

	// Idempotent.
	out, err = f.svc.Connect(ctx, ConnectInput{CallerID: bob, OtherID: alice})
	require.NoError(t, err)
	assert.True(t, out.Mutual)

	_, err = f.svc.Disconnect(ctx, ConnectInput{CallerID: bob, OtherID: alice})
	require.NoError(t, err)
	ok, err := f.store.AreMutuallyConnected(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, ConnectInput{CallerID: alice, OtherID: alice})
	wantCode(t, err, errors.ErrValidation)

	_, err = f.svc.Connect(ctx, ConnectInput{CallerID: alice})
	wantCode(t, err, errors.ErrValidation)
}
