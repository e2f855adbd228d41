package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/errors"
)

func TestHint_Progression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.sealAnon(t, time.Hour, 6*3600, "tall", "likes tea", "sits by the window")

	// Before opening no hint is eligible.
	h, err := f.svc.Hint(ctx, HintInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.Nil(t, h.Hint)
	assert.Nil(t, h.NextHintAt)
	assert.False(t, h.Revealed)

	opened := f.openAfter(t, v)
	openedAt := *opened.OpenedAt

	f.clk.Advance(time.Hour)
	h, err = f.svc.Hint(ctx, HintInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.Nil(t, h.Hint, "1h of 6h is below 30%")
	require.NotNil(t, h.NextHintAt)
	assert.Equal(t, openedAt+6480, *h.NextHintAt)

	f.clk.Set(time.Unix(openedAt+3*3600, 0))
	h, err = f.svc.Hint(ctx, HintInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	require.NotNil(t, h.Hint)
	assert.Equal(t, 2, h.Hint.Index)
	assert.Equal(t, "likes tea", h.Hint.Text)
	require.NotNil(t, h.NextHintAt)
	assert.Equal(t, openedAt+18360, *h.NextHintAt)

	f.clk.Set(time.Unix(openedAt+18360, 0))
	h, err = f.svc.Hint(ctx, HintInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	require.NotNil(t, h.Hint)
	assert.Equal(t, 3, h.Hint.Index)
	assert.Nil(t, h.NextHintAt)

	// At the reveal instant the read path reveals and hints stop.
	f.clk.Set(time.Unix(openedAt+6*3600, 0))
	h, err = f.svc.Hint(ctx, HintInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.True(t, h.Revealed)
	assert.Equal(t, alice, h.SenderID)
	assert.Nil(t, h.Hint)

	_, revealed := f.note.counts()
	assert.Equal(t, 1, revealed)

	got, err := f.svc.Fetch(ctx, FetchInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, alice, got.SenderID)
	assert.False(t, got.SenderHidden)
	assert.Nil(t, got.CurrentHint)
}

func TestHint_NoHintsSupplied(t *testing.T) {
	f := newFixture(t)
	v := f.sealAnon(t, time.Hour, 3600)
	f.openAfter(t, v)
	f.clk.Advance(50 * time.Minute)

	h, err := f.svc.Hint(context.Background(), HintInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.Nil(t, h.Hint)
	assert.False(t, h.Revealed)
}

func TestHint_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain := f.seal(t, time.Hour)
	_, err := f.svc.Hint(ctx, HintInput{CallerID: bob, ID: plain.ID})
	wantCode(t, err, errors.ErrNotAnonymous)

	anon := f.sealAnon(t, time.Hour, 3600, "x")
	_, err = f.svc.Hint(ctx, HintInput{CallerID: alice, ID: anon.ID})
	wantCode(t, err, errors.ErrForbidden)

	_, err = f.svc.Hint(ctx, HintInput{CallerID: bob, ID: "missing"})
	wantCode(t, err, errors.ErrNotFound)

	_, err = f.svc.Withdraw(ctx, WithdrawInput{CallerID: alice, ID: anon.ID})
	require.NoError(t, err)
	_, err = f.svc.Hint(ctx, HintInput{CallerID: bob, ID: anon.ID})
	wantCode(t, err, errors.ErrNotFound)
}
