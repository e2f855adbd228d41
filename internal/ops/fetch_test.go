package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
)

func TestFetch_Views(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.sealAnon(t, time.Hour, 3600, "tall")

	sender, err := f.svc.Fetch(ctx, FetchInput{CallerID: alice, ID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, alice, sender.SenderID)
	assert.NotNil(t, sender.Body)
	assert.Equal(t, []string{"tall"}, sender.Hints)
	assert.True(t, sender.SenderHidden)

	recipient, err := f.svc.Fetch(ctx, FetchInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, capsule.AnonymousSender, recipient.SenderID)
	assert.Nil(t, recipient.Body)
	assert.Nil(t, recipient.Hints)
	assert.Equal(t, "sealed", recipient.Status)

	// Effective status without a sweep.
	f.clk.Advance(time.Hour)
	recipient, err = f.svc.Fetch(ctx, FetchInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, "ready", recipient.Status)
	assert.Nil(t, recipient.Body)

	f.openAfter(t, v)
	f.clk.Advance(30 * time.Minute)
	recipient, err = f.svc.Fetch(ctx, FetchInput{CallerID: bob, ID: v.ID})
	require.NoError(t, err)
	require.NotNil(t, recipient.Body)
	require.NotNil(t, recipient.CurrentHint)
	assert.Equal(t, "tall", recipient.CurrentHint.Text)
	assert.Equal(t, capsule.AnonymousSender, recipient.SenderID)
}

func TestFetch_NonPartyIsNotFound(t *testing.T) {
	f := newFixture(t)
	v := f.seal(t, time.Hour)

	_, err := f.svc.Fetch(context.Background(), FetchInput{CallerID: carol, ID: v.ID})
	wantCode(t, err, errors.ErrNotFound)

	_, err = f.svc.Fetch(context.Background(), FetchInput{CallerID: carol, ID: " "})
	wantCode(t, err, errors.ErrValidation)
}

func TestFetch_SelfAddressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, CreateInput{
		CallerID:    alice,
		RecipientID: alice,
		Body:        "note to self",
		UnlocksAt:   f.now() + 60,
	})
	require.NoError(t, err)

	got, err := f.svc.Fetch(ctx, FetchInput{CallerID: alice, ID: v.ID})
	require.NoError(t, err)
	require.NotNil(t, got.Body)

	f.clk.Advance(time.Minute)
	_, err = f.svc.Open(ctx, OpenInput{CallerID: alice, ID: v.ID})
	require.NoError(t, err)
}
