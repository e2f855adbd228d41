package ops

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
)

func TestCreate_Sealed(t *testing.T) {
	f := newFixture(t)
	v := f.seal(t, time.Hour)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "sealed", v.Status)
	assert.Equal(t, alice, v.SenderID)
	assert.Equal(t, bob, v.RecipientID)
	require.NotNil(t, v.Body)
	assert.Equal(t, "hello from the past", *v.Body)
	assert.Equal(t, f.now(), v.CreatedAt)
	assert.Nil(t, v.OpenedAt)
	assert.False(t, v.SenderHidden)
}

func TestCreate_TrimsThemeAndTitle(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Create(context.Background(), CreateInput{
		CallerID:    alice,
		RecipientID: bob,
		Title:       "  spaced  ",
		Body:        "b",
		Theme:       ptr("   "),
		UnlocksAt:   f.now() + 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "spaced", v.Title)
	assert.Nil(t, v.Theme)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.now()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"unlock in past", CreateInput{CallerID: alice, RecipientID: bob, Body: "b", UnlocksAt: now - 1}},
		{"unlock now", CreateInput{CallerID: alice, RecipientID: bob, Body: "b", UnlocksAt: now}},
		{"missing recipient", CreateInput{CallerID: alice, Body: "b", UnlocksAt: now + 60}},
		{"blank body", CreateInput{CallerID: alice, RecipientID: bob, Body: "  ", UnlocksAt: now + 60}},
		{"hints without anonymity", CreateInput{CallerID: alice, RecipientID: bob, Body: "b", UnlocksAt: now + 60, Hints: []string{"x"}}},
		{"delay without anonymity", CreateInput{CallerID: alice, RecipientID: bob, Body: "b", UnlocksAt: now + 60, RevealDelaySeconds: ptr(int64(10))}},
		{"anonymous without delay", CreateInput{CallerID: alice, RecipientID: bob, Body: "b", UnlocksAt: now + 60, IsAnonymous: true}},
		{"delay too long", CreateInput{CallerID: alice, RecipientID: bob, Body: "b", UnlocksAt: now + 60, IsAnonymous: true, RevealDelaySeconds: ptr(int64(capsule.MaxRevealDelaySeconds + 1))}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, c.in)
			wantCode(t, err, errors.ErrValidation)
		})
	}
}

func TestCreate_AnonymousRequiresMutualConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateInput{
		CallerID:           alice,
		RecipientID:        bob,
		Body:               "b",
		UnlocksAt:          f.now() + 60,
		IsAnonymous:        true,
		RevealDelaySeconds: ptr(int64(3600)),
	}

	_, err := f.svc.Create(ctx, in)
	wantCode(t, err, errors.ErrNotConnected)

	// One direction is not enough.
	_, err = f.svc.Connect(ctx, ConnectInput{CallerID: alice, OtherID: bob})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, in)
	wantCode(t, err, errors.ErrNotConnected)

	out, err := f.svc.Connect(ctx, ConnectInput{CallerID: bob, OtherID: alice})
	require.NoError(t, err)
	assert.True(t, out.Mutual)

	v, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, v.IsAnonymous)
	assert.True(t, v.SenderHidden)
}

func TestCreate_AnonymousToSelfRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{
		CallerID:           alice,
		RecipientID:        alice,
		Body:               "b",
		UnlocksAt:          f.now() + 60,
		IsAnonymous:        true,
		RevealDelaySeconds: ptr(int64(0)),
	})
	wantCode(t, err, errors.ErrNotConnected)
}

type failingConns struct{}

func (failingConns) AreMutuallyConnected(context.Context, string, string) (bool, error) {
	return true, stderrors.New("graph unavailable")
}

func TestCreate_ConnectionErrorFailsClosed(t *testing.T) {
	f := newFixture(t, WithConnections(failingConns{}))
	_, err := f.svc.Create(context.Background(), CreateInput{
		CallerID:           alice,
		RecipientID:        bob,
		Body:               "b",
		UnlocksAt:          f.now() + 60,
		IsAnonymous:        true,
		RevealDelaySeconds: ptr(int64(60)),
	})
	wantCode(t, err, errors.ErrNotConnected)
}

func TestCreate_StoresHintsForSender(t *testing.T) {
	f := newFixture(t)
	v := f.sealAnon(t, time.Hour, 3600, " tall ", "likes tea")
	assert.Equal(t, []string{"tall", "likes tea"}, v.Hints)

	got, err := f.svc.Fetch(context.Background(), FetchInput{CallerID: alice, ID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"tall", "likes tea"}, got.Hints)
}
