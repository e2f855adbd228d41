package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/errors"
)

func TestPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.seal(t, 30*24*time.Hour)
	recent := f.seal(t, 30*24*time.Hour)
	kept := f.seal(t, 30*24*time.Hour)

	sh, err := f.svc.ShareCreate(ctx, ShareCreateInput{CallerID: alice, CapsuleID: old.ID, ShareKind: "link"})
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, WithdrawInput{CallerID: alice, ID: old.ID})
	require.NoError(t, err)
	f.clk.Advance(10 * 24 * time.Hour)
	_, err = f.svc.Withdraw(ctx, WithdrawInput{CallerID: alice, ID: recent.ID})
	require.NoError(t, err)

	out, err := f.svc.Purge(ctx, PurgeInput{OlderThanDays: ptr(7)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Purged)
	assert.Contains(t, out.Message, "more than 7 days")

	_, err = f.store.GetCapsule(ctx, old.ID, true)
	wantCode(t, err, errors.ErrNotFound)
	_, err = f.store.GetShareByID(ctx, sh.ID)
	wantCode(t, err, errors.ErrNotFound)

	out, err = f.svc.Purge(ctx, PurgeInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Purged)

	_, err = f.store.GetCapsule(ctx, kept.ID, true)
	require.NoError(t, err)

	out, err = f.svc.Purge(ctx, PurgeInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Purged)
	assert.Equal(t, "No withdrawn capsules to purge", out.Message)

	_, err = f.svc.Purge(ctx, PurgeInput{OlderThanDays: ptr(-1)})
	wantCode(t, err, errors.ErrValidation)
}
