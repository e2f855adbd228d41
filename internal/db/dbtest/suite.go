// Package dbtest is a backend-agnostic compliance suite for db.Store.
package dbtest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/share"
)

// base is far enough in the future that rows from other runs never collide
// with the instants used here.
const base = int64(4_000_000_000)

// Run exercises the store contract. makeStore must return a migrated store;
// it may be shared between subtests because every subtest uses fresh ids.
func Run(t *testing.T, makeStore func(t *testing.T) *db.Store) {
	t.Helper()
	s := makeStore(t)

	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, s) })
	t.Run("AnonymityCheckConstraint", func(t *testing.T) { testAnonymityConstraint(t, s) })
	t.Run("PromoteCAS", func(t *testing.T) { testPromote(t, s) })
	t.Run("OpenCAS_SingleWinner", func(t *testing.T) { testOpenSingleWinner(t, s) })
	t.Run("RevealCAS", func(t *testing.T) { testReveal(t, s) })
	t.Run("WithdrawCAS", func(t *testing.T) { testWithdraw(t, s) })
	t.Run("UpdateContentCAS", func(t *testing.T) { testUpdateContent(t, s) })
	t.Run("ListEffectiveStatus", func(t *testing.T) { testListEffectiveStatus(t, s) })
	t.Run("ShareIssueQuota", func(t *testing.T) { testShareQuota(t, s) })
	t.Run("ShareIssueRequiresSealed", func(t *testing.T) { testShareRequiresSealed(t, s) })
	t.Run("ShareTokenCollision", func(t *testing.T) { testShareCollision(t, s) })
	t.Run("ShareRevoke", func(t *testing.T) { testShareRevoke(t, s) })
	t.Run("PurgeCascades", func(t *testing.T) { testPurge(t, s) })
	t.Run("Connections", func(t *testing.T) { testConnections(t, s) })
}

func ptr[T any](v T) *T { return &v }

func uid(prefix string) string { return prefix + "-" + uuid.NewString() }

// newCapsule builds a sealed capsule unlocking at unlocksAt.
func newCapsule(sender, recipient string, unlocksAt int64) *capsule.Capsule {
	return &capsule.Capsule{
		ID:          uuid.NewString(),
		SenderID:    sender,
		RecipientID: recipient,
		Title:       "hello",
		Body:        "see you later",
		Status:      capsule.Sealed,
		CreatedAt:   base,
		UpdatedAt:   base,
		UnlocksAt:   unlocksAt,
	}
}

func anonymous(c *capsule.Capsule, delay int64) *capsule.Capsule {
	c.IsAnonymous = true
	c.RevealDelaySeconds = ptr(delay)
	return c
}

func insert(t *testing.T, s *db.Store, c *capsule.Capsule, hints *capsule.Hints) {
	t.Helper()
	require.NoError(t, s.InsertCapsule(context.Background(), c, hints))
}

func get(t *testing.T, s *db.Store, id string) *capsule.Capsule {
	t.Helper()
	c, err := s.GetCapsule(context.Background(), id, true)
	require.NoError(t, err)
	return c
}

// openCapsule drives c through promote and open at instant at.
func openCapsule(t *testing.T, s *db.Store, c *capsule.Capsule, at int64) {
	t.Helper()
	ctx := context.Background()
	ok, err := s.PromoteCAS(ctx, c.ID, at)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.OpenCAS(ctx, c.ID, c.RecipientID, at, capsule.RevealAtFor(c, at))
	require.NoError(t, err)
	require.True(t, ok)
}

func testInsertAndGet(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := anonymous(newCapsule(uid("s"), uid("r"), base+100), 3600)
	c.Theme = ptr("winter")
	hints := capsule.NewHints(c.ID, []string{"one", "two"})
	insert(t, s, c, hints)

	got, err := s.GetCapsule(ctx, c.ID, false)
	require.NoError(t, err)
	assert.Equal(t, c.SenderID, got.SenderID)
	assert.Equal(t, capsule.Sealed, got.Status)
	assert.True(t, got.IsAnonymous)
	require.NotNil(t, got.RevealDelaySeconds)
	assert.Equal(t, int64(3600), *got.RevealDelaySeconds)
	require.NotNil(t, got.Theme)
	assert.Equal(t, "winter", *got.Theme)
	assert.Nil(t, got.OpenedAt)

	gotHints, err := s.GetHints(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, gotHints.List())

	noHints, err := s.GetHints(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, noHints)

	_, err = s.GetCapsule(ctx, uuid.NewString(), true)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	err = s.InsertCapsule(ctx, c, nil)
	assert.True(t, errors.Is(err, errors.ErrConflict), "duplicate id: %v", err)
}

func testAnonymityConstraint(t *testing.T, s *db.Store) {
	c := newCapsule(uid("s"), uid("r"), base+100)
	c.IsAnonymous = true // no delay
	assert.Error(t, s.InsertCapsule(context.Background(), c, nil))

	d := newCapsule(uid("s"), uid("r"), base+100)
	d.RevealDelaySeconds = ptr(int64(10)) // delay without flag
	assert.Error(t, s.InsertCapsule(context.Background(), d, nil))
}

func testPromote(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100)
	insert(t, s, c, nil)

	ok, err := s.PromoteCAS(ctx, c.ID, base+99)
	require.NoError(t, err)
	assert.False(t, ok, "not due yet")

	due, err := s.ListPromotable(ctx, base+100, 1000)
	require.NoError(t, err)
	assert.True(t, containsID(due, c.ID))

	ok, err = s.PromoteCAS(ctx, c.ID, base+100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, capsule.Ready, get(t, s, c.ID).Status)

	ok, err = s.PromoteCAS(ctx, c.ID, base+200)
	require.NoError(t, err)
	assert.False(t, ok, "second promote is a no-op")
}

func testOpenSingleWinner(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := anonymous(newCapsule(uid("s"), uid("r"), base+100), 600)
	insert(t, s, c, nil)

	ok, err := s.OpenCAS(ctx, c.ID, c.RecipientID, base+50, nil)
	require.NoError(t, err)
	assert.False(t, ok, "sealed capsule cannot be opened by CAS")

	ok, err = s.PromoteCAS(ctx, c.ID, base+100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.OpenCAS(ctx, c.ID, uid("mallory"), base+101, nil)
	require.NoError(t, err)
	assert.False(t, ok, "wrong recipient")

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := base + 200 + int64(i)
			won, err := s.OpenCAS(ctx, c.ID, c.RecipientID, at, capsule.RevealAtFor(c, at))
			if err != nil {
				t.Errorf("OpenCAS: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one open must succeed")

	got := get(t, s, c.ID)
	assert.Equal(t, capsule.Opened, got.Status)
	require.NotNil(t, got.OpenedAt)
	require.NotNil(t, got.RevealAt)
	assert.Equal(t, *got.OpenedAt+600, *got.RevealAt)
}

func testReveal(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := anonymous(newCapsule(uid("s"), uid("r"), base+100), 600)
	insert(t, s, c, nil)
	openCapsule(t, s, c, base+100)

	ok, err := s.RevealCAS(ctx, c.ID, base+699)
	require.NoError(t, err)
	assert.False(t, ok, "reveal before reveal_at")

	due, err := s.ListRevealDue(ctx, base+700, 1000)
	require.NoError(t, err)
	assert.True(t, containsID(due, c.ID))

	ok, err = s.RevealCAS(ctx, c.ID, base+700)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RevealCAS(ctx, c.ID, base+800)
	require.NoError(t, err)
	assert.False(t, ok, "reveal happens once")

	got := get(t, s, c.ID)
	require.NotNil(t, got.SenderRevealedAt)
	assert.Equal(t, base+700, *got.SenderRevealedAt)

	signed := newCapsule(uid("s"), uid("r"), base+100)
	insert(t, s, signed, nil)
	openCapsule(t, s, signed, base+100)
	ok, err = s.RevealCAS(ctx, signed.ID, base+10_000)
	require.NoError(t, err)
	assert.False(t, ok, "signed capsules have no reveal")
}

func testWithdraw(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100)
	insert(t, s, c, nil)

	ok, err := s.WithdrawCAS(ctx, c.ID, c.RecipientID, base+10)
	require.NoError(t, err)
	assert.False(t, ok, "only the sender can withdraw")

	ok, err = s.WithdrawCAS(ctx, c.ID, c.SenderID, base+10)
	require.NoError(t, err)
	assert.True(t, ok)

	got := get(t, s, c.ID)
	assert.Equal(t, capsule.Expired, got.Status)
	require.NotNil(t, got.DeletedAt)

	_, err = s.GetCapsule(ctx, c.ID, false)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	ok, err = s.WithdrawCAS(ctx, c.ID, c.SenderID, base+20)
	require.NoError(t, err)
	assert.False(t, ok)

	opened := newCapsule(uid("s"), uid("r"), base+100)
	insert(t, s, opened, nil)
	openCapsule(t, s, opened, base+100)
	ok, err = s.WithdrawCAS(ctx, opened.ID, opened.SenderID, base+200)
	require.NoError(t, err)
	assert.False(t, ok, "opened capsules cannot be withdrawn")
}

func testUpdateContent(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100)
	c.Theme = ptr("spring")
	insert(t, s, c, nil)

	ok, err := s.UpdateContentCAS(ctx, c.ID, c.SenderID, db.ContentUpdate{
		Title: ptr("new title"),
		Theme: ptr(""),
	}, base+50)
	require.NoError(t, err)
	assert.True(t, ok)

	got := get(t, s, c.ID)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, c.Body, got.Body)
	assert.Nil(t, got.Theme)
	assert.Equal(t, base+50, got.UpdatedAt)

	ok, err = s.UpdateContentCAS(ctx, c.ID, c.SenderID, db.ContentUpdate{Body: ptr("late")}, base+100)
	require.NoError(t, err)
	assert.False(t, ok, "no edits once the unlock time is reached")

	ok, err = s.UpdateContentCAS(ctx, c.ID, c.RecipientID, db.ContentUpdate{Body: ptr("x")}, base+50)
	require.NoError(t, err)
	assert.False(t, ok, "recipient cannot edit")
}

func testListEffectiveStatus(t *testing.T, s *db.Store) {
	ctx := context.Background()
	sender := uid("s")
	recipient := uid("r")

	future := newCapsule(sender, recipient, base+1000)
	due := newCapsule(sender, recipient, base+100) // sealed in store, ready at base+500
	withdrawn := newCapsule(sender, recipient, base+1000)
	for _, c := range []*capsule.Capsule{future, due, withdrawn} {
		insert(t, s, c, nil)
	}
	_, err := s.WithdrawCAS(ctx, withdrawn.ID, sender, base+1)
	require.NoError(t, err)

	list := func(f db.ListFilter) ([]*capsule.Capsule, int) {
		f.Now = base + 500
		f.Limit = 50
		items, total, err := s.ListCapsules(ctx, f)
		require.NoError(t, err)
		return items, total
	}

	items, total := list(db.ListFilter{RecipientID: recipient})
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, _ = list(db.ListFilter{RecipientID: recipient, Status: capsule.Ready})
	require.Len(t, items, 1)
	assert.Equal(t, due.ID, items[0].ID)

	items, _ = list(db.ListFilter{RecipientID: recipient, Status: capsule.Sealed})
	require.Len(t, items, 1)
	assert.Equal(t, future.ID, items[0].ID)

	_, total = list(db.ListFilter{SenderID: sender, IncludeWithdrawn: true})
	assert.Equal(t, 3, total)

	items, total = list(db.ListFilter{SenderID: sender, IncludeWithdrawn: true, Status: capsule.Expired})
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, withdrawn.ID, items[0].ID)
}

func newToken(t *testing.T, c *capsule.Capsule, now int64) *share.Token {
	t.Helper()
	tok, err := share.GenerateToken()
	require.NoError(t, err)
	return &share.Token{
		ID:        uuid.NewString(),
		LetterID:  c.ID,
		OwnerID:   c.SenderID,
		Token:     tok,
		ShareKind: "story",
		CreatedAt: now,
	}
}

func testShareQuota(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100_000)
	insert(t, s, c, nil)

	issue := func(now int64) bool {
		ok, err := s.InsertShareConditional(ctx, newToken(t, c, now), db.ShareIssue{
			Now: now, WindowStart: now - 86400, Quota: 5,
		})
		require.NoError(t, err)
		return ok
	}

	for i := range 5 {
		assert.True(t, issue(base+int64(i)), "issue %d", i+1)
	}
	assert.False(t, issue(base+10), "sixth issue inside the window")

	n, err := s.CountSharesSince(ctx, c.SenderID, base+10-86400)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.True(t, issue(base+86400+1), "window has rolled past the first token")

	tokens, err := s.ListShares(ctx, c.ID, c.SenderID)
	require.NoError(t, err)
	require.Len(t, tokens, 6)
	assert.Equal(t, base+86400+1, tokens[0].CreatedAt, "newest first")
	for _, tok := range tokens {
		assert.Equal(t, c.UnlocksAt, tok.OpenAt, "open_at frozen from unlocks_at")
	}
}

func testShareRequiresSealed(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100)
	insert(t, s, c, nil)

	p := db.ShareIssue{Now: base + 100, WindowStart: base + 100 - 86400, Quota: 5}
	ok, err := s.InsertShareConditional(ctx, newToken(t, c, base+100), p)
	require.NoError(t, err)
	assert.False(t, ok, "unlock time reached")

	other := newToken(t, c, base)
	other.OwnerID = c.RecipientID
	ok, err = s.InsertShareConditional(ctx, other, db.ShareIssue{Now: base, WindowStart: base - 86400, Quota: 5})
	require.NoError(t, err)
	assert.False(t, ok, "non-owner")

	_, err = s.WithdrawCAS(ctx, c.ID, c.SenderID, base+1)
	require.NoError(t, err)
	ok, err = s.InsertShareConditional(ctx, newToken(t, c, base+2), db.ShareIssue{Now: base + 2, WindowStart: base - 86400, Quota: 5})
	require.NoError(t, err)
	assert.False(t, ok, "withdrawn")
}

func testShareCollision(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100_000)
	insert(t, s, c, nil)
	p := db.ShareIssue{Now: base, WindowStart: base - 86400, Quota: 5}

	first := newToken(t, c, base)
	ok, err := s.InsertShareConditional(ctx, first, p)
	require.NoError(t, err)
	require.True(t, ok)

	dup := newToken(t, c, base)
	dup.Token = first.Token
	_, err = s.InsertShareConditional(ctx, dup, p)
	assert.ErrorIs(t, err, db.ErrTokenCollision)

	got, err := s.GetShareByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.GetShareByToken(ctx, "no-such-token")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func testShareRevoke(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := newCapsule(uid("s"), uid("r"), base+100_000)
	insert(t, s, c, nil)
	tok := newToken(t, c, base)
	ok, err := s.InsertShareConditional(ctx, tok, db.ShareIssue{Now: base, WindowStart: base - 86400, Quota: 5})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.RevokeShareCAS(ctx, tok.ID, c.RecipientID, base+1)
	require.NoError(t, err)
	assert.False(t, ok, "only the owner can revoke")

	ok, err = s.RevokeShareCAS(ctx, tok.ID, c.SenderID, base+1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RevokeShareCAS(ctx, tok.ID, c.SenderID, base+2)
	require.NoError(t, err)
	assert.False(t, ok, "already revoked")

	got, err := s.GetShareByID(ctx, tok.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, base+1, *got.RevokedAt)

	_, err = s.GetShareByID(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func testPurge(t *testing.T, s *db.Store) {
	ctx := context.Background()
	c := anonymous(newCapsule(uid("s"), uid("r"), base+100_000), 60)
	insert(t, s, c, capsule.NewHints(c.ID, []string{"a"}))
	tok := newToken(t, c, base)
	ok, err := s.InsertShareConditional(ctx, tok, db.ShareIssue{Now: base, WindowStart: base - 86400, Quota: 5})
	require.NoError(t, err)
	require.True(t, ok)

	kept := newCapsule(uid("s"), uid("r"), base+100_000)
	insert(t, s, kept, nil)

	const withdrawnAt = base + 50_000
	_, err = s.WithdrawCAS(ctx, c.ID, c.SenderID, withdrawnAt)
	require.NoError(t, err)

	_, err = s.PurgeWithdrawn(ctx, withdrawnAt)
	require.NoError(t, err)
	_, err = s.GetCapsule(ctx, c.ID, true)
	require.NoError(t, err, "cutoff is exclusive")

	n, err := s.PurgeWithdrawn(ctx, withdrawnAt+1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	_, err = s.GetCapsule(ctx, c.ID, true)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	hints, err := s.GetHints(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, hints, "hints cascade")
	_, err = s.GetShareByToken(ctx, tok.Token)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "share tokens cascade")

	_, err = s.GetCapsule(ctx, kept.ID, true)
	assert.NoError(t, err)
}

func testConnections(t *testing.T, s *db.Store) {
	ctx := context.Background()
	a, b := uid("a"), uid("b")

	ok, err := s.AreMutuallyConnected(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddConnection(ctx, a, b, base))
	require.NoError(t, s.AddConnection(ctx, a, b, base), "idempotent")
	ok, err = s.AreMutuallyConnected(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok, "one direction is not mutual")

	require.NoError(t, s.AddConnection(ctx, b, a, base))
	ok, err = s.AreMutuallyConnected(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.RemoveConnection(ctx, b, a))
	ok, err = s.AreMutuallyConnected(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.AreMutuallyConnected(ctx, a, a)
	require.NoError(t, err)
	assert.False(t, ok, "self is never a connection")
}

func containsID(items []*capsule.Capsule, id string) bool {
	for _, c := range items {
		if c.ID == id {
			return true
		}
	}
	return false
}
