package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/share"
)

const shareColumns = `id, letter_id, owner_id, token, share_kind, created_at, expires_at, revoked_at, open_at`

// ErrTokenCollision is returned when a generated token already exists.
// Callers regenerate and retry.
var ErrTokenCollision = errors.NewConflict("share token collision")

// ShareIssue is the precondition set InsertShareConditional re-checks
// inside the insert itself.
type ShareIssue struct {
	Now         int64
	WindowStart int64 // quota counts tokens created after this instant
	Quota       int
}

// InsertShareConditional inserts t only if its capsule is still sealed,
// owned by t.OwnerID, unlocking in the future, and the owner is under quota.
// open_at is copied from the capsule's unlocks_at in the same statement.
// Returns false if any condition failed.
func (s *Store) InsertShareConditional(ctx context.Context, t *share.Token, p ShareIssue) (bool, error) {
	const insert = `
		INSERT INTO share_tokens (` + shareColumns + `)
		SELECT CAST(? AS TEXT), c.id, CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT),
		       CAST(? AS BIGINT), CAST(? AS BIGINT), CAST(NULL AS BIGINT), c.unlocks_at
		FROM capsules c
		WHERE c.id = ? AND c.sender_id = ?
		  AND c.status = 'sealed' AND c.unlocks_at > ?
		  AND c.opened_at IS NULL AND c.deleted_at IS NULL
		  AND (SELECT COUNT(*) FROM share_tokens s WHERE s.owner_id = ? AND s.created_at > ?) < ?
	`
	args := []any{
		t.ID, t.OwnerID, t.Token, t.ShareKind, t.CreatedAt, toNullInt64(t.ExpiresAt),
		t.LetterID, t.OwnerID, p.Now,
		t.OwnerID, p.WindowStart, p.Quota,
	}

	if s.dialect == SQLite {
		// SQLite serializes writers, so the count and insert are atomic.
		res, err := s.exec(ctx, insert, args...)
		if err != nil {
			if isUniqueConstraintError(err) {
				return false, ErrTokenCollision
			}
			return false, storeErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, storeErr(err)
		}
		return n > 0, nil
	}

	// Postgres runs READ COMMITTED; serialize issuance per owner so two
	// concurrent inserts cannot both see the same count.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.OwnerID); err != nil {
		return false, storeErr(err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(insert), args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, ErrTokenCollision
		}
		return false, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return false, storeErr(err)
	}
	return n > 0, nil
}

// CountSharesSince counts tokens the owner created after since.
func (s *Store) CountSharesSince(ctx context.Context, ownerID string, since int64) (int, error) {
	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM share_tokens WHERE owner_id = ? AND created_at > ?
	`, ownerID, since).Scan(&n)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// GetShareByToken looks up a token string.
func (s *Store) GetShareByToken(ctx context.Context, token string) (*share.Token, error) {
	t, err := scanShare(s.queryRow(ctx, `SELECT `+shareColumns+` FROM share_tokens WHERE token = ?`, token))
	if err == sql.ErrNoRows {
		return nil, errors.NewShareNotFound()
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return t, nil
}

// GetShareByID looks up a token by its row id.
func (s *Store) GetShareByID(ctx context.Context, id string) (*share.Token, error) {
	t, err := scanShare(s.queryRow(ctx, `SELECT `+shareColumns+` FROM share_tokens WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("share", id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return t, nil
}

// ListShares returns the owner's tokens for one capsule, newest first.
func (s *Store) ListShares(ctx context.Context, letterID, ownerID string) ([]*share.Token, error) {
	rows, err := s.query(ctx, `
		SELECT `+shareColumns+` FROM share_tokens
		WHERE letter_id = ? AND owner_id = ?
		ORDER BY created_at DESC, id DESC
	`, letterID, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []*share.Token
	for rows.Next() {
		t, err := scanShare(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// RevokeShareCAS sets revoked_at if the token is not already revoked.
func (s *Store) RevokeShareCAS(ctx context.Context, id, ownerID string, now int64) (bool, error) {
	return s.applied(ctx, `
		UPDATE share_tokens SET revoked_at = ?
		WHERE id = ? AND owner_id = ? AND revoked_at IS NULL
	`, now, id, ownerID)
}

func scanShare(row rowScanner) (*share.Token, error) {
	var (
		t         share.Token
		expiresAt sql.NullInt64
		revokedAt sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.LetterID, &t.OwnerID, &t.Token, &t.ShareKind,
		&t.CreatedAt, &expiresAt, &revokedAt, &t.OpenAt,
	)
	if err != nil {
		return nil, err
	}
	t.ExpiresAt = fromNullInt64(expiresAt)
	t.RevokedAt = fromNullInt64(revokedAt)
	return &t, nil
}
