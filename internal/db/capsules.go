package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
)

const capsuleColumns = `id, sender_id, recipient_id, title, body, theme, status,
	is_anonymous, reveal_delay_seconds, created_at, updated_at, unlocks_at,
	opened_at, reveal_at, sender_revealed_at, deleted_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// InsertCapsule stores a new capsule and its hints in one transaction.
func (s *Store) InsertCapsule(ctx context.Context, c *capsule.Capsule, hints *capsule.Hints) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO capsules (`+capsuleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, NULL)
	`),
		c.ID, c.SenderID, c.RecipientID, c.Title, c.Body, toNullString(c.Theme), c.Status.String(),
		c.IsAnonymous, toNullInt64(c.RevealDelaySeconds), c.CreatedAt, c.UpdatedAt, c.UnlocksAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("capsule %s already exists", c.ID))
		}
		return storeErr(err)
	}

	if hints != nil {
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO identity_hints (letter_id, hint1, hint2, hint3)
			VALUES (?, ?, ?, ?)
		`), c.ID, toNullString(hints.Hint1), toNullString(hints.Hint2), toNullString(hints.Hint3))
		if err != nil {
			return storeErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	return nil
}

// GetCapsule retrieves a capsule by its ULID.
// If includeDeleted is false, withdrawn capsules are reported as not found.
func (s *Store) GetCapsule(ctx context.Context, id string, includeDeleted bool) (*capsule.Capsule, error) {
	query := `SELECT ` + capsuleColumns + ` FROM capsules WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	c, err := scanCapsule(s.queryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("capsule", id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return c, nil
}

// GetHints returns the identity hints for a capsule, or nil if it has none.
func (s *Store) GetHints(ctx context.Context, letterID string) (*capsule.Hints, error) {
	var h1, h2, h3 sql.NullString
	err := s.queryRow(ctx, `
		SELECT hint1, hint2, hint3 FROM identity_hints WHERE letter_id = ?
	`, letterID).Scan(&h1, &h2, &h3)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &capsule.Hints{
		LetterID: letterID,
		Hint1:    fromNullString(h1),
		Hint2:    fromNullString(h2),
		Hint3:    fromNullString(h3),
	}, nil
}

// ListFilter selects capsules for ListCapsules.
type ListFilter struct {
	SenderID    string
	RecipientID string

	// Status filters by effective status at Now. Zero means any.
	Status capsule.Status
	Now    int64

	IncludeWithdrawn bool
	Limit            int
	Offset           int
}

// ListCapsules returns one page of capsules, newest first, and the total
// number of matches.
func (s *Store) ListCapsules(ctx context.Context, f ListFilter) ([]*capsule.Capsule, int, error) {
	var (
		where []string
		args  []any
	)
	if f.SenderID != "" {
		where = append(where, "sender_id = ?")
		args = append(args, f.SenderID)
	}
	if f.RecipientID != "" {
		where = append(where, "recipient_id = ?")
		args = append(args, f.RecipientID)
	}
	if !f.IncludeWithdrawn {
		where = append(where, "deleted_at IS NULL")
	}
	if !f.Status.IsZero() {
		pred, pargs := effectiveStatusPredicate(f.Status, f.Now)
		where = append(where, pred)
		args = append(args, pargs...)
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM capsules`+cond, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err)
	}

	rows, err := s.query(ctx,
		`SELECT `+capsuleColumns+` FROM capsules`+cond+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	items, err := scanCapsules(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// effectiveStatusPredicate matches rows whose effective status at now is st.
// A sealed row past its unlock time counts as ready.
func effectiveStatusPredicate(st capsule.Status, now int64) (string, []any) {
	switch st {
	case capsule.Sealed:
		return "(status = 'sealed' AND unlocks_at > ?)", []any{now}
	case capsule.Ready:
		return "(status = 'ready' OR (status = 'sealed' AND unlocks_at <= ?))", []any{now}
	default:
		return "status = ?", []any{st.String()}
	}
}

// ListPromotable returns up to limit sealed capsules whose unlock time has passed.
func (s *Store) ListPromotable(ctx context.Context, now int64, limit int) ([]*capsule.Capsule, error) {
	rows, err := s.query(ctx, `
		SELECT `+capsuleColumns+` FROM capsules
		WHERE status = 'sealed' AND unlocks_at <= ? AND deleted_at IS NULL
		ORDER BY unlocks_at, id
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanCapsules(rows)
}

// ListRevealDue returns up to limit opened anonymous capsules whose sender
// reveal is due. The predicate matches RevealCAS exactly.
func (s *Store) ListRevealDue(ctx context.Context, now int64, limit int) ([]*capsule.Capsule, error) {
	rows, err := s.query(ctx, `
		SELECT `+capsuleColumns+` FROM capsules
		WHERE `+revealDueCond+`
		ORDER BY reveal_at, id
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanCapsules(rows)
}

const revealDueCond = `is_anonymous
		  AND reveal_delay_seconds IS NOT NULL
		  AND opened_at IS NOT NULL
		  AND reveal_at IS NOT NULL
		  AND reveal_at = opened_at + reveal_delay_seconds
		  AND sender_revealed_at IS NULL
		  AND deleted_at IS NULL
		  AND reveal_at <= ?`

// PromoteCAS moves a capsule from sealed to ready if its unlock time has
// passed. Returns false if another writer got there first or it is not due.
func (s *Store) PromoteCAS(ctx context.Context, id string, now int64) (bool, error) {
	return s.applied(ctx, `
		UPDATE capsules
		SET status = 'ready', updated_at = ?
		WHERE id = ? AND status = 'sealed' AND unlocks_at <= ? AND deleted_at IS NULL
	`, now, id, now)
}

// OpenCAS moves a ready capsule to opened, setting opened_at and reveal_at
// in the same write. Exactly one concurrent caller can win.
func (s *Store) OpenCAS(ctx context.Context, id, recipientID string, openedAt int64, revealAt *int64) (bool, error) {
	return s.applied(ctx, `
		UPDATE capsules
		SET status = 'opened', opened_at = ?, reveal_at = ?, updated_at = ?
		WHERE id = ? AND recipient_id = ?
		  AND status = 'ready' AND opened_at IS NULL AND deleted_at IS NULL
	`, openedAt, toNullInt64(revealAt), openedAt, id, recipientID)
}

// RevealCAS sets sender_revealed_at once the reveal is due.
func (s *Store) RevealCAS(ctx context.Context, id string, now int64) (bool, error) {
	return s.applied(ctx, `
		UPDATE capsules
		SET sender_revealed_at = ?
		WHERE id = ? AND `+revealDueCond+`
	`, now, id, now)
}

// WithdrawCAS soft-deletes an unopened capsule on behalf of its sender.
func (s *Store) WithdrawCAS(ctx context.Context, id, senderID string, now int64) (bool, error) {
	return s.applied(ctx, `
		UPDATE capsules
		SET status = 'expired', deleted_at = ?, updated_at = ?
		WHERE id = ? AND sender_id = ?
		  AND status IN ('sealed', 'ready') AND opened_at IS NULL AND deleted_at IS NULL
	`, now, now, id, senderID)
}

// ContentUpdate carries the mutable fields of a sealed capsule. Nil fields
// are left unchanged; an empty Theme clears it.
type ContentUpdate struct {
	Title *string
	Body  *string
	Theme *string
}

// UpdateContentCAS applies u while the capsule is still sealed and its
// unlock time is in the future.
func (s *Store) UpdateContentCAS(ctx context.Context, id, senderID string, u ContentUpdate, now int64) (bool, error) {
	var (
		set  []string
		args []any
	)
	if u.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Body != nil {
		set = append(set, "body = ?")
		args = append(args, *u.Body)
	}
	if u.Theme != nil {
		set = append(set, "theme = ?")
		if *u.Theme == "" {
			args = append(args, nil)
		} else {
			args = append(args, *u.Theme)
		}
	}
	set = append(set, "updated_at = ?")
	args = append(args, now, id, senderID, now)

	return s.applied(ctx, `
		UPDATE capsules
		SET `+strings.Join(set, ", ")+`
		WHERE id = ? AND sender_id = ?
		  AND status = 'sealed' AND unlocks_at > ? AND opened_at IS NULL AND deleted_at IS NULL
	`, args...)
}

// PurgeWithdrawn permanently deletes capsules withdrawn before the given
// instant. Hints and share tokens cascade.
func (s *Store) PurgeWithdrawn(ctx context.Context, before int64) (int, error) {
	res, err := s.exec(ctx, `
		DELETE FROM capsules WHERE deleted_at IS NOT NULL AND deleted_at < ?
	`, before)
	if err != nil {
		return 0, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err)
	}
	return int(n), nil
}

// scanCapsule scans a single row into a Capsule struct.
func scanCapsule(row rowScanner) (*capsule.Capsule, error) {
	var (
		c                capsule.Capsule
		theme            sql.NullString
		status           string
		revealDelay      sql.NullInt64
		openedAt         sql.NullInt64
		revealAt         sql.NullInt64
		senderRevealedAt sql.NullInt64
		deletedAt        sql.NullInt64
	)

	err := row.Scan(
		&c.ID, &c.SenderID, &c.RecipientID, &c.Title, &c.Body, &theme, &status,
		&c.IsAnonymous, &revealDelay, &c.CreatedAt, &c.UpdatedAt, &c.UnlocksAt,
		&openedAt, &revealAt, &senderRevealedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.Status, err = capsule.ParseStatus(status); err != nil {
		return nil, err
	}
	c.Theme = fromNullString(theme)
	c.RevealDelaySeconds = fromNullInt64(revealDelay)
	c.OpenedAt = fromNullInt64(openedAt)
	c.RevealAt = fromNullInt64(revealAt)
	c.SenderRevealedAt = fromNullInt64(senderRevealedAt)
	c.DeletedAt = fromNullInt64(deletedAt)

	return &c, nil
}

func scanCapsules(rows *sql.Rows) ([]*capsule.Capsule, error) {
	defer rows.Close()
	var out []*capsule.Capsule
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}
