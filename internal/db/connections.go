package db

import "context"

// AddConnection records that userA follows userB. Idempotent.
func (s *Store) AddConnection(ctx context.Context, userA, userB string, now int64) error {
	_, err := s.exec(ctx, `
		INSERT INTO connections (user_a, user_b, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_a, user_b) DO NOTHING
	`, userA, userB, now)
	return storeErr(err)
}

// RemoveConnection deletes the userA -> userB edge if present.
func (s *Store) RemoveConnection(ctx context.Context, userA, userB string) error {
	_, err := s.exec(ctx, `DELETE FROM connections WHERE user_a = ? AND user_b = ?`, userA, userB)
	return storeErr(err)
}

// AreMutuallyConnected reports whether both directed edges exist.
func (s *Store) AreMutuallyConnected(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM connections
		WHERE (user_a = ? AND user_b = ?) OR (user_a = ? AND user_b = ?)
	`, a, b, b, a).Scan(&n)
	if err != nil {
		return false, storeErr(err)
	}
	return n == 2, nil
}
