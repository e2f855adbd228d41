package share

// Projection is the only view of a capsule that public share resolution
// returns. It never carries sender, recipient or body.
type Projection struct {
	IsUnlocked       bool    `json:"is_unlocked"`
	OpenAt           int64   `json:"open_at"`
	Days             int64   `json:"days"`
	Hours            int64   `json:"hours"`
	Minutes          int64   `json:"minutes"`
	SecondsRemaining int64   `json:"seconds_remaining"`
	Title            string  `json:"title"`
	Theme            *string `json:"theme,omitempty"`
	ShareKind        string  `json:"share_kind"`
}

// Project builds the countdown for t at now against its frozen OpenAt.
func Project(t *Token, title string, theme *string, now int64) Projection {
	remaining := max(t.OpenAt-now, 0)
	return Projection{
		IsUnlocked:       now >= t.OpenAt,
		OpenAt:           t.OpenAt,
		Days:             remaining / 86400,
		Hours:            remaining % 86400 / 3600,
		Minutes:          remaining % 3600 / 60,
		SecondsRemaining: remaining,
		Title:            title,
		Theme:            theme,
		ShareKind:        t.ShareKind,
	}
}
