// Package share models public countdown tokens for sealed capsules.
package share

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/hpungsan/keepsake/internal/capsule"
	"github.com/hpungsan/keepsake/internal/errors"
)

// tokenBytes of entropy; encodes to 43 URL-safe characters.
const tokenBytes = 32

// TokenLen is the encoded token length.
var TokenLen = base64.RawURLEncoding.EncodedLen(tokenBytes)

var (
	tokenRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	kindRegex  = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

// Token is a revocable grant to view a capsule's anonymized countdown.
type Token struct {
	ID        string `json:"id"`
	LetterID  string `json:"letter_id"`
	OwnerID   string `json:"owner_id"`
	Token     string `json:"token"`
	ShareKind string `json:"share_kind"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
	RevokedAt *int64 `json:"revoked_at,omitempty"`

	// OpenAt is the capsule's unlocks_at frozen at issuance.
	OpenAt int64 `json:"open_at"`
}

// Revoked reports whether the owner has revoked the token.
func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's expiry has passed at now.
func (t *Token) Expired(now int64) bool {
	return t.ExpiresAt != nil && now >= *t.ExpiresAt
}

// Active reports whether the token may resolve at now.
func (t *Token) Active(now int64) bool {
	return !t.Revoked() && !t.Expired(now)
}

// GenerateToken returns a new random URL-safe token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WellFormed reports whether s could be a token this package issued.
// Lets resolution reject garbage before touching the store.
func WellFormed(s string) bool {
	return len(s) == TokenLen && tokenRegex.MatchString(s)
}

// NormalizeKind validates and normalizes a share kind ("story", "link", ...).
func NormalizeKind(kind string) (string, error) {
	k := capsule.Normalize(kind)
	if !kindRegex.MatchString(k) {
		return "", errors.NewValidationField("share_kind", "must be 1-32 characters of a-z, 0-9, '_' or '-'")
	}
	return k, nil
}
