package entity

import "time"

// PasswordReset is the stored half of a reset token: only the SHA-256 digest
// of the emailed token is kept. An account has at most one live row.
type PasswordReset struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (r *PasswordReset) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
