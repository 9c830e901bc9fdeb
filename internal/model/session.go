package model

import "time"

// Session is a server-side admin web session. Only the SHA-256 hash of the
// client's token is stored.
type Session struct {
	ID         string    `db:"id"`
	AccountID  int64     `db:"account_id"`
	TokenHash  string    `db:"token_hash"`
	CreatedAt  time.Time `db:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at"`
	ExpiresAt  time.Time `db:"expires_at"` // absolute lifetime cap
}

// ExpiredAt reports whether the session is dead at now, either because it
// outlived its absolute lifetime or sat idle longer than idle.
func (s *Session) ExpiredAt(now time.Time, idle time.Duration) bool {
	if !now.Before(s.ExpiresAt) {
		return true
	}
	return idle > 0 && !now.Before(s.LastSeenAt.Add(idle))
}
