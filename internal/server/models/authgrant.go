package models

import "time"

// AuthGrant is a time-boxed window of premium access for a user.
type AuthGrant struct {
	ID      int64
	UserID  string
	BeganAt time.Time
	EndAt   time.Time
}

// Covers reports whether now falls inside the window, both ends inclusive.
func (g *AuthGrant) Covers(now time.Time) bool {
	return !now.Before(g.BeganAt) && !now.After(g.EndAt)
}
