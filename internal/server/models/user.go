// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account of the gateway. ID is the immutable 32-char hex
// identifier; Token holds the current session token, nil when logged out.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	Token        *string
	CreatedAt    time.Time
}
