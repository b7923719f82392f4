// Package common defines shared constants and sentinel errors used across
// the gateway layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Login input errors.
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Completion input errors.
	ErrEmptyMessages       = errors.New("messages is empty")
	ErrEmptyPrompt         = errors.New("prompt is empty")
	ErrConversationForeign = errors.New("conversation belongs to another user")

	// Completion outcome errors. Both are safe to show to clients.
	ErrServiceBusy = errors.New("service is busy, please try again later")
	ErrTryLater    = errors.New("please try again later")

	// Credential pool errors.
	ErrCredentialOccupied = errors.New("credential is occupied")
	ErrEmptyCredential    = errors.New("credential secret is empty")

	// Record query errors.
	ErrInvalidRange = errors.New("invalid time range")

	// Access grant errors.
	ErrGrantNotFound = errors.New("no access grant")
	ErrGrantExpired  = errors.New("access grant expired")
	ErrInvalidDays   = errors.New("days must be positive")
)
