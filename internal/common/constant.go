// Package common contains shared constants and sentinel errors used across
// chatgate components.
package common

// AuthorizationHeaderName is the HTTP header that carries the session token.
const AuthorizationHeaderName = "Authorization"

// Accepted prefixes of the Authorization header value. The bare token is
// accepted as well.
const (
	TokenScheme  = "Token"
	BearerScheme = "Bearer"
)

// Envelope codes returned to clients in the "code" field of every response.
const (
	CodeOK           = 200
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeGrantMissing = 411
	CodeGrantExpired = 412
	CodeInternal     = 500
)
