// Package auth mints and verifies the HS256 session tokens of the gateway.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer names the gateway in the "iss" claim; tokens from anyone else are
// rejected.
const Issuer = "chatgate"

// IssueSessionToken signs a session token whose subject is userID. Each call
// gets its own token id, so a second login within the same second still
// replaces the stored token with a different value.
func IssueSessionToken(userID string, secret []byte, validity time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// SessionUserID verifies a session token and returns its subject.
// Expired tokens yield common.ErrTokenExpired, everything else that fails
// verification yields common.ErrInvalidToken.
func SessionUserID(token string, secret []byte) (string, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", common.ErrTokenExpired
	case err != nil:
		return "", common.ErrInvalidToken
	case claims.Subject == "":
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
