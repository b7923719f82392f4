package models

import "time"

// Credential is an upstream API key.
//
// OwnerID nil means the key belongs to the shared pool. Secret is only ever
// plaintext in memory; the repository stores it sealed. OccupantID is set
// while a request holds the key.
type Credential struct {
	ID         int64
	OwnerID    *string
	Secret     string
	Live       bool
	OccupantID *string
	OccupiedAt *time.Time

	// Ephemeral marks a sandbox credential that never touches the database.
	Ephemeral bool
}

// SealedCredential is the at-rest form of a Credential.
type SealedCredential struct {
	ID               int64
	OwnerID          *string
	SecretCiphertext []byte
	SecretNonce      []byte
	Live             bool
	OccupantID       *string
	OccupiedAt       *time.Time
}
