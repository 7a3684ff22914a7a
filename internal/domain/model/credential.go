package model

import "time"

// EncryptedField is a ciphertext together with the salt its key was derived from.
type EncryptedField struct {
	Ciphertext []byte
	Salt       []byte
}

// StoredCredential is the at-rest form of a user's upstream credentials.
// Secret holds the password; Auxiliary holds other encrypted fields keyed by
// name ("username"). Each field carries its own salt.
type StoredCredential struct {
	ID             string
	UserID         string
	ServiceName    string
	CredentialKind string
	Secret         EncryptedField
	Auxiliary      map[string]EncryptedField
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Credentials are decrypted upstream login credentials.
type Credentials struct {
	Username string
	Password string
}
