package driven

import (
	"context"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// CredentialStore defines the driven port for encrypted credential persistence.
// Values cross this boundary already encrypted; the vault owns the cipher.
type CredentialStore interface {
	// Upsert inserts the credential or supersedes the existing record for the
	// same (UserID, ServiceName) in place, including its IsActive flag.
	Upsert(ctx context.Context, cred model.StoredCredential) error

	// GetActive returns the active credential for the user and service.
	// Returns nil, nil if none exists.
	GetActive(ctx context.Context, userID, service string) (*model.StoredCredential, error)

	// Deactivate soft-deletes every record for the user and service and
	// returns how many were active before the call.
	Deactivate(ctx context.Context, userID, service string) (int64, error)

	// ListActiveUserIDs returns the users holding an active credential for
	// the service, ordered by user id.
	ListActiveUserIDs(ctx context.Context, service string) ([]string, error)
}

// SecretCipher encrypts individual credential fields with a fresh salt per call.
type SecretCipher interface {
	Encrypt(plaintext string) (model.EncryptedField, error)
	// Decrypt returns an error wrapping model.ErrDecryption when the field was
	// produced under a different key or salt, or has been tampered with.
	Decrypt(field model.EncryptedField) (string, error)
}
