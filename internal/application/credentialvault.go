package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

const usernameField = "username"

// CredentialValidator performs a live login attempt.
type CredentialValidator interface {
	Authenticate(ctx context.Context, username, password string) bool
}

// CredentialVault stores upstream credentials encrypted at rest. The username
// and password are sealed independently, each under its own salt.
type CredentialVault struct {
	store        driven.CredentialStore
	cipher       driven.SecretCipher
	newValidator func(username string) CredentialValidator
	now          func() time.Time
}

// NewCredentialVault creates a vault. newValidator builds a throwaway client
// used by Validate; it may be nil, in which case Validate always fails.
func NewCredentialVault(store driven.CredentialStore, cipher driven.SecretCipher, newValidator func(username string) CredentialValidator) *CredentialVault {
	return &CredentialVault{
		store:        store,
		cipher:       cipher,
		newValidator: newValidator,
		now:          time.Now,
	}
}

// Store encrypts and saves the user's credentials, replacing and reactivating
// any existing record. Persistence errors are returned as-is.
func (v *CredentialVault) Store(ctx context.Context, userID, username, password string) error {
	secret, err := v.cipher.Encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}
	user, err := v.cipher.Encrypt(username)
	if err != nil {
		return fmt.Errorf("encrypt username: %w", err)
	}

	now := v.now()
	cred := model.StoredCredential{
		UserID:         userID,
		ServiceName:    model.ServiceGarmin,
		CredentialKind: model.CredentialUsernamePassword,
		Secret:         secret,
		Auxiliary:      map[string]model.EncryptedField{usernameField: user},
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := v.store.Upsert(ctx, cred); err != nil {
		return err
	}

	slog.Info("stored credentials", "user_id", userID)
	return nil
}

// Retrieve returns the user's decrypted credentials, or nil if none are
// active. A record that cannot be decrypted yields model.ErrDecryption.
func (v *CredentialVault) Retrieve(ctx context.Context, userID string) (*model.Credentials, error) {
	cred, err := v.store.GetActive(ctx, userID, model.ServiceGarmin)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	password, err := v.cipher.Decrypt(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("decrypt password for user %q: %w", userID, err)
	}

	field, ok := cred.Auxiliary[usernameField]
	if !ok {
		return nil, fmt.Errorf("%w: username field missing for user %q", model.ErrDecryption, userID)
	}
	username, err := v.cipher.Decrypt(field)
	if err != nil {
		return nil, fmt.Errorf("decrypt username for user %q: %w", userID, err)
	}

	return &model.Credentials{Username: username, Password: password}, nil
}

// HasCredentials reports whether an active record exists without decrypting it.
func (v *CredentialVault) HasCredentials(ctx context.Context, userID string) (bool, error) {
	cred, err := v.store.GetActive(ctx, userID, model.ServiceGarmin)
	if err != nil {
		return false, err
	}
	return cred != nil, nil
}

// Revoke deactivates the user's credentials and reports whether any were active.
func (v *CredentialVault) Revoke(ctx context.Context, userID string) (bool, error) {
	n, err := v.store.Deactivate(ctx, userID, model.ServiceGarmin)
	if err != nil {
		return false, err
	}
	if n > 0 {
		slog.Info("revoked credentials", "user_id", userID)
	}
	return n > 0, nil
}

// ActiveUsers lists every user with active credentials.
func (v *CredentialVault) ActiveUsers(ctx context.Context) ([]string, error) {
	return v.store.ListActiveUserIDs(ctx, model.ServiceGarmin)
}

// Validate attempts a live login with a fresh client. Every failure,
// including a panic inside the client, is reported as false.
func (v *CredentialVault) Validate(ctx context.Context, username, password string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("credential validation panicked", "panic", r)
			ok = false
		}
	}()

	if v.newValidator == nil {
		return false
	}
	return v.newValidator(username).Authenticate(ctx, username, password)
}
