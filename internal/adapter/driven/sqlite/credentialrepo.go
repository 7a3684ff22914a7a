package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// It stores ciphertexts and salts only; encryption happens before values reach it.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// encryptedFieldJSON is the at-rest JSON form of an auxiliary field. Byte
// slices are base64 encoded by encoding/json.
type encryptedFieldJSON struct {
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
}

// Upsert inserts the credential or overwrites the existing record for the same
// (user_id, service_name). The original id and created_at are preserved.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.StoredCredential) error {
	const query = `
		INSERT INTO credentials (
			id, user_id, service_name, credential_kind, secret_ciphertext, secret_salt,
			auxiliary, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, service_name) DO UPDATE SET
			credential_kind = excluded.credential_kind,
			secret_ciphertext = excluded.secret_ciphertext,
			secret_salt = excluded.secret_salt,
			auxiliary = excluded.auxiliary,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	aux := make(map[string]encryptedFieldJSON, len(cred.Auxiliary))
	for name, field := range cred.Auxiliary {
		aux[name] = encryptedFieldJSON{Ciphertext: field.Ciphertext, Salt: field.Salt}
	}
	auxJSON, err := json.Marshal(aux)
	if err != nil {
		return fmt.Errorf("marshal auxiliary fields: %w", err)
	}

	id := cred.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	isActive := 0
	if cred.IsActive {
		isActive = 1
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		id, cred.UserID, cred.ServiceName, cred.CredentialKind,
		cred.Secret.Ciphertext, cred.Secret.Salt, string(auxJSON), isActive,
		formatTime(createdAt), formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert credential for user %q: %w", cred.UserID, err)
	}
	return nil
}

// GetActive returns the active credential for the user and service.
// Returns nil, nil if no active record exists.
func (r *CredentialRepo) GetActive(ctx context.Context, userID, service string) (*model.StoredCredential, error) {
	const query = `
		SELECT id, user_id, service_name, credential_kind, secret_ciphertext, secret_salt,
			auxiliary, is_active, created_at, updated_at
		FROM credentials
		WHERE user_id = ? AND service_name = ? AND is_active = 1
	`

	var (
		cred                 model.StoredCredential
		auxJSON              string
		isActive             int
		createdAt, updatedAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, userID, service).Scan(
		&cred.ID, &cred.UserID, &cred.ServiceName, &cred.CredentialKind,
		&cred.Secret.Ciphertext, &cred.Secret.Salt, &auxJSON, &isActive,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for user %q: %w", userID, err)
	}

	var aux map[string]encryptedFieldJSON
	if err := json.Unmarshal([]byte(auxJSON), &aux); err != nil {
		return nil, fmt.Errorf("unmarshal auxiliary fields for user %q: %w", userID, err)
	}
	cred.Auxiliary = make(map[string]model.EncryptedField, len(aux))
	for name, field := range aux {
		cred.Auxiliary[name] = model.EncryptedField{Ciphertext: field.Ciphertext, Salt: field.Salt}
	}

	cred.IsActive = isActive == 1
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for user %q: %w", userID, err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for user %q: %w", userID, err)
	}

	return &cred, nil
}

// Deactivate soft-deletes the user's credential for the service. The row is
// kept; only is_active flips. Returns how many rows were active.
func (r *CredentialRepo) Deactivate(ctx context.Context, userID, service string) (int64, error) {
	const query = `
		UPDATE credentials SET is_active = 0, updated_at = ?
		WHERE user_id = ? AND service_name = ? AND is_active = 1
	`

	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(time.Now()), userID, service)
	if err != nil {
		return 0, fmt.Errorf("deactivate credential for user %q: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListActiveUserIDs returns every user with an active credential for the service.
func (r *CredentialRepo) ListActiveUserIDs(ctx context.Context, service string) ([]string, error) {
	const query = `SELECT user_id FROM credentials WHERE service_name = ? AND is_active = 1 ORDER BY user_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, service)
	if err != nil {
		return nil, fmt.Errorf("list active credentials: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return userIDs, nil
}
