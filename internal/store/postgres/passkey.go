package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/corevaulthq/iam-core/pkg/identity"
)

// Passkeys implements identity.PasskeyCredentialStore.
type Passkeys struct{ base }

type passkeyRow struct {
	CredentialID []byte    `db:"credential_id"`
	UserID       uuid.UUID `db:"user_id"`
	PublicKey    []byte    `db:"public_key"`
}

// GetByCredentialID implements identity.PasskeyCredentialStore.
func (s *Passkeys) GetByCredentialID(ctx context.Context, credentialID []byte) (identity.PasskeyCredential, error) {
	var row passkeyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT credential_id, user_id, public_key FROM passkey_credentials WHERE credential_id = $1`, credentialID)
	if err != nil {
		return identity.PasskeyCredential{}, mapNoRows(err, identity.ErrPasskeyNotFound)
	}
	return identity.PasskeyCredential{
		CredentialID: row.CredentialID,
		UserID:       row.UserID,
		PublicKey:    row.PublicKey,
	}, nil
}

// SavePasskeyCredential persists a passkey credential for userID. Not part
// of identity.PasskeyCredentialStore (a read-only lookup contract), but the
// write side a registration flow needs to populate the table this store
// reads from.
func (s *Passkeys) SavePasskeyCredential(ctx context.Context, c identity.PasskeyCredential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passkey_credentials (credential_id, user_id, public_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (credential_id) DO UPDATE SET public_key = EXCLUDED.public_key`,
		c.CredentialID, c.UserID, c.PublicKey)
	if err != nil {
		return fmt.Errorf("postgres: save passkey credential: %w", err)
	}
	return nil
}
