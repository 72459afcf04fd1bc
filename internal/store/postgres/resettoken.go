package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corevaulthq/iam-core/pkg/identity"
)

// PasswordResets implements identity.PasswordResetStore.
type PasswordResets struct{ base }

type resetTokenRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
	CreatedAt time.Time `db:"created_at"`
}

func (r resetTokenRow) toDomain() identity.ResetToken {
	return identity.ResetToken{
		ID:        r.ID,
		UserID:    r.UserID,
		TokenHash: r.TokenHash,
		ExpiresAt: r.ExpiresAt,
		Used:      r.Used,
		CreatedAt: r.CreatedAt,
	}
}

const selectResetTokenColumns = `id, user_id, token_hash, expires_at, used, created_at`

// Save implements identity.PasswordResetStore.
func (s *PasswordResets) Save(ctx context.Context, t identity.ResetToken) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :used, :created_at)
		ON CONFLICT (id) DO UPDATE SET used = EXCLUDED.used`, resetTokenRow{
		ID:        t.ID,
		UserID:    t.UserID,
		TokenHash: t.TokenHash,
		ExpiresAt: t.ExpiresAt,
		Used:      t.Used,
		CreatedAt: t.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("postgres: save password reset token: %w", err)
	}
	return nil
}

// GetByTokenHash implements identity.PasswordResetStore.
func (s *PasswordResets) GetByTokenHash(ctx context.Context, hash string) (identity.ResetToken, error) {
	var row resetTokenRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectResetTokenColumns+` FROM password_reset_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return identity.ResetToken{}, mapNoRows(err, identity.ErrResetTokenInvalidOrExpired)
	}
	return row.toDomain(), nil
}

// MarkUsed implements identity.PasswordResetStore.
func (s *PasswordResets) MarkUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_reset_tokens SET used = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark password reset token used: %w", err)
	}
	return nil
}
