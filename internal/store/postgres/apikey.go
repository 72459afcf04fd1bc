package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corevaulthq/iam-core/pkg/apikey"
	"github.com/corevaulthq/iam-core/pkg/directive"
)

// APIKeys implements apikey.Store.
type APIKeys struct{ base }

type apiKeyRow struct {
	ID         uuid.UUID              `db:"id"`
	UserID     uuid.UUID              `db:"user_id"`
	Name       string                 `db:"name"`
	SecretHash string                 `db:"secret_hash"`
	Directives jsonColumn[[]string]   `db:"directives"`
	CreatedAt  time.Time              `db:"created_at"`
	ExpiresAt  time.Time              `db:"expires_at"`
	RevokedAt  *time.Time             `db:"revoked_at"`
	IsRevoked  bool                   `db:"is_revoked"`
	LastUsedAt *time.Time             `db:"last_used_at"`
}

// Directives are stored as their canonical directive.Encode strings rather
// than a bespoke JSON shape, reusing the same grammar §6.3 already commits
// to round-tripping.
func (r apiKeyRow) toDomain() (apikey.Key, error) {
	directives := make([]directive.Directive, 0, len(r.Directives.Value))
	for _, encoded := range r.Directives.Value {
		d, err := directive.Parse(encoded)
		if err != nil {
			return apikey.Key{}, fmt.Errorf("postgres: parse stored directive %q: %w", encoded, err)
		}
		directives = append(directives, d)
	}
	k := apikey.Key{
		ID:         r.ID,
		UserID:     r.UserID,
		Name:       r.Name,
		SecretHash: r.SecretHash,
		Directives: directives,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		IsRevoked:  r.IsRevoked,
	}
	if r.RevokedAt != nil {
		k.RevokedAt = *r.RevokedAt
	}
	if r.LastUsedAt != nil {
		k.LastUsedAt = *r.LastUsedAt
	}
	return k, nil
}

func apiKeyRowOf(k apikey.Key) apiKeyRow {
	encoded := make([]string, len(k.Directives))
	for i, d := range k.Directives {
		encoded[i] = directive.Encode(d)
	}
	row := apiKeyRow{
		ID:         k.ID,
		UserID:     k.UserID,
		Name:       k.Name,
		SecretHash: k.SecretHash,
		Directives: jsonOf(encoded),
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		IsRevoked:  k.IsRevoked,
	}
	if !k.RevokedAt.IsZero() {
		t := k.RevokedAt
		row.RevokedAt = &t
	}
	if !k.LastUsedAt.IsZero() {
		t := k.LastUsedAt
		row.LastUsedAt = &t
	}
	return row
}

const selectAPIKeyColumns = `id, user_id, name, secret_hash, directives, created_at, expires_at, revoked_at, is_revoked, last_used_at`

// GetByID implements apikey.Store.
func (s *APIKeys) GetByID(ctx context.Context, id uuid.UUID) (apikey.Key, error) {
	var row apiKeyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectAPIKeyColumns+` FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return apikey.Key{}, mapNoRows(err, apikey.ErrNotFound)
	}
	return row.toDomain()
}

// GetBySecretHash implements apikey.Store.
func (s *APIKeys) GetBySecretHash(ctx context.Context, hash string) (apikey.Key, error) {
	var row apiKeyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectAPIKeyColumns+` FROM api_keys WHERE secret_hash = $1`, hash)
	if err != nil {
		return apikey.Key{}, mapNoRows(err, apikey.ErrNotFound)
	}
	return row.toDomain()
}

// GetActiveByUserID implements apikey.Store.
func (s *APIKeys) GetActiveByUserID(ctx context.Context, userID uuid.UUID) ([]apikey.Key, error) {
	var rows []apiKeyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+selectAPIKeyColumns+` FROM api_keys
		WHERE user_id = $1 AND is_revoked = false AND expires_at > now()`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active api keys: %w", err)
	}
	out := make([]apikey.Key, 0, len(rows))
	for _, row := range rows {
		k, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// Save implements apikey.Store's Save.
func (s *APIKeys) Save(ctx context.Context, k apikey.Key) error {
	row := apiKeyRowOf(k)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, secret_hash, directives, created_at, expires_at, revoked_at, is_revoked, last_used_at)
		VALUES (:id, :user_id, :name, :secret_hash, :directives, :created_at, :expires_at, :revoked_at, :is_revoked, :last_used_at)
		ON CONFLICT (id) DO UPDATE SET
			is_revoked = EXCLUDED.is_revoked,
			revoked_at = EXCLUDED.revoked_at,
			last_used_at = EXCLUDED.last_used_at`, row)
	if err != nil {
		logErr(ctx, "save api key", err)
		return fmt.Errorf("postgres: save api key: %w", err)
	}
	return nil
}

// Revoke implements apikey.Store's Revoke.
func (s *APIKeys) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET is_revoked = true, revoked_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: revoke api key: %w", err)
	}
	return nil
}

// DeleteExpiredOrRevoked implements apikey.Store, run inside a transaction
// so the count returned always matches what was actually deleted even
// under concurrent inserts, per BaseRepository.Transaction's
// rollback-on-error pattern.
func (s *APIKeys) DeleteExpiredOrRevoked(ctx context.Context, expiredBefore, revokedBefore time.Time) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM api_keys
			WHERE expires_at < $1 OR (is_revoked = true AND revoked_at < $2)`, expiredBefore, revokedBefore)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired or revoked api keys: %w", err)
	}
	return n, nil
}
