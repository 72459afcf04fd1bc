package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/corevaulthq/iam-core/pkg/accesstoken"
)

// Sessions implements accesstoken.SessionStore.
type Sessions struct{ base }

type sessionRow struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	DeviceID         string     `db:"device_id"`
	DeviceUserAgent  string     `db:"device_user_agent"`
	DeviceIPAddress  string     `db:"device_ip_address"`
	RefreshTokenHash string     `db:"refresh_token_hash"`
	IssuedAt         time.Time  `db:"issued_at"`
	ExpiresAt        time.Time  `db:"expires_at"`
	LastUsedAt       time.Time  `db:"last_used_at"`
	IsRevoked        bool       `db:"is_revoked"`
	RevokedAt        *time.Time `db:"revoked_at"`
}

func (r sessionRow) toDomain() accesstoken.Session {
	s := accesstoken.Session{
		ID:     r.ID,
		UserID: r.UserID,
		Device: accesstoken.DeviceInfo{
			DeviceID:  r.DeviceID,
			UserAgent: r.DeviceUserAgent,
			IPAddress: r.DeviceIPAddress,
		},
		RefreshTokenHash: r.RefreshTokenHash,
		IssuedAt:         r.IssuedAt,
		ExpiresAt:        r.ExpiresAt,
		LastUsedAt:       r.LastUsedAt,
		IsRevoked:        r.IsRevoked,
	}
	if r.RevokedAt != nil {
		s.RevokedAt = *r.RevokedAt
	}
	return s
}

func sessionRowOf(s accesstoken.Session) sessionRow {
	row := sessionRow{
		ID:               s.ID,
		UserID:           s.UserID,
		DeviceID:         s.Device.DeviceID,
		DeviceUserAgent:  s.Device.UserAgent,
		DeviceIPAddress:  s.Device.IPAddress,
		RefreshTokenHash: s.RefreshTokenHash,
		IssuedAt:         s.IssuedAt,
		ExpiresAt:        s.ExpiresAt,
		LastUsedAt:       s.LastUsedAt,
		IsRevoked:        s.IsRevoked,
	}
	if !s.RevokedAt.IsZero() {
		t := s.RevokedAt
		row.RevokedAt = &t
	}
	return row
}

const selectSessionColumns = `id, user_id, device_id, device_user_agent, device_ip_address,
	refresh_token_hash, issued_at, expires_at, last_used_at, is_revoked, revoked_at`

// GetByID implements accesstoken.SessionStore.
func (s *Sessions) GetByID(ctx context.Context, id string) (accesstoken.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectSessionColumns+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		return accesstoken.Session{}, mapNoRows(err, accesstoken.ErrSessionNotFound)
	}
	return row.toDomain(), nil
}

// GetActiveByUserID implements accesstoken.SessionStore.
func (s *Sessions) GetActiveByUserID(ctx context.Context, userID string) ([]accesstoken.Session, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+selectSessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_revoked = false AND expires_at > now()`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active sessions: %w", err)
	}
	out := make([]accesstoken.Session, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// GetByRefreshTokenHash implements accesstoken.SessionStore.
func (s *Sessions) GetByRefreshTokenHash(ctx context.Context, hash string) (accesstoken.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectSessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)
	if err != nil {
		return accesstoken.Session{}, mapNoRows(err, accesstoken.ErrSessionNotFound)
	}
	return row.toDomain(), nil
}

// Save implements accesstoken.SessionStore as an upsert keyed on id, used
// both to create a session and to persist Refresh's rotated hash.
func (s *Sessions) Save(ctx context.Context, session accesstoken.Session) error {
	row := sessionRowOf(session)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, user_id, device_id, device_user_agent, device_ip_address,
			refresh_token_hash, issued_at, expires_at, last_used_at, is_revoked, revoked_at)
		VALUES (:id, :user_id, :device_id, :device_user_agent, :device_ip_address,
			:refresh_token_hash, :issued_at, :expires_at, :last_used_at, :is_revoked, :revoked_at)
		ON CONFLICT (id) DO UPDATE SET
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			expires_at = EXCLUDED.expires_at,
			last_used_at = EXCLUDED.last_used_at,
			is_revoked = EXCLUDED.is_revoked,
			revoked_at = EXCLUDED.revoked_at`, row)
	if err != nil {
		logErr(ctx, "save session", err)
		return fmt.Errorf("postgres: save session: %w", err)
	}
	return nil
}

// Revoke implements accesstoken.SessionStore.
func (s *Sessions) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_revoked = true, revoked_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser implements accesstoken.SessionStore.
func (s *Sessions) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_revoked = true, revoked_at = now()
		WHERE user_id = $1 AND is_revoked = false`, userID)
	if err != nil {
		return fmt.Errorf("postgres: revoke all sessions for user: %w", err)
	}
	return nil
}

// DeleteExpired implements accesstoken.SessionStore, backing the
// background sweep described in spec.md §5.
func (s *Sessions) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return int(n), nil
}
