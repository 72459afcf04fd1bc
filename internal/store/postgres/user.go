package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corevaulthq/iam-core/pkg/identity"
	"github.com/corevaulthq/iam-core/pkg/rbacrole"
	"github.com/corevaulthq/iam-core/pkg/scope"
)

// Users implements identity.UserStore.
type Users struct{ base }

// userRow is the users table's column shape. Nested structures
// (role_assignments, direct_grants, identity_links) are stored as JSONB,
// generalizing the teacher's StringArray column pattern.
type userRow struct {
	ID                 uuid.UUID                            `db:"id"`
	Username           string                               `db:"username"`
	NormalizedUsername string                               `db:"normalized_username"`
	Email              string                               `db:"email"`
	PasswordHash       sql.NullString                       `db:"password_hash"`
	IsAnonymous        bool                                 `db:"is_anonymous"`
	RoleAssignments    jsonColumn[[]rbacrole.RoleAssignment] `db:"role_assignments"`
	DirectGrants       jsonColumn[[]scope.DirectGrant]       `db:"direct_grants"`
	IdentityLinks      jsonColumn[[]identity.IdentityLink]   `db:"identity_links"`
	LockoutEnd         sql.NullTime                          `db:"lockout_end"`
	AccessFailedCount  int                                  `db:"access_failed_count"`
	CreatedAt          time.Time                            `db:"created_at"`
	LinkedAt           sql.NullTime                          `db:"linked_at"`
	LastLoginAt        sql.NullTime                          `db:"last_login_at"`
}

func (r userRow) toDomain() identity.User {
	u := identity.User{
		ID:                 r.ID,
		Username:           r.Username,
		NormalizedUsername: r.NormalizedUsername,
		Email:              r.Email,
		IsAnonymous:        r.IsAnonymous,
		RoleAssignments:    r.RoleAssignments.Value,
		DirectGrants:       r.DirectGrants.Value,
		IdentityLinks:      r.IdentityLinks.Value,
		AccessFailedCount:  r.AccessFailedCount,
		CreatedAt:          r.CreatedAt,
	}
	if r.PasswordHash.Valid {
		u.Password = &identity.PasswordCredential{Hash: r.PasswordHash.String}
	}
	if r.LockoutEnd.Valid {
		u.LockoutEnd = r.LockoutEnd.Time
	}
	if r.LinkedAt.Valid {
		u.LinkedAt = r.LinkedAt.Time
	}
	if r.LastLoginAt.Valid {
		u.LastLoginAt = r.LastLoginAt.Time
	}
	return u
}

func userRowOf(u identity.User) userRow {
	r := userRow{
		ID:                 u.ID,
		Username:           u.Username,
		NormalizedUsername: u.NormalizedUsername,
		Email:              u.Email,
		IsAnonymous:        u.IsAnonymous,
		RoleAssignments:    jsonOf(u.RoleAssignments),
		DirectGrants:       jsonOf(u.DirectGrants),
		IdentityLinks:      jsonOf(u.IdentityLinks),
		AccessFailedCount:  u.AccessFailedCount,
		CreatedAt:          u.CreatedAt,
	}
	if u.Password != nil {
		r.PasswordHash = sql.NullString{String: u.Password.Hash, Valid: true}
	}
	if !u.LockoutEnd.IsZero() {
		r.LockoutEnd = sql.NullTime{Time: u.LockoutEnd, Valid: true}
	}
	if !u.LinkedAt.IsZero() {
		r.LinkedAt = sql.NullTime{Time: u.LinkedAt, Valid: true}
	}
	if !u.LastLoginAt.IsZero() {
		r.LastLoginAt = sql.NullTime{Time: u.LastLoginAt, Valid: true}
	}
	return r
}

const selectUserColumns = `id, username, normalized_username, email, password_hash, is_anonymous,
	role_assignments, direct_grants, identity_links, lockout_end, access_failed_count,
	created_at, linked_at, last_login_at`

// GetByID implements identity.UserStore.
func (s *Users) GetByID(ctx context.Context, id uuid.UUID) (identity.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectUserColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return identity.User{}, mapNoRows(err, identity.ErrUnknownUser)
	}
	return row.toDomain(), nil
}

// GetByUsername implements identity.UserStore.
func (s *Users) GetByUsername(ctx context.Context, username string) (identity.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectUserColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		return identity.User{}, mapNoRows(err, identity.ErrUnknownUser)
	}
	return row.toDomain(), nil
}

// GetByIdentityLink implements identity.UserStore, matching (provider,
// subject) against any element of the identity_links JSONB array.
func (s *Users) GetByIdentityLink(ctx context.Context, provider, subject string) (identity.User, error) {
	var row userRow
	query := `SELECT ` + selectUserColumns + ` FROM users
		WHERE identity_links @> $1::jsonb`
	// Containment matches an array element that is a structural superset of
	// this filter, so only Provider/Subject are included — any other field
	// present here would have to match the stored value exactly.
	matchJSON, err := json.Marshal([]struct {
		Provider string
		Subject  string
	}{{Provider: provider, Subject: subject}})
	if err != nil {
		return identity.User{}, fmt.Errorf("postgres: encode identity link filter: %w", err)
	}
	err = s.db.GetContext(ctx, &row, query, matchJSON)
	if err != nil {
		return identity.User{}, mapNoRows(err, identity.ErrIdentityLinkNotFound)
	}
	return row.toDomain(), nil
}

// Save implements identity.UserStore as an upsert keyed on id.
func (s *Users) Save(ctx context.Context, u identity.User) error {
	row := userRowOf(u)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, normalized_username, email, password_hash, is_anonymous,
			role_assignments, direct_grants, identity_links, lockout_end, access_failed_count,
			created_at, linked_at, last_login_at)
		VALUES (:id, :username, :normalized_username, :email, :password_hash, :is_anonymous,
			:role_assignments, :direct_grants, :identity_links, :lockout_end, :access_failed_count,
			:created_at, :linked_at, :last_login_at)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			normalized_username = EXCLUDED.normalized_username,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			is_anonymous = EXCLUDED.is_anonymous,
			role_assignments = EXCLUDED.role_assignments,
			direct_grants = EXCLUDED.direct_grants,
			identity_links = EXCLUDED.identity_links,
			lockout_end = EXCLUDED.lockout_end,
			access_failed_count = EXCLUDED.access_failed_count,
			linked_at = EXCLUDED.linked_at,
			last_login_at = EXCLUDED.last_login_at`, row)
	if err != nil {
		logErr(ctx, "save user", err)
		return fmt.Errorf("postgres: save user: %w", err)
	}
	return nil
}

// Delete implements identity.UserStore.
func (s *Users) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete user: %w", err)
	}
	return nil
}

// DeleteAbandonedAnonymous implements identity.UserStore, removing
// anonymous accounts created before cutoff that never activated
// (spec.md §5, anonymous retention sweep).
func (s *Users) DeleteAbandonedAnonymous(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM users WHERE is_anonymous = true AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete abandoned anonymous users: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return int(n), nil
}
