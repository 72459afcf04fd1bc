package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/corevaulthq/iam-core/pkg/rbacrole"
	"github.com/corevaulthq/iam-core/pkg/scope"
)

// Lockout policy thresholds (SPEC_FULL.md §4, "Account lockout policy").
const (
	MaxAccessFailures = 5
	LockoutDuration   = 15 * time.Minute
)

// DefaultRoleCode is assigned to a user registered through an external
// identity provider with no prior local account (spec.md §4.8, External).
const DefaultRoleCode = "USER"

// IdentityLink binds a user to an external provider subject, e.g. an OAuth
// identity. (provider, subject) is globally unique (spec.md §3).
type IdentityLink struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName string
	LinkedAt    time.Time
}

// PasswordCredential is the local password credential a user may hold. At
// most one exists per user (spec.md §3, User invariants).
type PasswordCredential struct {
	Hash string
}

// User is the identity core's view of an account: the fields that
// VerifyPassword, VerifyExternal, and the lockout policy read or mutate.
// Persistence and every other user attribute belong to the Store.
type User struct {
	ID                 uuid.UUID
	Username           string
	NormalizedUsername string
	Email              string
	Password           *PasswordCredential
	IsAnonymous        bool
	RoleAssignments    []rbacrole.RoleAssignment
	DirectGrants       []scope.DirectGrant
	IdentityLinks      []IdentityLink
	LockoutEnd         time.Time
	AccessFailedCount  int
	CreatedAt          time.Time
	LinkedAt           time.Time
	LastLoginAt        time.Time
}

// IsLockedOut reports whether the account is presently under the lockout
// policy's cooldown.
func (u *User) IsLockedOut(now time.Time) bool {
	return !u.LockoutEnd.IsZero() && now.Before(u.LockoutEnd)
}

// RegisterFailure increments the failure counter and, once it reaches
// MaxAccessFailures, sets LockoutEnd per the policy.
func (u *User) RegisterFailure(now time.Time) {
	u.AccessFailedCount++
	if u.AccessFailedCount >= MaxAccessFailures {
		u.LockoutEnd = now.Add(LockoutDuration)
	}
}

// RegisterSuccess resets the failure counter and stamps LastLoginAt, per
// spec.md §4.8's "on success reset access_failed_count, stamp
// last_login_at".
func (u *User) RegisterSuccess(now time.Time) {
	u.AccessFailedCount = 0
	u.LockoutEnd = time.Time{}
	u.LastLoginAt = now
}

// Activate stamps LinkedAt on the Anonymous→Activated transition
// (spec.md §4.9), idempotently.
func (u *User) Activate(now time.Time) {
	if u.IsAnonymous {
		u.IsAnonymous = false
		u.LinkedAt = now
	}
}
