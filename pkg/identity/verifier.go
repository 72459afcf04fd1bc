package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/crypto/bcrypt"

	"github.com/corevaulthq/iam-core/pkg/accesstoken"
	"github.com/corevaulthq/iam-core/pkg/directive"
	"github.com/corevaulthq/iam-core/pkg/rbacrole"
	"github.com/corevaulthq/iam-core/pkg/scope"
)

// SessionOpener is the slice of SessionService that credential verification
// needs to turn a verified identity into a token pair (spec.md §4.8, "On
// success, an OpenSession is performed").
type SessionOpener interface {
	OpenSession(ctx context.Context, userID, username string, scopeDirectives []directive.Directive, roles []accesstoken.RoleClaim, device accesstoken.DeviceInfo) (accesstoken.TokenPair, error)
}

// CredentialValidationResult is what a successful verification produces:
// the resolved user plus the token pair from opening a session.
type CredentialValidationResult struct {
	User   User
	Tokens accesstoken.TokenPair
}

// CredentialVerifier implements spec.md §4.8: password, external (OAuth),
// and WebAuthn credential verification, each ending in OpenSession on
// success.
type CredentialVerifier struct {
	users      UserStore
	roles      *rbacrole.Manager
	challenges PasskeyChallengeStore
	passkeys   PasskeyCredentialStore
	sessions   SessionOpener
}

// NewCredentialVerifier builds a CredentialVerifier over the given stores,
// role manager, and session opener.
func NewCredentialVerifier(users UserStore, roles *rbacrole.Manager, challenges PasskeyChallengeStore, passkeys PasskeyCredentialStore, sessions SessionOpener) *CredentialVerifier {
	return &CredentialVerifier{users: users, roles: roles, challenges: challenges, passkeys: passkeys, sessions: sessions}
}

// VerifyPassword authenticates username/password (spec.md §4.8, Password).
// It denies when the user has no local credential, is locked out, or
// verification fails, tracking the failure counter and lockout window on
// the way; on success it resets the counter, stamps LastLoginAt, and opens
// a session.
func (v *CredentialVerifier) VerifyPassword(ctx context.Context, username, password string, device accesstoken.DeviceInfo) (CredentialValidationResult, error) {
	logger := logx.WithContext(ctx)

	user, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		return CredentialValidationResult{}, &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: err}
	}

	now := time.Now().UTC()
	if user.IsLockedOut(now) {
		return CredentialValidationResult{}, &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: errors.New("account locked out")}
	}
	if user.Password == nil {
		return CredentialValidationResult{}, &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: errors.New("no local credential")}
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password.Hash), []byte(password)) != nil {
		user.RegisterFailure(now)
		if err := v.users.Save(ctx, user); err != nil {
			logger.Errorf("identity: failed to persist access-failure count: %v", err)
		}
		return CredentialValidationResult{}, &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: errors.New("bad password")}
	}

	user.RegisterSuccess(now)
	if err := v.users.Save(ctx, user); err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: persist login success: %w", err)
	}

	return v.openSessionFor(ctx, user, device)
}

// VerifyExternal authenticates an external identity (spec.md §4.8,
// External): it matches (provider, subject) to an existing identity link,
// or registers a new user linked to that identity and assigns the default
// role, parameterized with the new user's id.
func (v *CredentialVerifier) VerifyExternal(ctx context.Context, provider, subject, email, displayName string, device accesstoken.DeviceInfo) (CredentialValidationResult, error) {
	user, err := v.users.GetByIdentityLink(ctx, provider, subject)
	if err == nil {
		return v.openSessionFor(ctx, user, device)
	}
	if !errors.Is(err, ErrIdentityLinkNotFound) {
		return CredentialValidationResult{}, fmt.Errorf("identity: lookup identity link: %w", err)
	}

	now := time.Now().UTC()
	newUser := User{
		ID:          uuid.New(),
		Email:       email,
		IsAnonymous: true,
		CreatedAt:   now,
		IdentityLinks: []IdentityLink{{
			Provider:    provider,
			Subject:     subject,
			Email:       email,
			DisplayName: displayName,
			LinkedAt:    now,
		}},
	}
	newUser.Activate(now)

	defaultRole, err := v.roles.GetByCode(ctx, DefaultRoleCode)
	if err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: resolve default role: %w", err)
	}
	newUser.RoleAssignments = []rbacrole.RoleAssignment{{
		UserID:          newUser.ID,
		RoleID:          defaultRole.ID,
		ParameterValues: map[string]string{"userId": newUser.ID.String()},
	}}

	if err := v.users.Save(ctx, newUser); err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: save registered user: %w", err)
	}

	return v.openSessionFor(ctx, newUser, device)
}

// IssueWebAuthnChallenge issues and stores an opaque challenge for userID
// (spec.md §4.8, WebAuthn; §4.9, Issued state).
func (v *CredentialVerifier) IssueWebAuthnChallenge(ctx context.Context, userID uuid.UUID, blob []byte, ttl time.Duration) (Challenge, error) {
	now := time.Now().UTC()
	c := Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Blob:      blob,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := v.challenges.Save(ctx, c); err != nil {
		return Challenge{}, fmt.Errorf("identity: save webauthn challenge: %w", err)
	}
	return c, nil
}

// VerifyWebAuthnAssertion consumes a previously issued challenge exactly
// once and matches the presented credential to a stored passkey (spec.md
// §4.8, WebAuthn). Signature/counter/attestation verification of the
// assertion itself is assumed to have already happened upstream, per
// spec.md §1's scope boundary; this call is the identity-matching and
// one-shot bookkeeping around that primitive.
func (v *CredentialVerifier) VerifyWebAuthnAssertion(ctx context.Context, challengeID string, credentialID []byte, device accesstoken.DeviceInfo) (CredentialValidationResult, error) {
	challenge, err := v.challenges.Consume(ctx, challengeID)
	if err != nil {
		return CredentialValidationResult{}, err
	}

	passkey, err := v.passkeys.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: resolve passkey credential: %w", err)
	}
	if passkey.UserID != challenge.UserID {
		return CredentialValidationResult{}, &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: errors.New("passkey does not belong to challenge subject")}
	}

	user, err := v.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: resolve challenge subject: %w", err)
	}

	now := time.Now().UTC()
	user.RegisterSuccess(now)
	if err := v.users.Save(ctx, user); err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: persist login success: %w", err)
	}

	return v.openSessionFor(ctx, user, device)
}

func (v *CredentialVerifier) openSessionFor(ctx context.Context, user User, device accesstoken.DeviceInfo) (CredentialValidationResult, error) {
	directGrants := make([]scope.DirectGrant, len(user.DirectGrants))
	copy(directGrants, user.DirectGrants)

	directives, err := scope.Resolve(ctx, user.RoleAssignments, directGrants, v.roles)
	if err != nil {
		return CredentialValidationResult{}, fmt.Errorf("identity: resolve effective scope: %w", err)
	}

	roleClaims := make([]accesstoken.RoleClaim, 0, len(user.RoleAssignments))
	for _, assignment := range user.RoleAssignments {
		role, err := v.roles.Get(ctx, assignment.RoleID)
		if err != nil {
			continue
		}
		roleClaims = append(roleClaims, accesstoken.RoleClaim{Code: role.Code, Parameters: assignment.ParameterValues})
	}

	tokens, err := v.sessions.OpenSession(ctx, user.ID.String(), user.Username, directives, roleClaims, device)
	if err != nil {
		return CredentialValidationResult{}, err
	}
	return CredentialValidationResult{User: user, Tokens: tokens}, nil
}
