package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/corevaulthq/iam-core/pkg/accesstoken"
)

// PasswordResetTokenLifetime bounds how long a reset token issued by
// RequestPasswordReset remains usable.
const PasswordResetTokenLifetime = time.Hour

// ResetToken is a single-use, time-boxed password reset credential,
// grounded in the teacher's PasswordResetToken model
// (domain/auth/model.go). Only its hash is ever persisted.
type ResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// PasswordResetStore persists reset tokens, grounded in the same plumbing
// the teacher's changePasswordLogic.go/forgotPasswordLogic.go stubs left
// unimplemented.
type PasswordResetStore interface {
	Save(ctx context.Context, t ResetToken) error
	GetByTokenHash(ctx context.Context, hash string) (ResetToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

// SessionRevoker is the slice of SessionService that password operations
// use to invalidate existing sessions on success.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// PasswordManager implements the password-reset and change-password flows
// SPEC_FULL.md §4 supplements on top of spec.md's credential verifier,
// each invalidating existing sessions for the user on success.
type PasswordManager struct {
	users    UserStore
	resets   PasswordResetStore
	sessions SessionRevoker
}

// NewPasswordManager builds a PasswordManager.
func NewPasswordManager(users UserStore, resets PasswordResetStore, sessions SessionRevoker) *PasswordManager {
	return &PasswordManager{users: users, resets: resets, sessions: sessions}
}

// RequestPasswordReset issues a one-hour reset token for the named user.
// The caller is responsible for delivering it (email delivery is out of
// scope per spec.md §1); only the token's hash is persisted.
func (p *PasswordManager) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	user, err := p.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	raw, err := newOpaqueValue()
	if err != nil {
		return "", fmt.Errorf("identity: generate reset token: %w", err)
	}

	now := time.Now().UTC()
	token := ResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashOpaqueValue(raw),
		ExpiresAt: now.Add(PasswordResetTokenLifetime),
		CreatedAt: now,
	}
	if err := p.resets.Save(ctx, token); err != nil {
		return "", fmt.Errorf("identity: save reset token: %w", err)
	}
	return raw, nil
}

// ResetPassword consumes a reset token issued by RequestPasswordReset,
// installs a new password credential, and revokes every existing session
// for the user.
func (p *PasswordManager) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	token, err := p.resets.GetByTokenHash(ctx, hashOpaqueValue(rawToken))
	if err != nil {
		return ErrResetTokenInvalidOrExpired
	}
	if token.Used || time.Now().UTC().After(token.ExpiresAt) {
		return ErrResetTokenInvalidOrExpired
	}

	user, err := p.users.GetByID(ctx, token.UserID)
	if err != nil {
		return fmt.Errorf("identity: resolve reset-token subject: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("identity: hash new password: %w", err)
	}
	user.Password = &PasswordCredential{Hash: string(hash)}
	user.Activate(time.Now().UTC())
	if err := p.users.Save(ctx, user); err != nil {
		return fmt.Errorf("identity: save reset password: %w", err)
	}
	if err := p.resets.MarkUsed(ctx, token.ID); err != nil {
		return fmt.Errorf("identity: mark reset token used: %w", err)
	}

	return p.sessions.RevokeAllForUser(ctx, user.ID.String())
}

// ChangePassword replaces userID's password after verifying the current
// one, then revokes every existing session for the user.
func (p *PasswordManager) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Password == nil {
		return &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: fmt.Errorf("no local credential")}
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password.Hash), []byte(currentPassword)) != nil {
		return &accesstoken.AuthError{Kind: accesstoken.BadCredential, Err: fmt.Errorf("current password mismatch")}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("identity: hash new password: %w", err)
	}
	user.Password = &PasswordCredential{Hash: string(hash)}
	if err := p.users.Save(ctx, user); err != nil {
		return fmt.Errorf("identity: save changed password: %w", err)
	}

	return p.sessions.RevokeAllForUser(ctx, user.ID.String())
}

func newOpaqueValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashOpaqueValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
