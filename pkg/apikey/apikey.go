// Package apikey implements long-lived API key issuance and verification:
// the scope-bearing, non-refreshing counterpart to pkg/accesstoken's
// session-backed bearer tokens (spec.md §6.1, `ApiKeyStore`).
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corevaulthq/iam-core/pkg/directive"
)

// ErrNotFound is returned by a Store when no key matches the requested id
// or secret hash.
var ErrNotFound = errors.New("apikey: not found")

// ErrRevoked is returned by Verify when the presented key has been
// revoked.
var ErrRevoked = errors.New("apikey: revoked")

// ErrExpired is returned by Verify when the presented key is past its
// expiry.
var ErrExpired = errors.New("apikey: expired")

// Key is a persisted API key: a named, directly-scoped credential (no role
// indirection, unlike a session's role-derived scope) bound to one user.
type Key struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	SecretHash string
	Directives []directive.Directive
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  time.Time
	IsRevoked  bool
	LastUsedAt time.Time
}

// Live reports whether the key is neither revoked nor past expiry.
func (k Key) Live(now time.Time) bool {
	return !k.IsRevoked && now.Before(k.ExpiresAt)
}

// Store is the §6.1 ApiKeyStore contract.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (Key, error)
	GetBySecretHash(ctx context.Context, hash string) (Key, error)
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) ([]Key, error)
	Save(ctx context.Context, k Key) error
	Revoke(ctx context.Context, id uuid.UUID) error
	DeleteExpiredOrRevoked(ctx context.Context, expiredBefore, revokedBefore time.Time) (int, error)
}

// IssuedKey carries the one-time plaintext secret alongside its persisted
// record. The plaintext is never stored or retrievable again.
type IssuedKey struct {
	Key    Key
	Secret string
}

// Service issues and verifies API keys against a Store.
type Service struct {
	store Store
}

// NewService builds a Service over store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Issue mints a new key bound to userID carrying directives, expiring at
// expiresAt.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, name string, directives []directive.Directive, expiresAt time.Time) (IssuedKey, error) {
	secret, err := newOpaqueSecret()
	if err != nil {
		return IssuedKey{}, fmt.Errorf("apikey: generate secret: %w", err)
	}

	k := Key{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		SecretHash: hashSecret(secret),
		Directives: append([]directive.Directive(nil), directives...),
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := s.store.Save(ctx, k); err != nil {
		return IssuedKey{}, err
	}
	return IssuedKey{Key: k, Secret: secret}, nil
}

// Verify resolves a presented secret to its live key, marking LastUsedAt.
// It fails with ErrNotFound, ErrRevoked, or ErrExpired.
func (s *Service) Verify(ctx context.Context, secret string) (Key, error) {
	k, err := s.store.GetBySecretHash(ctx, hashSecret(secret))
	if err != nil {
		return Key{}, err
	}
	now := time.Now().UTC()
	if k.IsRevoked {
		return Key{}, ErrRevoked
	}
	if !now.Before(k.ExpiresAt) {
		return Key{}, ErrExpired
	}
	k.LastUsedAt = now
	if err := s.store.Save(ctx, k); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Revoke marks a key revoked.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	return s.store.Revoke(ctx, id)
}

// Sweep removes keys expired or revoked beyond their respective retention
// windows (spec.md §5, background sweep).
func (s *Service) Sweep(ctx context.Context, expiredRetention, revokedRetention time.Duration) (int, error) {
	now := time.Now().UTC()
	return s.store.DeleteExpiredOrRevoked(ctx, now.Add(-expiredRetention), now.Add(-revokedRetention))
}

func newOpaqueSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
