package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore is the §6.1 UserStore contract, scoped to what credential
// verification and registration need. GetByIdentityLink returns
// ErrIdentityLinkNotFound when (provider, subject) has no linked user.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByIdentityLink(ctx context.Context, provider, subject string) (User, error)
	Save(ctx context.Context, u User) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAbandonedAnonymous(ctx context.Context, cutoff time.Time) (int, error)
}

// Challenge is a WebAuthn challenge issued by IssueWebAuthnChallenge and
// consumed exactly once by VerifyWebAuthnAssertion (spec.md §4.8, §4.9).
type Challenge struct {
	ID        string
	UserID    uuid.UUID
	Blob      []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PasskeyChallengeStore is the §6.1 PasskeyChallengeStore contract: save a
// challenge, then consume it exactly once.
type PasskeyChallengeStore interface {
	Save(ctx context.Context, c Challenge) error
	// Consume atomically loads and deletes the challenge identified by id.
	// It returns ErrChallengeNotFound, ErrChallengeExpired, or
	// ErrChallengeAlreadyConsumed per spec.md §6.1 and §4.9 — a store whose
	// backing is GETDEL-like (Redis) naturally rejects replay by virtue of
	// the key already being gone, which the adapter maps to
	// ErrChallengeAlreadyConsumed when it cannot distinguish "never
	// existed" from "consumed".
	Consume(ctx context.Context, id string) (Challenge, error)
}

// PasskeyCredential is the stored public-key credential a WebAuthn
// assertion is matched against. The primitives that verify a live
// assertion (signature, counter, attestation) are assumed external per
// spec.md §1; this type only carries what identity needs to pick the
// matching credential and its owner.
type PasskeyCredential struct {
	CredentialID []byte
	UserID       uuid.UUID
	PublicKey    []byte
}

// PasskeyCredentialStore resolves a presented credential id to its owner
// and public key, for VerifyWebAuthnAssertion to match against.
type PasskeyCredentialStore interface {
	GetByCredentialID(ctx context.Context, credentialID []byte) (PasskeyCredential, error)
}
