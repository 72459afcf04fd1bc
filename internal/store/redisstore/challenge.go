// Package redisstore implements the one-shot-consume stores spec.md §6.1
// asks for a cache-like backing: passkey challenges, read once and gone.
// Adapted from the teacher's domain/cache.Cache (grounding
// pkg/accesstoken's Redis allow-list) onto go-redis/v9's GETDEL, which
// gives atomic load-and-delete for free instead of a Lua script.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/corevaulthq/iam-core/pkg/identity"
)

const challengeKeyPrefix = "identity:webauthn-challenge:"

var _ identity.PasskeyChallengeStore = (*PasskeyChallengeStore)(nil)

// PasskeyChallengeStore implements identity.PasskeyChallengeStore over a
// Redis client, storing each challenge with a TTL matching its ExpiresAt
// and consuming it with GETDEL so a replayed challenge id always reads
// back empty.
type PasskeyChallengeStore struct {
	client *redis.Client
}

// NewPasskeyChallengeStore builds a PasskeyChallengeStore over client.
func NewPasskeyChallengeStore(client *redis.Client) *PasskeyChallengeStore {
	return &PasskeyChallengeStore{client: client}
}

type challengeRecord struct {
	UserID    string    `json:"userId"`
	Blob      []byte    `json:"blob"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Save implements identity.PasskeyChallengeStore, setting the key's TTL to
// the challenge's remaining lifetime so Redis expires it on its own even
// if Consume is never called.
func (s *PasskeyChallengeStore) Save(ctx context.Context, c identity.Challenge) error {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redisstore: challenge already expired at save time")
	}

	record := challengeRecord{
		UserID:    c.UserID.String(),
		Blob:      c.Blob,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redisstore: encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKeyPrefix+c.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save challenge: %w", err)
	}
	return nil
}

// Consume implements identity.PasskeyChallengeStore's one-shot semantics:
// GETDEL atomically reads and removes the key, so the second call for the
// same id always observes redis.Nil and reports
// ErrChallengeAlreadyConsumed — it cannot distinguish "never existed" from
// "already consumed", matching the documented tradeoff on the interface.
func (s *PasskeyChallengeStore) Consume(ctx context.Context, id string) (identity.Challenge, error) {
	raw, err := s.client.GetDel(ctx, challengeKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return identity.Challenge{}, identity.ErrChallengeAlreadyConsumed
	}
	if err != nil {
		return identity.Challenge{}, fmt.Errorf("redisstore: consume challenge: %w", err)
	}

	var record challengeRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return identity.Challenge{}, fmt.Errorf("redisstore: decode challenge: %w", err)
	}

	userID, err := uuid.Parse(record.UserID)
	if err != nil {
		return identity.Challenge{}, fmt.Errorf("redisstore: decode challenge user id: %w", err)
	}

	c := identity.Challenge{
		ID:        id,
		UserID:    userID,
		Blob:      record.Blob,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt,
	}
	if time.Now().UTC().After(c.ExpiresAt) {
		return identity.Challenge{}, identity.ErrChallengeExpired
	}
	return c, nil
}
