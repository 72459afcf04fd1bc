package accesstoken

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix      = "session:"
	refreshHashKeyPrefix  = "session:by-refresh-hash:"
	userSessionsKeyPrefix = "session:by-user:"
)

// RedisSessionStore implements SessionStore on top of go-redis, mirroring
// the teacher's RedisTokenRepository: each session is a JSON blob under
// sessionKeyPrefix+id, indexed by a refresh-token-hash key for §4.7.5's
// Refresh lookup and a per-user set for GetActiveByUserID/RevokeAllForUser.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore builds a RedisSessionStore. It pings client to fail
// fast on a misconfigured connection.
func NewRedisSessionStore(ctx context.Context, client *redis.Client) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("accesstoken: redis client cannot be nil")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("accesstoken: redis connection failed: %w", err)
	}
	return &RedisSessionStore{client: client}, nil
}

func (r *RedisSessionStore) GetByID(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err == redis.Nil {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("accesstoken: redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, fmt.Errorf("accesstoken: decode session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionStore) GetActiveByUserID(ctx context.Context, userID string) ([]Session, error) {
	ids, err := r.client.SMembers(ctx, userSessionsKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("accesstoken: redis smembers: %w", err)
	}
	now := time.Now().UTC()
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetByID(ctx, id)
		if err == ErrSessionNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Live(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *RedisSessionStore) GetByRefreshTokenHash(ctx context.Context, hash string) (Session, error) {
	id, err := r.client.Get(ctx, refreshHashKeyPrefix+hash).Result()
	if err == redis.Nil {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("accesstoken: redis get refresh index: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisSessionStore) Save(ctx context.Context, s Session) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("accesstoken: encode session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+s.ID, encoded, ttl)
	pipe.Set(ctx, refreshHashKeyPrefix+s.RefreshTokenHash, s.ID, ttl)
	pipe.SAdd(ctx, userSessionsKeyPrefix+s.UserID, s.ID)
	pipe.Expire(ctx, userSessionsKeyPrefix+s.UserID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("accesstoken: redis save session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.IsRevoked = true
	s.RevokedAt = time.Now().UTC()
	return r.Save(ctx, s)
}

func (r *RedisSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	sessions, err := r.GetActiveByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		s.IsRevoked = true
		s.RevokedAt = time.Now().UTC()
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpired is a no-op beyond what Redis TTL already reclaims: session
// keys are stored with an expiry matching ExpiresAt, so Redis itself is the
// sweep for the hot path. This satisfies the SessionStore contract for
// callers that drive the background sweep uniformly across store backends.
func (r *RedisSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

const minRedisTTL = 100 * time.Millisecond
