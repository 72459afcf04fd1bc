package accesstoken

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// TokenAllowlist is a defense-in-depth layer on top of session-based
// revocation: an explicit allow-list of access tokens minted through
// SessionService.OpenSession/Refresh. SessionService.Logout removes a token
// immediately rather than waiting for its natural expiry, mirroring the
// teacher's domain/cache.Cache
// (AddToValidTokens/IsValidAccessToken/RemoveFromValidTokens).
// TokenService.Validate does not consult the list; membership is checked
// only where a caller calls IsAllowed itself.
type TokenAllowlist interface {
	Add(ctx context.Context, accessToken string) error
	IsAllowed(ctx context.Context, accessToken string) (bool, error)
	Remove(ctx context.Context, accessToken string) error
}

const allowlistKey = "accesstoken:valid-access-tokens"

// RedisTokenAllowlist implements TokenAllowlist as a single Redis set,
// adapted from the teacher's cache.Cache (Sadd/Sismember/Srem on
// validAccessTokensKey) onto go-redis/v9's plain client.
type RedisTokenAllowlist struct {
	client *redis.Client
}

// NewRedisTokenAllowlist builds a RedisTokenAllowlist over client.
func NewRedisTokenAllowlist(client *redis.Client) *RedisTokenAllowlist {
	return &RedisTokenAllowlist{client: client}
}

func (r *RedisTokenAllowlist) Add(ctx context.Context, accessToken string) error {
	return r.client.SAdd(ctx, allowlistKey, accessToken).Err()
}

func (r *RedisTokenAllowlist) IsAllowed(ctx context.Context, accessToken string) (bool, error) {
	return r.client.SIsMember(ctx, allowlistKey, accessToken).Result()
}

func (r *RedisTokenAllowlist) Remove(ctx context.Context, accessToken string) error {
	return r.client.SRem(ctx, allowlistKey, accessToken).Err()
}
