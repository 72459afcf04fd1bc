// Package svc is the composition root: it dials the real infrastructure
// (Postgres, Redis) and wires every domain service on top of it, adapted
// from the teacher's rpc/internal/svc.ServiceContext — same shape
// (Config in, one struct holding every dependency out), generalized from
// a single BaseRepository+Cache pair to this module's several domain
// services.
package svc

import (
	"context"
	"fmt"

	"github.com/corevaulthq/iam-core/internal/config"
	"github.com/corevaulthq/iam-core/internal/store/postgres"
	"github.com/corevaulthq/iam-core/internal/store/redisstore"
	"github.com/corevaulthq/iam-core/pkg/accesstoken"
	"github.com/corevaulthq/iam-core/pkg/apikey"
	"github.com/corevaulthq/iam-core/pkg/identity"
	"github.com/corevaulthq/iam-core/pkg/rbacrole"
	"github.com/corevaulthq/iam-core/third_party/cache"
	"github.com/corevaulthq/iam-core/third_party/database"
)

// ServiceContext holds every wired dependency a deployment needs to serve
// the identity core's operations, the way the teacher's ServiceContext
// held a Repo and a Cache.
type ServiceContext struct {
	Config config.Config

	redis *cache.RedisClient

	Store *postgres.Conn

	Tokens    *accesstoken.TokenService
	Sessions  *accesstoken.SessionService
	Roles     *rbacrole.Manager
	Verifier  *identity.CredentialVerifier
	Passwords *identity.PasswordManager
	APIKeys   *apikey.Service
}

// sessionLookupProxy breaks the construction cycle between TokenService
// (which needs a SessionLookup) and SessionService (which needs a
// TokenService): the proxy is handed to NewTokenService before
// SessionService exists, then pointed at the real SessionService once it
// does.
type sessionLookupProxy struct {
	sessions *accesstoken.SessionService
}

func (p *sessionLookupProxy) IsLive(ctx context.Context, sessionID string) (bool, error) {
	return p.sessions.IsLive(ctx, sessionID)
}

// NewServiceContext dials Postgres and Redis per cfg and wires every
// domain service on top of them. systemRoles are the deployment's
// compiled-in role definitions (spec.md §4.5); a deployment with none yet
// can pass nil.
func NewServiceContext(ctx context.Context, cfg config.Config, systemRoles []rbacrole.Role) (*ServiceContext, error) {
	sqlDB, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("svc: %w", err)
	}

	redisConn, err := cache.NewRedisConnection(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("svc: %w", err)
	}

	store := postgres.NewConn(sqlDB)

	sessionStore, err := accesstoken.NewRedisSessionStore(ctx, redisConn.GetClient())
	if err != nil {
		return nil, fmt.Errorf("svc: %w", err)
	}

	lookup := &sessionLookupProxy{}
	tokens := accesstoken.NewTokenService(accesstoken.Config{
		Secret:            cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		RBACVersion:       fmt.Sprintf("%d", cfg.RBAC.Version),
		DefaultExpiration: cfg.JWT.DefaultExpiration(),
		ClockSkew:         cfg.JWT.ClockSkew(),
	}, lookup)

	sessions := accesstoken.NewSessionService(tokens, sessionStore, accesstoken.SessionConfig{
		RefreshLifetime: cfg.Session.RefreshRetention(),
		Retention:       cfg.Session.RefreshRetention(),
	})
	lookup.sessions = sessions
	sessions.UseAllowlist(accesstoken.NewRedisTokenAllowlist(redisConn.GetClient()))

	roles := rbacrole.NewManager(store.Roles(), systemRoles)

	challenges := redisstore.NewPasskeyChallengeStore(redisConn.GetClient())

	verifier := identity.NewCredentialVerifier(store.Users(), roles, challenges, store.Passkeys(), sessions)
	passwords := identity.NewPasswordManager(store.Users(), store.PasswordResets(), sessions)
	apiKeys := apikey.NewService(store.APIKeys())

	return &ServiceContext{
		Config:    cfg,
		redis:     redisConn,
		Store:     store,
		Tokens:    tokens,
		Sessions:  sessions,
		Roles:     roles,
		Verifier:  verifier,
		Passwords: passwords,
		APIKeys:   apiKeys,
	}, nil
}

// Close releases the underlying Postgres and Redis connections.
func (c *ServiceContext) Close() error {
	if err := c.Store.Close(); err != nil {
		return err
	}
	return c.redis.Close()
}
