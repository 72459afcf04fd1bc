// Package config holds the ambient configuration structs for the identity
// core, following the teacher's go-zero flavored Config composition:
// plain structs with `json:",env=..."` tags, grouped by concern.
package config

import "time"

// Config aggregates every configuration group the core needs to run.
type Config struct {
	JWT      JWTConfig
	RBAC     RBACConfig
	Session  SessionConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// JWTConfig carries the HMAC secret and validation targets for the token
// service (§6.4 `jwt.*`).
type JWTConfig struct {
	Secret                   string `json:",env=JWT_SECRET"`
	Issuer                   string `json:",env=JWT_ISSUER"`
	Audience                 string `json:",env=JWT_AUDIENCE"`
	DefaultExpirationSeconds int64  `json:",env=JWT_DEFAULT_EXPIRATION_SECONDS"`
	ClockSkewSeconds         int64  `json:",env=JWT_CLOCK_SKEW_SECONDS"`
}

// DefaultExpiration returns the configured access-token lifetime, clamped
// to a non-negative duration per §6.4.
func (c JWTConfig) DefaultExpiration() time.Duration {
	if c.DefaultExpirationSeconds < 0 {
		return 0
	}
	return time.Duration(c.DefaultExpirationSeconds) * time.Second
}

// ClockSkew returns the configured validation clock skew, clamped to a
// non-negative duration per §6.4.
func (c JWTConfig) ClockSkew() time.Duration {
	if c.ClockSkewSeconds < 0 {
		return 0
	}
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// RBACConfig carries the current RBAC schema version. Bumping Version
// invalidates every outstanding token (§4.7.3 step 4).
type RBACConfig struct {
	Version int64 `json:",env=RBAC_VERSION"`
}

// SessionConfig carries session and API-key retention windows (§6.4).
// All fields are clamped to a floor of one day by their accessor methods.
type SessionConfig struct {
	RefreshRetentionDays       int64 `json:",env=SESSION_REFRESH_RETENTION_DAYS"`
	ApiKeyExpiredRetentionDays int64 `json:",env=APIKEY_EXPIRED_RETENTION_DAYS"`
	ApiKeyRevokedRetentionDays int64 `json:",env=APIKEY_REVOKED_RETENTION_DAYS"`
	AnonymousRetentionDays     int64 `json:",env=ANONYMOUS_RETENTION_DAYS"`
}

func clampDaysFloor1(days int64) time.Duration {
	if days < 1 {
		days = 1
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c SessionConfig) RefreshRetention() time.Duration     { return clampDaysFloor1(c.RefreshRetentionDays) }
func (c SessionConfig) ApiKeyExpiredRetention() time.Duration {
	return clampDaysFloor1(c.ApiKeyExpiredRetentionDays)
}
func (c SessionConfig) ApiKeyRevokedRetention() time.Duration {
	return clampDaysFloor1(c.ApiKeyRevokedRetentionDays)
}
func (c SessionConfig) AnonymousRetention() time.Duration {
	return clampDaysFloor1(c.AnonymousRetentionDays)
}

// DatabaseConfig configures the sqlx/lib/pq Postgres connection, mirroring
// the teacher's third_party/database.PostgresConfig.
type DatabaseConfig struct {
	Host     string `json:",env=DB_HOST"`
	Port     int    `json:",env=DB_PORT"`
	User     string `json:",env=DB_USER"`
	Password string `json:",env=DB_PASSWORD"`
	DBName   string `json:",env=DB_NAME"`
	SSLMode  string `json:",env=DB_SSLMODE,default=disable"`
}

// RedisConfig configures the go-redis client, mirroring the teacher's
// third_party/cache.RedisConfig.
type RedisConfig struct {
	Host     string `json:",env=REDIS_HOST"`
	Port     int    `json:",env=REDIS_PORT"`
	Password string `json:",env=REDIS_PASSWORD,optional"`
	DB       int    `json:",env=REDIS_DB,default=0"`
}
