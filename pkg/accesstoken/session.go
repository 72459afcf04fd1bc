package accesstoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/corevaulthq/iam-core/pkg/directive"
)

// ErrSessionNotFound is returned by a SessionStore when no session matches
// the requested id or refresh-token hash.
var ErrSessionNotFound = errors.New("accesstoken: session not found")

// DeviceInfo records what OpenSession's caller identified about the
// client, mirroring the teacher's device-aware token payload
// (domain/auth/model.go's Payload{UserId, DeviceId}).
type DeviceInfo struct {
	DeviceID  string
	UserAgent string
	IPAddress string
}

// Session is the persisted session-lifecycle record backing §4.9's
// Active → Revoked | Expired state machine.
type Session struct {
	ID               string
	UserID           string
	Device           DeviceInfo
	RefreshTokenHash string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	LastUsedAt       time.Time
	IsRevoked        bool
	RevokedAt        time.Time
}

// Live reports whether the session is neither revoked nor past expiry.
func (s Session) Live(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// SessionStore is the persistence contract of §6.1's SessionStore, scoped
// to what the token service's session lifecycle needs.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (Session, error)
	GetActiveByUserID(ctx context.Context, userID string) ([]Session, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (Session, error)
	Save(ctx context.Context, s Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionConfig carries the session lifecycle's own timing knobs,
// independent of the JWT access-token lifetime in Config.
type SessionConfig struct {
	RefreshLifetime time.Duration
	Retention       time.Duration
}

// TokenPair is returned by OpenSession and Refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	ExpiresInSeconds int64
}

// SessionService owns the session lifecycle (§4.7.5) on top of a
// TokenService for access-token issuance and a SessionStore for
// persistence. It implements SessionLookup for TokenService.Validate.
type SessionService struct {
	tokens    *TokenService
	store     SessionStore
	cfg       SessionConfig
	allowlist TokenAllowlist
}

// NewSessionService builds a SessionService bound to tokens for
// access-token issuance and store for session persistence.
func NewSessionService(tokens *TokenService, store SessionStore, cfg SessionConfig) *SessionService {
	return &SessionService{tokens: tokens, store: store, cfg: cfg}
}

// UseAllowlist attaches the defense-in-depth access-token allow-list
// (SPEC_FULL.md §4, "Valid-token cache"). Every token OpenSession/Refresh
// mints is added to it; Logout removes one immediately.
func (s *SessionService) UseAllowlist(a TokenAllowlist) {
	s.allowlist = a
}

// Logout removes accessToken from the allow-list immediately, instead of
// waiting for its natural expiry, per SPEC_FULL.md §4. It does not revoke
// the underlying session; callers that also want the refresh token
// invalidated should call Revoke with the session id.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {
	if s.allowlist == nil {
		return nil
	}
	return s.allowlist.Remove(ctx, accessToken)
}

// IsLive satisfies SessionLookup: it reports whether sessionID refers to a
// live (non-revoked, non-expired) session.
func (s *SessionService) IsLive(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sess.Live(time.Now().UTC()), nil
}

// OpenSession creates a new session and returns an access/refresh token
// pair (§4.7.5).
func (s *SessionService) OpenSession(
	ctx context.Context,
	userID, username string,
	scopeDirectives []directive.Directive,
	roles []RoleClaim,
	device DeviceInfo,
) (TokenPair, error) {
	logger := logx.WithContext(ctx)

	sessionID := uuid.NewString()
	refreshToken, err := newOpaqueToken()
	if err != nil {
		logger.Errorf("accesstoken: failed to generate refresh token: %v", err)
		return TokenPair{}, fmt.Errorf("accesstoken: generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	session := Session{
		ID:               sessionID,
		UserID:           userID,
		Device:           device,
		RefreshTokenHash: hashOpaqueToken(refreshToken),
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.cfg.RefreshLifetime),
		LastUsedAt:       now,
	}
	if err := s.store.Save(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("accesstoken: save session: %w", err)
	}

	accessToken, err := s.tokens.Generate(ctx, userID, username, scopeDirectives, roles, sessionID, nil)
	if err != nil {
		return TokenPair{}, err
	}
	s.allow(ctx, accessToken)

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		SessionID:        sessionID,
		ExpiresInSeconds: int64(s.tokens.cfg.expiration(nil).Seconds()),
	}, nil
}

// Refresh verifies refreshToken's hash matches an un-revoked, unexpired
// session, atomically rotates the refresh token, and issues a fresh token
// pair (§4.7.5, §5 "Atomicity"). The hash comparison is constant-time.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, username string, scopeDirectives []directive.Directive, roles []RoleClaim) (TokenPair, error) {
	presentedHash := hashOpaqueToken(refreshToken)
	session, err := s.store.GetByRefreshTokenHash(ctx, presentedHash)
	if err != nil {
		return TokenPair{}, authErr(BadCredential, err)
	}
	if subtle.ConstantTimeCompare([]byte(session.RefreshTokenHash), []byte(presentedHash)) != 1 {
		return TokenPair{}, authErr(BadCredential, ErrSessionNotFound)
	}
	if !session.Live(time.Now().UTC()) {
		return TokenPair{}, authErr(SessionRevoked, nil)
	}

	newRefresh, err := newOpaqueToken()
	if err != nil {
		return TokenPair{}, fmt.Errorf("accesstoken: generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	session.RefreshTokenHash = hashOpaqueToken(newRefresh)
	session.LastUsedAt = now
	session.ExpiresAt = now.Add(s.cfg.RefreshLifetime)
	if err := s.store.Save(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("accesstoken: rotate session: %w", err)
	}

	accessToken, err := s.tokens.Generate(ctx, session.UserID, username, scopeDirectives, roles, session.ID, nil)
	if err != nil {
		return TokenPair{}, err
	}
	s.allow(ctx, accessToken)

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     newRefresh,
		SessionID:        session.ID,
		ExpiresInSeconds: int64(s.tokens.cfg.expiration(nil).Seconds()),
	}, nil
}

// allow adds accessToken to the allow-list when one is configured. Failures
// are logged, not propagated: the allow-list is defense-in-depth on top of
// session-liveness checks, not the primary validation path.
func (s *SessionService) allow(ctx context.Context, accessToken string) {
	if s.allowlist == nil {
		return
	}
	if err := s.allowlist.Add(ctx, accessToken); err != nil {
		logx.WithContext(ctx).Errorf("accesstoken: failed to add token to allow-list: %v", err)
	}
}

// Revoke marks a single session revoked.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	return s.store.Revoke(ctx, sessionID)
}

// RevokeAllForUser marks every session belonging to userID revoked.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.store.RevokeAllForUser(ctx, userID)
}

// Sweep removes sessions expired beyond the configured retention window,
// matching the background sweep described in §4.7.5.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.Retention)
	return s.store.DeleteExpired(ctx, cutoff)
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
