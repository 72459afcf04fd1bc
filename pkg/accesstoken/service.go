// Package accesstoken implements the JWT-based token service: issuance,
// validation, and mutation of access tokens pinned to an RBAC schema
// version, plus the session lifecycle operations that back the `sid`
// claim (§4.7 of the specification).
package accesstoken

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/corevaulthq/iam-core/pkg/directive"
)

// Config carries the per-environment values §4.7 validation is pinned to.
type Config struct {
	Secret            string
	Issuer            string
	Audience          string
	RBACVersion       string
	DefaultExpiration time.Duration
	ClockSkew         time.Duration
}

// expiration returns the caller-requested lifetime, or the configured
// default when none is requested, never allowing a negative lifetime
// through (§4.7.2).
func (c Config) expiration(requested *time.Duration) time.Duration {
	if requested == nil {
		if c.DefaultExpiration < 0 {
			return 0
		}
		return c.DefaultExpiration
	}
	if *requested < 0 {
		return 0
	}
	return *requested
}

// RoleClaim is one role-code-plus-parameters entry of the `roles` claim.
type RoleClaim struct {
	Code       string
	Parameters map[string]string
}

// SessionLookup is the slice of session state the token service needs to
// finish §4.7.3 step 5. SessionService satisfies it.
type SessionLookup interface {
	IsLive(ctx context.Context, sessionID string) (bool, error)
}

// Principal is what a successful Validate hands back to the caller: the
// authenticated subject plus the scope directives to feed pkg/policy.
type Principal struct {
	Subject         string
	Name            string
	SessionID       string
	Roles           []string
	ScopeDirectives []directive.Directive
}

// TokenService issues, validates, and mutates access tokens.
type TokenService struct {
	cfg      Config
	sessions SessionLookup
}

// NewTokenService builds a TokenService. sessions may be nil if tokens in
// this deployment never carry a `sid` claim; a non-nil sid on such a token
// fails validation with Malformed.
func NewTokenService(cfg Config, sessions SessionLookup) *TokenService {
	return &TokenService{cfg: cfg, sessions: sessions}
}

// Generate assembles and signs a token per §4.7.2. directives are
// normalized via directive.Encode and de-duplicated before being joined
// into the `scope` claim.
func (s *TokenService) Generate(
	ctx context.Context,
	userID, username string,
	directives []directive.Directive,
	roles []RoleClaim,
	sessionID string,
	expiry *time.Duration,
) (string, error) {
	logger := logx.WithContext(ctx)

	now := time.Now().UTC()
	lifetime := s.cfg.expiration(expiry)

	scope := encodeScope(directives)
	roleClaims := make([]string, 0, len(roles))
	for _, r := range roles {
		roleClaims = append(roleClaims, encodeRoleClaim(r.Code, r.Parameters))
	}

	claims := Claims{
		Issuer:      s.cfg.Issuer,
		Audience:    s.cfg.Audience,
		Subject:     userID,
		SessionID:   sessionID,
		Roles:       roleClaims,
		Scope:       scope,
		RBACVersion: s.cfg.RBACVersion,
		IssuedAt:    now,
		ExpiresAt:   now.Add(lifetime),
		Name:        username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, toMapClaims(claims))
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		logger.Errorf("accesstoken: signing failed: %v", err)
		return "", fmt.Errorf("accesstoken: sign: %w", err)
	}
	return signed, nil
}

// Validate runs the §4.7.3 validation pipeline in order, failing fast with
// a specific AuthError kind. The HMAC verification step is delegated to
// golang-jwt, which compares MACs in constant time.
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, authErr(Timeout, err)
	}

	mc, err := s.verifySignature(tokenString)
	if err != nil {
		return nil, err
	}

	claims, err := fromMapClaims(mc)
	if err != nil {
		return nil, err
	}

	if claims.Issuer != s.cfg.Issuer || claims.Audience != s.cfg.Audience {
		return nil, authErr(Malformed, fmt.Errorf("unexpected issuer/audience"))
	}

	if time.Now().UTC().After(claims.ExpiresAt.Add(s.cfg.ClockSkew)) {
		return nil, authErr(Expired, nil)
	}

	if claims.RBACVersion != s.cfg.RBACVersion {
		return nil, authErr(StaleSchema, nil)
	}

	if claims.SessionID != "" {
		if s.sessions == nil {
			return nil, authErr(Malformed, fmt.Errorf("token carries sid but no session lookup is configured"))
		}
		live, err := s.sessions.IsLive(ctx, claims.SessionID)
		if err != nil {
			return nil, authErr(Timeout, err)
		}
		if !live {
			return nil, authErr(SessionRevoked, nil)
		}
	}

	return &Principal{
		Subject:         claims.Subject,
		Name:            claims.Name,
		SessionID:       claims.SessionID,
		Roles:           claims.Roles,
		ScopeDirectives: decodeScope(claims.Scope),
	}, nil
}

// MutateOptions describes a §4.7.4 mutation request.
type MutateOptions struct {
	AddScopes        []directive.Directive
	RemoveScopes     []directive.Directive
	AddClaims        map[string]string
	RemoveClaims     []string
	RemoveClaimTypes []string
	Expiry           *time.Duration
	AllowExpired     bool
}

// Mutate validates tokenString (tolerating Expired when opts.AllowExpired
// is set, matching the refresh-path exception in §4.7.4), applies the
// requested scope and claim edits, and re-signs.
func (s *TokenService) Mutate(ctx context.Context, tokenString string, opts MutateOptions) (string, error) {
	mc, err := s.verifySignature(tokenString)
	if err != nil {
		return "", err
	}

	claims, err := fromMapClaims(mc)
	if err != nil {
		return "", err
	}
	if claims.Issuer != s.cfg.Issuer || claims.Audience != s.cfg.Audience {
		return "", authErr(Malformed, fmt.Errorf("unexpected issuer/audience"))
	}
	expired := time.Now().UTC().After(claims.ExpiresAt.Add(s.cfg.ClockSkew))
	if expired && !opts.AllowExpired {
		return "", authErr(Expired, nil)
	}
	if claims.RBACVersion != s.cfg.RBACVersion {
		return "", authErr(StaleSchema, nil)
	}

	directives := decodeScope(claims.Scope)
	directives = applyScopeMutation(directives, opts.AddScopes, opts.RemoveScopes)
	claims.Scope = encodeScope(directives)

	for _, key := range opts.RemoveClaims {
		removeExtraClaim(&claims, key)
	}
	for _, key := range opts.RemoveClaimTypes {
		removeExtraClaim(&claims, key)
	}
	for key, value := range opts.AddClaims {
		setExtraClaim(&claims, key, value)
	}

	now := time.Now().UTC()
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(s.cfg.expiration(opts.Expiry))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, toMapClaims(claims))
	return token.SignedString([]byte(s.cfg.Secret))
}

// verifySignature decodes tokenString and checks its HMAC-SHA256 signature,
// rejecting any other algorithm to prevent algorithm-confusion attacks.
func (s *TokenService) verifySignature(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		if strings.Contains(err.Error(), "signature is invalid") {
			return nil, authErr(BadSignature, err)
		}
		return nil, authErr(Malformed, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, authErr(Malformed, fmt.Errorf("unexpected claims type"))
	}
	return mc, nil
}

func setExtraClaim(c *Claims, key, value string) {
	switch key {
	case "name":
		c.Name = value
	case "deviceId":
		c.DeviceID = value
	}
}

func removeExtraClaim(c *Claims, key string) {
	switch key {
	case "name":
		c.Name = ""
	case "deviceId":
		c.DeviceID = ""
	}
}

func encodeScope(directives []directive.Directive) string {
	encoded := make([]string, 0, len(directives))
	seen := make(map[string]bool, len(directives))
	for _, d := range directives {
		enc := directive.Encode(d)
		if seen[enc] {
			continue
		}
		seen[enc] = true
		encoded = append(encoded, enc)
	}
	return strings.Join(encoded, " ")
}

func decodeScope(scope string) []directive.Directive {
	if scope == "" {
		return nil
	}
	parts := strings.Split(scope, " ")
	out := make([]directive.Directive, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		d, err := directive.Parse(p)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func applyScopeMutation(current, add, remove []directive.Directive) []directive.Directive {
	removeKeys := make(map[string]bool, len(remove))
	for _, d := range remove {
		removeKeys[directive.Encode(d)] = true
	}

	out := make([]directive.Directive, 0, len(current)+len(add))
	seen := make(map[string]bool, len(current)+len(add))
	for _, d := range current {
		key := directive.Encode(d)
		if removeKeys[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	for _, d := range add {
		key := directive.Encode(d)
		if removeKeys[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
