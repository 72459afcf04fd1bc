package accesstoken

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded shape of §4.7.1/§6.2: iss, aud, sub, sid, roles,
// scope, rbac_version, iat, exp, and the optional name/deviceId claims.
type Claims struct {
	Issuer      string
	Audience    string
	Subject     string
	SessionID   string
	Roles       []string
	Scope       string
	RBACVersion string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Name        string
	DeviceID    string
}

func toMapClaims(c Claims) jwt.MapClaims {
	mc := jwt.MapClaims{
		"iss":          c.Issuer,
		"aud":          c.Audience,
		"sub":          c.Subject,
		"roles":        c.Roles,
		"scope":        c.Scope,
		"rbac_version": c.RBACVersion,
		"iat":          c.IssuedAt.Unix(),
		"exp":          c.ExpiresAt.Unix(),
	}
	if c.SessionID != "" {
		mc["sid"] = c.SessionID
	}
	if c.Name != "" {
		mc["name"] = c.Name
	}
	if c.DeviceID != "" {
		mc["deviceId"] = c.DeviceID
	}
	return mc
}

// fromMapClaims decodes and type-checks the standard claim set. Any missing
// or mistyped required claim surfaces as Malformed.
func fromMapClaims(mc jwt.MapClaims) (Claims, error) {
	iss, err := claimString(mc, "iss")
	if err != nil {
		return Claims{}, err
	}
	aud, err := claimString(mc, "aud")
	if err != nil {
		return Claims{}, err
	}
	sub, err := claimString(mc, "sub")
	if err != nil {
		return Claims{}, err
	}
	rbacVersion, err := claimString(mc, "rbac_version")
	if err != nil {
		return Claims{}, err
	}
	scope, _ := mc["scope"].(string)

	roles, err := claimStringSlice(mc, "roles")
	if err != nil {
		return Claims{}, err
	}

	iat, err := claimUnixTime(mc, "iat")
	if err != nil {
		return Claims{}, err
	}
	exp, err := claimUnixTime(mc, "exp")
	if err != nil {
		return Claims{}, err
	}

	sid, _ := mc["sid"].(string)
	name, _ := mc["name"].(string)
	deviceID, _ := mc["deviceId"].(string)

	return Claims{
		Issuer:      iss,
		Audience:    aud,
		Subject:     sub,
		SessionID:   sid,
		Roles:       roles,
		Scope:       scope,
		RBACVersion: rbacVersion,
		IssuedAt:    iat,
		ExpiresAt:   exp,
		Name:        name,
		DeviceID:    deviceID,
	}, nil
}

func claimString(mc jwt.MapClaims, key string) (string, error) {
	v, ok := mc[key]
	if !ok {
		return "", authErr(Malformed, fmt.Errorf("missing claim %q", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", authErr(Malformed, fmt.Errorf("claim %q is not a string", key))
	}
	return s, nil
}

func claimStringSlice(mc jwt.MapClaims, key string) ([]string, error) {
	v, ok := mc[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, authErr(Malformed, fmt.Errorf("claim %q is not an array", key))
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, authErr(Malformed, fmt.Errorf("claim %q contains a non-string element", key))
		}
		out = append(out, s)
	}
	return out, nil
}

// claimUnixTime accepts either a JSON number (float64, the common case once
// decoded through encoding/json) or a numeric string, matching the
// leniency the teacher's getUnixTime helper applies.
func claimUnixTime(mc jwt.MapClaims, key string) (time.Time, error) {
	v, ok := mc[key]
	if !ok {
		return time.Time{}, authErr(Malformed, fmt.Errorf("missing claim %q", key))
	}
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, authErr(Malformed, fmt.Errorf("claim %q is not numeric: %w", key, err))
		}
		return time.Unix(n, 0).UTC(), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return time.Time{}, authErr(Malformed, fmt.Errorf("claim %q is not numeric: %w", key, err))
		}
		return time.Unix(n, 0).UTC(), nil
	default:
		return time.Time{}, authErr(Malformed, fmt.Errorf("claim %q has unsupported type %T", key, v))
	}
}

// encodeRoleClaim renders a role code with its bound parameters in the
// `"<CODE>[;key=value]*"` wire form from §6.2.
func encodeRoleClaim(code string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(code)
	names := sortedKeys(params)
	for _, name := range names {
		b.WriteByte(';')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
