package accesstoken_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevaulthq/iam-core/pkg/accesstoken"
)

func newSessionService(t *testing.T) (*accesstoken.SessionService, *accesstoken.MemorySessionStore) {
	t.Helper()
	store := accesstoken.NewMemorySessionStore()
	tokens := accesstoken.NewTokenService(testConfig(), nil)
	svc := accesstoken.NewSessionService(tokens, store, accesstoken.SessionConfig{
		RefreshLifetime: time.Hour,
		Retention:       24 * time.Hour,
	})
	return svc, store
}

func TestOpenSession_ThenValidateAccessToken(t *testing.T) {
	store := accesstoken.NewMemorySessionStore()
	tokens := accesstoken.NewTokenService(testConfig(), nil)
	sessions := accesstoken.NewSessionService(tokens, store, accesstoken.SessionConfig{
		RefreshLifetime: time.Hour,
		Retention:       24 * time.Hour,
	})
	tokensWithSessions := accesstoken.NewTokenService(testConfig(), sessions)

	pair, err := sessions.OpenSession(context.Background(), "U-1", "alice", nil, nil, accesstoken.DeviceInfo{DeviceID: "d-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEmpty(t, pair.SessionID)

	principal, err := tokensWithSessions.Validate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "U-1", principal.Subject)
	assert.Equal(t, pair.SessionID, principal.SessionID)
}

func TestRefresh_RotatesTokenAndRevokesOldHash(t *testing.T) {
	svc, _ := newSessionService(t)

	pair, err := svc.OpenSession(context.Background(), "U-1", "alice", nil, nil, accesstoken.DeviceInfo{})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken, "alice", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, rotated.SessionID)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken, "alice", nil, nil)
	var authErr *accesstoken.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, accesstoken.BadCredential, authErr.Kind)
}

func TestRefresh_RevokedSessionRejected(t *testing.T) {
	svc, _ := newSessionService(t)

	pair, err := svc.OpenSession(context.Background(), "U-1", "alice", nil, nil, accesstoken.DeviceInfo{})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), pair.SessionID))

	_, err = svc.Refresh(context.Background(), pair.RefreshToken, "alice", nil, nil)
	var authErr *accesstoken.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, accesstoken.SessionRevoked, authErr.Kind)
}

func TestRevokeAllForUser_RevokesEverySession(t *testing.T) {
	svc, _ := newSessionService(t)

	first, err := svc.OpenSession(context.Background(), "U-1", "alice", nil, nil, accesstoken.DeviceInfo{DeviceID: "d-1"})
	require.NoError(t, err)
	second, err := svc.OpenSession(context.Background(), "U-1", "alice", nil, nil, accesstoken.DeviceInfo{DeviceID: "d-2"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllForUser(context.Background(), "U-1"))

	liveFirst, err := svc.IsLive(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.False(t, liveFirst)

	liveSecond, err := svc.IsLive(context.Background(), second.SessionID)
	require.NoError(t, err)
	assert.False(t, liveSecond)
}

func TestSweep_RemovesSessionsPastRetention(t *testing.T) {
	store := accesstoken.NewMemorySessionStore()
	tokens := accesstoken.NewTokenService(testConfig(), nil)
	svc := accesstoken.NewSessionService(tokens, store, accesstoken.SessionConfig{
		RefreshLifetime: -time.Hour,
		Retention:       time.Nanosecond,
	})

	pair, err := svc.OpenSession(context.Background(), "U-1", "alice", nil, nil, accesstoken.DeviceInfo{})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetByID(context.Background(), pair.SessionID)
	assert.ErrorIs(t, err, accesstoken.ErrSessionNotFound)
}
