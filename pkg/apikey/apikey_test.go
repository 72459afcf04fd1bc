package apikey_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevaulthq/iam-core/pkg/apikey"
)

type memStore struct {
	mu   sync.Mutex
	keys map[uuid.UUID]apikey.Key
}

func newMemStore() *memStore { return &memStore{keys: make(map[uuid.UUID]apikey.Key)} }

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (apikey.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return apikey.Key{}, apikey.ErrNotFound
	}
	return k, nil
}

func (m *memStore) GetBySecretHash(_ context.Context, hash string) (apikey.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.SecretHash == hash {
			return k, nil
		}
	}
	return apikey.Key{}, apikey.ErrNotFound
}

func (m *memStore) GetActiveByUserID(_ context.Context, userID uuid.UUID) ([]apikey.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []apikey.Key
	for _, k := range m.keys {
		if k.UserID == userID && k.Live(time.Now().UTC()) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, k apikey.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[k.ID] = k
	return nil
}

func (m *memStore) Revoke(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return apikey.ErrNotFound
	}
	k.IsRevoked = true
	k.RevokedAt = time.Now().UTC()
	m.keys[id] = k
	return nil
}

func (m *memStore) DeleteExpiredOrRevoked(_ context.Context, expiredBefore, revokedBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, k := range m.keys {
		if k.ExpiresAt.Before(expiredBefore) || (k.IsRevoked && k.RevokedAt.Before(revokedBefore)) {
			delete(m.keys, id)
			n++
		}
	}
	return n, nil
}

func TestIssue_ThenVerifySucceeds(t *testing.T) {
	svc := apikey.NewService(newMemStore())
	userID := uuid.New()

	issued, err := svc.Issue(context.Background(), userID, "ci-runner", nil, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Secret)

	verified, err := svc.Verify(context.Background(), issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, issued.Key.ID, verified.ID)
	assert.False(t, verified.LastUsedAt.IsZero())
}

func TestVerify_UnknownSecretNotFound(t *testing.T) {
	svc := apikey.NewService(newMemStore())
	_, err := svc.Verify(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, apikey.ErrNotFound)
}

func TestVerify_RevokedKeyRejected(t *testing.T) {
	svc := apikey.NewService(newMemStore())
	issued, err := svc.Issue(context.Background(), uuid.New(), "k", nil, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), issued.Key.ID))

	_, err = svc.Verify(context.Background(), issued.Secret)
	assert.ErrorIs(t, err, apikey.ErrRevoked)
}

func TestVerify_ExpiredKeyRejected(t *testing.T) {
	svc := apikey.NewService(newMemStore())
	issued, err := svc.Issue(context.Background(), uuid.New(), "k", nil, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), issued.Secret)
	assert.ErrorIs(t, err, apikey.ErrExpired)
}

func TestSweep_RemovesExpiredKeepsLive(t *testing.T) {
	store := newMemStore()
	svc := apikey.NewService(store)

	expired, err := svc.Issue(context.Background(), uuid.New(), "expired", nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	live, err := svc.Issue(context.Background(), uuid.New(), "live", nil, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	n, err := svc.Sweep(context.Background(), time.Minute, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetByID(context.Background(), expired.Key.ID)
	assert.ErrorIs(t, err, apikey.ErrNotFound)
	_, err = store.GetByID(context.Background(), live.Key.ID)
	assert.NoError(t, err)
}
