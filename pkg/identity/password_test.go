package identity_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/corevaulthq/iam-core/pkg/identity"
)

type memResetStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]identity.ResetToken
	byHash map[string]uuid.UUID
}

func newMemResetStore() *memResetStore {
	return &memResetStore{byID: make(map[uuid.UUID]identity.ResetToken), byHash: make(map[string]uuid.UUID)}
}

func (s *memResetStore) Save(_ context.Context, t identity.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
	s.byHash[t.TokenHash] = t.ID
	return nil
}

func (s *memResetStore) GetByTokenHash(_ context.Context, hash string) (identity.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hash]
	if !ok {
		return identity.ResetToken{}, identity.ErrResetTokenInvalidOrExpired
	}
	return s.byID[id], nil
}

func (s *memResetStore) MarkUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return identity.ErrResetTokenInvalidOrExpired
	}
	t.Used = true
	s.byID[id] = t
	return nil
}

type recordingSessionRevoker struct {
	mu           sync.Mutex
	revokedUsers []string
}

func (r *recordingSessionRevoker) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokedUsers = append(r.revokedUsers, userID)
	return nil
}

func TestRequestPasswordReset_ThenResetPassword(t *testing.T) {
	users := newMemUserStore()
	userID := uuid.New()
	oldHash, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.Save(context.Background(), identity.User{
		ID:       userID,
		Username: "alice",
		Password: &identity.PasswordCredential{Hash: string(oldHash)},
	}))

	resets := newMemResetStore()
	sessions := &recordingSessionRevoker{}
	manager := identity.NewPasswordManager(users, resets, sessions)

	rawToken, err := manager.RequestPasswordReset(context.Background(), "alice")
	require.NoError(t, err)
	require.NotEmpty(t, rawToken)

	require.NoError(t, manager.ResetPassword(context.Background(), rawToken, "new-password"))

	reloaded, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(reloaded.Password.Hash), []byte("new-password")))
	assert.Contains(t, sessions.revokedUsers, userID.String())

	err = manager.ResetPassword(context.Background(), rawToken, "another-password")
	assert.ErrorIs(t, err, identity.ErrResetTokenInvalidOrExpired)
}

func TestResetPassword_ExpiredTokenRejected(t *testing.T) {
	users := newMemUserStore()
	userID := uuid.New()
	require.NoError(t, users.Save(context.Background(), identity.User{ID: userID, Username: "alice"}))

	const rawToken = "expired-raw-reset-token"
	sum := sha256.Sum256([]byte(rawToken))

	resets := newMemResetStore()
	require.NoError(t, resets.Save(context.Background(), identity.ResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}))

	manager := identity.NewPasswordManager(users, resets, &recordingSessionRevoker{})

	err := manager.ResetPassword(context.Background(), rawToken, "new-password")
	assert.ErrorIs(t, err, identity.ErrResetTokenInvalidOrExpired)
}

func TestChangePassword_WrongCurrentPasswordRejected(t *testing.T) {
	users := newMemUserStore()
	userID := uuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.Save(context.Background(), identity.User{
		ID:       userID,
		Username: "alice",
		Password: &identity.PasswordCredential{Hash: string(hash)},
	}))

	manager := identity.NewPasswordManager(users, newMemResetStore(), &recordingSessionRevoker{})

	err = manager.ChangePassword(context.Background(), userID, "wrong", "new-password")
	assert.Error(t, err)
}

func TestChangePassword_SuccessRevokesSessions(t *testing.T) {
	users := newMemUserStore()
	userID := uuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.Save(context.Background(), identity.User{
		ID:       userID,
		Username: "alice",
		Password: &identity.PasswordCredential{Hash: string(hash)},
	}))

	sessions := &recordingSessionRevoker{}
	manager := identity.NewPasswordManager(users, newMemResetStore(), sessions)

	require.NoError(t, manager.ChangePassword(context.Background(), userID, "correct", "new-password"))

	reloaded, err := users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(reloaded.Password.Hash), []byte("new-password")))
	assert.Contains(t, sessions.revokedUsers, userID.String())
}
