package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevaulthq/iam-core/internal/store/postgres"
	"github.com/corevaulthq/iam-core/pkg/apikey"
	"github.com/corevaulthq/iam-core/pkg/identity"
)

func newMockConn(t *testing.T) (*postgres.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewConn(sqlx.NewDb(db, "postgres")), mock
}

func TestUsers_GetByID_Found(t *testing.T) {
	conn, mock := newMockConn(t)
	id := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "username", "normalized_username", "email", "password_hash", "is_anonymous",
		"role_assignments", "direct_grants", "identity_links", "lockout_end",
		"access_failed_count", "created_at", "linked_at", "last_login_at",
	}).AddRow(id, "alice", "ALICE", "alice@example.com", nil, false,
		[]byte(`[]`), []byte(`[]`), []byte(`[]`), nil, 0, now, nil, nil)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(rows)

	got, err := conn.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers_GetByID_QueryError(t *testing.T) {
	conn, mock := newMockConn(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(sqlmock.ErrCancelled)
	_, err := conn.Users().GetByID(context.Background(), id)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers_GetByID_UnknownUser(t *testing.T) {
	conn, mock := newMockConn(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "normalized_username", "email", "password_hash", "is_anonymous",
			"role_assignments", "direct_grants", "identity_links", "lockout_end",
			"access_failed_count", "created_at", "linked_at", "last_login_at",
		}))

	_, err := conn.Users().GetByID(context.Background(), id)
	assert.ErrorIs(t, err, identity.ErrUnknownUser)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeys_DeleteExpiredOrRevoked_CommitsOnSuccess(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM api_keys`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := conn.APIKeys().DeleteExpiredOrRevoked(context.Background(),
		time.Now().UTC(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeys_DeleteExpiredOrRevoked_RollsBackOnError(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM api_keys`).
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	_, err := conn.APIKeys().DeleteExpiredOrRevoked(context.Background(),
		time.Now().UTC(), time.Now().UTC())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeys_GetByID_DecodesDirectives(t *testing.T) {
	conn, mock := newMockConn(t)
	id := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "secret_hash", "directives",
		"created_at", "expires_at", "revoked_at", "is_revoked", "last_used_at",
	}).AddRow(id, userID, "ci key", "hash", []byte(`["allow;_read;userId=`+userID.String()+`"]`),
		now, now.Add(24*time.Hour), nil, false, nil)

	mock.ExpectQuery(`SELECT .* FROM api_keys WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(rows)

	got, err := conn.APIKeys().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, got.Directives, 1)
	assert.Equal(t, "_read", got.Directives[0].Path)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeys_GetByID_NotFound(t *testing.T) {
	conn, mock := newMockConn(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM api_keys WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "name", "secret_hash", "directives",
			"created_at", "expires_at", "revoked_at", "is_revoked", "last_used_at",
		}))

	_, err := conn.APIKeys().GetByID(context.Background(), id)
	assert.ErrorIs(t, err, apikey.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
