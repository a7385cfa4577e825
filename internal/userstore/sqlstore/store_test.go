package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow/internal/observability/logging"
	"authflow/internal/userstore"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres"), logging.NewNop()), mock
}

var query = regexp.QuoteMeta(findByUsernameQuery)

func TestFindByUsername(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "username", "password_hash", "name", "email", "roles"}).
		AddRow("u1", "alice", "hash", "Alice", "alice@example.com", "{admin,dev}")
	mock.ExpectQuery(query).WithArgs("alice").WillReturnRows(rows)

	u, err := store.FindByUsername(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, []string{"admin", "dev"}, u.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUsername_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(query).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "name", "email", "roles"}))

	_, err := store.FindByUsername(context.Background(), "ghost")

	assert.ErrorIs(t, err, userstore.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUsername_DatabaseError(t *testing.T) {
	store, mock := newMockStore(t)
	outage := errors.New("connection refused")
	mock.ExpectQuery(query).WithArgs("alice").WillReturnError(outage)

	_, err := store.FindByUsername(context.Background(), "alice")

	assert.ErrorIs(t, err, outage)
	assert.NotErrorIs(t, err, userstore.ErrNotFound)
}
