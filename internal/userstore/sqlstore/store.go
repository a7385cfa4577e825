// Package sqlstore implements userstore.Store on PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"authflow/internal/observability/logging"
	"authflow/internal/userstore"
)

const findByUsernameQuery = `SELECT id, username, password_hash,
	COALESCE(name, '') AS name, COALESCE(email, '') AS email, roles
	FROM users WHERE username = $1 AND disabled = false`

// Store reads users from a "users" table
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

type userRow struct {
	userstore.User
	Roles pq.StringArray `db:"roles"`
}

// Open connects to PostgreSQL using dsn
func Open(ctx context.Context, dsn string, logger *logging.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to user database: %w", err)
	}
	logger.Info("Connected to user database", "dsn", logging.RedactStringURL(dsn))
	return New(db, logger), nil
}

// New wraps an existing connection
func New(db *sqlx.DB, logger *logging.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.WithModule("userstore.sql"),
	}
}

// FindByUsername implements userstore.Store
func (s *Store) FindByUsername(ctx context.Context, username string) (*userstore.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, findByUsernameQuery, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, userstore.ErrNotFound
		}
		s.logger.Error("User lookup failed", logging.Err(err))
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u := row.User
	u.Roles = []string(row.Roles)
	return &u, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

var _ userstore.Store = (*Store)(nil)
