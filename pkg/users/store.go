package users

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store implements Directory using PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, first_name, last_name, created_at, updated_at`

// FindByID retrieves a user by id.
func (s *Store) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// FindByEmail retrieves a user by email, case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(email) = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

func (s *Store) scanOne(row *sql.Row) (*User, error) {
	user := &User{}
	var firstName, lastName sql.NullString
	err := row.Scan(&user.ID, &user.Email, &firstName, &lastName, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if firstName.Valid {
		user.FirstName = firstName.String
	}
	if lastName.Valid {
		user.LastName = lastName.String
	}
	return user, nil
}
