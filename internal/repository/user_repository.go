package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/afetnet/mesh-registry-api/internal/models"
)

const userColumns = "id, email, national_id, password_hash, full_name, role, session_version, active, last_login, created_at, updated_at"

// UserRepository provides database access to user identity records. It is
// the credential store behind the auth subsystem: lookups by email or id
// plus the session-version mutations that implement revocation.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ErrDuplicateEmail reports a unique-constraint violation on users.email.
var ErrDuplicateEmail = fmt.Errorf("email already registered")

// Create inserts a new user. Session version always starts at zero.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.SessionVersion = 0

	const query = `INSERT INTO users (id, email, national_id, password_hash, full_name, role, session_version, active, created_at, updated_at) VALUES (:id, :email, :national_id, :password_hash, :full_name, :role, :session_version, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// AdvanceSessionVersion performs the conditional increment that consumes a
// refresh token: the version moves from expected to expected+1 in a single
// statement. Of any number of concurrent rotations presenting the same
// expected value, the database lets exactly one through; the rest see a
// false return and must be treated as token replay.
func (r *UserRepository) AdvanceSessionVersion(ctx context.Context, id string, expected int64) (bool, error) {
	const query = `UPDATE users SET session_version = session_version + 1, updated_at = $3 WHERE id = $1 AND session_version = $2`
	res, err := r.db.ExecContext(ctx, query, id, expected, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("advance session version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance session version rows: %w", err)
	}
	return affected == 1, nil
}

// RevokeSessions bumps the session version unconditionally, invalidating
// every outstanding refresh token for the user on next use.
func (r *UserRepository) RevokeSessions(ctx context.Context, id string) error {
	const query = `UPDATE users SET session_version = session_version + 1, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
