package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/newsdesk/service-core/internal/user/entity"
)

const (
	emailConstraint    = "uq_users_email"
	usernameConstraint = "uq_users_username"
)

// UserRepo is the Postgres account store.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if missing. The email constraint is
// declared first so a row colliding on both columns reports the email.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email CITEXT,
  username TEXT NOT NULL,
  provider_id TEXT,
  avatar TEXT,
  role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
  password_hash TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT uq_users_email UNIQUE (email),
  CONSTRAINT uq_users_username UNIQUE (username)
);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type userRow struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	Username            string     `db:"username"`
	ProviderID          string     `db:"provider_id"`
	Avatar              string     `db:"avatar"`
	Role                string     `db:"role"`
	PasswordHash        string     `db:"password_hash"`
	Status              string     `db:"status"`
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

func (row userRow) toEntity() *entity.User {
	return &entity.User{
		ID:                  row.ID,
		Email:               row.Email,
		Username:            row.Username,
		ProviderID:          row.ProviderID,
		Avatar:              row.Avatar,
		Role:                entity.Role(row.Role),
		PasswordHash:        row.PasswordHash,
		Status:              row.Status,
		LoginFailedAttempts: row.LoginFailedAttempts,
		LockedUntil:         row.LockedUntil,
		LastLoginAt:         row.LastLoginAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

const selectUser = `SELECT id, COALESCE(email, '') AS email, username,
	COALESCE(provider_id, '') AS provider_id, COALESCE(avatar, '') AS avatar,
	role, COALESCE(password_hash, '') AS password_hash, status,
	login_failed_attempts, locked_until, last_login_at, created_at, updated_at
  FROM users`

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUser+" WHERE "+where, arg); err != nil {
		return nil, translate(err)
	}
	return row.toEntity(), nil
}

// FindByEmail matches case-insensitively through citext.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, "username = $1", username)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// List pages through accounts, newest first.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, selectUser+" ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset); err != nil {
		return nil, err
	}
	out := make([]*entity.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// Create inserts u in a single statement and fills the server timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, username, provider_id, avatar, role, password_hash, status)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8)
		RETURNING created_at, updated_at`
	applyDefaults(u)
	err := r.db.QueryRowxContext(ctx, q,
		u.ID, u.Email, u.Username, u.ProviderID, u.Avatar, string(u.Role), u.PasswordHash, u.Status,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (r *UserRepo) Save(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET username = $2, provider_id = NULLIF($3, ''), avatar = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	if err := r.db.QueryRowxContext(ctx, q, u.ID, u.Username, u.ProviderID, u.Avatar).Scan(&u.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (r *UserRepo) UpdateRole(ctx context.Context, id string, role entity.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return err
}

// IncrementFailedLogin bumps the counter and returns the new value.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id string) (int, error) {
	const q = `UPDATE users SET login_failed_attempts = login_failed_attempts + 1, updated_at = NOW()
		WHERE id = $1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, translate(err)
	}
	return v, nil
}

// LockIfThreshold locks an active account once its failures reach threshold.
func (r *UserRepo) LockIfThreshold(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error) {
	const q = `UPDATE users SET status = 'locked', locked_until = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND login_failed_attempts >= $2 RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, threshold, time.Now().Add(lockFor))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *UserRepo) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE users SET status = 'active', locked_until = NULL, login_failed_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND status = 'locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE users SET login_failed_attempts = 0, last_login_at = NOW(), locked_until = NULL, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case emailConstraint:
			return ErrDuplicateEmail
		case usernameConstraint:
			return ErrDuplicateUsername
		}
		return fmt.Errorf("unique violation on %s: %w", pqErr.Constraint, err)
	}
	return err
}
