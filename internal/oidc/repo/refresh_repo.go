package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("refresh session not found")

// RefreshSession is keyed by the SHA-256 of the opaque token; the token
// itself is never stored.
type RefreshSession struct {
	ID        int64     `db:"id"`
	TokenHash string    `db:"token_hash"`
	UserID    string    `db:"user_id"`
	ClientID  string    `db:"client_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS oidc_refresh_sessions (
  id BIGSERIAL PRIMARY KEY,
  token_hash TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  client_id TEXT NOT NULL DEFAULT '',
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_sessions_user ON oidc_refresh_sessions(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *RefreshRepo) Save(ctx context.Context, s *RefreshSession) error {
	const q = `INSERT INTO oidc_refresh_sessions (token_hash, user_id, client_id, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`
	return r.db.QueryRowxContext(ctx, q, s.TokenHash, s.UserID, s.ClientID, s.ExpiresAt).Scan(&s.ID)
}

func (r *RefreshRepo) Get(ctx context.Context, tokenHash string) (*RefreshSession, error) {
	var s RefreshSession
	const q = `SELECT id, token_hash, user_id, client_id, expires_at FROM oidc_refresh_sessions WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &s, q, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Delete reports whether a row was removed.
func (r *RefreshRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oidc_refresh_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteExpired prunes sessions past their expiry.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oidc_refresh_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
