package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/newsdesk/service-core/internal/setting/entity"
)

var (
	ErrNotFound        = errors.New("setting not found")
	ErrVersionConflict = errors.New("setting version conflict")
)

// Repo stores settings in PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable creates the settings table and its category index when missing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	var tbl sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.settings')").Scan(&tbl); err != nil {
		return err
	}
	if !tbl.Valid {
		const ddl = `CREATE TABLE settings (
			key varchar(64) PRIMARY KEY,
			category varchar(32) NOT NULL DEFAULT '',
			value jsonb NOT NULL DEFAULT '{}'::jsonb,
			version integer NOT NULL DEFAULT 1,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	var idx sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.idx_settings_category')").Scan(&idx); err != nil {
		return err
	}
	if !idx.Valid {
		if _, err := r.db.ExecContext(ctx, `CREATE INDEX idx_settings_category ON settings (category)`); err != nil {
			return err
		}
	}
	return nil
}

const selectSetting = `SELECT key, category, value, version, updated_at FROM settings`

func (r *Repo) Get(ctx context.Context, key string) (*entity.Setting, error) {
	var s entity.Setting
	if err := r.db.GetContext(ctx, &s, selectSetting+` WHERE key = $1`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// List returns settings ordered by key. An empty category matches all.
func (r *Repo) List(ctx context.Context, category string, limit, offset int) ([]*entity.Setting, error) {
	out := []*entity.Setting{}
	q := selectSetting + ` WHERE ($1 = '' OR category = $1) ORDER BY key LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &out, q, category, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert writes s unconditionally and bumps the version. s.Version and
// s.UpdatedAt are filled from the stored row.
func (r *Repo) Upsert(ctx context.Context, s *entity.Setting) error {
	const q = `INSERT INTO settings (key, category, value) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET category = EXCLUDED.category, value = EXCLUDED.value,
  version = settings.version + 1, updated_at = now()
RETURNING version, updated_at`
	return r.db.QueryRowxContext(ctx, q, s.Key, s.Category, []byte(s.Value)).Scan(&s.Version, &s.UpdatedAt)
}

// UpdateVersioned writes s only if the stored version equals expected.
func (r *Repo) UpdateVersioned(ctx context.Context, s *entity.Setting, expected int) error {
	const q = `UPDATE settings SET category = $2, value = $3, version = version + 1, updated_at = now()
WHERE key = $1 AND version = $4
RETURNING version, updated_at`
	err := r.db.QueryRowxContext(ctx, q, s.Key, s.Category, []byte(s.Value), expected).Scan(&s.Version, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *Repo) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key)
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
