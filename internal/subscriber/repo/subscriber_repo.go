package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/newsdesk/service-core/internal/subscriber/entity"
)

var (
	ErrNotFound          = errors.New("subscriber not found")
	ErrAlreadySubscribed = errors.New("already subscribed")
)

type SubscriberRepo struct {
	db *sqlx.DB
}

func NewSubscriberRepo(db *sqlx.DB) *SubscriberRepo {
	return &SubscriberRepo{db: db}
}

// EnsureTable creates the subscribers table and its unique email index.
func (r *SubscriberRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS subscribers (
		id varchar(32) PRIMARY KEY,
		email varchar(254) NOT NULL,
		source varchar(32) NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}
	const idx = `CREATE UNIQUE INDEX IF NOT EXISTS idx_subscribers_email ON subscribers (email);`
	_, err := r.db.ExecContext(ctx, idx)
	return err
}

func (r *SubscriberRepo) Create(ctx context.Context, s *entity.Subscriber) error {
	const q = `INSERT INTO subscribers (id, email, source) VALUES ($1, $2, $3) RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, q, s.ID, s.Email, s.Source).Scan(&s.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadySubscribed
	}
	return err
}

func (r *SubscriberRepo) DeleteByEmail(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = $1`, email)
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

// List pages by id, newest first.
func (r *SubscriberRepo) List(ctx context.Context, limit, offset int) ([]*entity.Subscriber, error) {
	out := []*entity.Subscriber{}
	const q = `SELECT id, email, source, created_at FROM subscribers ORDER BY id DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &out, q, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}
