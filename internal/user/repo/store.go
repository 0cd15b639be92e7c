package repo

import (
	"context"
	"errors"
	"time"

	"github.com/newsdesk/service-core/internal/user/entity"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

// Store is implemented by the Postgres and Mongo account stores.
// Lookups return ErrNotFound; writes return ErrDuplicateEmail or
// ErrDuplicateUsername when a unique constraint rejects them.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)

	Create(ctx context.Context, u *entity.User) error
	// Save persists the profile columns (username, provider_id, avatar).
	Save(ctx context.Context, u *entity.User) error
	UpdateRole(ctx context.Context, id string, role entity.Role) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	IncrementFailedLogin(ctx context.Context, id string) (int, error)
	LockIfThreshold(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error)
	UnlockIfExpired(ctx context.Context, id string) (bool, error)
	ResetLoginSuccess(ctx context.Context, id string) error
}

var (
	_ Store = (*UserRepo)(nil)
	_ Store = (*MongoRepo)(nil)
)

// applyDefaults fills Role and Status left empty by the caller.
func applyDefaults(u *entity.User) {
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	if u.Status == "" {
		u.Status = entity.StatusActive
	}
}
