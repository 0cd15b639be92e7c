package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/internal/user/repo"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

var _ repo.Store = (*memRepo)(nil)

func newMemRepo(seed ...*entity.User) *memRepo {
	m := &memRepo{users: map[string]*entity.User{}}
	for _, u := range seed {
		m.users[u.ID] = u.Clone()
	}
	return m
}

func (m *memRepo) get(id string) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u.Clone()
	}
	return nil
}

func (m *memRepo) find(match func(*entity.User) bool) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return u.Email != "" && u.Email == email })
}

func (m *memRepo) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return u.Username == username })
}

func (m *memRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	if u := m.get(id); u != nil {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*entity.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memRepo) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if u.Email != "" && existing.Email == u.Email {
			return repo.ErrDuplicateEmail
		}
		if existing.Username == u.Username {
			return repo.ErrDuplicateUsername
		}
	}
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *memRepo) update(id string, fn func(*entity.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	fn(u)
	return nil
}

func (m *memRepo) Save(_ context.Context, u *entity.User) error {
	return m.update(u.ID, func(stored *entity.User) {
		stored.Username, stored.ProviderID, stored.Avatar = u.Username, u.ProviderID, u.Avatar
	})
}

func (m *memRepo) UpdateRole(_ context.Context, id string, role entity.Role) error {
	return m.update(id, func(u *entity.User) { u.Role = role })
}

func (m *memRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return m.update(id, func(u *entity.User) { u.PasswordHash = hash })
}

func (m *memRepo) IncrementFailedLogin(_ context.Context, id string) (int, error) {
	var n int
	err := m.update(id, func(u *entity.User) {
		u.LoginFailedAttempts++
		n = u.LoginFailedAttempts
	})
	return n, err
}

func (m *memRepo) LockIfThreshold(_ context.Context, id string, threshold int, lockFor time.Duration) (bool, error) {
	var locked bool
	err := m.update(id, func(u *entity.User) {
		if u.Status == entity.StatusActive && u.LoginFailedAttempts >= threshold {
			until := time.Now().Add(lockFor)
			u.Status, u.LockedUntil = entity.StatusLocked, &until
			locked = true
		}
	})
	return locked, err
}

func (m *memRepo) UnlockIfExpired(_ context.Context, id string) (bool, error) {
	var unlocked bool
	err := m.update(id, func(u *entity.User) {
		if u.Status == entity.StatusLocked && u.LockedUntil != nil && u.LockedUntil.Before(time.Now()) {
			u.Status, u.LockedUntil, u.LoginFailedAttempts = entity.StatusActive, nil, 0
			unlocked = true
		}
	})
	return unlocked, err
}

func (m *memRepo) ResetLoginSuccess(_ context.Context, id string) error {
	return m.update(id, func(u *entity.User) {
		u.LoginFailedAttempts = 0
		now := time.Now()
		u.LastLoginAt = &now
	})
}
