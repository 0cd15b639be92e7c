package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/internal/user/repo"
)

// memStore enforces the same unique constraints as the real stores,
// email before username.
type memStore struct {
	mu    sync.Mutex
	users map[string]*entity.User

	creates         int
	saves           int
	usernameLookups []string

	// beforeCreate runs outside the lock, letting tests line up racing inserts.
	beforeCreate func()
	findErr      error
}

func newMemStore(seed ...*entity.User) *memStore {
	s := &memStore{users: map[string]*entity.User{}}
	for _, u := range seed {
		s.users[u.ID] = u.Clone()
	}
	return s
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *memStore) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usernameLookups = append(s.usernameLookups, username)
	for _, u := range s.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *memStore) Create(_ context.Context, u *entity.User) error {
	if s.beforeCreate != nil {
		s.beforeCreate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return repo.ErrDuplicateEmail
		}
	}
	for _, other := range s.users {
		if other.Username == u.Username {
			return repo.ErrDuplicateUsername
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return errors.New("duplicate id")
	}
	s.users[u.ID] = u.Clone()
	s.creates++
	return nil
}

func (s *memStore) Save(_ context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return repo.ErrNotFound
	}
	s.users[u.ID] = u.Clone()
	s.saves++
	return nil
}

func (s *memStore) UnlockIfExpired(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.LockExpired(time.Now()) {
		return false, nil
	}
	u.Status = entity.StatusActive
	u.LockedUntil = nil
	u.LoginFailedAttempts = 0
	return true, nil
}

func (s *memStore) snapshot(id string) entity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

func (s *memStore) handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Username)
	}
	return out
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) ObserveResolution(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[outcome]++
}
