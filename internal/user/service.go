package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/internal/user/repo"
	"github.com/newsdesk/service-core/pkg/utilities"
)

// PasswordHasher abstracts the hash algorithm.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// DefaultHashCost is used when BcryptHasher.Cost is zero.
const DefaultHashCost = 12

type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return DefaultHashCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports hashes made with a lower cost than the current one.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	return err == nil && c < b.cost()
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrLocked         = errors.New("user locked")
	ErrDisabled       = errors.New("user disabled")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrEmailTaken     = errors.New("email already registered")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrInvalidInput   = errors.New("invalid input")
	ErrForbidden      = errors.New("forbidden")
	ErrUnknownRole    = errors.New("unknown role")
)

const minPasswordLen = 8

// Service owns local accounts: password sign-up and login, lookups and
// role changes.
type Service struct {
	repo   repo.Store
	hasher PasswordHasher
	logger *zap.SugaredLogger

	MaxFailed int
	LockFor   time.Duration
}

func NewService(store repo.Store, hasher PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Service{repo: store, hasher: hasher, logger: logger, MaxFailed: 6, LockFor: 15 * time.Minute}
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Signup creates a password account with role user.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*entity.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || strings.ContainsAny(username, " \t\n@") {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}
	if len(in.Password) < minPasswordLen {
		return nil, ErrInvalidInput
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		ID:           utilities.NewSnowflakeID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         entity.RoleUser,
		Status:       entity.StatusActive,
	}
	switch err := s.repo.Create(ctx, u); {
	case errors.Is(err, repo.ErrDuplicateEmail):
		return nil, ErrEmailTaken
	case errors.Is(err, repo.ErrDuplicateUsername):
		return nil, ErrUsernameTaken
	case err != nil:
		return nil, err
	}
	s.logger.Infow("account signed up", "user_id", u.ID)
	return u, nil
}

// AuthenticatePassword checks a password for an email or username. Repeated
// failures lock the account for LockFor.
func (s *Service) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrBadCredentials
	}

	var u *entity.User
	var err error
	if strings.Contains(identifier, "@") {
		u, err = s.repo.FindByEmail(ctx, strings.ToLower(identifier))
	} else {
		u, err = s.repo.FindByUsername(ctx, identifier)
	}
	if errors.Is(err, repo.ErrNotFound) {
		// same answer as a wrong password
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if u.LockExpired(time.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = entity.StatusActive
			u.LockedUntil = nil
		}
	}
	switch u.Status {
	case entity.StatusLocked:
		return nil, ErrLocked
	case entity.StatusDisabled:
		return nil, ErrDisabled
	}
	// provider-provisioned accounts have no password
	if u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			if locked, _ := s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockFor); locked {
				s.logger.Warnw("account locked after failed logins", "user_id", u.ID)
			}
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		if h, hErr := s.hasher.Hash(password); hErr == nil {
			if err := s.repo.UpdatePasswordHash(ctx, u.ID, h); err != nil {
				s.logger.Warnw("password rehash failed", "user_id", u.ID, "err", err)
			}
		}
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// UpdateRole lets an admin change another account's role. The actor is
// reloaded so a stale token cannot grant admin rights.
func (s *Service) UpdateRole(ctx context.Context, actorID, targetID, role string) (*entity.User, error) {
	r, ok := entity.ParseRole(role)
	if !ok {
		return nil, ErrUnknownRole
	}
	actor, err := s.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := s.repo.UpdateRole(ctx, targetID, r); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.logger.Infow("role changed", "actor_id", actorID, "user_id", targetID, "role", r)
	return s.GetByID(ctx, targetID)
}
