package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/internal/user/repo"
	"github.com/newsdesk/service-core/pkg/utilities"
)

// AccountStore is the slice of repo.Store the resolver needs.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	Create(ctx context.Context, u *entity.User) error
	Save(ctx context.Context, u *entity.User) error
	UnlockIfExpired(ctx context.Context, id string) (bool, error)
}

// Recorder receives one outcome label per Resolve call.
type Recorder interface {
	ObserveResolution(outcome string)
}

const (
	OutcomeMatched          = "matched"
	OutcomeReconciled       = "reconciled"
	OutcomeProvisioned      = "provisioned"
	OutcomeMissingContact   = "missing_contact"
	OutcomeDuplicateContact = "duplicate_contact"
	OutcomeHandleTaken      = "handle_taken"
	OutcomeStoreError       = "store_error"
	OutcomeBlocked          = "blocked"
)

type Resolver struct {
	store    AccountStore
	logger   *zap.SugaredLogger
	recorder Recorder
	newID    func() string
}

type Option func(*Resolver)

func WithRecorder(r Recorder) Option { return func(res *Resolver) { res.recorder = r } }

// WithIDGenerator replaces the snowflake generator for new account ids.
func WithIDGenerator(fn func() string) Option { return func(res *Resolver) { res.newID = fn } }

func NewResolver(store AccountStore, logger *zap.SugaredLogger, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: logger, newID: utilities.NewSnowflakeID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates p, then either backfills the account that owns its email
// or provisions a new one. Failures are returned as-is; nothing is retried.
func (r *Resolver) Resolve(ctx context.Context, p Payload) (*entity.User, error) {
	prof, err := Validate(p)
	if err != nil {
		r.observe(OutcomeMissingContact)
		return nil, err
	}

	acct, err := r.match(ctx, prof.Email)
	if err != nil {
		return nil, r.storeFailure("find by email", err)
	}
	if acct != nil {
		if err := r.admit(ctx, acct); err != nil {
			return nil, err
		}
		return r.reconcile(ctx, acct, prof)
	}

	handle, err := r.allocate(ctx, BaseHandle(prof))
	if err != nil {
		return nil, err
	}
	return r.provision(ctx, prof, handle)
}

// match returns nil, nil when no account owns email.
func (r *Resolver) match(ctx context.Context, email string) (*entity.User, error) {
	u, err := r.store.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// admit refuses disabled accounts and accounts inside a lockout. An expired
// lock is lifted the same way a password sign-in lifts it.
func (r *Resolver) admit(ctx context.Context, u *entity.User) error {
	if u.LockExpired(time.Now()) {
		unlocked, err := r.store.UnlockIfExpired(ctx, u.ID)
		if err != nil {
			return r.storeFailure("unlock", err)
		}
		if unlocked {
			u.Status = entity.StatusActive
			u.LockedUntil = nil
			u.LoginFailedAttempts = 0
		}
	}
	switch u.Status {
	case entity.StatusDisabled:
		r.observe(OutcomeBlocked)
		return ErrAccountDisabled
	case entity.StatusLocked:
		r.observe(OutcomeBlocked)
		return ErrAccountLocked
	}
	return nil
}

// reconcile fills ProviderID and Avatar only where they are empty and writes
// only when something changed.
func (r *Resolver) reconcile(ctx context.Context, u *entity.User, prof Profile) (*entity.User, error) {
	changed := false
	if u.ProviderID == "" && prof.ProviderUserID != "" {
		u.ProviderID = prof.ProviderUserID
		changed = true
	}
	if u.Avatar == "" && prof.AvatarURL != "" {
		u.Avatar = prof.AvatarURL
		changed = true
	}
	if !changed {
		r.observe(OutcomeMatched)
		return u, nil
	}
	if err := r.store.Save(ctx, u); err != nil {
		return nil, r.storeFailure("save", err)
	}
	r.logger.Infow("account reconciled", "user_id", u.ID, "provider", prof.Provider)
	r.observe(OutcomeReconciled)
	return u, nil
}

// allocate walks base, base_1, base_2, ... checking each one against the
// store before moving on.
func (r *Resolver) allocate(ctx context.Context, base string) (string, error) {
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		h := candidate(base, n)
		_, err := r.store.FindByUsername(ctx, h)
		if errors.Is(err, repo.ErrNotFound) {
			return h, nil
		}
		if err != nil {
			return "", r.storeFailure("find by username", err)
		}
	}
}

func (r *Resolver) provision(ctx context.Context, prof Profile, handle string) (*entity.User, error) {
	u := &entity.User{
		ID:         r.newID(),
		Email:      prof.Email,
		Username:   handle,
		ProviderID: prof.ProviderUserID,
		Avatar:     prof.AvatarURL,
		Role:       entity.RoleUser,
		Status:     entity.StatusActive,
	}
	err := r.store.Create(ctx, u)
	switch {
	case err == nil:
		r.logger.Infow("account provisioned", "user_id", u.ID, "username", u.Username, "provider", prof.Provider)
		r.observe(OutcomeProvisioned)
		return u, nil
	case errors.Is(err, repo.ErrDuplicateEmail):
		return nil, r.conflict(ErrDuplicateContactAddress, prof)
	case errors.Is(err, repo.ErrDuplicateUsername):
		// Some stores report the handle before the email when both collide.
		if existing, mErr := r.match(ctx, prof.Email); mErr == nil && existing != nil {
			return nil, r.conflict(ErrDuplicateContactAddress, prof)
		}
		return nil, r.conflict(ErrHandleTaken, prof)
	default:
		return nil, r.storeFailure("create", err)
	}
}

func (r *Resolver) conflict(err error, prof Profile) error {
	r.logger.Warnw("sign-in lost a provisioning race", "err", err, "provider", prof.Provider)
	if errors.Is(err, ErrDuplicateContactAddress) {
		r.observe(OutcomeDuplicateContact)
	} else {
		r.observe(OutcomeHandleTaken)
	}
	return err
}

func (r *Resolver) storeFailure(op string, err error) error {
	r.logger.Errorw("account store failure", "op", op, "err", err)
	r.observe(OutcomeStoreError)
	return &StoreError{Op: op, Err: err}
}

func (r *Resolver) observe(outcome string) {
	if r.recorder != nil {
		r.recorder.ObserveResolution(outcome)
	}
}
