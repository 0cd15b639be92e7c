package setting

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/setting/entity"
	"github.com/newsdesk/service-core/internal/setting/repo"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidKey      = errors.New("invalid key")
	ErrInvalidValue    = errors.New("value must be a JSON document")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

type store interface {
	Get(ctx context.Context, key string) (*entity.Setting, error)
	List(ctx context.Context, category string, limit, offset int) ([]*entity.Setting, error)
	Upsert(ctx context.Context, s *entity.Setting) error
	UpdateVersioned(ctx context.Context, s *entity.Setting, expected int) error
	Delete(ctx context.Context, key string) error
}

type cache interface {
	Get(ctx context.Context, key string) (*entity.Setting, bool, error)
	Set(ctx context.Context, s *entity.Setting) error
	SetAbsent(ctx context.Context, key string) error
	Invalidate(ctx context.Context, key string) error
}

// Service reads settings through the cache and invalidates on every write.
// Missing keys are cached too, so the maintenance gate does not query the
// database per request. Cache failures are logged and fall back to the
// database.
type Service struct {
	repo   store
	cache  cache
	logger *zap.SugaredLogger
}

// NewService accepts a nil cache.
func NewService(r store, c cache, logger *zap.SugaredLogger) *Service {
	return &Service{repo: r, cache: c, logger: logger}
}

func (s *Service) List(ctx context.Context, category string, limit, offset int) ([]*entity.Setting, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, category, limit, offset)
}

func (s *Service) Get(ctx context.Context, key string) (*entity.Setting, error) {
	if s.cache != nil {
		hit, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warnw("setting cache read failed", "key", key, "err", err)
		case ok && hit == nil:
			return nil, ErrNotFound
		case ok:
			return hit, nil
		}
	}
	st, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if s.cache != nil {
				if cErr := s.cache.SetAbsent(ctx, key); cErr != nil {
					s.logger.Warnw("setting cache fill failed", "key", key, "err", cErr)
				}
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, st); err != nil {
			s.logger.Warnw("setting cache fill failed", "key", key, "err", err)
		}
	}
	return st, nil
}

// Put writes a setting. A positive expectedVersion turns the write into a
// compare-and-set against the stored version.
func (s *Service) Put(ctx context.Context, in *entity.Setting, expectedVersion int) (*entity.Setting, error) {
	if !keyPattern.MatchString(in.Key) {
		return nil, ErrInvalidKey
	}
	if len(in.Value) == 0 || !json.Valid(in.Value) {
		return nil, ErrInvalidValue
	}
	if expectedVersion > 0 {
		if _, err := s.repo.Get(ctx, in.Key); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if err := s.repo.UpdateVersioned(ctx, in, expectedVersion); err != nil {
			if errors.Is(err, repo.ErrVersionConflict) {
				return nil, ErrVersionConflict
			}
			return nil, err
		}
	} else if err := s.repo.Upsert(ctx, in); err != nil {
		return nil, err
	}
	s.invalidate(ctx, in.Key)
	s.logger.Infow("setting updated", "key", in.Key, "version", in.Version)
	return in, nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// Maintenance returns the current maintenance mode. A missing record means
// the site is open.
func (s *Service) Maintenance(ctx context.Context) (entity.MaintenanceMode, error) {
	var m entity.MaintenanceMode
	st, err := s.Get(ctx, entity.MaintenanceKey)
	if errors.Is(err, ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(st.Value, &m); err != nil {
		return entity.MaintenanceMode{}, err
	}
	return m, nil
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warnw("setting cache invalidate failed", "key", key, "err", err)
	}
}
