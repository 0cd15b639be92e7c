package subscriber

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/newsdesk/service-core/internal/subscriber/entity"
	"github.com/newsdesk/service-core/internal/subscriber/repo"
	"github.com/newsdesk/service-core/pkg/utilities"
)

var (
	ErrInvalidEmail      = errors.New("invalid email")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotFound          = errors.New("not subscribed")
)

type store interface {
	Create(ctx context.Context, s *entity.Subscriber) error
	DeleteByEmail(ctx context.Context, email string) error
	List(ctx context.Context, limit, offset int) ([]*entity.Subscriber, error)
}

type Service struct {
	repo   store
	logger *zap.SugaredLogger
	newID  func() string
}

func NewService(r store, logger *zap.SugaredLogger) *Service {
	return &Service{repo: r, logger: logger, newID: utilities.NewKSUID}
}

func normalize(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) Subscribe(ctx context.Context, email, source string) (*entity.Subscriber, error) {
	email, err := normalize(email)
	if err != nil {
		return nil, err
	}
	sub := &entity.Subscriber{ID: s.newID(), Email: email, Source: strings.TrimSpace(source)}
	if err := s.repo.Create(ctx, sub); err != nil {
		if errors.Is(err, repo.ErrAlreadySubscribed) {
			return nil, ErrAlreadySubscribed
		}
		return nil, err
	}
	s.logger.Infow("subscriber added", "id", sub.ID)
	return sub, nil
}

func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	email, err := normalize(email)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByEmail(ctx, email); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*entity.Subscriber, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
