package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsdesk/service-core/internal/oidc"
)

// ErrExpired covers both unknown and already used keys.
var ErrExpired = errors.New("expired or unknown")

// FlowStore keeps the short-lived halves of the sign-in flow in Redis. Every
// entry is read at most once.
type FlowStore struct {
	client *redis.Client
	prefix string
}

func NewFlowStore(client *redis.Client) *FlowStore {
	return &FlowStore{client: client, prefix: "oauth:"}
}

func (s *FlowStore) verifierKey(state string) string { return s.prefix + "state:" + state }
func (s *FlowStore) codeKey(code string) string      { return s.prefix + "code:" + code }

// PutVerifier stores the PKCE verifier under state. Reusing a state fails.
func (s *FlowStore) PutVerifier(ctx context.Context, state, verifier string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.verifierKey(state), verifier, ttl).Result()
	if err != nil {
		return fmt.Errorf("store verifier: %w", err)
	}
	if !ok {
		return errors.New("oauth state already in use")
	}
	return nil
}

func (s *FlowStore) TakeVerifier(ctx context.Context, state string) (string, error) {
	return s.take(ctx, s.verifierKey(state))
}

// PutTokens parks a token set behind a one-time code for the browser redirect.
func (s *FlowStore) PutTokens(ctx context.Context, code string, set oidc.TokenSet, ttl time.Duration) error {
	b, err := json.Marshal(set)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.codeKey(code), b, ttl).Err(); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

func (s *FlowStore) TakeTokens(ctx context.Context, code string) (oidc.TokenSet, error) {
	raw, err := s.take(ctx, s.codeKey(code))
	if err != nil {
		return oidc.TokenSet{}, err
	}
	var set oidc.TokenSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return oidc.TokenSet{}, fmt.Errorf("decode code payload: %w", err)
	}
	return set, nil
}

func (s *FlowStore) take(ctx context.Context, key string) (string, error) {
	v, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
