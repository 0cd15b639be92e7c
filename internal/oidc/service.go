package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/newsdesk/service-core/internal/oidc/repo"
	"github.com/newsdesk/service-core/internal/user/entity"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidRefresh = errors.New("invalid refresh token")
)

type Config struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// KeyFile is an optional PEM RSA private key. A fresh key is generated
	// per process when empty.
	KeyFile string
}

func ConfigFromEnv() Config {
	issuer := os.Getenv("OIDC_ISSUER")
	if issuer == "" {
		issuer = "http://localhost:8431/newsroom-api/oidc"
	}
	return Config{
		Issuer:     issuer,
		AccessTTL:  durationEnv("OIDC_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: durationEnv("OIDC_REFRESH_TTL", 30*24*time.Hour),
		KeyFile:    os.Getenv("OIDC_SIGNING_KEY_FILE"),
	}
}

func durationEnv(name string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(name)); err == nil && d > 0 {
		return d
	}
	return def
}

// RefreshStore persists refresh sessions by token hash.
type RefreshStore interface {
	Save(ctx context.Context, s *repo.RefreshSession) error
	Get(ctx context.Context, tokenHash string) (*repo.RefreshSession, error)
	Delete(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Service signs tokens with one RSA key and manages refresh sessions.
type Service struct {
	key     *rsa.PrivateKey
	kid     string
	cfg     Config
	refresh RefreshStore
}

func NewService(cfg Config, refresh RefreshStore) (*Service, error) {
	key, err := loadOrGenerateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return NewServiceWithKey(cfg, refresh, key)
}

func NewServiceWithKey(cfg Config, refresh RefreshStore, key *rsa.PrivateKey) (*Service, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	h := sha256.Sum256(der)
	return &Service{
		key:     key,
		kid:     base64.RawURLEncoding.EncodeToString(h[:8]),
		cfg:     cfg,
		refresh: refresh,
	}, nil
}

func loadOrGenerateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

func (s *Service) Issuer() string { return s.cfg.Issuer }

// JWKS returns the public key set.
func (s *Service) JWKS() map[string]any {
	pub := s.key.PublicKey
	return map[string]any{"keys": []any{map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": s.kid,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

func (s *Service) sign(c *Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = s.kid
	return tok.SignedString(s.key)
}

// IssueTokens signs an id and access token for u and opens a refresh session.
func (s *Service) IssueTokens(ctx context.Context, u *entity.User, audience string) (TokenSet, error) {
	now := time.Now()
	base := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
	}
	if audience != "" {
		base.Audience = jwt.ClaimStrings{audience}
	}

	idTok, err := s.sign(&Claims{
		TokenUse:         tokenUseID,
		Email:            u.Email,
		Username:         u.Username,
		Role:             string(u.Role),
		Picture:          u.Avatar,
		RegisteredClaims: base,
	})
	if err != nil {
		return TokenSet{}, err
	}
	access, err := s.sign(&Claims{
		TokenUse:         tokenUseAccess,
		Role:             string(u.Role),
		RegisteredClaims: base,
	})
	if err != nil {
		return TokenSet{}, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return TokenSet{}, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(raw)
	err = s.refresh.Save(ctx, &repo.RefreshSession{
		TokenHash: hashToken(refresh),
		UserID:    u.ID,
		ClientID:  audience,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	})
	if err != nil {
		return TokenSet{}, fmt.Errorf("save refresh session: %w", err)
	}

	return TokenSet{
		AccessToken:  access,
		IDToken:      idTok,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// ParseAccessToken verifies signature, issuer and expiry. Id tokens are
// rejected.
func (s *Service) ParseAccessToken(raw string) (*Claims, error) {
	c := &Claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithIssuer(s.cfg.Issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.TokenUse != tokenUseAccess {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// ValidateRefreshToken returns the live session for token.
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (*repo.RefreshSession, error) {
	sess, err := s.refresh.Get(ctx, hashToken(token))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidRefresh
	}
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidRefresh
	}
	return sess, nil
}

// ConsumeRefreshToken validates and deletes token in one step. Only one
// caller can consume a given token.
func (s *Service) ConsumeRefreshToken(ctx context.Context, token string) (*repo.RefreshSession, error) {
	sess, err := s.ValidateRefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	deleted, err := s.refresh.Delete(ctx, sess.TokenHash)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, ErrInvalidRefresh
	}
	return sess, nil
}

func (s *Service) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := s.refresh.Delete(ctx, hashToken(token))
	return err
}

// PruneExpired drops expired refresh sessions.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	return s.refresh.DeleteExpired(ctx, time.Now())
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
