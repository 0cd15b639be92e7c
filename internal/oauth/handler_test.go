package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/newsdesk/service-core/internal/identity"
	"github.com/newsdesk/service-core/internal/oidc"
	"github.com/newsdesk/service-core/internal/user/entity"
	"github.com/newsdesk/service-core/internal/user/repo"
)

type fakeProvider struct {
	name        string
	gotVerifier string
	payload     identity.Payload
	err         error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state, challenge string) string {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state) + "&code_challenge=" + url.QueryEscape(challenge)
}

func (f *fakeProvider) Exchange(_ context.Context, code, verifier string) (identity.Payload, error) {
	f.gotVerifier = verifier
	return f.payload, f.err
}

type resolverFunc func(ctx context.Context, p identity.Payload) (*entity.User, error)

func (fn resolverFunc) Resolve(ctx context.Context, p identity.Payload) (*entity.User, error) {
	return fn(ctx, p)
}

type fixedIssuer struct{}

func (fixedIssuer) IssueTokens(_ context.Context, u *entity.User, _ string) (oidc.TokenSet, error) {
	return oidc.TokenSet{AccessToken: "at-" + u.ID, RefreshToken: "rt-" + u.ID, TokenType: "Bearer"}, nil
}

type flowFixture struct {
	h        *Handler
	mux      *http.ServeMux
	provider *fakeProvider
	store    *FlowStore
}

func newFlowFixture(t *testing.T, cfg Config, resolve resolverFunc) *flowFixture {
	t.Helper()
	store, _ := newTestFlowStore(t)
	p := &fakeProvider{name: "google", payload: identity.Payload{
		Provider: "google", ProviderUserID: "g-1",
		Emails: []identity.Email{{Value: "ada@x.com"}},
	}}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = time.Minute
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = time.Minute
	}
	h := NewHandler(NewRegistry(p), store, resolve, fixedIssuer{}, cfg, zaptest.NewLogger(t).Sugar())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/{provider}/login", h.Login)
	mux.HandleFunc("GET /auth/{provider}/callback", h.Callback)
	mux.HandleFunc("POST /auth/redeem", h.Redeem)
	return &flowFixture{h: h, mux: mux, provider: p, store: store}
}

func (f *flowFixture) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, r)
	return rec
}

// login runs the first leg and returns the state and its cookie.
func (f *flowFixture) login(t *testing.T) (string, *http.Cookie, string) {
	t.Helper()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, state, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	return state, cookie, loc.Query().Get("code_challenge")
}

func (f *flowFixture) callback(state string, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	return f.do(r)
}

func resolveTo(u *entity.User) resolverFunc {
	return func(context.Context, identity.Payload) (*entity.User, error) { return u, nil }
}

func TestCallback_IssuesTokens(t *testing.T) {
	var got identity.Payload
	f := newFlowFixture(t, Config{}, func(_ context.Context, p identity.Payload) (*entity.User, error) {
		got = p
		return &entity.User{ID: "7"}, nil
	})

	state, cookie, challenge := f.login(t)
	rec := f.callback(state, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var set oidc.TokenSet
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&set))
	assert.Equal(t, "at-7", set.AccessToken)
	assert.Equal(t, "g-1", got.ProviderUserID)
	assert.Equal(t, challenge, challengeS256(f.provider.gotVerifier))

	again := f.callback(state, cookie)
	assert.Equal(t, http.StatusUnauthorized, again.Code)
}

func TestCallback_RejectsBadState(t *testing.T) {
	f := newFlowFixture(t, Config{}, resolveTo(&entity.User{ID: "7"}))
	state, cookie, _ := f.login(t)

	assert.Equal(t, http.StatusUnauthorized, f.callback(state, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.callback("forged", cookie).Code)
	assert.Equal(t, http.StatusUnauthorized, f.callback("", cookie).Code)
}

func TestCallback_ProviderDenied(t *testing.T) {
	f := newFlowFixture(t, Config{}, resolveTo(&entity.User{ID: "7"}))
	state, cookie, _ := f.login(t)

	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied&state="+url.QueryEscape(state), nil)
	r.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	f := newFlowFixture(t, Config{}, resolveTo(&entity.User{ID: "7"}))
	f.provider.err = errors.New("bad code")
	state, cookie, _ := f.login(t)

	assert.Equal(t, http.StatusUnauthorized, f.callback(state, cookie).Code)
}

func TestCallback_ResolverErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{identity.ErrMissingContactAddress, http.StatusUnauthorized},
		{identity.ErrDuplicateContactAddress, http.StatusConflict},
		{identity.ErrHandleTaken, http.StatusConflict},
		{identity.ErrAccountDisabled, http.StatusForbidden},
		{identity.ErrAccountLocked, http.StatusForbidden},
		{&identity.StoreError{Op: "create", Err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFlowFixture(t, Config{}, func(context.Context, identity.Payload) (*entity.User, error) {
				return nil, tc.err
			})
			state, cookie, _ := f.login(t)
			assert.Equal(t, tc.want, f.callback(state, cookie).Code)
		})
	}
}

// singleAccount is an identity.AccountStore holding one account.
type singleAccount struct{ u *entity.User }

func (s *singleAccount) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	if s.u.Email == email {
		return s.u.Clone(), nil
	}
	return nil, repo.ErrNotFound
}

func (s *singleAccount) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	if s.u.Username == username {
		return s.u.Clone(), nil
	}
	return nil, repo.ErrNotFound
}

func (s *singleAccount) Create(context.Context, *entity.User) error { return errors.New("unexpected create") }

func (s *singleAccount) Save(_ context.Context, u *entity.User) error {
	s.u = u.Clone()
	return nil
}

func (s *singleAccount) UnlockIfExpired(_ context.Context, id string) (bool, error) {
	if s.u.ID != id || !s.u.LockExpired(time.Now()) {
		return false, nil
	}
	s.u.Status = entity.StatusActive
	s.u.LockedUntil = nil
	return true, nil
}

func TestCallback_BlockedAccountGetsNoTokens(t *testing.T) {
	until := time.Now().Add(time.Hour)
	cases := map[string]*entity.User{
		"disabled": {ID: "7", Email: "ada@x.com", Username: "ada", Status: entity.StatusDisabled},
		"locked":   {ID: "7", Email: "ada@x.com", Username: "ada", Status: entity.StatusLocked, LockedUntil: &until},
	}
	for name, u := range cases {
		t.Run(name, func(t *testing.T) {
			resolver := identity.NewResolver(&singleAccount{u: u}, zaptest.NewLogger(t).Sugar())
			f := newFlowFixture(t, Config{}, resolver.Resolve)

			state, cookie, _ := f.login(t)
			rec := f.callback(state, cookie)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.NotContains(t, rec.Body.String(), "access_token")
		})
	}
}

func TestCallback_ExpiredLockSignsIn(t *testing.T) {
	until := time.Now().Add(-time.Minute)
	store := &singleAccount{u: &entity.User{ID: "7", Email: "ada@x.com", Username: "ada", Status: entity.StatusLocked, LockedUntil: &until}}
	resolver := identity.NewResolver(store, zaptest.NewLogger(t).Sugar())
	f := newFlowFixture(t, Config{}, resolver.Resolve)

	state, cookie, _ := f.login(t)
	rec := f.callback(state, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, entity.StatusActive, store.u.Status)
}

func TestCallback_RedirectAndRedeem(t *testing.T) {
	f := newFlowFixture(t, Config{SuccessRedirect: "https://news.test/signed-in?from=google"}, resolveTo(&entity.User{ID: "9"}))
	state, cookie, _ := f.login(t)

	rec := f.callback(state, cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "news.test", loc.Host)
	assert.Equal(t, "google", loc.Query().Get("from"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	redeem := func() *httptest.ResponseRecorder {
		return f.do(httptest.NewRequest(http.MethodPost, "/auth/redeem", strings.NewReader(`{"code":"`+code+`"}`)))
	}
	first := redeem()
	require.Equal(t, http.StatusOK, first.Code)
	var set oidc.TokenSet
	require.NoError(t, json.NewDecoder(first.Body).Decode(&set))
	assert.Equal(t, "rt-9", set.RefreshToken)

	assert.Equal(t, http.StatusBadRequest, redeem().Code)
}

func TestLogin_UnknownProvider(t *testing.T) {
	f := newFlowFixture(t, Config{}, resolveTo(&entity.User{ID: "7"}))
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
