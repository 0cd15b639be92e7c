package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/service-core/internal/identity"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(&fakeProvider{name: "google"}, &fakeProvider{name: "keycloak"})

	p, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	_, err = r.Get("github")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, []string{"google", "keycloak"}, r.Names())
}

func TestIDClaimsPayload(t *testing.T) {
	verified := true
	p := idClaims{Sub: "g-1", Email: "Ada@X.com", EmailVerified: &verified, Name: "Ada L", Picture: "https://p/1"}.payload("google")

	assert.Equal(t, "google", p.Provider)
	assert.Equal(t, "g-1", p.ProviderUserID)
	require.Len(t, p.Emails, 1)
	assert.True(t, *p.Emails[0].Verified)

	prof, err := identity.Validate(p)
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", prof.Email)
	assert.Equal(t, "https://p/1", prof.AvatarURL)

	empty := idClaims{Sub: "g-2"}.payload("google")
	assert.Empty(t, empty.Emails)
	assert.Empty(t, empty.Photos)
	_, err = identity.Validate(empty)
	assert.ErrorIs(t, err, identity.ErrMissingContactAddress)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OAUTH_GOOGLE_CLIENT_ID", "id")
	t.Setenv("OAUTH_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("OAUTH_GOOGLE_REDIRECT_URL", "http://localhost/cb")
	t.Setenv("OAUTH_STATE_TTL", "90s")
	t.Setenv("OAUTH_COOKIE_SECURE", "false")

	cfg := ConfigFromEnv()
	assert.True(t, cfg.GoogleEnabled())
	assert.Equal(t, 90, int(cfg.StateTTL.Seconds()))
	assert.False(t, cfg.CookieSecure)

	t.Setenv("OAUTH_GOOGLE_CLIENT_SECRET", "")
	assert.False(t, ConfigFromEnv().GoogleEnabled())
}
