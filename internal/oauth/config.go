package oauth

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Google ClientConfig
	// StateTTL bounds the time between login redirect and callback.
	StateTTL time.Duration
	CodeTTL  time.Duration
	// SuccessRedirect switches the callback from a JSON response to a
	// redirect carrying a one-time code.
	SuccessRedirect string
	CookieSecure    bool
}

func ConfigFromEnv() Config {
	secure := true
	if v, err := strconv.ParseBool(os.Getenv("OAUTH_COOKIE_SECURE")); err == nil {
		secure = v
	}
	return Config{
		Google: ClientConfig{
			ClientID:     os.Getenv("OAUTH_GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("OAUTH_GOOGLE_REDIRECT_URL"),
		},
		StateTTL:        durationEnv("OAUTH_STATE_TTL", 5*time.Minute),
		CodeTTL:         durationEnv("OAUTH_CODE_TTL", time.Minute),
		SuccessRedirect: os.Getenv("OAUTH_SUCCESS_REDIRECT"),
		CookieSecure:    secure,
	}
}

// GoogleEnabled reports whether all Google client settings are present.
func (c Config) GoogleEnabled() bool { return c.Google.complete() }

func durationEnv(name string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(name)); err == nil && d > 0 {
		return d
	}
	return def
}
