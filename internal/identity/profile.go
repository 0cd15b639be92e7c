// Package identity resolves a sign-in from an external identity provider to
// exactly one local account.
package identity

import (
	"strings"
)

// Payload is what a provider callback hands over. Every field may be empty.
type Payload struct {
	Provider       string
	ProviderUserID string
	DisplayName    string
	Emails         []Email
	Photos         []Photo
}

type Email struct {
	Value string
	// Verified is nil when the provider says nothing about verification.
	Verified *bool
}

type Photo struct {
	Value string
}

// Profile is the validated form of a Payload.
type Profile struct {
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
}

// Validate picks the first usable address from p. An address is usable when
// it has a local part and a domain and the provider did not flag it as
// unverified.
func Validate(p Payload) (Profile, error) {
	var email string
	for _, e := range p.Emails {
		if e.Verified != nil && !*e.Verified {
			continue
		}
		if v := normalizeEmail(e.Value); v != "" {
			email = v
			break
		}
	}
	if email == "" {
		return Profile{}, ErrMissingContactAddress
	}

	var avatar string
	for _, ph := range p.Photos {
		if v := strings.TrimSpace(ph.Value); v != "" {
			avatar = v
			break
		}
	}
	return Profile{
		Provider:       p.Provider,
		ProviderUserID: strings.TrimSpace(p.ProviderUserID),
		Email:          email,
		DisplayName:    strings.TrimSpace(p.DisplayName),
		AvatarURL:      avatar,
	}, nil
}

func normalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" {
		return ""
	}
	return s
}
