// Package oauth runs the browser sign-in flow against external identity
// providers and hands the verified profile to identity.Resolver.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/newsdesk/service-core/internal/identity"
)

var ErrUnknownProvider = errors.New("unknown oauth provider")

// Provider only reports identity facts. Account matching and token issuance
// happen in the caller.
type Provider interface {
	Name() string
	// AuthCodeURL returns the authorization URL carrying state and an S256
	// PKCE challenge.
	AuthCodeURL(state, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (identity.Payload, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(list ...Provider) *Registry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
