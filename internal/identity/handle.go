package identity

import (
	"fmt"
	"strings"
)

// BaseHandle derives the preferred handle: the display name with runs of
// whitespace and "@" joined by "_", else the local part of the email.
// Handles never contain "@", since password sign-in treats such an
// identifier as an email.
func BaseHandle(p Profile) string {
	name := strings.ReplaceAll(p.DisplayName, "@", " ")
	if h := strings.Join(strings.Fields(name), "_"); h != "" {
		return h
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return local
}

// candidate returns the n-th handle to try: base, base_1, base_2, ...
func candidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}
