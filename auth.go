package haystack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

type Auth struct {
	Dsid             string `json:"dsid"`
	SearchPartyToken string `json:"searchPartyToken"`
}

func GetAuth(authFile string) (*Auth, error) {
	f, err := os.Open(authFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var auth Auth
	err = json.NewDecoder(f).Decode(&auth)
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", authFile, err)
	}
	return &auth, nil
}

// AuthContext is the capability attached to a single fetch attempt. Its contents are
// passed to the upstream network untouched.
type AuthContext struct {
	Dsid             string
	SearchPartyToken string
	Headers          http.Header
}

func (a *AuthContext) usable() bool {
	return a != nil && a.SearchPartyToken != ""
}

// AuthProvider hands out a fresh AuthContext for every fetch attempt.
type AuthProvider interface {
	Context(ctx context.Context) (*AuthContext, error)
}

// StaticAuth serves the same credential on every attempt.
type StaticAuth struct {
	Auth    *Auth
	Headers http.Header
}

func (s StaticAuth) Context(context.Context) (*AuthContext, error) {
	if s.Auth == nil || s.Auth.SearchPartyToken == "" {
		return nil, fmt.Errorf("%w: search party token not configured", ErrAuthUnavailable)
	}
	return &AuthContext{
		Dsid:             s.Auth.Dsid,
		SearchPartyToken: s.Auth.SearchPartyToken,
		Headers:          s.Headers.Clone(),
	}, nil
}

var _ AuthProvider = StaticAuth{}
