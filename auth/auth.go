package auth

import (
	"context"
	"errors"
	"slices"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// Permissions lists what the principal may use; "*" grants everything.
	Permissions() []string
	// Claims unmarshals the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns associated user info.
// It should return ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, tok string) (UserInfo, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return f(ctx, tok)
}

// User is a plain UserInfo value.
type User struct {
	ID    string
	Perms []string
}

func (u User) UserID() string        { return u.ID }
func (u User) Permissions() []string { return slices.Clone(u.Perms) }
func (u User) Claims(any) error      { return nil }

// Static authenticates a fixed set of tokens, typically API keys. It is safe
// for concurrent use once constructed.
type Static map[string]User

// CheckAuthentication implements Authenticator.
func (s Static) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	if u, ok := s[tok]; ok && tok != "" {
		return u, nil
	}
	return nil, ErrUnauthorized
}

// Chain tries each authenticator in turn and returns the first success. An
// ErrInsufficientScope result stops the chain.
func Chain(authenticators ...Authenticator) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, tok string) (UserInfo, error) {
		err := ErrUnauthorized
		for _, a := range authenticators {
			if a == nil {
				continue
			}
			ui, aerr := a.CheckAuthentication(ctx, tok)
			if aerr == nil {
				return ui, nil
			}
			if errors.Is(aerr, ErrInsufficientScope) {
				return nil, aerr
			}
			err = aerr
		}
		return nil, err
	})
}
