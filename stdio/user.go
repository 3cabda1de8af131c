package stdio

import (
	"os/user"
)

// UserStateKey is the session state key holding the stdio peer's user id.
const UserStateKey = "user"

// UserProvider provides a string user ID to associate with the stdio peer.
// Bearer tokens are not exchanged over stdio, so the process owner stands in
// for the caller.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// UserProviderFunc adapts a function to UserProvider.
type UserProviderFunc func() (string, error)

func (f UserProviderFunc) CurrentUserID() (string, error) { return f() }

// OSUserProvider resolves the user ID using the operating system's current user.
// The returned ID is user.Username when available; falling back to user.Uid.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.Username != "" {
		return u.Username, nil
	}
	return u.Uid, nil
}
