package sessions

import (
	"context"
	"slices"
)

// PermissionsKey is the state bag key holding a session's granted permissions
// as a list of strings. The value "*" grants everything.
const PermissionsKey = "permissions"

// SetState stores value under key in the session's state bag.
func (s *Store) SetState(id, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if rec.sess.State == nil {
		rec.sess.State = make(map[string]any)
	}
	rec.sess.State[key] = value
	return nil
}

// State returns the value stored under key.
func (s *Store) State(id, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	v, ok := rec.sess.State[key]
	return v, ok
}

// Permissions returns the permissions granted to a session. Both []string and
// decoded JSON arrays ([]any of strings) are accepted. It has the shape of
// mcpservice.PermissionFunc.
func (s *Store) Permissions(_ context.Context, id string) []string {
	v, ok := s.State(id, PermissionsKey)
	if !ok {
		return nil
	}
	switch p := v.(type) {
	case []string:
		return slices.Clone(p)
	case []any:
		out := make([]string, 0, len(p))
		for _, e := range p {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
