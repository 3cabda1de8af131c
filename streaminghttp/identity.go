package streaminghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/netra-systems/zen-sub153/auth"
	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/internal/logctx"
	"github.com/netra-systems/zen-sub153/mcp"
	"github.com/netra-systems/zen-sub153/sessions"
)

// UserStateKey is the session state key holding the authenticated subject.
const UserStateKey = "user"

// UserSessionPrefix prefixes the session id of an authenticated subject.
// Mcp-Session-Id headers may not address ids in this namespace.
const UserSessionPrefix = "user:"

// caller is the resolved identity of one HTTP request.
type caller struct {
	sessionID string
	user      auth.UserInfo
}

// requestContext decorates the request context with the transport kind and
// request details for logging.
func (h *Handler) requestContext(r *http.Request) context.Context {
	ctx := engine.WithTransport(r.Context(), mcp.TransportHTTP)
	return logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
}

// identify resolves the session a request routes under: UserSessionPrefix
// plus the authenticated subject when a bearer token is presented, else the
// Mcp-Session-Id header, else AnonymousSession. A header naming a session
// owned by a principal or by another transport is answered 404. On failure
// the response has been written and ok is false.
func (h *Handler) identify(ctx context.Context, w http.ResponseWriter, r *http.Request) (c caller, ok bool) {
	tok, err := auth.BearerToken(r)
	if err != nil {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, auth.Challenge(h.realm, h.prmURL(), "invalid_request", "malformed bearer authorization header"))
		writeJSONError(w, http.StatusBadRequest, "malformed authorization header")
		return caller{}, false
	}

	if tok == "" || h.auth == nil {
		if h.requireAuth {
			h.log.InfoContext(ctx, "auth.check.missing")
			w.Header().Add(wwwAuthenticateHeader, auth.Challenge(h.realm, h.prmURL(), "", ""))
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return caller{}, false
		}
		id := r.Header.Get(mcpSessionIDHeader)
		if id == "" {
			id = AnonymousSession
		}
		if !h.addressable(id) {
			h.log.WarnContext(ctx, "session.foreign", slog.String("session_id", id))
			writeJSONError(w, http.StatusNotFound, "session not found")
			return caller{}, false
		}
		return caller{sessionID: id}, true
	}

	ui, err := h.auth.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInsufficientScope):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, auth.Challenge(h.realm, h.prmURL(), "insufficient_scope", err.Error()))
		writeJSONError(w, http.StatusForbidden, "insufficient scope")
		return caller{}, false
	case errors.Is(err, auth.ErrUnauthorized):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, auth.Challenge(h.realm, h.prmURL(), "invalid_token", err.Error()))
		writeJSONError(w, http.StatusUnauthorized, "invalid token")
		return caller{}, false
	default:
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "authentication failed")
		return caller{}, false
	}
	if ui.UserID() == "" {
		writeJSONError(w, http.StatusUnauthorized, "token has no subject")
		return caller{}, false
	}
	return caller{sessionID: UserSessionPrefix + ui.UserID(), user: ui}, true
}

// addressable reports whether an unauthenticated caller may route under id.
func (h *Handler) addressable(id string) bool {
	if strings.HasPrefix(id, UserSessionPrefix) {
		return false
	}
	store := h.eng.Sessions()
	sess, ok := store.Get(id)
	if !ok {
		return true
	}
	if sess.Transport.IsValid() && sess.Transport != mcp.TransportHTTP {
		return false
	}
	_, owned := store.State(id, UserStateKey)
	return !owned
}

// grant copies the caller's permissions into its session state. It reports
// false when the session does not exist yet.
func (h *Handler) grant(c caller) bool {
	if c.user == nil {
		return true
	}
	store := h.eng.Sessions()
	if err := store.SetState(c.sessionID, sessions.PermissionsKey, c.user.Permissions()); err != nil {
		return false
	}
	_ = store.SetState(c.sessionID, UserStateKey, c.user.UserID())
	return true
}
