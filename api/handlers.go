package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/sessionstore/session"
)

// pathParam returns the decoded value of a URL parameter. chi routes on
// RawPath when the request carries escapes such as %2F, in which case the
// captured value is still escaped.
func pathParam(r *http.Request, name, field string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return "", &session.ValidationError{Field: field, Reason: "invalid path escaping"}
	}
	return decoded, nil
}

// userFromPath reads the {kind} and {userID} URL parameters. kind is
// "numeric" or "string"; numeric ids must fit in 32 bits.
func userFromPath(r *http.Request) (session.UserID, error) {
	raw, err := pathParam(r, "userID", "user_id")
	if err != nil {
		return session.UserID{}, err
	}
	switch kind := chi.URLParam(r, "kind"); kind {
	case "numeric":
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return session.UserID{}, &session.ValidationError{Field: "user_id", Reason: "not a 32-bit integer"}
		}
		return session.NumericUserID(int32(n)), nil
	case "string":
		return session.StringUserID(raw), nil
	default:
		return session.UserID{}, &session.ValidationError{Field: "kind", Reason: "must be numeric or string"}
	}
}

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ListUsers returns every identity holding at least one session.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.AuthenticatedUserIDs(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	page, pgMeta := paginate(r, users)
	writeJSON(w, http.StatusOK, ListUsersResponse{Users: page, PaginationMeta: pgMeta})
}

// ListUserSessions returns the session ids owned by one identity.
func (a *API) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromPath(r)
	if err != nil {
		mapError(w, err)
		return
	}
	ids, err := a.store.SessionIDsOf(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}

	page, pgMeta := paginate(r, ids)
	writeJSON(w, http.StatusOK, ListUserSessionsResponse{
		UserID:         userID,
		SessionIDs:     page,
		PaginationMeta: pgMeta,
	})
}

// RevokeUserSessions destroys every session owned by one identity. The
// reported count is taken just before the delete.
func (a *API) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromPath(r)
	if err != nil {
		mapError(w, err)
		return
	}
	ids, err := a.store.SessionIDsOf(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := a.store.DestroyAllSessionsOf(r.Context(), userID); err != nil {
		mapError(w, err)
		return
	}

	a.audit.logUserEvent(AuditUserSessionsRevoked, r, userID.String(), len(ids))
	writeJSON(w, http.StatusOK, RevokeUserSessionsResponse{UserID: userID, Revoked: len(ids)})
}

// GetSession returns the decoded state for one token.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathParam(r, "sessionID", "session_id")
	if err != nil {
		mapError(w, err)
		return
	}
	st, ok, err := a.store.Read(r.Context(), sessionID)
	if err != nil {
		mapError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DestroySession deletes one session. Unknown tokens succeed.
func (a *API) DestroySession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathParam(r, "sessionID", "session_id")
	if err != nil {
		mapError(w, err)
		return
	}
	if err := a.store.Destroy(r.Context(), sessionID); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditSessionDestroyed, r, slog.String("session_id", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

// ClearSessions deletes every session.
func (a *API) ClearSessions(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Clear(r.Context()); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditSessionsCleared, r)
	w.WriteHeader(http.StatusNoContent)
}

// Sweep runs one expiry pass with the configured durations.
func (a *API) Sweep(w http.ResponseWriter, r *http.Request) {
	if err := a.store.CleanUpExpiredSessions(r.Context(), a.maxInactivity, a.maxLifeTime); err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditSessionsSwept, r,
		slog.Duration("max_inactivity", a.maxInactivity),
		slog.Duration("max_lifetime", a.maxLifeTime))
	writeJSON(w, http.StatusOK, SweepResponse{
		MaxInactivity: a.maxInactivity.String(),
		MaxLifeTime:   a.maxLifeTime.String(),
	})
}
