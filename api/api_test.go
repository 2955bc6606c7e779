package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionstore/api"
	"github.com/jmcleod/sessionstore/session"
	"github.com/jmcleod/sessionstore/storage/memory"
)

var testNow = time.Unix(1_700_000_000, 0)

func setupServer(t *testing.T, store session.Store, opts ...api.Option) *httptest.Server {
	t.Helper()
	opts = append([]api.Option{api.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	a := api.New(store, opts...)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.NewStore(session.WithClock(func() time.Time { return testNow }))
}

func seed(t *testing.T, store session.Store, id string, user session.UserID, createdAt, updatedAt int64) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), session.State{
		ID:        id,
		UserID:    user,
		Content:   map[string]any{"seeded": id},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, 0))
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, newStore(t))

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestOpenAPIDocument(t *testing.T) {
	srv := setupServer(t, newStore(t))

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/openapi.yaml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}

func TestListUsers(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "a", session.StringUserID("u2"), now, now)
	seed(t, store, "b", session.NumericUserID(2), now, now)
	seed(t, store, "c", session.StringUserID("1"), now, now)
	seed(t, store, "d", session.NumericUserID(1), now, now)
	seed(t, store, "e", session.UserID{}, now, now)
	seed(t, store, "f", session.NumericUserID(1), now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.ListUsersResponse](t, resp)
	assert.Equal(t, []session.UserID{
		session.NumericUserID(1),
		session.NumericUserID(2),
		session.StringUserID("1"),
		session.StringUserID("u2"),
	}, body.Users)
	assert.Equal(t, 4, body.TotalCount)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/users?limit=2&offset=1")
	body = decode[api.ListUsersResponse](t, resp)
	assert.Equal(t, []session.UserID{session.NumericUserID(2), session.StringUserID("1")}, body.Users)
	assert.True(t, body.HasMore)
}

func TestListUsersEmpty(t *testing.T) {
	srv := setupServer(t, newStore(t))

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw := decode[map[string]any](t, resp)
	assert.Equal(t, []any{}, raw["users"])
}

func TestUserSessions(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "d", session.NumericUserID(5), now, now)
	seed(t, store, "c", session.NumericUserID(5), now, now)
	seed(t, store, "x", session.StringUserID("5"), now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/users/numeric/5/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.ListUserSessionsResponse](t, resp)
	assert.Equal(t, session.NumericUserID(5), body.UserID)
	assert.Equal(t, []string{"c", "d"}, body.SessionIDs)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/users/string/5/sessions")
	body = decode[api.ListUserSessionsResponse](t, resp)
	assert.Equal(t, session.StringUserID("5"), body.UserID)
	assert.Equal(t, []string{"x"}, body.SessionIDs)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/users/string/nobody/sessions")
	body = decode[api.ListUserSessionsResponse](t, resp)
	assert.Equal(t, []string{}, body.SessionIDs)
}

func TestUserSessionsBadPath(t *testing.T) {
	srv := setupServer(t, newStore(t))

	for _, path := range []string{
		"/api/v1/users/numeric/abc/sessions",
		"/api/v1/users/numeric/99999999999/sessions",
		"/api/v1/users/email/x/sessions",
	} {
		resp := do(t, http.MethodGet, srv.URL+path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		body := decode[api.ErrorResponse](t, resp)
		assert.Contains(t, body.Error, "invalid session", path)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "a", session.StringUserID("alice"), now, now)
	seed(t, store, "b", session.StringUserID("alice"), now, now)
	seed(t, store, "c", session.StringUserID("bob"), now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodDelete, srv.URL+"/api/v1/users/string/alice/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.RevokeUserSessionsResponse](t, resp)
	assert.Equal(t, 2, body.Revoked)

	ids, err := store.SessionIDsOf(context.Background(), session.StringUserID("alice"))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 1, store.Len())
}

func TestUserSessionsEscapedStringID(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "a", session.StringUserID("org/alice"), now, now)
	seed(t, store, "b", session.StringUserID("org/alice"), now, now)
	seed(t, store, "c", session.StringUserID("100%"), now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/users/string/org%2Falice/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.ListUserSessionsResponse](t, resp)
	assert.Equal(t, session.StringUserID("org/alice"), body.UserID)
	assert.Equal(t, []string{"a", "b"}, body.SessionIDs)

	// Without a %2F escape chi matches the decoded path, so a literal
	// percent sign must not be decoded twice.
	resp = do(t, http.MethodGet, srv.URL+"/api/v1/users/string/100%25/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[api.ListUserSessionsResponse](t, resp)
	assert.Equal(t, []string{"c"}, body.SessionIDs)

	resp = do(t, http.MethodDelete, srv.URL+"/api/v1/users/string/org%2Falice/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revoked := decode[api.RevokeUserSessionsResponse](t, resp)
	assert.Equal(t, 2, revoked.Revoked)
	assert.Equal(t, 1, store.Len())
}

func TestEscapedSessionID(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "tok/1", session.UserID{}, now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/sessions/tok%2F1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[session.State](t, resp)
	assert.Equal(t, "tok/1", st.ID)

	resp = do(t, http.MethodDelete, srv.URL+"/api/v1/sessions/tok%2F1")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, store.Len())
}

func TestGetAndDestroySession(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "tok", session.NumericUserID(9), now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/sessions/tok")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[session.State](t, resp)
	assert.Equal(t, "tok", st.ID)
	assert.Equal(t, session.NumericUserID(9), st.UserID)
	assert.Equal(t, "tok", st.Content["seeded"])
	assert.Equal(t, map[string]any{}, st.Flash)

	resp = do(t, http.MethodDelete, srv.URL+"/api/v1/sessions/tok")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/sessions/tok")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Destroying an unknown id is not an error.
	resp = do(t, http.MethodDelete, srv.URL+"/api/v1/sessions/tok")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestClearSessions(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "a", session.UserID{}, now, now)
	seed(t, store, "b", session.NumericUserID(1), now, now)
	srv := setupServer(t, store)

	resp := do(t, http.MethodDelete, srv.URL+"/api/v1/sessions")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, store.Len())
}

func TestSweep(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "fresh", session.UserID{}, now-10, now-10)
	seed(t, store, "idle", session.UserID{}, now-100, now-100)
	seed(t, store, "old", session.UserID{}, now-2000, now)
	srv := setupServer(t, store, api.WithExpiry(60*time.Second, 1000*time.Second))

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/sweep")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[api.SweepResponse](t, resp)
	assert.Equal(t, "1m0s", body.MaxInactivity)

	_, ok, err := store.Read(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestAuditAlerts(t *testing.T) {
	store := newStore(t)
	var mu sync.Mutex
	var alerts []api.AlertEvent
	srv := setupServer(t, store, api.WithAlertFunc(func(e api.AlertEvent) {
		mu.Lock()
		alerts = append(alerts, e)
		mu.Unlock()
	}))

	for i := 0; i < 3; i++ {
		resp := do(t, http.MethodDelete, srv.URL+"/api/v1/sessions")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerts, 1)
	assert.Equal(t, api.AlertRepeatedClear, alerts[0].Type)
}

func TestBulkRevocationAlerts(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	for i := 0; i < 100; i++ {
		seed(t, store, fmt.Sprintf("s%03d", i), session.StringUserID("victim"), now, now)
	}
	var mu sync.Mutex
	var alerts []api.AlertEvent
	srv := setupServer(t, store, api.WithAlertFunc(func(e api.AlertEvent) {
		mu.Lock()
		alerts = append(alerts, e)
		mu.Unlock()
	}))

	resp := do(t, http.MethodDelete, srv.URL+"/api/v1/users/string/victim/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerts, 1)
	assert.Equal(t, api.AlertRevocationSpike, alerts[0].Type)
	assert.Equal(t, 100, alerts[0].Count)
}

func TestAdminToken(t *testing.T) {
	store := newStore(t)
	now := testNow.Unix()
	seed(t, store, "a", session.NumericUserID(1), now, now)
	srv := setupServer(t, store, api.WithAdminToken("s3cret"))

	send := func(method, path, auth string) *http.Response {
		req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+"/api/v1"+path, nil)
		require.NoError(t, err)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := send(http.MethodDelete, "/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "authentication required", body.Error)

	resp = send(http.MethodDelete, "/sessions", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = send(http.MethodGet, "/users", "Basic s3cret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, store.Len(), "rejected requests must not touch the store")

	// Liveness and the API document stay public.
	resp = send(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = send(http.MethodGet, "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = send(http.MethodDelete, "/sessions", "Bearer s3cret")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, store.Len())
}

func TestAuditLogging(t *testing.T) {
	var buf bytes.Buffer
	srv := setupServer(t, newStore(t), api.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	resp := do(t, http.MethodDelete, srv.URL+"/api/v1/sessions/gone")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["msg"])
	assert.Equal(t, "session_destroyed", entry["event"])
	assert.Equal(t, "gone", entry["session_id"])
	assert.Equal(t, "audit", entry["component"])
}

// brokenStore fails every call it overrides.
type brokenStore struct {
	session.Store
	err error
}

func (b brokenStore) Read(context.Context, string) (session.State, bool, error) {
	return session.State{}, false, b.err
}

func (b brokenStore) AuthenticatedUserIDs(context.Context) ([]session.UserID, error) {
	return nil, b.err
}

func (b brokenStore) Clear(context.Context) error { return b.err }

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		status int
	}{
		{"corrupt record", fmt.Errorf("decoding content: %w", session.ErrCorruptRecord), http.MethodGet, "/sessions/x", http.StatusUnprocessableEntity},
		{"conflict", session.ErrSessionAlreadyExists, http.MethodGet, "/sessions/x", http.StatusConflict},
		{"backend failure", errors.New("connection refused"), http.MethodGet, "/users", http.StatusInternalServerError},
		{"clear failure", errors.New("disk full"), http.MethodDelete, "/sessions", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupServer(t, brokenStore{err: tt.err})
			resp := do(t, tt.method, srv.URL+"/api/v1"+tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[api.ErrorResponse](t, resp)
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}
