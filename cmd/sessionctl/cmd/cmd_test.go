package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionstore/session"
	"github.com/jmcleod/sessionstore/storage/sqlite"
)

// useSQLite points every command at a fresh database file and returns a
// store on the same file for seeding and inspection.
func useSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	t.Setenv("SESSIONS_BACKEND", "sqlite")
	t.Setenv("SESSIONS_SQLITE_PATH", path)
	t.Setenv("SESSIONS_LOG_LEVEL", "error")

	store, err := sqlite.NewStoreFromFile(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	forceString = false
	confirmClear = false
	sweepInterval = 0
	sweepSchedule = ""
	listenAddr = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func seed(t *testing.T, store session.Store, id string, user session.UserID, ts int64) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), session.State{
		ID:        id,
		UserID:    user,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, 0))
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestMigrate(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: sqlite")
}

func TestUsersAndSessions(t *testing.T) {
	store := useSQLite(t)
	now := time.Now().Unix()
	seed(t, store, "b", session.NumericUserID(7), now)
	seed(t, store, "a", session.NumericUserID(7), now)
	seed(t, store, "c", session.StringUserID("7"), now)
	seed(t, store, "d", session.StringUserID("alice"), now)

	out, err := execute(t, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"numeric\t7", "string\t7", "string\talice"}, lines(out))

	out, err = execute(t, "sessions", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines(out))

	out, err = execute(t, "sessions", "7", "--string")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, lines(out))
}

func TestRevoke(t *testing.T) {
	store := useSQLite(t)
	now := time.Now().Unix()
	seed(t, store, "a", session.StringUserID("alice"), now)
	seed(t, store, "b", session.StringUserID("bob"), now)

	_, err := execute(t, "revoke", "alice")
	require.NoError(t, err)

	ids, err := store.SessionIDsOf(context.Background(), session.StringUserID("alice"))
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, ok, err := store.Read(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDestroy(t *testing.T) {
	store := useSQLite(t)
	seed(t, store, "tok", session.UserID{}, time.Now().Unix())

	out, err := execute(t, "destroy", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "destroyed tok")

	_, ok, err := store.Read(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearRequiresConfirmation(t *testing.T) {
	store := useSQLite(t)
	seed(t, store, "a", session.UserID{}, time.Now().Unix())

	_, err := execute(t, "clear")
	require.ErrorContains(t, err, "--yes")
	_, ok, err := store.Read(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = execute(t, "clear", "--yes")
	require.NoError(t, err)
	_, ok, err = store.Read(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepOnce(t *testing.T) {
	store := useSQLite(t)
	t.Setenv("SESSIONS_EXPIRY_MAX_INACTIVITY", "1h")
	now := time.Now().Unix()
	seed(t, store, "fresh", session.UserID{}, now)
	seed(t, store, "stale", session.UserID{}, now-7200)

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "expired sessions removed")

	_, ok, err := store.Read(context.Background(), "stale")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Read(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepRejectsBadSchedule(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "sweep", "--schedule", "whenever")
	require.ErrorContains(t, err, "invalid cron expression")
}

func TestBadConfig(t *testing.T) {
	t.Setenv("SESSIONS_BACKEND", "cassandra")

	_, err := execute(t, "users")
	require.ErrorContains(t, err, "unknown backend")
}

func TestServeRejectsHalfTLS(t *testing.T) {
	useSQLite(t)
	t.Cleanup(func() { tlsCert, tlsKey = "", "" })

	_, err := execute(t, "serve", "--tls-cert", "cert.pem")
	require.ErrorContains(t, err, "must be given together")
}

func TestServeRequiresTokenOffLoopback(t *testing.T) {
	useSQLite(t)
	t.Setenv("SESSIONS_ADMIN_TOKEN", "")

	_, err := execute(t, "serve", "--addr", "0.0.0.0:0")
	require.ErrorContains(t, err, "without admin.token")

	_, err = execute(t, "serve", "--addr", ":8089")
	require.ErrorContains(t, err, "SESSIONS_ADMIN_TOKEN")
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8089", true},
		{"[::1]:8089", true},
		{"localhost:8089", true},
		{":8089", false},
		{"0.0.0.0:8089", false},
		{"10.0.0.5:8089", false},
		{"sessions.internal:8089", false},
		{"not-an-addr", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLoopback(tt.addr), tt.addr)
	}
}
