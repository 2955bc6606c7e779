package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionstore/config"
	"github.com/jmcleod/sessionstore/session"
)

func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	st := session.State{
		ID:        "backend-test",
		UserID:    session.NumericUserID(7),
		Content:   map[string]any{"k": "v"},
		CreatedAt: 100,
		UpdatedAt: 100,
	}
	require.NoError(t, store.Save(ctx, st, 0))

	got, ok, err := store.Read(ctx, st.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st.UserID, got.UserID)
	assert.Equal(t, "v", got.Content["k"])
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	tests := map[string]func(*config.Config){
		config.BackendMemory: func(*config.Config) {},
		config.BackendSQLite: func(c *config.Config) {
			c.SQLite.Path = filepath.Join(dir, "nested", "sessions.db")
		},
		config.BackendBolt: func(c *config.Config) {
			c.Bolt.Path = filepath.Join(dir, "nested", "sessions.bolt")
		},
		config.BackendRedis: func(c *config.Config) {
			c.Redis.Addr = mr.Addr()
		},
	}

	for name, configure := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend = name
			configure(&cfg)

			store, err := Open(context.Background(), cfg)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })

			roundTrip(t, store)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "cassandra"
	_, err := Open(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown backend")
}
