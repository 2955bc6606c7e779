package bbolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionstore/session"
	"github.com/jmcleod/sessionstore/session/storetest"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "sessions-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) session.Store {
		db, cleanup := newTestDB(t)
		t.Cleanup(cleanup)
		s, err := NewStore(db, session.WithClock(now))
		require.NoError(t, err)
		return s
	})
}

func TestBBoltPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	st := session.State{
		ID:        "persist",
		UserID:    session.StringUserID("u1"),
		Content:   map[string]any{"k": "v"},
		Flash:     map[string]any{},
		CreatedAt: 10,
		UpdatedAt: 20,
	}
	require.NoError(t, s.Save(ctx, st, time.Minute))
	require.NoError(t, s.Close())

	reopened, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Read(ctx, "persist")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, st, got)
	require.ErrorIs(t, reopened.Save(ctx, st, time.Minute), session.ErrSessionAlreadyExists)
}

func TestBBoltCorruptRecord(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	s, err := NewStore(db)
	require.NoError(t, err)

	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte("bad"), []byte("{not json"))
	}))
	_, _, err = s.Read(context.Background(), "bad")
	require.ErrorIs(t, err, session.ErrCorruptRecord)
}
