// Package sqlite implements session.Store on an embedded SQLite database
// using the CGO-free modernc.org/sqlite driver.
//
// The pool is limited to one connection: SQLite serializes writers anyway,
// and a single connection keeps in-memory databases alive and turns
// concurrent duplicate inserts into ordinary constraint violations instead
// of SQLITE_BUSY failures.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jmcleod/sessionstore/session"
	"github.com/jmcleod/sessionstore/storage"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Store implements session.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ session.Store        = (*Store)(nil)
	_ session.RecordReader = (*Store)(nil)
)

// NewStore returns a Store using db. The caller owns db.
func NewStore(db *sql.DB, opts ...session.Option) *Store {
	o := session.BuildOptions(opts...)
	return &Store{db: db, now: o.Now}
}

// NewStoreFromFile opens the database at path (":memory:" for a private
// in-memory database) and ensures the schema exists.
func NewStoreFromFile(ctx context.Context, path string, opts ...session.Option) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring sqlite db: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(db, opts...), nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const (
	insertSQL = `INSERT INTO sessions (id, user_id, user_id_str, content, flash, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	upsertSQL = insertSQL + `
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id, user_id_str = excluded.user_id_str,
			content = excluded.content, flash = excluded.flash,
			updated_at = excluded.updated_at, created_at = excluded.created_at`
)

func (s *Store) Save(ctx context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertSQL, recordArgs(rec)...)
	return storage.TranslateInsertError(err)
}

func (s *Store) ReadRecord(ctx context.Context, id string) (session.Record, bool, error) {
	var rec session.Record
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, user_id_str, content, flash, updated_at, created_at
		FROM sessions WHERE id = ?`, id).Scan(
		&rec.ID, &rec.UserIDNum, &rec.UserIDStr, &rec.Content, &rec.Flash, &rec.UpdatedAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, false, nil
	}
	if err != nil {
		return session.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Read(ctx context.Context, id string) (session.State, bool, error) {
	rec, ok, err := s.ReadRecord(ctx, id)
	if err != nil || !ok {
		return session.State{}, false, err
	}
	state, err := rec.Decode()
	if err != nil {
		return session.State{}, false, err
	}
	return state, true, nil
}

func (s *Store) Update(ctx context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertSQL, recordArgs(rec)...)
	return err
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	return err
}

func (s *Store) CleanUpExpiredSessions(ctx context.Context, maxInactivity, maxLifeTime time.Duration) error {
	cutoffs := session.NewCutoffs(s.now(), maxInactivity, maxLifeTime)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ? OR created_at < ?`,
		cutoffs.UpdatedBefore, cutoffs.CreatedBefore)
	return err
}

func (s *Store) AuthenticatedUserIDs(ctx context.Context) ([]session.UserID, error) {
	nums, err := collect(ctx, s.db,
		`SELECT DISTINCT user_id FROM sessions WHERE user_id IS NOT NULL ORDER BY user_id`,
		session.NumericUserID)
	if err != nil {
		return nil, err
	}
	strs, err := collect(ctx, s.db,
		`SELECT DISTINCT user_id_str FROM sessions WHERE user_id_str IS NOT NULL ORDER BY user_id_str`,
		session.StringUserID)
	if err != nil {
		return nil, err
	}
	return append(nums, strs...), nil
}

func (s *Store) DestroyAllSessionsOf(ctx context.Context, userID session.UserID) error {
	if err := session.RequireUser(userID); err != nil {
		return err
	}
	column, value := storage.UserColumn(userID)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM sessions WHERE %s = ?`, column), value)
	return err
}

func (s *Store) SessionIDsOf(ctx context.Context, userID session.UserID) ([]string, error) {
	if err := session.RequireUser(userID); err != nil {
		return nil, err
	}
	column, value := storage.UserColumn(userID)
	return collect(ctx, s.db,
		fmt.Sprintf(`SELECT id FROM sessions WHERE %s = ? ORDER BY id`, column),
		func(id string) string { return id }, value)
}

func recordArgs(rec session.Record) []any {
	return []any{rec.ID, rec.UserIDNum, rec.UserIDStr, rec.Content, rec.Flash, rec.UpdatedAt, rec.CreatedAt}
}

func collect[C, T any](ctx context.Context, db *sql.DB, query string, fn func(C) T, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v C
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, fn(v))
	}
	return out, rows.Err()
}
