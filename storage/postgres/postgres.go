// Package postgres implements session.Store backed by PostgreSQL.
//
// Sessions live in a single table whose primary key is the session token.
// Numeric and string user identities are kept in separate nullable columns
// so each can be indexed and compared with its native type. Uniqueness is
// left to the primary key: a concurrent duplicate insert surfaces as
// SQLSTATE 23505, which storage.TranslateInsertError maps to
// session.ErrSessionAlreadyExists.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/sessionstore/session"
	"github.com/jmcleod/sessionstore/storage"
)

// Store implements session.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ session.Store        = (*Store)(nil)
	_ session.RecordReader = (*Store)(nil)
)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool, opts ...session.Option) *Store {
	o := session.BuildOptions(opts...)
	return &Store{pool: pool, now: o.Now}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn string, opts ...session.Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool, opts...), nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const (
	insertSQL = `INSERT INTO sessions (id, user_id, user_id_str, content, flash, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertSQL = insertSQL + `
		 ON CONFLICT (id)
		 DO UPDATE SET user_id = EXCLUDED.user_id, user_id_str = EXCLUDED.user_id_str,
		               content = EXCLUDED.content, flash = EXCLUDED.flash,
		               updated_at = EXCLUDED.updated_at, created_at = EXCLUDED.created_at`
)

// ---------------------------------------------------------------------------
// session.Store implementation
// ---------------------------------------------------------------------------

func (s *Store) Save(ctx context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, insertSQL, recordArgs(rec)...)
	return storage.TranslateInsertError(err)
}

func (s *Store) ReadRecord(ctx context.Context, id string) (session.Record, bool, error) {
	var rec session.Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, user_id_str, content, flash, updated_at, created_at
		 FROM sessions WHERE id = $1`, id).Scan(
		&rec.ID, &rec.UserIDNum, &rec.UserIDStr, &rec.Content, &rec.Flash, &rec.UpdatedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = s.pool.Exec(ctx, upsertSQL, recordArgs(rec)...)
	return err
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions`)
	return err
}

func (s *Store) CleanUpExpiredSessions(ctx context.Context, maxInactivity, maxLifeTime time.Duration) error {
	cutoffs := session.NewCutoffs(s.now(), maxInactivity, maxLifeTime)
	_, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE updated_at < $1 OR created_at < $2`,
		cutoffs.UpdatedBefore, cutoffs.CreatedBefore)
	return err
}

func (s *Store) AuthenticatedUserIDs(ctx context.Context) ([]session.UserID, error) {
	nums, err := collect(ctx, s.pool,
		`SELECT DISTINCT user_id FROM sessions WHERE user_id IS NOT NULL ORDER BY user_id`,
		session.NumericUserID)
	if err != nil {
		return nil, err
	}
	strs, err := collect(ctx, s.pool,
		`SELECT DISTINCT user_id_str FROM sessions WHERE user_id_str IS NOT NULL ORDER BY user_id_str COLLATE "C"`,
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
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM sessions WHERE %s = $1`, column), value)
	return err
}

func (s *Store) SessionIDsOf(ctx context.Context, userID session.UserID) ([]string, error) {
	if err := session.RequireUser(userID); err != nil {
		return nil, err
	}
	column, value := storage.UserColumn(userID)
	ids, err := collect(ctx, s.pool,
		fmt.Sprintf(`SELECT id FROM sessions WHERE %s = $1 ORDER BY id COLLATE "C"`, column),
		func(id string) string { return id }, value)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func recordArgs(rec session.Record) []any {
	return []any{rec.ID, rec.UserIDNum, rec.UserIDStr, rec.Content, rec.Flash, rec.UpdatedAt, rec.CreatedAt}
}

// collect runs a single-column query and maps every row through fn. The
// result is never nil.
func collect[C, T any](ctx context.Context, pool *pgxpool.Pool, sql string, fn func(C) T, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
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
