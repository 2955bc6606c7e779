// Package memory provides a thread-safe in-memory implementation of session.Store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jmcleod/sessionstore/session"
)

// Store is a thread-safe in-memory session.Store. Records are kept in their
// encoded form so reads exercise the same codec as the persistent backends.
// Suitable for tests and single-process use.
type Store struct {
	mu   sync.RWMutex
	data map[string]session.Record
	now  func() time.Time
}

var (
	_ session.Store        = (*Store)(nil)
	_ session.RecordReader = (*Store)(nil)
)

// NewStore creates a new empty in-memory Store.
func NewStore(opts ...session.Option) *Store {
	o := session.BuildOptions(opts...)
	return &Store{
		data: make(map[string]session.Record),
		now:  o.Now,
	}
}

func cloneRecord(rec session.Record) session.Record {
	if rec.UserIDNum != nil {
		n := *rec.UserIDNum
		rec.UserIDNum = &n
	}
	if rec.UserIDStr != nil {
		s := *rec.UserIDStr
		rec.UserIDStr = &s
	}
	return rec
}

func (s *Store) Save(_ context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[rec.ID]; ok {
		return session.ErrSessionAlreadyExists
	}
	s.data[rec.ID] = rec
	return nil
}

func (s *Store) ReadRecord(_ context.Context, id string) (session.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[id]
	if !ok {
		return session.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
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

func (s *Store) Update(_ context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *Store) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	clear(s.data)
	s.mu.Unlock()
	return nil
}

func (s *Store) CleanUpExpiredSessions(_ context.Context, maxInactivity, maxLifeTime time.Duration) error {
	cutoffs := session.NewCutoffs(s.now(), maxInactivity, maxLifeTime)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.data {
		if cutoffs.Expired(rec.CreatedAt, rec.UpdatedAt) {
			delete(s.data, id)
		}
	}
	return nil
}

func (s *Store) AuthenticatedUserIDs(_ context.Context) ([]session.UserID, error) {
	s.mu.RLock()
	ids := make([]session.UserID, 0, len(s.data))
	for _, rec := range s.data {
		if u := rec.User(); !u.IsZero() {
			ids = append(ids, u)
		}
	}
	s.mu.RUnlock()
	return session.SortUserIDs(ids), nil
}

func (s *Store) DestroyAllSessionsOf(_ context.Context, userID session.UserID) error {
	if err := session.RequireUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.data {
		if rec.User() == userID {
			delete(s.data, id)
		}
	}
	return nil
}

func (s *Store) SessionIDsOf(_ context.Context, userID session.UserID) ([]string, error) {
	if err := session.RequireUser(userID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := []string{}
	for id, rec := range s.data {
		if rec.User() == userID {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// put stores rec without validation. Tests use it to plant corrupt rows.
func (s *Store) put(rec session.Record) {
	s.mu.Lock()
	s.data[rec.ID] = rec
	s.mu.Unlock()
}
