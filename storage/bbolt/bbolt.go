// Package bbolt provides a BBolt-backed session.Store.
//
// Records are JSON-encoded session.Record values in a single bucket keyed by
// token, so cursor order is primary-key order. Identity and expiry queries
// scan the bucket; BBolt serializes writers, which is what makes Save's
// existence check and insert atomic.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/sessionstore/session"
)

var bucketName = []byte(session.TableName)

// Store implements session.Store backed by a BBolt database.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var (
	_ session.Store        = (*Store)(nil)
	_ session.RecordReader = (*Store)(nil)
)

// NewStore returns a Store backed by the given BBolt database.
func NewStore(db *bbolt.DB, opts ...session.Option) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating sessions bucket: %w", err)
	}
	o := session.BuildOptions(opts...)
	return &Store{db: db, now: o.Now}, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a new Store.
func NewStoreFromFile(path string, options *bbolt.Options, opts ...session.Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func putRecord(b *bbolt.Bucket, rec session.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.ID), data)
}

func decodeRecord(data []byte) (session.Record, error) {
	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return session.Record{}, fmt.Errorf("%w: %v", session.ErrCorruptRecord, err)
	}
	return rec, nil
}

// forEach decodes every record in key order.
func forEach(b *bbolt.Bucket, fn func(key []byte, rec session.Record) error) error {
	return b.ForEach(func(k, v []byte) error {
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		return fn(k, rec)
	})
}

// deleteWhere removes every record matching pred. Keys are collected first
// because BBolt forbids mutating a bucket while iterating it.
func (s *Store) deleteWhere(pred func(session.Record) bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		var doomed [][]byte
		err := forEach(b, func(k []byte, rec session.Record) error {
			if pred(rec) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Save(_ context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(rec.ID)) != nil {
			return session.ErrSessionAlreadyExists
		}
		return putRecord(b, rec)
	})
}

func (s *Store) ReadRecord(_ context.Context, id string) (session.Record, bool, error) {
	var (
		rec   session.Record
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(id))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(data)
		found = err == nil
		return err
	})
	if err != nil {
		return session.Record{}, false, err
	}
	return rec, found, nil
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
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx.Bucket(bucketName), rec)
	})
}

func (s *Store) Destroy(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(id))
	})
}

func (s *Store) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

func (s *Store) CleanUpExpiredSessions(_ context.Context, maxInactivity, maxLifeTime time.Duration) error {
	cutoffs := session.NewCutoffs(s.now(), maxInactivity, maxLifeTime)
	return s.deleteWhere(func(rec session.Record) bool {
		return cutoffs.Expired(rec.CreatedAt, rec.UpdatedAt)
	})
}

func (s *Store) AuthenticatedUserIDs(_ context.Context) ([]session.UserID, error) {
	ids := []session.UserID{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketName), func(_ []byte, rec session.Record) error {
			if u := rec.User(); !u.IsZero() {
				ids = append(ids, u)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return session.SortUserIDs(ids), nil
}

func (s *Store) DestroyAllSessionsOf(_ context.Context, userID session.UserID) error {
	if err := session.RequireUser(userID); err != nil {
		return err
	}
	return s.deleteWhere(func(rec session.Record) bool {
		return rec.User() == userID
	})
}

func (s *Store) SessionIDsOf(_ context.Context, userID session.UserID) ([]string, error) {
	if err := session.RequireUser(userID); err != nil {
		return nil, err
	}
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(bucketName), func(k []byte, rec session.Record) error {
			if rec.User() == userID {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
