// Package redis implements session.Store on Redis.
//
// Each session is a hash; sorted sets index sessions by timestamps and by
// owner. All writes run as Lua scripts so the existence check in Save and
// the index maintenance in every mutation are atomic on the server.
//
// The scripts derive key names from the prefix instead of declaring them in
// KEYS, so the store needs a single Redis node (or a primary with replicas).
// Redis Cluster is not supported, and NewStore accepts only *goredis.Client.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/sessionstore/session"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "sessions:"

// Store implements session.Store backed by Redis.
type Store struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

var (
	_ session.Store        = (*Store)(nil)
	_ session.RecordReader = (*Store)(nil)
)

// NewStore returns a Store using a single-node client. An empty prefix
// selects DefaultPrefix.
func NewStore(client *goredis.Client, prefix string, opts ...session.Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	o := session.BuildOptions(opts...)
	return &Store{client: client, prefix: prefix, now: o.Now}
}

// NewStoreFromOptions connects to the server described by opts and verifies
// it answers PING within the context deadline.
func NewStoreFromOptions(ctx context.Context, opts *goredis.Options, prefix string, storeOpts ...session.Option) (*Store, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewStore(client, prefix, storeOpts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.prefix + "s:" + id
}

func userArgs(userID session.UserID) (kind, uid string) {
	switch userID.Kind() {
	case session.UserNumeric:
		return "n", userID.String()
	case session.UserString:
		return "s", userID.String()
	default:
		return "", ""
	}
}

func (s *Store) writeArgs(rec session.Record) []any {
	kind, uid := userArgs(rec.User())
	return []any{s.prefix, rec.ID, kind, uid, rec.Content, rec.Flash, rec.UpdatedAt, rec.CreatedAt}
}

func (s *Store) Save(ctx context.Context, state session.State, _ time.Duration) error {
	rec, err := session.EncodeRecord(state)
	if err != nil {
		return err
	}
	inserted, err := insertScript.Run(ctx, s.client, nil, s.writeArgs(rec)...).Int()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return session.ErrSessionAlreadyExists
	}
	return nil
}

func (s *Store) ReadRecord(ctx context.Context, id string) (session.Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return session.Record{}, false, err
	}
	if len(fields) == 0 {
		return session.Record{}, false, nil
	}
	rec, err := parseRecord(id, fields)
	if err != nil {
		return session.Record{}, false, err
	}
	return rec, true, nil
}

func parseRecord(id string, fields map[string]string) (session.Record, error) {
	rec := session.Record{
		ID:      id,
		Content: fields["content"],
		Flash:   fields["flash"],
	}
	var err error
	if rec.UpdatedAt, err = strconv.ParseInt(fields["updated_at"], 10, 64); err != nil {
		return session.Record{}, fmt.Errorf("%w: %s: updated_at: %v", session.ErrCorruptRecord, id, err)
	}
	if rec.CreatedAt, err = strconv.ParseInt(fields["created_at"], 10, 64); err != nil {
		return session.Record{}, fmt.Errorf("%w: %s: created_at: %v", session.ErrCorruptRecord, id, err)
	}
	if v, ok := fields["user_id"]; ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return session.Record{}, fmt.Errorf("%w: %s: user_id: %v", session.ErrCorruptRecord, id, err)
		}
		num := int32(n)
		rec.UserIDNum = &num
	}
	if v, ok := fields["user_id_str"]; ok {
		rec.UserIDStr = &v
	}
	return rec, nil
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
	return upsertScript.Run(ctx, s.client, nil, s.writeArgs(rec)...).Err()
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	return destroyScript.Run(ctx, s.client, nil, s.prefix, id).Err()
}

func (s *Store) Clear(ctx context.Context) error {
	return clearScript.Run(ctx, s.client, nil, s.prefix).Err()
}

func (s *Store) CleanUpExpiredSessions(ctx context.Context, maxInactivity, maxLifeTime time.Duration) error {
	cutoffs := session.NewCutoffs(s.now(), maxInactivity, maxLifeTime)
	return sweepScript.Run(ctx, s.client, nil, s.prefix, cutoffs.UpdatedBefore, cutoffs.CreatedBefore).Err()
}

func (s *Store) AuthenticatedUserIDs(ctx context.Context) ([]session.UserID, error) {
	nums, err := s.client.SMembers(ctx, s.prefix+"users:n").Result()
	if err != nil {
		return nil, err
	}
	strs, err := s.client.SMembers(ctx, s.prefix+"users:s").Result()
	if err != nil {
		return nil, err
	}
	ids := make([]session.UserID, 0, len(nums)+len(strs))
	for _, v := range nums {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: numeric owner %q: %v", session.ErrCorruptRecord, v, err)
		}
		ids = append(ids, session.NumericUserID(int32(n)))
	}
	for _, v := range strs {
		ids = append(ids, session.StringUserID(v))
	}
	return session.SortUserIDs(ids), nil
}

func (s *Store) DestroyAllSessionsOf(ctx context.Context, userID session.UserID) error {
	if err := session.RequireUser(userID); err != nil {
		return err
	}
	kind, uid := userArgs(userID)
	return destroyUserScript.Run(ctx, s.client, nil, s.prefix, kind, uid).Err()
}

func (s *Store) SessionIDsOf(ctx context.Context, userID session.UserID) ([]string, error) {
	if err := session.RequireUser(userID); err != nil {
		return nil, err
	}
	kind, uid := userArgs(userID)
	ids, err := s.client.ZRange(ctx, s.prefix+"user:"+kind+":"+uid, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
