// Package storetest provides the behavioural test suite shared by every
// session.Store backend.
package storetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sessionstore/session"
)

// Now is the fixed instant the suite's clock reports.
var Now = time.Unix(1_700_000_000, 0)

// Factory returns an empty store using now as its clock.
type Factory func(t *testing.T, now func() time.Time) session.Store

const maxInactivity = 15 * time.Minute

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	clock := func() time.Time { return Now }
	open := func(t *testing.T) session.Store {
		t.Helper()
		s := newStore(t, clock)
		require.NoError(t, s.Clear(t.Context()))
		return s
	}

	t.Run("Save", func(t *testing.T) { testSave(t, open) })
	t.Run("Read", func(t *testing.T) { testRead(t, open) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open) })
	t.Run("Destroy", func(t *testing.T) { testDestroy(t, open) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open) })
	t.Run("CleanUpExpiredSessions", func(t *testing.T) { testCleanUp(t, open) })
	t.Run("AuthenticatedUserIDs", func(t *testing.T) { testAuthenticatedUserIDs(t, open) })
	t.Run("DestroyAllSessionsOf", func(t *testing.T) { testDestroyAllSessionsOf(t, open) })
	t.Run("SessionIDsOf", func(t *testing.T) { testSessionIDsOf(t, open) })
}

type opener func(t *testing.T) session.Store

func newState(id string, user session.UserID) session.State {
	return session.State{
		ID:        id,
		UserID:    user,
		Content:   map[string]any{"foo": "bar"},
		Flash:     map[string]any{"hello": "world"},
		CreatedAt: Now.Unix() - 5,
		UpdatedAt: Now.Unix() - 1,
	}
}

// NewToken returns a random 44-character session token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "0123456789ab"
}

func mustSave(t *testing.T, s session.Store, states ...session.State) {
	t.Helper()
	for _, st := range states {
		require.NoError(t, s.Save(t.Context(), st, maxInactivity))
	}
}

func mustRead(t *testing.T, s session.Store, id string) session.State {
	t.Helper()
	got, ok, err := s.Read(t.Context(), id)
	require.NoError(t, err)
	require.True(t, ok, "session %q not found", id)
	return got
}

func requireAbsent(t *testing.T, s session.Store, id string) {
	t.Helper()
	_, ok, err := s.Read(t.Context(), id)
	require.NoError(t, err)
	require.False(t, ok, "session %q should not exist", id)
}

func requireColumns(t *testing.T, s session.Store, id string, wantNum *int32, wantStr *string) {
	t.Helper()
	rr, ok := s.(session.RecordReader)
	if !ok {
		return
	}
	rec, found, err := rr.ReadRecord(t.Context(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, wantNum, rec.UserIDNum, "user_id")
	assert.Equal(t, wantStr, rec.UserIDStr, "user_id_str")
}

func ptr[T any](v T) *T { return &v }

func testSave(t *testing.T, open opener) {
	t.Run("rejects a string user ID longer than 64 characters", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.StringUserID(strings.Repeat("a", 65)))
		err := s.Save(t.Context(), st, maxInactivity)
		require.ErrorIs(t, err, session.ErrInvalidSession)
		var verr *session.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "user_id", verr.Field)
		requireAbsent(t, s, "a")
	})

	t.Run("accepts a string user ID of exactly 64 characters", func(t *testing.T) {
		s := open(t)
		user := strings.Repeat("a", 64)
		mustSave(t, s, newState("a", session.StringUserID(user)))
		got := mustRead(t, s, "a")
		str, ok := got.UserID.Str()
		require.True(t, ok)
		require.Equal(t, user, str)
	})

	t.Run("stores an anonymous session", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.UserID{})
		mustSave(t, s, st)
		require.Equal(t, st, mustRead(t, s, "a"))
		requireColumns(t, s, "a", nil, nil)
	})

	t.Run("stores a numeric user ID in user_id only", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.NumericUserID(2))
		mustSave(t, s, st)
		require.Equal(t, st, mustRead(t, s, "a"))
		requireColumns(t, s, "a", ptr(int32(2)), nil)
	})

	t.Run("stores a string user ID in user_id_str only", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.StringUserID("b"))
		mustSave(t, s, st)
		require.Equal(t, st, mustRead(t, s, "a"))
		requireColumns(t, s, "a", nil, ptr("b"))
	})

	t.Run("returns ErrSessionAlreadyExists for a taken id", func(t *testing.T) {
		s := open(t)
		first := newState("a", session.NumericUserID(1))
		mustSave(t, s, first)

		second := newState("a", session.NumericUserID(2))
		second.Content = map[string]any{"other": "value"}
		err := s.Save(t.Context(), second, maxInactivity)
		require.ErrorIs(t, err, session.ErrSessionAlreadyExists)
		require.Equal(t, first, mustRead(t, s, "a"))
	})

	t.Run("concurrent saves of one id have exactly one winner", func(t *testing.T) {
		s := open(t)
		id := NewToken()
		const writers = 8

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.Save(context.Background(), newState(id, session.NumericUserID(int32(i))), maxInactivity)
			}(i)
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, session.ErrSessionAlreadyExists):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, writers-1, conflicts)
	})

	t.Run("supports long content and flash payloads", func(t *testing.T) {
		s := open(t)
		st := newState(NewToken(), session.UserID{})
		st.Content = map[string]any{"hello": strings.Repeat("a", 8192)}
		st.Flash = map[string]any{"hello": strings.Repeat("b", 8192)}
		mustSave(t, s, st)
		require.Equal(t, st, mustRead(t, s, st.ID))
	})

	t.Run("supports 4-byte timestamps and 44-character tokens", func(t *testing.T) {
		s := open(t)
		st := newState(NewToken(), session.NumericUserID(2147483647))
		require.Len(t, st.ID, session.MaxIDLength)
		st.CreatedAt = 2147483647
		st.UpdatedAt = 2147483647
		mustSave(t, s, st)
		require.Equal(t, st, mustRead(t, s, st.ID))
	})
}

func testRead(t *testing.T, open opener) {
	t.Run("reports a missing session without error", func(t *testing.T) {
		s := open(t)
		got, ok, err := s.Read(t.Context(), "c")
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, session.State{}, got)
	})

	t.Run("round-trips structured content", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.StringUserID("u1"))
		st.Content = map[string]any{
			"csrfToken": "xyz",
			"count":     float64(3),
			"admin":     true,
			"nested":    map[string]any{"list": []any{"x", float64(1), nil}},
		}
		st.Flash = map[string]any{}
		mustSave(t, s, st)
		require.Equal(t, st, mustRead(t, s, "a"))
	})

	t.Run("returns empty maps for nil payloads", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.UserID{})
		st.Content = nil
		st.Flash = nil
		mustSave(t, s, st)
		got := mustRead(t, s, "a")
		require.Equal(t, map[string]any{}, got.Content)
		require.Equal(t, map[string]any{}, got.Flash)
	})
}

func testUpdate(t *testing.T, open opener) {
	t.Run("rejects a string user ID longer than 64 characters", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.StringUserID(strings.Repeat("a", 65)))
		require.ErrorIs(t, s.Update(t.Context(), st, maxInactivity), session.ErrInvalidSession)
		requireAbsent(t, s, "a")
	})

	t.Run("creates the session when absent", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.NumericUserID(1))
		require.NoError(t, s.Update(t.Context(), st, maxInactivity))
		require.Equal(t, st, mustRead(t, s, "a"))
	})

	t.Run("overwrites every mutable field", func(t *testing.T) {
		cases := []struct {
			name string
			from session.UserID
			to   session.UserID
			num  *int32
			str  *string
		}{
			{name: "no user ID", from: session.UserID{}, to: session.UserID{}},
			{name: "number user ID", from: session.NumericUserID(1), to: session.NumericUserID(3), num: ptr(int32(3))},
			{name: "string user ID", from: session.StringUserID("u1"), to: session.StringUserID("u3"), str: ptr("u3")},
			{name: "number to string user ID", from: session.NumericUserID(1), to: session.StringUserID("u1"), str: ptr("u1")},
			{name: "string to anonymous", from: session.StringUserID("u1"), to: session.UserID{}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				s := open(t)
				mustSave(t, s, newState("a", tc.from))

				updated := session.State{
					ID:        "a",
					UserID:    tc.to,
					Content:   map[string]any{"foo": "bar2"},
					Flash:     map[string]any{"hello": "world2"},
					CreatedAt: Now.Unix() - 5,
					UpdatedAt: Now.Unix(),
				}
				require.NoError(t, s.Update(t.Context(), updated, maxInactivity))
				require.Equal(t, updated, mustRead(t, s, "a"))
				requireColumns(t, s, "a", tc.num, tc.str)
			})
		}
	})

	t.Run("keeps a single row per id", func(t *testing.T) {
		s := open(t)
		st := newState("a", session.NumericUserID(7))
		require.NoError(t, s.Update(t.Context(), st, maxInactivity))
		st.Content = map[string]any{"v": float64(2)}
		require.NoError(t, s.Update(t.Context(), st, maxInactivity))

		ids, err := s.SessionIDsOf(t.Context(), session.NumericUserID(7))
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, ids)
		require.Equal(t, map[string]any{"v": float64(2)}, mustRead(t, s, "a").Content)
	})

	t.Run("does not touch other sessions", func(t *testing.T) {
		s := open(t)
		other := newState("b", session.NumericUserID(2))
		mustSave(t, s, newState("a", session.NumericUserID(1)), other)

		st := newState("a", session.NumericUserID(1))
		st.Content = map[string]any{"changed": true}
		require.NoError(t, s.Update(t.Context(), st, maxInactivity))
		require.Equal(t, other, mustRead(t, s, "b"))
	})

	t.Run("concurrent upserts of different ids stay isolated", func(t *testing.T) {
		s := open(t)
		ids := []string{"w1", "w2", "w3", "w4"}
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				st := newState(id, session.NumericUserID(int32(i)))
				st.Content = map[string]any{"owner": id}
				assert.NoError(t, s.Update(context.Background(), st, maxInactivity))
			}(i, id)
		}
		wg.Wait()
		for i, id := range ids {
			got := mustRead(t, s, id)
			require.Equal(t, map[string]any{"owner": id}, got.Content)
			require.Equal(t, session.NumericUserID(int32(i)), got.UserID)
		}
	})
}

func testDestroy(t *testing.T, open opener) {
	t.Run("ignores a missing session", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Destroy(t.Context(), "a"))
	})

	t.Run("deletes only the given session", func(t *testing.T) {
		s := open(t)
		mustSave(t, s,
			newState("a", session.UserID{}),
			newState("b", session.NumericUserID(1)),
			newState("c", session.StringUserID("u1")),
		)
		require.NoError(t, s.Destroy(t.Context(), "b"))
		requireAbsent(t, s, "b")
		mustRead(t, s, "a")
		mustRead(t, s, "c")
	})
}

func testClear(t *testing.T, open opener) {
	s := open(t)
	mustSave(t, s,
		newState("a", session.UserID{}),
		newState("b", session.NumericUserID(1)),
		newState("c", session.StringUserID("u1")),
	)
	require.NoError(t, s.Clear(t.Context()))
	for _, id := range []string{"a", "b", "c"} {
		requireAbsent(t, s, id)
	}
	users, err := s.AuthenticatedUserIDs(t.Context())
	require.NoError(t, err)
	require.Empty(t, users)
}

func testCleanUp(t *testing.T, open opener) {
	const (
		inactivity = 10 * time.Second
		lifetime   = 20 * time.Second
	)
	now := Now.Unix()

	s := open(t)
	fresh := newState("fresh", session.NumericUserID(1))
	fresh.CreatedAt, fresh.UpdatedAt = now-2, now-1

	edge := newState("edge", session.NumericUserID(1))
	edge.CreatedAt, edge.UpdatedAt = now-20, now-10

	idle := newState("idle", session.NumericUserID(2))
	idle.CreatedAt, idle.UpdatedAt = now-12, now-11

	old := newState("old", session.StringUserID("u1"))
	old.CreatedAt, old.UpdatedAt = now-21, now-1

	mustSave(t, s, fresh, edge, idle, old)
	require.NoError(t, s.CleanUpExpiredSessions(t.Context(), inactivity, lifetime))

	mustRead(t, s, "fresh")
	mustRead(t, s, "edge")
	requireAbsent(t, s, "idle")
	requireAbsent(t, s, "old")

	users, err := s.AuthenticatedUserIDs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []session.UserID{session.NumericUserID(1)}, users)
}

func seedUsers(t *testing.T, s session.Store) {
	t.Helper()
	mustSave(t, s,
		newState("a", session.UserID{}),
		newState("b", session.NumericUserID(1)),
		newState("c", session.NumericUserID(2)),
		newState("d", session.NumericUserID(2)),
		newState("e", session.StringUserID("u1")),
		newState("f", session.StringUserID("u2")),
		newState("g", session.StringUserID("u2")),
		newState("h", session.StringUserID("1")),
	)
}

func testAuthenticatedUserIDs(t *testing.T, open opener) {
	t.Run("empty store", func(t *testing.T) {
		s := open(t)
		users, err := s.AuthenticatedUserIDs(t.Context())
		require.NoError(t, err)
		require.Empty(t, users)
	})

	t.Run("distinct identities, numbers first", func(t *testing.T) {
		s := open(t)
		seedUsers(t, s)
		users, err := s.AuthenticatedUserIDs(t.Context())
		require.NoError(t, err)
		require.Equal(t, []session.UserID{
			session.NumericUserID(1),
			session.NumericUserID(2),
			session.StringUserID("1"),
			session.StringUserID("u1"),
			session.StringUserID("u2"),
		}, users)
	})
}

func testDestroyAllSessionsOf(t *testing.T, open opener) {
	t.Run("numeric identity", func(t *testing.T) {
		s := open(t)
		seedUsers(t, s)
		require.NoError(t, s.DestroyAllSessionsOf(t.Context(), session.NumericUserID(2)))
		requireAbsent(t, s, "c")
		requireAbsent(t, s, "d")
		for _, id := range []string{"a", "b", "e", "f", "g", "h"} {
			mustRead(t, s, id)
		}
	})

	t.Run("string identity", func(t *testing.T) {
		s := open(t)
		seedUsers(t, s)
		require.NoError(t, s.DestroyAllSessionsOf(t.Context(), session.StringUserID("u2")))
		requireAbsent(t, s, "f")
		requireAbsent(t, s, "g")
		for _, id := range []string{"a", "b", "c", "d", "e", "h"} {
			mustRead(t, s, id)
		}
	})

	t.Run("numeric and string identities with the same text are distinct", func(t *testing.T) {
		s := open(t)
		seedUsers(t, s)
		require.NoError(t, s.DestroyAllSessionsOf(t.Context(), session.NumericUserID(1)))
		requireAbsent(t, s, "b")
		mustRead(t, s, "h")
	})

	t.Run("rejects the anonymous identity", func(t *testing.T) {
		s := open(t)
		seedUsers(t, s)
		require.ErrorIs(t, s.DestroyAllSessionsOf(t.Context(), session.UserID{}), session.ErrInvalidSession)
		mustRead(t, s, "a")
	})
}

func testSessionIDsOf(t *testing.T, open opener) {
	s := open(t)
	seedUsers(t, s)

	tests := []struct {
		name string
		user session.UserID
		want []string
	}{
		{name: "unknown number", user: session.NumericUserID(3), want: []string{}},
		{name: "unknown string", user: session.StringUserID("u3"), want: []string{}},
		{name: "number", user: session.NumericUserID(2), want: []string{"c", "d"}},
		{name: "string", user: session.StringUserID("u2"), want: []string{"f", "g"}},
		{name: "string that looks numeric", user: session.StringUserID("1"), want: []string{"h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := s.SessionIDsOf(t.Context(), tt.user)
			require.NoError(t, err)
			require.Equal(t, tt.want, ids)
		})
	}

	t.Run("rejects the anonymous identity", func(t *testing.T) {
		_, err := s.SessionIDsOf(t.Context(), session.UserID{})
		require.ErrorIs(t, err, session.ErrInvalidSession)
	})
}
