package session

import (
	"context"
	"time"
)

// Store persists session state keyed by token. Implementations hold no
// in-process cache; all coordination happens in the backing storage.
type Store interface {
	// Save inserts a new session. It returns ErrSessionAlreadyExists if the
	// token is taken and never overwrites an existing record.
	Save(ctx context.Context, state State, maxInactivity time.Duration) error
	// Read returns the session and true, or false if no session has that id.
	Read(ctx context.Context, id string) (State, bool, error)
	// Update creates or fully overwrites the session with state.ID.
	Update(ctx context.Context, state State, maxInactivity time.Duration) error
	// Destroy removes a session. Removing an unknown id is not an error.
	Destroy(ctx context.Context, id string) error
	// Clear removes every session.
	Clear(ctx context.Context) error
	// CleanUpExpiredSessions removes sessions idle for longer than
	// maxInactivity or older than maxLifeTime.
	CleanUpExpiredSessions(ctx context.Context, maxInactivity, maxLifeTime time.Duration) error
	// AuthenticatedUserIDs lists the distinct identities owning at least one
	// session, numeric identities first.
	AuthenticatedUserIDs(ctx context.Context) ([]UserID, error)
	// DestroyAllSessionsOf removes every session owned by userID.
	DestroyAllSessionsOf(ctx context.Context, userID UserID) error
	// SessionIDsOf lists the tokens owned by userID in primary-key order.
	SessionIDsOf(ctx context.Context, userID UserID) ([]string, error)
}

// Option configures a Store implementation.
type Option func(*Options)

// Options holds settings shared by every backend.
type Options struct {
	Now func() time.Time
}

// WithClock overrides the clock used to compute expiry cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts ...Option) Options {
	o := Options{Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RecordReader is implemented by stores that can return the raw persisted
// row for a token.
type RecordReader interface {
	ReadRecord(ctx context.Context, id string) (Record, bool, error)
}
