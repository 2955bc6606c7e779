package session

import "time"

// Cutoffs is the pair of Unix-second thresholds below which a session is
// expired: UpdatedBefore for inactivity and CreatedBefore for lifetime.
type Cutoffs struct {
	UpdatedBefore int64
	CreatedBefore int64
}

// NewCutoffs computes expiry thresholds at now. Durations are truncated to
// whole seconds.
func NewCutoffs(now time.Time, maxInactivity, maxLifeTime time.Duration) Cutoffs {
	sec := now.Unix()
	return Cutoffs{
		UpdatedBefore: sec - int64(maxInactivity/time.Second),
		CreatedBefore: sec - int64(maxLifeTime/time.Second),
	}
}

// Expired reports whether a record with the given timestamps is past
// either threshold.
func (c Cutoffs) Expired(createdAt, updatedAt int64) bool {
	return updatedAt < c.UpdatedBefore || createdAt < c.CreatedBefore
}
