// Package session defines the persisted session model and the Store contract
// implemented by the backends under storage/.
//
// A session is identified by an opaque token minted by the caller. Its owner
// is a UserID that is either anonymous, a signed 32-bit number or a string of
// at most MaxUserIDLength characters. Content and Flash hold arbitrary JSON
// payloads that the store serializes on write and parses on read.
package session

import (
	"math"
	"unicode/utf8"
)

const (
	// TableName is the name of the table or bucket holding session records.
	TableName = "sessions"
	// MaxIDLength is the widest token the id column accepts.
	MaxIDLength = 44
	// MaxUserIDLength bounds string identities.
	MaxUserIDLength = 64
)

// State is the caller-facing session value.
type State struct {
	ID        string         `json:"id"`
	UserID    UserID         `json:"userId"`
	Content   map[string]any `json:"content"`
	Flash     map[string]any `json:"flash"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
}

// Validate checks the constraints enforced before any write reaches storage.
func (s State) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(s.ID) > MaxIDLength {
		return &ValidationError{Field: "id", Reason: "the session ID is too long (max 44 characters)"}
	}
	if str, ok := s.UserID.Str(); ok && utf8.RuneCountInString(str) > MaxUserIDLength {
		return &ValidationError{Field: "user_id", Reason: "the user ID is too long (max 64 characters)"}
	}
	if !fitsInt32(s.CreatedAt) {
		return &ValidationError{Field: "created_at", Reason: "out of 32-bit range"}
	}
	if !fitsInt32(s.UpdatedAt) {
		return &ValidationError{Field: "updated_at", Reason: "out of 32-bit range"}
	}
	return nil
}

func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// RequireUser rejects the anonymous identity for identity-indexed queries.
func RequireUser(userID UserID) error {
	if userID.IsZero() {
		return &ValidationError{Field: "user_id", Reason: "a numeric or string user ID is required"}
	}
	if str, ok := userID.Str(); ok && utf8.RuneCountInString(str) > MaxUserIDLength {
		return &ValidationError{Field: "user_id", Reason: "the user ID is too long (max 64 characters)"}
	}
	return nil
}
