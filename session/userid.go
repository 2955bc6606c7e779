package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// UserKind discriminates the UserID union.
type UserKind uint8

const (
	// UserNone marks an anonymous session.
	UserNone UserKind = iota
	// UserNumeric is a signed 32-bit identity stored in user_id.
	UserNumeric
	// UserString is a string identity stored in user_id_str.
	UserString
)

func (k UserKind) String() string {
	switch k {
	case UserNumeric:
		return "numeric"
	case UserString:
		return "string"
	default:
		return "none"
	}
}

// UserID references the owner of a session. It is either absent, numeric or
// a string, never more than one. The zero value is the anonymous identity.
type UserID struct {
	kind UserKind
	num  int32
	str  string
}

// NumericUserID returns a numeric identity.
func NumericUserID(n int32) UserID {
	return UserID{kind: UserNumeric, num: n}
}

// StringUserID returns a string identity.
func StringUserID(s string) UserID {
	return UserID{kind: UserString, str: s}
}

// ParseUserID parses a command-line or URL identity. Input that parses as a
// 32-bit integer becomes numeric unless forceString is set.
func ParseUserID(s string, forceString bool) (UserID, error) {
	if s == "" {
		return UserID{}, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !forceString {
		if n, err := strconv.ParseInt(s, 10, 32); err == nil {
			return NumericUserID(int32(n)), nil
		}
	}
	return StringUserID(s), nil
}

// Kind returns which variant is set.
func (u UserID) Kind() UserKind { return u.kind }

// IsZero reports whether the identity is absent.
func (u UserID) IsZero() bool { return u.kind == UserNone }

// Num returns the numeric value and whether the identity is numeric.
func (u UserID) Num() (int32, bool) {
	return u.num, u.kind == UserNumeric
}

// Str returns the string value and whether the identity is a string.
func (u UserID) Str() (string, bool) {
	return u.str, u.kind == UserString
}

func (u UserID) String() string {
	switch u.kind {
	case UserNumeric:
		return strconv.FormatInt(int64(u.num), 10)
	case UserString:
		return u.str
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the identity as a JSON number, string or null.
func (u UserID) MarshalJSON() ([]byte, error) {
	switch u.kind {
	case UserNumeric:
		return json.Marshal(u.num)
	case UserString:
		return json.Marshal(u.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string or null.
func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = UserID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = StringUserID(s)
		return nil
	}
	var n int32
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a 32-bit integer, a string or null: %w", err)
	}
	*u = NumericUserID(n)
	return nil
}

// compareUserIDs orders numeric identities before string identities, each
// ascending.
func compareUserIDs(a, b UserID) int {
	if a.kind != b.kind {
		return int(a.kind) - int(b.kind)
	}
	switch {
	case a.kind == UserNumeric && a.num < b.num, a.kind == UserString && a.str < b.str:
		return -1
	case a.kind == UserNumeric && a.num > b.num, a.kind == UserString && a.str > b.str:
		return 1
	}
	return 0
}

// SortUserIDs sorts ids numeric-first, each group ascending, and drops
// duplicates. The slice is modified in place and the compacted slice is
// returned.
func SortUserIDs(ids []UserID) []UserID {
	slices.SortFunc(ids, compareUserIDs)
	return slices.Compact(ids)
}
