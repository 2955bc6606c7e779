package session

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted row derived 1:1 from a State. At most one of
// UserIDNum and UserIDStr is non-nil.
type Record struct {
	ID        string  `json:"id"`
	UserIDNum *int32  `json:"user_id"`
	UserIDStr *string `json:"user_id_str"`
	Content   string  `json:"content"`
	Flash     string  `json:"flash"`
	UpdatedAt int64   `json:"updated_at"`
	CreatedAt int64   `json:"created_at"`
}

// EncodeRecord validates state and serializes it into a Record.
func EncodeRecord(state State) (Record, error) {
	if err := state.Validate(); err != nil {
		return Record{}, err
	}
	content, err := encodePayload(state.Content)
	if err != nil {
		return Record{}, fmt.Errorf("encoding content: %w", err)
	}
	flash, err := encodePayload(state.Flash)
	if err != nil {
		return Record{}, fmt.Errorf("encoding flash: %w", err)
	}
	rec := Record{
		ID:        state.ID,
		Content:   content,
		Flash:     flash,
		UpdatedAt: state.UpdatedAt,
		CreatedAt: state.CreatedAt,
	}
	switch state.UserID.Kind() {
	case UserNumeric:
		n := state.UserID.num
		rec.UserIDNum = &n
	case UserString:
		s := state.UserID.str
		rec.UserIDStr = &s
	}
	return rec, nil
}

// Decode parses the stored payloads back into a State. A record carrying
// both identity columns is rejected rather than resolved.
func (r Record) Decode() (State, error) {
	if r.UserIDNum != nil && r.UserIDStr != nil {
		return State{}, fmt.Errorf("%w: %s: both user_id and user_id_str are set", ErrCorruptRecord, r.ID)
	}
	content, err := decodePayload(r.Content)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s: content: %v", ErrCorruptRecord, r.ID, err)
	}
	flash, err := decodePayload(r.Flash)
	if err != nil {
		return State{}, fmt.Errorf("%w: %s: flash: %v", ErrCorruptRecord, r.ID, err)
	}
	return State{
		ID:        r.ID,
		UserID:    r.User(),
		Content:   content,
		Flash:     flash,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// User returns the identity stored in the record, preferring the numeric
// column. Decode rejects records where both are set.
func (r Record) User() UserID {
	switch {
	case r.UserIDNum != nil:
		return NumericUserID(*r.UserIDNum)
	case r.UserIDStr != nil:
		return StringUserID(*r.UserIDStr)
	default:
		return UserID{}
	}
}

func encodePayload(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodePayload(s string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
