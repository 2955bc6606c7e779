package storage

import (
	"errors"
	"strings"

	"github.com/jmcleod/sessionstore/session"
)

// duplicateKeyCodes maps backend error identifiers that signal a primary-key
// collision on the sessions table.
var duplicateKeyCodes = map[string]bool{
	"23505":                        true, // PostgreSQL unique_violation
	"SQLITE_CONSTRAINT_PRIMARYKEY": true,
	"SQLITE_CONSTRAINT_UNIQUE":     true,
}

// duplicateKeyMessages covers drivers that only expose the condition in the
// error text.
var duplicateKeyMessages = []string{
	"UNIQUE constraint failed: " + session.TableName + ".id",
}

var sqliteCodeNames = map[int]string{
	1555: "SQLITE_CONSTRAINT_PRIMARYKEY",
	2067: "SQLITE_CONSTRAINT_UNIQUE",
}

// sqlStateError is implemented by *pgconn.PgError.
type sqlStateError interface {
	error
	SQLState() string
}

// codeError is implemented by *sqlite.Error (modernc.org/sqlite).
type codeError interface {
	error
	Code() int
}

// TranslateInsertError converts a backend duplicate-key failure into
// session.ErrSessionAlreadyExists. Any other error is returned unchanged.
func TranslateInsertError(err error) error {
	if err == nil || errors.Is(err, session.ErrSessionAlreadyExists) {
		return err
	}
	if IsDuplicateKey(err) {
		return session.ErrSessionAlreadyExists
	}
	return err
}

// IsDuplicateKey reports whether err is a backend unique-constraint
// violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if code := backendCode(err); code != "" && duplicateKeyCodes[code] {
		return true
	}
	msg := err.Error()
	for _, m := range duplicateKeyMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func backendCode(err error) string {
	var se sqlStateError
	if errors.As(err, &se) {
		return se.SQLState()
	}
	var ce codeError
	if errors.As(err, &ce) {
		return sqliteCodeNames[ce.Code()]
	}
	return ""
}
