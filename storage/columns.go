package storage

import "github.com/jmcleod/sessionstore/session"

// Column names of the sessions table.
const (
	ColumnID        = "id"
	ColumnUserID    = "user_id"
	ColumnUserIDStr = "user_id_str"
	ColumnContent   = "content"
	ColumnFlash     = "flash"
	ColumnUpdatedAt = "updated_at"
	ColumnCreatedAt = "created_at"
)

// UserColumn picks the identity column matching the runtime kind of userID
// and returns the value to compare it with. Callers must reject the
// anonymous identity first.
func UserColumn(userID session.UserID) (column string, value any) {
	if n, ok := userID.Num(); ok {
		return ColumnUserID, n
	}
	s, _ := userID.Str()
	return ColumnUserIDStr, s
}
