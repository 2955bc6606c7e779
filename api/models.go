package api

import "github.com/jmcleod/sessionstore/session"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListUsersResponse is returned from GET /users.
type ListUsersResponse struct {
	Users []session.UserID `json:"users"`
	PaginationMeta
}

// ListUserSessionsResponse is returned from GET /users/{kind}/{userID}/sessions.
type ListUserSessionsResponse struct {
	UserID     session.UserID `json:"user_id"`
	SessionIDs []string       `json:"session_ids"`
	PaginationMeta
}

// RevokeUserSessionsResponse is returned from DELETE /users/{kind}/{userID}/sessions.
type RevokeUserSessionsResponse struct {
	UserID  session.UserID `json:"user_id"`
	Revoked int            `json:"revoked"`
}

// SweepResponse is returned from POST /sweep.
type SweepResponse struct {
	MaxInactivity string `json:"max_inactivity"`
	MaxLifeTime   string `json:"max_lifetime"`
}
