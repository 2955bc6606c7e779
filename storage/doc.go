// Package storage holds the pieces shared by the session.Store backends in
// its subpackages: the sessions table column names and the translation of
// backend duplicate-key failures into session.ErrSessionAlreadyExists.
package storage
