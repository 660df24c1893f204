// Package repository implements raw-SQL data access over *sql.DB plus the
// Redis-backed session store. Sentinel errors defined here let services
// and handlers distinguish failure scenarios without inspecting driver
// error strings.
package repository

import "errors"

// ErrConflict is returned when an insert or update cannot proceed because
// of conflicting state, such as granting access that already exists.
// Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrInvalidStatus is returned when a conditional status transition
// matched no row: the record left the expected state between the caller's
// read and the write. Invitation acceptance relies on this to keep tokens
// single-use under concurrency.
var ErrInvalidStatus = errors.New("invalid status transition")

// ErrEmailExists is returned when creating a user with an email that is
// already registered.
var ErrEmailExists = errors.New("email already exists")
