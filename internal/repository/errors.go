// Package repository defines error types that are reused across
// multiple repositories. These sentinel values allow higher layers
// such as handlers to distinguish between different failure
// scenarios. For example, ErrNotFound indicates that a referenced
// row does not exist, while ErrConflict signals that an operation
// cannot proceed because of existing state (e.g. a season lifecycle
// move that is not forward-only).
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be performed
// because of conflicting state, such as moving a season backwards
// in its lifecycle or revoking a card that is already burned.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
