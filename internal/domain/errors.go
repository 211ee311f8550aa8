// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity's current state forbids the requested
// transition (e.g. resolving an already-resolved escalation).
var ErrConflict = errors.New("conflict: resource state forbids this operation")

// ErrValidation indicates the request was rejected before any mutation.
var ErrValidation = errors.New("validation failed")
