package domain

import (
	"errors"
	"fmt"
)

// Sentinels for remote-service failures, mapped from backend status codes at
// the adapter boundary and matched with errors.Is at call sites.
var (
	ErrNotFound     = errors.New("remote: not found")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrForbidden    = errors.New("remote: forbidden")
	ErrConflict     = errors.New("remote: conflict")
)

// ValidationError is a client-side rejection: handled locally, never retried,
// never sent over the wire.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func Invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

// StorageError wraps object-storage failures (quota, invalid path, permission).
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Path, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
