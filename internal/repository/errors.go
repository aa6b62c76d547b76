package repository

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict indicates a write carried a stale version token.
	// Callers re-read and retry; see WithOptimisticRetry.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrPermission indicates the backend rejected the credential. Fatal, never retried.
	ErrPermission = errors.New("repository: permission denied")
	// ErrMalformed indicates the backend rejected the request shape. Fatal, never retried.
	ErrMalformed = errors.New("repository: malformed request")
	// ErrUnavailable indicates the backend could not be reached.
	ErrUnavailable = errors.New("repository: backend unavailable")
)
