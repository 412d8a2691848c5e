package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeStorage    = "STORAGE_FAULT"
	ErrCodeTransient  = "TRANSIENT_NETWORK"
	ErrCodeRejection  = "REMOTE_REJECTION"
	ErrCodeAuth       = "AUTH_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrOffline          = errors.New("device is offline")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrCacheMiss        = errors.New("cache miss")
)

// ValidationError rejects malformed entries at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed [%s]: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StorageFault signals that the local store is unavailable or corrupt.
// The core recovers by falling back to in-memory-only operation.
type StorageFault struct {
	Op  string
	Key string
	Err error
}

func (e *StorageFault) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage fault during %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error { return e.Err }

// TransientNetworkError covers timeouts and refused connections.
// Attempts that hit it are retried with backoff.
type TransientNetworkError struct {
	Endpoint string
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error on %s: %v", e.Endpoint, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RemoteRejection is a client-side error from an endpoint indicating the
// payload itself is bad. Terminal for the entry; never retried.
type RemoteRejection struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("endpoint %s rejected entry (HTTP %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}

// IsRejection reports whether err is a terminal remote rejection.
func IsRejection(err error) bool {
	var re *RemoteRejection
	return errors.As(err, &re)
}

// IsStorageFault reports whether err originated in the local store.
func IsStorageFault(err error) bool {
	var sf *StorageFault
	return errors.As(err, &sf)
}
