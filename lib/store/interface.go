package store

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface for the single-table key-value store backing the service.
// Records are created by Put and read by Get. There is no update or delete.
// All operations return a *Error (nil on success).
type IStore interface {
	// Put inserts a new key-value pair.
	// If the key already exists the old value is kept and an error with code
	// RetCKeyAlreadyExists is returned. Implementations must not pre-check for
	// existence, the uniqueness has to be resolved by the storage engine so that
	// exactly one of several concurrent Put calls for the same key succeeds.
	Put(ctx context.Context, key, value string) (err error)
	// Get returns the value for a key.
	// If no record exists an error with code RetCKeyNotFound is returned.
	Get(ctx context.Context, key string) (value string, err error)
	// Close releases the resources (connections, pools) held by the store.
	Close() error
}

// IPinger is implemented by stores that can verify their backing storage is reachable.
type IPinger interface {
	Ping(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code.
// This allows checks like errors.Is(err, store.ErrKeyNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Unwrap returns the underlying cause, so errors.Is(err, context.Canceled) sees through the store error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new KVStoreError with the given code and a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrapf creates a new KVStoreError with a formatted message followed by the
// message of cause. The cause stays in the error chain.
func Wrapf(cause error, code RetCode, format string, args ...interface{}) *Error {
	e := NewError(code, fmt.Sprintf(format, args...)+": "+cause.Error())
	e.Err = cause
	return e
}

// Sentinel errors, only the code is relevant when comparing with errors.Is
var (
	ErrKeyAlreadyExists        = NewError(RetCKeyAlreadyExists, "key already exists")
	ErrKeyNotFound             = NewError(RetCKeyNotFound, "key not found")
	ErrBackingStoreUnavailable = NewError(RetCUnavailable, "backing store unavailable")
)

// CodeOf returns the RetCode of err.
// Errors that are not a *Error are reported as RetCInternalError, nil as RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCKeyAlreadyExists                // 2: Put violated the uniqueness of the key.
	RetCKeyNotFound                     // 3: Get found no record for the key.
	RetCUnavailable                     // 4: The backing store could not be reached or failed.
)

// String returns the name of the return code
func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCKeyAlreadyExists:
		return "KeyAlreadyExists"
	case RetCKeyNotFound:
		return "KeyNotFound"
	case RetCUnavailable:
		return "BackingStoreUnavailable"
	default:
		return "Unknown"
	}
}
