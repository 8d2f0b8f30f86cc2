package kvservice

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Outcome Codes
// --------------------------------------------------------------------------

// Code is the caller-visible outcome of a request
type Code uint8

const (
	CodeOK            Code = iota // the request succeeded
	CodeAlreadyExists             // Store: the key is already present (conflict)
	CodeNotFound                  // Retrieve: no record for the key
	CodeUnavailable               // the backing store failed
	CodeCanceled                  // the caller went away or the deadline passed before the request ran
	CodeInvalid                   // the request was rejected before admission
)

var codeNames = map[Code]string{
	CodeOK:            "ok",
	CodeAlreadyExists: "already_exists",
	CodeNotFound:      "not_found",
	CodeUnavailable:   "unavailable",
	CodeCanceled:      "canceled",
	CodeInvalid:       "invalid",
}

// String returns the name of the code
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// ParseCode is the inverse of Code.String
func ParseCode(s string) (Code, error) {
	for c, name := range codeNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown code: %s", s)
}

// MarshalText encodes the code by its name
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a code from its name
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := ParseCode(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// --------------------------------------------------------------------------
// Status Error
// --------------------------------------------------------------------------

// StatusError is the error returned by the service and by remote clients.
// It carries the outcome code and a message derived from the underlying cause.
type StatusError struct {
	Code Code
	Msg  string
}

// NewStatusError creates a StatusError
func NewStatusError(code Code, msg string) *StatusError {
	return &StatusError{Code: code, Msg: msg}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is reports whether target is a *StatusError with the same code
func (e *StatusError) Is(target error) bool {
	var t *StatusError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is, only the code is compared
var (
	ErrAlreadyExists = NewStatusError(CodeAlreadyExists, "already exists")
	ErrNotFound      = NewStatusError(CodeNotFound, "not found")
	ErrUnavailable   = NewStatusError(CodeUnavailable, "unavailable")
	ErrCanceled      = NewStatusError(CodeCanceled, "canceled")
	ErrInvalid       = NewStatusError(CodeInvalid, "invalid request")
)

// CodeOf returns the outcome code of err: CodeOK for nil, the code of a
// *StatusError, CodeUnavailable for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *StatusError
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnavailable
}
