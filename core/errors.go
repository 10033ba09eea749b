package core

import "github.com/pkg/errors"

// FieldError carries a per-field validation message, keyed by the JSON
// field name exposed to API clients.
type FieldError struct {
	Field string
	Error string
}

// ValidationError pairs a business error with the offending fields.
// Err keeps the sentinel message intact so handlers can match on it.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// Unwrap exposes the wrapped sentinel to errors.Is/As chains.
func (err ValidationError) Unwrap() error { return err.Err }

// FieldMap flattens Fields into the per-field response shape of the API,
// or nil when no field detail is attached.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	flds := make(map[string]string, len(err.Fields))
	for _, fld := range err.Fields {
		flds[fld.Field] = fld.Error
	}
	return flds
}

type shutdown struct {
	message string
}

// NewShutdownError flags an unrecoverable integrity failure so the
// server can stop taking traffic.
func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether err (or its cause) asks for a shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
