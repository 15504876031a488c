// Package errs defines the errors handlers return and the Errors
// middleware turns into responses.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// Error is an error with the HTTP status it should be reported as.
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	FuncName string `json:"-"`
	FileName string `json:"-"`
	InnerErr bool   `json:"-"`
}

// New constructs an error reported to the client as code and err's text.
func New(code int, err error) *Error {
	return newError(code, err, false)
}

// NewInternal creates an error that is not intended
// to be seen by users.
func NewInternal(err error) *Error {
	return newError(http.StatusInternalServerError, err, true)
}

// NotFound reports that the named resource does not exist.
func NotFound(format string, args ...any) *Error {
	return newError(http.StatusNotFound, fmt.Errorf(format, args...), false)
}

func newError(code int, err error, internal bool) *Error {
	pc, filename, line, _ := runtime.Caller(2)

	return &Error{
		Code:     code,
		Message:  err.Error(),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
		InnerErr: internal,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// IsInternal returns true if the error is internal.
func (e *Error) IsInternal() bool {
	return e.InnerErr
}

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// NewFieldsError creates a fields error.
func NewFieldsError(field string, err error) error {
	return FieldErrors{
		{
			Field: field,
			Err:   err.Error(),
		},
	}
}

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	d, err := json.Marshal(fe)
	if err != nil {
		return err.Error()
	}
	return string(d)
}

// Fields returns the fields that failed validation
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string)
	for _, fld := range fe {
		m[fld.Field] = fld.Err
	}
	return m
}

// GetFieldErrors returns the FieldErrors in err's chain, or nil.
func GetFieldErrors(err error) FieldErrors {
	fe, ok := errors.AsType[FieldErrors](err)
	if !ok {
		return nil
	}
	return fe
}
