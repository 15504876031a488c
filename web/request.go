// Package web holds the request and response helpers shared by the
// fetchd handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/fetcher/web/errs"
)

// maxBodySize caps a decoded JSON request body.
const maxBodySize = 1 << 20 // 1MB

// Param extracts a path parameter by key and returns its string value.
func Param(r *http.Request, key string) (string, error) {
	val := r.PathValue(key)
	if val == "" {
		return "", fmt.Errorf("path param[%s] not found", key)
	}

	return val, nil
}

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value and checked against its
// validation tags. Malformed bodies are 400s, failed validation is
// errs.FieldErrors.
func Decode[T any](w http.ResponseWriter, r *http.Request, val *T) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			return errs.New(http.StatusRequestEntityTooLarge, fmt.Errorf("decode: %w", err))
		}
		return errs.New(http.StatusBadRequest, fmt.Errorf("decode: %w", err))
	}

	if err := Validate(val); err != nil {
		return err
	}

	return nil
}
