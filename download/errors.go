package download

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed run or download.
type Kind int

const (
	KindNone Kind = iota
	KindUnknown
	KindConfig
	KindDirectory
	KindTransport
	KindIO
	KindCancelled
)

var (
	ErrConfig    = errors.New("invalid configuration")
	ErrDirectory = errors.New("download directory unusable")
	ErrTransport = errors.New("transport failure")
	ErrIO        = errors.New("storage failure")
	ErrCancelled = errors.New("download cancelled")

	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrSinkClosed            = errors.New("sink already committed or abandoned")
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindConfig:
		return "ConfigError"
	case KindDirectory:
		return "DirectoryError"
	case KindTransport:
		return "TransportError"
	case KindIO:
		return "IOError"
	case KindCancelled:
		return "Cancelled"
	default:
		return "UnknownError"
	}
}

// MarshalText lets outcomes carry the kind name in JSON and logs.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for c := KindNone; c <= KindCancelled; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	*k = KindUnknown

	return nil
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindDirectory:
		return ErrDirectory
	case KindTransport:
		return ErrTransport
	case KindIO:
		return ErrIO
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Error is a classified failure. It unwraps to both the sentinel
// for its Kind and the underlying cause, so errors.Is works against
// either.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		prefix = s.Error()
	}

	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", prefix, e.Detail)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf reports the Kind of err. Unclassified context errors count
// as KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}

	return KindUnknown
}

// wrap classifies err as kind unless it already carries a Kind.
func wrap(kind Kind, detail string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return &Error{Kind: kind, Detail: detail, Err: err}
}
