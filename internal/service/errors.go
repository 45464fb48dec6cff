package service

import (
	"errors"
	"fmt"

	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
)

// Kind classifies service failures. Handlers map each kind to one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Error is a classified service failure.
// Data carries a payload the caller should still see, such as the conflict report of a refused reconcile.
type Error struct {
	Kind    Kind
	Code    response.ErrCode
	Message string
	Fields  map[string]string
	Data    any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(what string, err error) *Error {
	return &Error{Kind: KindNotFound, Code: response.ErrNotFound, Message: what + " not found", Err: err}
}

func conflict(code response.ErrCode, msg string, err error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Err: err}
}

func invalid(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindInvalid, Code: response.ErrValidation, Message: msg, Fields: fields}
}

// KindOf returns the kind of err. Store sentinels are classified as well
// so callers can pass repository errors through unchanged.
func KindOf(err error) Kind {
	var se *Error
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, ports.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ports.ErrDuplicate), errors.Is(err, ports.ErrInUse), errors.Is(err, ports.ErrEnrollmentConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// storeErr classifies a store failure for the named entity.
func storeErr(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound):
		return notFound(what, err)
	case errors.Is(err, ports.ErrDuplicate):
		return conflict(response.ErrDuplicate, what+" already exists", err)
	case errors.Is(err, ports.ErrInUse):
		return conflict(response.ErrDependencyExists, what+" is still referenced", err)
	case errors.Is(err, ports.ErrEnrollmentConflict):
		return conflict(response.ErrEnrollmentConflict, ports.ErrEnrollmentConflict.Error(), err)
	default:
		return err
	}
}
