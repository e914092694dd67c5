// Package apperr defines the error kinds shared by every layer of the service.
// Package-level sentinels are tagged with one of the kinds so that callers can
// match either the precise error or its category with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream failure")

	// ErrUnauthenticated is the Unauthorized flavour for requests without an identity.
	ErrUnauthenticated = New(ErrUnauthorized, "authentication required")
)

var kindNames = map[error]string{
	ErrNotFound:     "not_found",
	ErrUnauthorized: "unauthorized",
	ErrInvalidState: "invalid_state",
	ErrInvalidInput: "invalid_input",
	ErrConflict:     "conflict",
	ErrUpstream:     "upstream_failure",
}

type tagged struct {
	kind error
	msg  string
}

func (e *tagged) Error() string { return e.msg }

func (e *tagged) Unwrap() error { return e.kind }

// New returns an error with the given message that matches kind.
func New(kind error, msg string) error {
	return &tagged{kind: kind, msg: msg}
}

// Newf is New with formatting.
func Newf(kind error, format string, args ...any) error {
	return &tagged{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Upstream marks err as a failure of an external collaborator.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", service, errors.Join(ErrUpstream, err))
}

// Kind returns the taxonomy sentinel err belongs to, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrInvalidState, ErrInvalidInput, ErrConflict, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a stable snake_case name for the kind of err, or "internal".
func KindName(err error) string {
	if kind := Kind(err); kind != nil {
		return kindNames[kind]
	}
	return "internal"
}

// FromKindName rebuilds an error of the named kind. Unknown names produce a plain error.
func FromKindName(name, msg string) error {
	for kind, n := range kindNames {
		if n == name {
			return New(kind, msg)
		}
	}
	return errors.New(msg)
}
