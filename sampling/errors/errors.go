// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package errors

import (
	"context"
	stderr "errors"
	"log/slog"
)

type (
	// Error represents a structured sampling error.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		PropertyName  string
		PropertyValue any
	}

	// Kind defines the type of error being thrown.
	Kind int
)

// The following are the defined error kinds.
const (
	ConfigurationInvalid Kind = iota
	ArgumentInvalid
	StateInvalid
	SourceUnavailable
	SourceFailed
	ExecutionException
	Cancellation
)

var kindNames = [...]string{
	ConfigurationInvalid: "configuration invalid",
	ArgumentInvalid:      "argument invalid",
	StateInvalid:         "state invalid",
	SourceUnavailable:    "source unavailable",
	SourceFailed:         "source failed",
	ExecutionException:   "execution exception",
	Cancellation:         "cancellation",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the nested error, if any.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// Attrs returns additional error attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 4)
	a = append(a, slog.String("kind", e.Kind.String()))

	if e.PropertyName != "" {
		a = append(a, slog.String("property_name", e.PropertyName))
	}
	if e.PropertyValue != nil {
		a = append(a, slog.Any("property_value", e.PropertyValue))
	}
	if e.NestedError != nil {
		a = append(a, slog.String("nested_error", e.NestedError.Error()))
	}
	return a
}

// IsKind reports whether any error in err's chain is a structured error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return stderr.As(err, &e) && e.Kind == kind
}

// Context translates a context error (if present) into a cancellation error.
func Context(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return &Error{
			Message:     msg + " cancelled",
			Kind:        Cancellation,
			NestedError: context.Cause(ctx),
		}
	}
	return nil
}
