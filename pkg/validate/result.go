// Package validate holds the result types shared by every ordered validator.
//
// A validator computes exactly one Result. The throwing entry points
// (Result.Unwrap) and the compatibility entry points (Result.Compat) are pure
// projections of that Result, so they always agree on validity and on which
// error code is reported first.
package validate

import (
	"fmt"

	"github.com/peacprotocol/peac/core/pkg/codes"
)

// Issue is a single error or warning.
type Issue struct {
	Code    codes.Code `json:"code"`
	Field   string     `json:"field,omitempty"`
	Message string     `json:"message,omitempty"`
}

func (i Issue) String() string {
	if i.Field != "" {
		return fmt.Sprintf("%s at %s: %s", i.Code, i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// Result is the outcome of ordered validation. Exactly one of Value and Err is
// set. Warnings never affect validity.
type Result[T any] struct {
	Valid    bool    `json:"valid"`
	Value    *T      `json:"value,omitempty"`
	Err      *Issue  `json:"error,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// OK builds a successful Result.
func OK[T any](v *T, warnings []Issue) Result[T] {
	return Result[T]{Valid: true, Value: v, Warnings: warnings}
}

// Fail builds a failed Result carrying the first applicable error.
func Fail[T any](code codes.Code, field, message string, warnings []Issue) Result[T] {
	return Result[T]{
		Err:      &Issue{Code: code, Field: field, Message: message},
		Warnings: warnings,
	}
}

// ErrorCode returns the first error code, or "" for a valid result.
func (r Result[T]) ErrorCode() codes.Code {
	if r.Err == nil {
		return ""
	}
	return r.Err.Code
}

// Unwrap is the throwing projection of r.
func (r Result[T]) Unwrap() (*T, error) {
	if !r.Valid {
		return nil, &Error{Issue: *r.Err}
	}
	return r.Value, nil
}

// Compat is the warnings-free projection consumed by callers that want a
// stable, minimal shape.
type Compat struct {
	Valid      bool       `json:"valid"`
	ErrorCode  codes.Code `json:"error_code,omitempty"`
	ErrorField string     `json:"error_field,omitempty"`
}

// Compat projects r onto the compatibility shape.
func (r Result[T]) Compat() Compat {
	if r.Valid {
		return Compat{Valid: true}
	}
	return Compat{ErrorCode: r.Err.Code, ErrorField: r.Err.Field}
}

// Error is returned by throwing entry points.
type Error struct {
	Issue
}

func (e *Error) Error() string {
	return e.Issue.String()
}

// Warn appends a warning issue to ws.
func Warn(ws []Issue, code codes.Code, field, message string) []Issue {
	return append(ws, Issue{Code: code, Field: field, Message: message})
}
