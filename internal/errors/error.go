package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryInit     Category = "init"
	CategoryConfig   Category = "config"
	CategoryDelegate Category = "delegate"
	CategoryMirror   Category = "mirror"
	CategoryCLI      Category = "cli"
)

// DocrootError is a structured error with a code, a hint and an optional cause.
type DocrootError struct {
	// Code is a unique error identifier (e.g., "E100").
	Code string

	// Category is the error type (init, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DocrootError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DocrootError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DocrootError) WithSuggestion(s string) *DocrootError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *DocrootError) WithDetail(d string) *DocrootError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *DocrootError) Wrap(err error) *DocrootError {
	e.Wrapped = err
	return e
}

// New creates a DocrootError from a registered error code.
func New(code string) *DocrootError {
	template, ok := registry[code]
	if !ok {
		return &DocrootError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DocrootError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new DocrootError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DocrootError {
	return &DocrootError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a DocrootError.
func FromError(err error, code string) *DocrootError {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DocrootError); ok {
		return de
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err is, or wraps, a DocrootError with the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		if de, ok := err.(*DocrootError); ok && de.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
