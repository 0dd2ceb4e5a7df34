package noteboard

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a board error. Every operation fails with exactly one code.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeForbidden  Code = "forbidden"
	CodeCapacity   Code = "capacity"
	CodeStorage    Code = "storage"
)

// Error is the only error type the Service returns.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	// Count is the current reply count for capacity errors.
	Count int64
	Cause error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works regardless of message or metadata.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Code: CodeValidation}
	ErrNotFound   = &Error{Code: CodeNotFound}
	ErrForbidden  = &Error{Code: CodeForbidden}
	ErrCapacity   = &Error{Code: CodeCapacity}
	ErrStorage    = &Error{Code: CodeStorage}
)

// ErrNoRecord is returned by store adapters when a post or reply id is unknown.
var ErrNoRecord = errors.New("noteboard: no such record")

// CodeOf returns the code of err, or CodeStorage for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorage
}

func invalid(field, msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Metadata: map[string]string{"field": field}}
}

func notFound(kind, id string) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  kind + " not found",
		Metadata: map[string]string{kind + "_id": id},
	}
}

func forbidden(action string) *Error {
	return &Error{Code: CodeForbidden, Message: "not allowed to " + action}
}

func overCapacity(count int64) *Error {
	return &Error{
		Code:    CodeCapacity,
		Message: fmt.Sprintf("a post can have at most %d replies", MaxReplies),
		Count:   count,
	}
}

// storage wraps a store failure once. Board errors raised inside an Atomic
// callback pass through untouched.
func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeStorage, Message: op, Cause: err}
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
