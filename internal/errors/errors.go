// Package errors defines the error taxonomy shared by the vault's
// services and pipelines.
//
// Leaf failures are built with a typed constructor and matched by
// callers against the exported sentinels:
//
//	if !png.HasSignature(data) {
//	    return errors.InvalidImage("missing PNG signature")
//	}
//
//	if errors.Is(err, errors.ErrInvalidImage) {
//	    log.Warn("rejected file", "path", path, "error", err)
//	    return
//	}
//
// Failures deeper in the ingest pipeline wrap their cause instead, so
// the step that broke is classified without losing the original error:
//
//	if err := s.store.CreateImage(ctx, img); err != nil {
//	    return nil, errors.Wrap(err, errors.CodeProcessing, "persist image")
//	}
package errors

import (
	"errors"
	"fmt"
)

// Is and As are re-exported so callers matching domain errors do not
// need the standard library package under a second import alias.
var (
	Is = errors.Is
	As = errors.As
)

// Code classifies an error independently of its message text.
type Code string

const (
	// CodeNotFound covers lookups for images and tags absent from the
	// store.
	CodeNotFound Code = "NOT_FOUND"

	// CodeValidation covers rejected configuration and request
	// parameters that failed a domain rule.
	CodeValidation Code = "VALIDATION"

	// CodeInvalidImage marks input that is structurally not a PNG, as
	// opposed to a PNG that merely lacks generation metadata.
	CodeInvalidImage Code = "INVALID_IMAGE"

	// CodeProcessing marks a pipeline step that failed after the input
	// itself was accepted.
	CodeProcessing Code = "PROCESSING"
)

// Error carries a Code alongside the human-readable message. Details
// holds per-field context on validation failures and is nil otherwise.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code, so the sentinels below
// stand in for every error of their kind regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks, one per code.
var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrInvalidImage = &Error{Code: CodeInvalidImage, Message: "invalid image"}
	ErrProcessing   = &Error{Code: CodeProcessing, Message: "processing failed"}
)

// NotFoundf reports a missing entity, naming it in the message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation reports input that failed a domain rule.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails attaches per-field messages to a validation
// error. The validation package feeds it struct-tag results.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// InvalidImage rejects bytes that are not a PNG.
func InvalidImage(msg string) *Error {
	return &Error{Code: CodeInvalidImage, Message: msg}
}

// InvalidImagef is InvalidImage with a formatted message.
func InvalidImagef(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidImage, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code while keeping it reachable through
// Unwrap.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
