package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeNotFound            Code = "NOT_FOUND"
	CodePersistence         Code = "PERSISTENCE"
	CodePresenceUnavailable Code = "PRESENCE_UNAVAILABLE"
	CodeCrypto              Code = "CRYPTO"
)

// AppError carries a taxonomy code alongside the underlying cause.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code, so sentinels
// below match any wrapped error of their kind.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidArgument     = &AppError{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrUnauthenticated     = &AppError{Code: CodeUnauthenticated, Message: "unauthenticated"}
	ErrUnauthorized        = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrNotFound            = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrPersistence         = &AppError{Code: CodePersistence, Message: "persistence failure"}
	ErrPresenceUnavailable = &AppError{Code: CodePresenceUnavailable, Message: "presence unavailable"}
	ErrCrypto              = &AppError{Code: CodeCrypto, Message: "crypto failure"}
)

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthorized, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Persistence(msg string, cause error) error {
	return Wrap(CodePersistence, msg, cause)
}

// CodeOf extracts the taxonomy code, CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var e *AppError
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
