package errors

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError is the application error carried across layers. The gRPC code
// decides how the outer interceptor reports it.
type AppError struct {
	ID      string
	Message string
	code    codes.Code
	cause   error
}

type Option func(*AppError)

func WithCause(err error) Option {
	return func(e *AppError) { e.cause = err }
}

func WithID(id string) Option {
	return func(e *AppError) { e.ID = id }
}

func WithCode(code codes.Code) Option {
	return func(e *AppError) { e.code = code }
}

// New builds an AppError. Without WithCode the error is reported as Unknown.
func New(message string, opts ...Option) error {
	e := &AppError{Message: message, code: codes.Unknown}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Internal builds an AppError with codes.Internal.
func Internal(message string, opts ...Option) error {
	return New(message, append([]Option{WithCode(codes.Internal)}, opts...)...)
}

func NotFound(message string, opts ...Option) error {
	return New(message, append([]Option{WithCode(codes.NotFound)}, opts...)...)
}

func InvalidArgument(message string, opts ...Option) error {
	return New(message, append([]Option{WithCode(codes.InvalidArgument)}, opts...)...)
}

func (e *AppError) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) Code() codes.Code { return e.code }

// Code resolves the gRPC code of err. AppError wins over a wrapped gRPC status.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.code
	}
	var (
		notFound *DBNotFoundError
		unique   *DBUniqueViolationError
		fk       *DBForeignKeyViolationError
	)
	switch {
	case errors.As(err, &notFound):
		return codes.NotFound
	case errors.As(err, &unique):
		return codes.AlreadyExists
	case errors.As(err, &fk):
		return codes.FailedPrecondition
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}

// Details renders err with the ids of every AppError in its chain.
func Details(err error) string {
	if err == nil {
		return ""
	}
	var parts []string
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		app, ok := cur.(*AppError)
		if !ok {
			parts = append(parts, cur.Error())
			break
		}
		if app.ID != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", app.ID, app.Message))
		} else {
			parts = append(parts, app.Message)
		}
	}
	return strings.Join(parts, ": ")
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
