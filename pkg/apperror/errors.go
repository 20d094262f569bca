package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrInternal           = errors.New("internal server error")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAward       = errors.New("invalid award")
	ErrRequirementsNotMet = errors.New("requirements not met")
	ErrConflict           = errors.New("conflict")
	ErrTransientStore     = errors.New("transient store error")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAward):
		return http.StatusBadRequest
	case errors.Is(err, ErrRequirementsNotMet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTransientStore):
		return http.StatusServiceUnavailable
	}
	// Default to internal server error
	return http.StatusInternalServerError
}

// IsRetryable reports whether the whole operation can be retried safely.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// FromStore tags a data-store failure with the sentinel a caller can act on.
// Errors already carrying one of the sentinels pass through unchanged.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrNotFound, ErrInvalidAward, ErrInvalidInput, ErrRequirementsNotMet,
		ErrConflict, ErrTransientStore, ErrForbidden, ErrBadRequest,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrTransientStore, err))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// unique_violation
		case "23505":
			return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err))
		// serialization_failure, deadlock_detected, lock_not_available, admin/crash shutdown
		case "40001", "40P01", "55P03", "57P01", "57P02":
			return fmt.Errorf("%s: %w", op, errors.Join(ErrTransientStore, err))
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrTransientStore, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
