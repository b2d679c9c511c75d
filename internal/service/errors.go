package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/ledger"
)

type AppError struct {
	HTTPStatus int
	Code       string
	Message    string
	Retryable  bool
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(status int, code, msg string, retryable bool, cause error) *AppError {
	return &AppError{
		HTTPStatus: status,
		Code:       code,
		Message:    msg,
		Retryable:  retryable,
		Cause:      cause,
	}
}

func IsCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

func Internal(msg string, cause error) *AppError {
	return NewAppError(http.StatusInternalServerError, "INTERNAL_ERROR", msg, true, cause)
}

// fromLedgerError translates core ledger failures into the API error model.
func fromLedgerError(op string, err error) *AppError {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		return NewAppError(http.StatusBadRequest, "LEDGER_BAD_REQUEST", err.Error(), false, err)
	case errors.Is(err, ledger.ErrShuttingDown):
		return NewAppError(http.StatusServiceUnavailable, "LEDGER_SHUTTING_DOWN", "ledger is shutting down", true, err)
	case errors.Is(err, ledger.ErrWriterFailed):
		return NewAppError(http.StatusInternalServerError, "LEDGER_WRITE_FAILED", "ledger writer failed", true, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewAppError(499, "LEDGER_CANCELLED", "request cancelled", false, err)
	}
	return Internal(op, err)
}
