package forecast

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a class of prediction failure.
type ErrorCode string

const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrInsufficientData ErrorCode = "INSUFFICIENT_DATA"
	ErrQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrModelFit         ErrorCode = "MODEL_FIT_ERROR"
	ErrCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
)

// Error is a structured prediction failure. Only validation, insufficient
// data and quota errors ever reach the caller; the rest degrade internally.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error

	// Quota context, set for ErrQuotaExceeded.
	CurrentUsage int
	MaxUsage     int
	ResetAt      time.Time

	// Data context, set for ErrInsufficientData.
	RequiredPoints  int
	AvailablePoints int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewValidationError reports a user-fixable request shape problem.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Code:    ErrValidation,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
	}
}

// NewInsufficientDataError reports too little history for any estimator.
func NewInsufficientDataError(required, available int) *Error {
	return &Error{
		Code:            ErrInsufficientData,
		Message:         fmt.Sprintf("at least %d distinct days of history required, got %d", required, available),
		RequiredPoints:  required,
		AvailablePoints: available,
	}
}

// NewQuotaExceededError reports an exhausted monthly computation budget.
func NewQuotaExceededError(current, max int, resetAt time.Time) *Error {
	return &Error{
		Code:         ErrQuotaExceeded,
		Message:      fmt.Sprintf("monthly prediction limit reached (%d/%d)", current, max),
		CurrentUsage: current,
		MaxUsage:     max,
		ResetAt:      resetAt,
	}
}

// NewModelFitError reports a primary-engine failure; callers redirect it to
// the fallback estimator rather than surfacing it.
func NewModelFitError(message string, cause error) *Error {
	return &Error{Code: ErrModelFit, Message: message, Cause: cause}
}

// AsError unwraps err into a *Error if one is in its chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	pe, ok := AsError(err)
	return ok && pe.Code == code
}
