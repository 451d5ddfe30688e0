package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/registrar/internal/browser"
	"github.com/xkilldash9x/registrar/internal/mailbox"
	"github.com/xkilldash9x/registrar/internal/records"
)

// ErrorCode is the structured failure category attached to a step result.
type ErrorCode string

const (
	CodeNone ErrorCode = ""

	CodeSourceUnavailable    ErrorCode = "SOURCE_UNAVAILABLE"
	CodeElementNotFound      ErrorCode = "ELEMENT_NOT_FOUND"
	CodeManualStepTimeout    ErrorCode = "MANUAL_STEP_TIMEOUT"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"
	CodeNavigationError      ErrorCode = "NAVIGATION_ERROR"
	CodeValidationError      ErrorCode = "VALIDATION_ERROR"
	CodeCancelled            ErrorCode = "CANCELLED"
	CodeExecutionFailure     ErrorCode = "EXECUTION_FAILURE"
)

var (
	// ErrManualTimeout means a manual hand-off window closed without a success indicator.
	ErrManualTimeout = errors.New("manual step not completed")
	// ErrValidation means input data or page state failed a check.
	ErrValidation = errors.New("validation failed")
)

// StepError pins an explicit code onto an error.
type StepError struct {
	Code ErrorCode
	Step string
	Err  error
}

func (e *StepError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Step, e.Code, e.Err)
	}
	return fmt.Sprintf("[%s]: %v", e.Code, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Fail builds a StepError with a formatted message.
func Fail(code ErrorCode, format string, args ...interface{}) error {
	return &StepError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Classify maps an error to its code. A nil error is CodeNone.
func Classify(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	var se *StepError
	if errors.As(err, &se) && se.Code != CodeNone {
		return se.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, records.ErrSourceUnavailable):
		return CodeSourceUnavailable
	case errors.Is(err, browser.ErrElementNotFound):
		return CodeElementNotFound
	case errors.Is(err, browser.ErrNavigation):
		return CodeNavigationError
	case errors.Is(err, mailbox.ErrServiceUnavailable), errors.Is(err, mailbox.ErrOTPTimeout):
		return CodeExternalServiceError
	case errors.Is(err, ErrManualTimeout):
		return CodeManualStepTimeout
	case errors.Is(err, ErrValidation):
		return CodeValidationError
	}
	return CodeExecutionFailure
}
