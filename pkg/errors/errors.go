package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidLoanTerms         = errors.New("invalid loan terms")
	ErrPersistence              = errors.New("persistence failure")
	ErrChannelSend              = errors.New("channel send failed")
	ErrCycleFetch               = errors.New("scheduler cycle fetch failed")
	ErrMalformedRecord          = errors.New("malformed record")
	ErrLoanNotFound             = errors.New("loan not found")
	ErrLoanAlreadyExists        = errors.New("loan already exists")
	ErrApplicationNotFound      = errors.New("loan application not found")
	ErrApplicationNotApprovable = errors.New("loan application cannot be approved")
	ErrInvalidSchedulerConfig   = errors.New("invalid scheduler configuration")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidLoanTerms         = "INVALID_LOAN_TERMS"
	ErrCodeDatabaseError            = "DATABASE_ERROR"
	ErrCodeChannelSendFailed        = "CHANNEL_SEND_FAILED"
	ErrCodeCycleFetchFailed         = "CYCLE_FETCH_FAILED"
	ErrCodeMalformedRecord          = "MALFORMED_RECORD"
	ErrCodeLoanNotFound             = "LOAN_NOT_FOUND"
	ErrCodeLoanAlreadyExists        = "LOAN_ALREADY_EXISTS"
	ErrCodeApplicationNotFound      = "APPLICATION_NOT_FOUND"
	ErrCodeApplicationNotApprovable = "APPLICATION_NOT_APPROVABLE"
	ErrCodeInvalidSchedulerConfig   = "INVALID_SCHEDULER_CONFIG"
	ErrCodeCacheError               = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or "" when err is not a BusinessError.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Wrap common errors with business context
func WrapInvalidLoanTerms(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidLoanTerms,
		reason,
		ErrInvalidLoanTerms,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		fmt.Errorf("%w: %w", ErrPersistence, err),
	)
}

func WrapChannelSend(channel string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeChannelSendFailed,
		fmt.Sprintf("sending via %s failed", channel),
		fmt.Errorf("%w: %w", ErrChannelSend, err),
	)
}

func WrapCycleFetch(what string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCycleFetchFailed,
		fmt.Sprintf("could not fetch %s", what),
		fmt.Errorf("%w: %w", ErrCycleFetch, err),
	)
}

func WrapMalformedRecord(id, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeMalformedRecord,
		fmt.Sprintf("record %s skipped: %s", id, reason),
		ErrMalformedRecord,
	)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapLoanAlreadyExists(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyExists,
		fmt.Sprintf("Loan with ID %s already exists", loanID),
		ErrLoanAlreadyExists,
	)
}

func WrapApplicationNotFound(applicationID string) *BusinessError {
	return NewBusinessError(
		ErrCodeApplicationNotFound,
		fmt.Sprintf("Loan application %s not found", applicationID),
		ErrApplicationNotFound,
	)
}

func WrapApplicationNotApprovable(applicationID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeApplicationNotApprovable,
		fmt.Sprintf("Loan application %s has status %s", applicationID, status),
		ErrApplicationNotApprovable,
	)
}

func WrapInvalidSchedulerConfig(reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidSchedulerConfig,
		reason,
		ErrInvalidSchedulerConfig,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
