package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Class groups error codes by how callers are expected to react.
type Class string

const (
	ClassValidation Class = "validation"
	ClassState      Class = "state"
	ClassDependency Class = "dependency"
	ClassIntegrity  Class = "integrity"
	ClassInternal   Class = "internal"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Class   Class  `json:"class,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so clones with custom messages still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func classified(class Class, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Class: class}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = classified(ClassValidation, "VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = classified(ClassInternal, "INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Workflow validation errors: caller input is wrong, nothing changed, retry after fixing input.
var (
	ErrMissingMarks    = classified(ClassValidation, "MISSING_MARKS", http.StatusUnprocessableEntity, "marks are required to approve a submission")
	ErrMarksOutOfRange = classified(ClassValidation, "MARKS_OUT_OF_RANGE", http.StatusUnprocessableEntity, "marks must be between 0 and the submission maximum")
	ErrMissingFeedback = classified(ClassValidation, "MISSING_FEEDBACK", http.StatusUnprocessableEntity, "feedback is required")
)

// Workflow state errors: the caller's view is stale, refresh before retrying.
var (
	ErrSubmissionAlreadyFinalized = classified(ClassState, "SUBMISSION_ALREADY_FINALIZED", http.StatusConflict, "submission already finalized")
	ErrDuplicateActivity          = classified(ClassState, "DUPLICATE_ACTIVITY", http.StatusConflict, "an active submission already exists for this activity")
	ErrWithdrawalNotAllowed       = classified(ClassState, "WITHDRAWAL_NOT_ALLOWED", http.StatusConflict, "submission can no longer be withdrawn")
	ErrVerificationPending        = classified(ClassState, "VERIFICATION_PENDING", http.StatusConflict, "verification signal not yet available")
	ErrPolicyConflict             = classified(ClassState, "POLICY_CONFLICT", http.StatusConflict, "verification signals block approval without an override")
)

// Dependency and integrity errors.
var (
	ErrEvidenceUnavailable = classified(ClassDependency, "EVIDENCE_UNAVAILABLE", http.StatusFailedDependency, "evidence unavailable")
	ErrLedgerContention    = classified(ClassIntegrity, "LEDGER_CONTENTION", http.StatusServiceUnavailable, "ledger is busy, retry later")
	ErrIntegrityViolation  = classified(ClassIntegrity, "INTEGRITY_VIOLATION", http.StatusInternalServerError, "ledger integrity check failed, contact support")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithCause clones err with an optional message override and records cause as the wrapped error.
func WithCause(err *Error, cause error, message string) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Err = cause
	}
	return clone
}

// ClassOf reports the class of err, ClassInternal when it is not a typed error.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) && e.Class != "" {
		return e.Class
	}
	return ClassInternal
}
