package domain

import (
	"errors"
	"fmt"
)

// ErrorKind identifies why a settlement request was refused.
type ErrorKind string

const (
	KindReferenceNotFound    ErrorKind = "REFERENCE_NOT_FOUND"
	KindOnChainFailure       ErrorKind = "ON_CHAIN_FAILURE"
	KindNotConfirmed         ErrorKind = "NOT_CONFIRMED"
	KindNoQualifyingTransfer ErrorKind = "NO_QUALIFYING_TRANSFER"
	KindAssetMismatch        ErrorKind = "ASSET_MISMATCH"
	KindUnresolvedPrecision  ErrorKind = "UNRESOLVED_PRECISION"
	KindInvalidAmount        ErrorKind = "INVALID_AMOUNT"
	KindCapExceeded          ErrorKind = "CAP_EXCEEDED"
	KindRateUnavailable      ErrorKind = "RATE_UNAVAILABLE"
	KindSubmissionFailed     ErrorKind = "SUBMISSION_FAILED"
	KindConfirmationTimeout  ErrorKind = "CONFIRMATION_TIMEOUT"
	KindAlreadySettled       ErrorKind = "ALREADY_SETTLED"
	KindConfigurationMissing ErrorKind = "CONFIGURATION_MISSING"
)

// RetryClass tells the caller what a failure means for a retry of the same
// payment reference.
type RetryClass int

const (
	// DoNotRetry: the payment is invalid and will stay invalid.
	DoNotRetry RetryClass = iota
	// RetryLater: the payment may become valid (e.g. still confirming) or a
	// transient dependency was unavailable.
	RetryLater
	// Reconcile: the outbound transfer's fate is unknown and needs manual or
	// background reconciliation before any retry.
	Reconcile
)

var kindRetryClass = map[ErrorKind]RetryClass{
	KindReferenceNotFound:    RetryLater,
	KindOnChainFailure:       DoNotRetry,
	KindNotConfirmed:         RetryLater,
	KindNoQualifyingTransfer: DoNotRetry,
	KindAssetMismatch:        DoNotRetry,
	KindUnresolvedPrecision:  DoNotRetry,
	KindInvalidAmount:        DoNotRetry,
	KindCapExceeded:          DoNotRetry,
	KindRateUnavailable:      RetryLater,
	KindSubmissionFailed:     RetryLater,
	KindConfirmationTimeout:  Reconcile,
	KindAlreadySettled:       DoNotRetry,
	KindConfigurationMissing: DoNotRetry,
}

// Error is the typed failure every verifier, converter and executor
// operation returns. It never carries credential material.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retry reports the retry class for the error's kind.
func (e *Error) Retry() RetryClass { return kindRetryClass[e.Kind] }

// NewError builds a typed failure.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a typed failure with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a typed failure that preserves the underlying cause.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// RetryClassOf extracts the retry class. Untyped errors default to
// RetryLater so transient infrastructure failures never block a reference
// permanently.
func RetryClassOf(err error) RetryClass {
	var de *Error
	if errors.As(err, &de) {
		return de.Retry()
	}
	return RetryLater
}

// KindOf extracts the error kind, or empty string for untyped errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
