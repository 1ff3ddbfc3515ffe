// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"

	// Validation errors (400)
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidTimeRange = "INVALID_TIME_RANGE"

	// Business rule violations (422)
	CodeBusinessRule        = "BUSINESS_RULE_VIOLATION"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeFinalizeBlocked     = "FINALIZE_BLOCKED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeWrongFacility       = "WRONG_FACILITY"
	CodeOrderFinalized      = "ORDER_FINALIZED"
	CodeLotConsumed         = "LOT_CONSUMED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict            = "CONFLICT"
	CodeNoPendingLot        = "NO_PENDING_LOT"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeIdempotency         = "IDEMPOTENCY_CONFLICT"
)

// Balance scopes reported by INSUFFICIENT_BALANCE.
const (
	// ScopeOrder means the order's live available balance is lower than the
	// operator assumed (stale read).
	ScopeOrder = "order"
	// ScopeLot means the lot has no stock left for the requested quantity.
	ScopeLot = "lot"
)

// AppError is the standard error type for the service.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidQuantity rejects a non-positive quantity or a forbidden split.
func NewInvalidQuantity(message string) *AppError {
	return NewBusinessRule(CodeInvalidQuantity, message)
}

// NewInsufficientBalance reports that a requested quantity exceeds what is available.
// scope is ScopeOrder or ScopeLot.
func NewInsufficientBalance(scope string, requested, available int64) *AppError {
	msg := "Requested quantity exceeds the order's available balance"
	if scope == ScopeLot {
		msg = "Requested quantity exceeds the lot's remaining stock"
	}
	return &AppError{
		Code:       CodeInsufficientBalance,
		Message:    msg,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"scope":     scope,
			"requested": requested,
			"available": available,
		},
	}
}

// NewNoPendingLot is returned when nothing is waiting at the requested stage or lot.
func NewNoPendingLot(stage, lotCode string) *AppError {
	e := &AppError{
		Code:       CodeNoPendingLot,
		Message:    fmt.Sprintf("no pending lot at stage %s", stage),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"stage": stage},
	}
	if lotCode != "" {
		e.Details["lot_code"] = lotCode
	}
	return e
}

// NewInvalidTimeRange rejects missing timestamps or an end not after the start.
func NewInvalidTimeRange(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidTimeRange,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewFinalizeBlocked lists every failed finalize condition.
func NewFinalizeBlocked(reasons []string) *AppError {
	return &AppError{
		Code:       CodeFinalizeBlocked,
		Message:    "Order cannot be finalized",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"reasons": reasons},
	}
}

// NewConcurrencyConflict creates an optimistic locking error
func NewConcurrencyConflict(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrencyConflict,
		Message:    "Record was modified by another operator. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewStorageUnavailable wraps a transport-level store failure.
func NewStorageUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeStorageUnavailable,
		Message:    "Storage is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different operator/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Code returns the AppError code of err, or CodeInternal for foreign errors
// and "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}

// IsConcurrencyConflict checks if error is CodeConcurrencyConflict
func IsConcurrencyConflict(err error) bool {
	return Is(err, CodeConcurrencyConflict)
}
