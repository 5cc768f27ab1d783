// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrSymbolNotFound       = errors.New("symbol not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrHoldingNotFound      = errors.New("holding not found")
	ErrTransactionAborted   = errors.New("transaction aborted")
	ErrInputValidation      = errors.New("input validation failed")
	ErrJobRunning           = errors.New("job already running")
	ErrTimeout              = errors.New("operation timed out")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDatabaseError        = errors.New("database error")
	ErrSubscriberClosed     = errors.New("subscriber closed")
)

// ValidationError represents a malformed or missing request field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// SymbolNotFoundError is returned when no quote exists for a symbol.
type SymbolNotFoundError struct {
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol not found: %s", e.Symbol)
}

func (e *SymbolNotFoundError) Unwrap() error {
	return ErrSymbolNotFound
}

// NewSymbolNotFoundError creates a new SymbolNotFoundError.
func NewSymbolNotFoundError(symbol string) *SymbolNotFoundError {
	return &SymbolNotFoundError{Symbol: symbol}
}

// InsufficientFundsError is returned when a BUY costs more than the balance.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s, have %s", e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewInsufficientFundsError creates a new InsufficientFundsError.
func NewInsufficientFundsError(required, available decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{Required: required, Available: available}
}

// InsufficientHoldingsError is returned when a SELL exceeds the held quantity.
type InsufficientHoldingsError struct {
	Symbol    string
	Requested int64
	Held      int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings in %s: requested %d, held %d", e.Symbol, e.Requested, e.Held)
}

func (e *InsufficientHoldingsError) Unwrap() error {
	return ErrInsufficientHoldings
}

// NewInsufficientHoldingsError creates a new InsufficientHoldingsError.
func NewInsufficientHoldingsError(symbol string, requested, held int64) *InsufficientHoldingsError {
	return &InsufficientHoldingsError{Symbol: symbol, Requested: requested, Held: held}
}

// TransactionAbortError wraps a storage failure inside a unit of work.
// The whole unit has been rolled back when this is returned.
type TransactionAbortError struct {
	Operation string
	Err       error
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("transaction aborted [%s]: %v", e.Operation, e.Err)
}

func (e *TransactionAbortError) Unwrap() []error {
	return []error{ErrTransactionAborted, e.Err}
}

// NewTransactionAbortError creates a new TransactionAbortError.
func NewTransactionAbortError(operation string, err error) *TransactionAbortError {
	return &TransactionAbortError{Operation: operation, Err: err}
}

// AuthenticationError represents a failed identity check.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication error: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNotAuthenticated, e.Err}
	}
	return []error{ErrNotAuthenticated}
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(reason string, err error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Err: err}
}

// UserMessage maps an error to a message safe to show to clients.
func UserMessage(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient virtual balance"
	case errors.Is(err, ErrInsufficientHoldings):
		return "Insufficient holdings to sell"
	case errors.Is(err, ErrSymbolNotFound):
		return "Stock not found or price unavailable"
	case errors.Is(err, ErrAccountNotFound):
		return "Trading account not found"
	case errors.Is(err, ErrAccountExists):
		return "Trading account already exists"
	case errors.Is(err, ErrTransactionAborted):
		return "Trade could not be completed, nothing was changed"
	case errors.Is(err, ErrNotAuthenticated):
		return "Authentication required"
	case errors.Is(err, ErrJobRunning):
		return "Level evaluation is already running"
	}
	return "Internal server error"
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrSymbolNotFound), errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTransactionAborted), errors.Is(err, ErrJobRunning), errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
