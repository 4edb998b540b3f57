package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jafarshop/orderengine/internal/domain"
)

// Code is a stable identifier for an error kind, used to map errors to
// transport status codes and user-facing messages.
type Code string

const (
	CodeValidation              Code = "VALIDATION_ERROR"
	CodeNotFound                Code = "NOT_FOUND"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeForbidden               Code = "FORBIDDEN"
	CodeConflict                Code = "CONFLICT"
	CodeProductUnavailable      Code = "PRODUCT_UNAVAILABLE"
	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeVoucherInvalid          Code = "VOUCHER_INVALID"
	CodeVoucherMinimumNotMet    Code = "VOUCHER_MINIMUM_NOT_MET"
	CodeVoucherExhausted        Code = "VOUCHER_EXHAUSTED"
	CodeOrderNotCancellable     Code = "ORDER_NOT_CANCELLABLE"
	CodeOrderAlreadyFinalized   Code = "ORDER_ALREADY_FINALIZED"
	CodeInvalidStateTransition  Code = "INVALID_STATE_TRANSITION"
	CodePaymentNotCompleted     Code = "PAYMENT_NOT_COMPLETED"
	CodeGatewaySignatureInvalid Code = "GATEWAY_SIGNATURE_INVALID"
	CodeTransient               Code = "TRANSIENT_INFRASTRUCTURE_FAILURE"
)

// CodedError is implemented by every error in this package.
type CodedError interface {
	error
	Code() Code
}

// CodeOf returns the code of the first CodedError in err's chain, or "".
func CodeOf(err error) Code {
	var ce CodedError
	if stderrors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Is and As forward to the standard library so callers need one errors import
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// ErrValidation represents malformed or missing input
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ErrValidation) Code() Code { return CodeValidation }

// ErrNotFound represents a missing resource
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *ErrNotFound) Code() Code { return CodeNotFound }

// ErrUnauthorized represents a missing or invalid credential
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string { return e.Message }

func (e *ErrUnauthorized) Code() Code { return CodeUnauthorized }

// ErrForbidden represents an authenticated actor acting outside its rights
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string { return e.Message }

func (e *ErrForbidden) Code() Code { return CodeForbidden }

// ErrConflict represents a request that collides with one already in flight
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string { return e.Message }

func (e *ErrConflict) Code() Code { return CodeConflict }

// ErrProductUnavailable is returned when a product is missing or deactivated
type ErrProductUnavailable struct {
	ProductID uuid.UUID
}

func (e *ErrProductUnavailable) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

func (e *ErrProductUnavailable) Code() Code { return CodeProductUnavailable }

// ErrInsufficientStock names the product whose stock (or flash-sale pool)
// could not cover the requested quantity.
type ErrInsufficientStock struct {
	ProductID uuid.UUID
	Requested int
	FlashSale bool
}

func (e *ErrInsufficientStock) Error() string {
	if e.FlashSale {
		return fmt.Sprintf("insufficient flash sale stock for product %s (requested %d)", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *ErrInsufficientStock) Code() Code { return CodeInsufficientStock }

// ErrVoucherInvalid covers missing, inactive and expired vouchers
type ErrVoucherInvalid struct {
	VoucherCode string
	Reason      string
}

func (e *ErrVoucherInvalid) Error() string {
	return fmt.Sprintf("voucher %q is invalid: %s", e.VoucherCode, e.Reason)
}

func (e *ErrVoucherInvalid) Code() Code { return CodeVoucherInvalid }

// ErrVoucherMinimumNotMet is returned when the subtotal is below the voucher minimum
type ErrVoucherMinimumNotMet struct {
	VoucherCode string
	Minimum     decimal.Decimal
	Subtotal    decimal.Decimal
}

func (e *ErrVoucherMinimumNotMet) Error() string {
	return fmt.Sprintf("voucher %q requires a minimum order of %s (subtotal %s)",
		e.VoucherCode, e.Minimum.StringFixed(2), e.Subtotal.StringFixed(2))
}

func (e *ErrVoucherMinimumNotMet) Code() Code { return CodeVoucherMinimumNotMet }

// ErrVoucherExhausted is returned when the voucher usage cap is reached
type ErrVoucherExhausted struct {
	VoucherCode string
}

func (e *ErrVoucherExhausted) Error() string {
	return fmt.Sprintf("voucher %q has reached its usage limit", e.VoucherCode)
}

func (e *ErrVoucherExhausted) Code() Code { return CodeVoucherExhausted }

// ErrOrderNotCancellable is returned when cancelling outside PENDING/PROCESSING
type ErrOrderNotCancellable struct {
	OrderID uuid.UUID
	Status  domain.OrderStatus
}

func (e *ErrOrderNotCancellable) Error() string {
	return fmt.Sprintf("order %s cannot be cancelled in status %s", e.OrderID, e.Status)
}

func (e *ErrOrderNotCancellable) Code() Code { return CodeOrderNotCancellable }

// ErrOrderAlreadyFinalized is returned when mutating an order in a terminal state
type ErrOrderAlreadyFinalized struct {
	OrderID uuid.UUID
	Status  domain.OrderStatus
}

func (e *ErrOrderAlreadyFinalized) Error() string {
	return fmt.Sprintf("order %s is already finalized (%s)", e.OrderID, e.Status)
}

func (e *ErrOrderAlreadyFinalized) Code() Code { return CodeOrderAlreadyFinalized }

// ErrInvalidStateTransition represents a transition the state machine forbids
type ErrInvalidStateTransition struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

func (e *ErrInvalidStateTransition) Code() Code { return CodeInvalidStateTransition }

// ErrPaymentNotCompleted is returned when the gateway has not captured the payment
type ErrPaymentNotCompleted struct {
	IntentID     string
	IntentStatus string
}

func (e *ErrPaymentNotCompleted) Error() string {
	if e.IntentStatus == "" {
		return "payment has not been completed"
	}
	return fmt.Sprintf("payment %s has not been completed (status %s)", e.IntentID, e.IntentStatus)
}

func (e *ErrPaymentNotCompleted) Code() Code { return CodePaymentNotCompleted }

// ErrGatewaySignatureInvalid rejects a webhook whose signature does not verify
type ErrGatewaySignatureInvalid struct {
	Reason string
}

func (e *ErrGatewaySignatureInvalid) Error() string {
	return fmt.Sprintf("invalid gateway signature: %s", e.Reason)
}

func (e *ErrGatewaySignatureInvalid) Code() Code { return CodeGatewaySignatureInvalid }

// ErrTransient wraps a persistence or gateway failure the caller may retry
type ErrTransient struct {
	Op  string
	Err error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ErrTransient) Unwrap() error { return e.Err }

func (e *ErrTransient) Code() Code { return CodeTransient }

// Transient wraps err as retryable unless it already carries a code.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return &ErrTransient{Op: op, Err: err}
}
