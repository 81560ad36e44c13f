// Package revert defines the caller-facing failure taxonomy of the ledger and order book.
//
// A revert aborts the whole operation: nothing it staged is committed. Reason strings are
// surfaced to callers verbatim, so they are part of the external contract.
package revert

import (
	"errors"
	"fmt"
)

// Kind classifies a revert
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInsufficientBalance
	KindAllowanceTooLow
	KindInsufficientOrderQuantity
	KindUnknownOrder
	KindTokenMismatch
	KindInvalidAmount
	KindPriceBelowRate
	KindSupplyOverflow
	KindCustodyCaller
	KindUnknownToken
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindAllowanceTooLow:
		return "allowance_too_low"
	case KindInsufficientOrderQuantity:
		return "insufficient_order_quantity"
	case KindUnknownOrder:
		return "unknown_order"
	case KindTokenMismatch:
		return "token_mismatch"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindPriceBelowRate:
		return "price_below_rate"
	case KindSupplyOverflow:
		return "supply_overflow"
	case KindCustodyCaller:
		return "custody_caller"
	case KindUnknownToken:
		return "unknown_token"
	default:
		return "unknown"
	}
}

// Error is a caller-input failure. Two errors match under errors.Is when their kinds match,
// so a detailed revert still satisfies errors.Is(err, ErrAllowanceTooLow).
type Error struct {
	Kind   Kind
	Reason string // verbatim reason string
	Detail string // optional context, never part of the reason
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// Is reports kind equality
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels. The first two reasons are externally observable and must not change.
var (
	ErrInsufficientOrderQuantity = &Error{Kind: KindInsufficientOrderQuantity, Reason: "Not enough tokens available in the order"}
	ErrAllowanceTooLow           = &Error{Kind: KindAllowanceTooLow, Reason: "Allowance too low"}
	ErrInsufficientBalance       = &Error{Kind: KindInsufficientBalance, Reason: "Insufficient balance"}
	ErrUnknownOrder              = &Error{Kind: KindUnknownOrder, Reason: "Order does not exist"}
	ErrTokenMismatch             = &Error{Kind: KindTokenMismatch, Reason: "Payment token does not match the order"}
	ErrInvalidAmount             = &Error{Kind: KindInvalidAmount, Reason: "Amount must be greater than zero"}
	ErrPriceBelowRate            = &Error{Kind: KindPriceBelowRate, Reason: "Payment below the order rate"}
	ErrSupplyOverflow            = &Error{Kind: KindSupplyOverflow, Reason: "Total supply overflow"}
	ErrCustodyCaller             = &Error{Kind: KindCustodyCaller, Reason: "Book custody account cannot call"}
	ErrUnknownToken              = &Error{Kind: KindUnknownToken, Reason: "Token is not registered"}
)

// New returns a copy of sentinel carrying a formatted detail
func New(sentinel *Error, format string, args ...any) *Error {
	return &Error{
		Kind:   sentinel.Kind,
		Reason: sentinel.Reason,
		Detail: fmt.Sprintf(format, args...),
	}
}

// As extracts a revert from err's chain
func As(err error) (*Error, bool) {
	var r *Error
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Reason returns the verbatim reason of a revert, or "" when err is not a revert.
func Reason(err error) string {
	if r, ok := As(err); ok {
		return r.Reason
	}
	return ""
}
